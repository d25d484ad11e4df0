// Package scoring maps risk-adjusted performance to categorical ratings.
package scoring

import (
	"fmt"
	"math"

	"github.com/quantcockpit/engine/internal/domain"
)

// band is one (predicate, label) entry of the rating table. Bands are
// evaluated top-down; the first match wins, which makes the boundary
// semantics explicit and testable.
type band struct {
	applies func(sharpe float64) bool
	label   domain.Recommendation
}

// bands orders the rating thresholds highest first. The comparisons are
// strict ">" except the final catch-all: exactly 2.0 rates BUY and exactly
// 1.0 rates HOLD.
var bands = []band{
	{func(s float64) bool { return s > 2.0 }, domain.RecommendationStrongBuy},
	{func(s float64) bool { return s > 1.0 }, domain.RecommendationBuy},
	{func(s float64) bool { return s >= 0 }, domain.RecommendationHold},
	{func(s float64) bool { return s < 0 }, domain.RecommendationSell},
}

// Rate maps a Sharpe ratio to a recommendation. Every finite input maps to a
// label; NaN and Inf are rejected rather than falling through to a default.
func Rate(sharpe float64) (domain.Recommendation, error) {
	if math.IsNaN(sharpe) || math.IsInf(sharpe, 0) {
		return "", fmt.Errorf("sharpe ratio is not finite: %w", domain.ErrInvalidInput)
	}

	for _, b := range bands {
		if b.applies(sharpe) {
			return b.label, nil
		}
	}

	// Unreachable for finite inputs; the bands cover the real line.
	return "", fmt.Errorf("no rating band matched sharpe %v: %w", sharpe, domain.ErrInvalidInput)
}
