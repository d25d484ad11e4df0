package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcockpit/engine/internal/domain"
)

func TestRate_Bands(t *testing.T) {
	tests := []struct {
		name   string
		sharpe float64
		want   domain.Recommendation
	}{
		{"well above strong buy", 2.5, domain.RecommendationStrongBuy},
		{"exactly 2.0 is BUY, not STRONG BUY", 2.0, domain.RecommendationBuy},
		{"between 1 and 2", 1.5, domain.RecommendationBuy},
		{"exactly 1.0 is HOLD", 1.0, domain.RecommendationHold},
		{"small positive", 0.3, domain.RecommendationHold},
		{"exactly zero", 0.0, domain.RecommendationHold},
		{"negative", -0.5, domain.RecommendationSell},
		{"deeply negative", -3.0, domain.RecommendationSell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rate(tt.sharpe)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRate_NonFiniteInput(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Rate(v)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
}
