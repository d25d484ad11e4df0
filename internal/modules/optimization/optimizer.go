// Package optimization solves the constrained mean-variance problems of the
// engine: the maximum-Sharpe (tangency) portfolio and minimum-variance
// portfolios along the efficient frontier.
//
// Mathematical formulation:
//   - max_sharpe:  maximize (μ'w - r_f) / sqrt(w'Σw)
//   - frontier:    minimize w'Σw subject to μ'w = target
//
// Both subject to Σw = 1 and per-weight bounds. Constraints are handled with
// a penalty method plus projection to bounds; BFGS with a Nelder-Mead
// fallback does the minimization.
package optimization

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"

	"github.com/quantcockpit/engine/internal/domain"
	"github.com/quantcockpit/engine/internal/utils"
	"github.com/quantcockpit/engine/pkg/formulas"
)

const (
	penaltyWeight   = 1000.0
	weightTolerance = 1e-6 // sum-to-one and bound slack callers may rely on
	targetTolerance = 1e-3 // accepted slack on the frontier return equality
	maxIterations   = 1000 // solver iteration budget per solve
)

// Optimizer solves constrained portfolio allocation problems. Stateless
// between calls.
type Optimizer struct {
	log zerolog.Logger
}

// NewOptimizer creates a new portfolio optimizer.
func NewOptimizer(log zerolog.Logger) *Optimizer {
	return &Optimizer{
		log: log.With().Str("component", "optimizer").Logger(),
	}
}

// MaximizeSharpe solves for the weight vector maximizing the Sharpe ratio
// under the sum-to-one and bound constraints. The covariance matrix must be
// the PSD-clipped matrix from the statistics module. The returned portfolio
// carries its realized return, volatility, and Sharpe; Tickers is left for
// the caller to attach.
func (o *Optimizer) MaximizeSharpe(
	mu []float64,
	cov [][]float64,
	riskFreeRate float64,
	bounds domain.WeightBounds,
) (*domain.OptimalPortfolio, error) {
	n := len(mu)
	if err := validateInputs(mu, cov, bounds); err != nil {
		return nil, err
	}

	// Degenerate single-asset case: the only feasible portfolio is [1.0].
	if n == 1 {
		return o.portfolioFor([]float64{1.0}, mu, cov, riskFreeRate)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := projectToBounds(x, bounds)

			ret, variance := portfolioMoments(xProj, mu, cov)
			stdDev := math.Sqrt(math.Max(variance, 1e-10))

			obj := -(ret - riskFreeRate) / stdDev
			obj += penaltyWeight * sumPenalty(xProj)
			return obj
		},
		Grad: func(grad, x []float64) {
			xProj := projectToBounds(x, bounds)

			ret, variance := portfolioMoments(xProj, mu, cov)
			stdDev := math.Sqrt(math.Max(variance, 1e-10))
			excess := ret - riskFreeRate

			for i := 0; i < n; i++ {
				var dVariance float64
				for j := 0; j < n; j++ {
					dVariance += 2 * cov[i][j] * xProj[j]
				}
				grad[i] = -mu[i]/stdDev + excess*dVariance/(2*stdDev*stdDev*stdDev)
			}
			addSumPenaltyGradient(grad, xProj)
		},
	}

	weights, err := o.solve(problem, n, bounds)
	if err != nil {
		return nil, err
	}

	return o.portfolioFor(weights, mu, cov, riskFreeRate)
}

// SweepFrontier solves minimize w'Σw subject to Σw=1, μ'w=target, and bounds
// for each target return, ascending. Targets outside the feasible range
// (below the global-minimum-variance return or above the maximum achievable
// return under the bounds) are reported as skipped points rather than solved
// to a spurious result. The output preserves ascending target-return order.
func (o *Optimizer) SweepFrontier(
	mu []float64,
	cov [][]float64,
	bounds domain.WeightBounds,
	targetReturns []float64,
) ([]domain.FrontierPoint, error) {
	if err := validateInputs(mu, cov, bounds); err != nil {
		return nil, err
	}
	if len(targetReturns) == 0 {
		return nil, fmt.Errorf("no target returns provided: %w", domain.ErrInvalidParameter)
	}
	if !sort.Float64sAreSorted(targetReturns) {
		return nil, fmt.Errorf("target returns must be ascending: %w", domain.ErrInvalidParameter)
	}
	defer utils.TimeOperation("frontier_sweep", o.log)()

	maxReturn, err := extremeReturn(mu, bounds, true)
	if err != nil {
		return nil, err
	}

	// The frontier starts at the global-minimum-variance portfolio; targets
	// below its return have a lower-risk alternative at higher return and
	// are infeasible as frontier points.
	gmvWeights, err := o.minimizeVariance(mu, cov, bounds, nil)
	if err != nil {
		return nil, fmt.Errorf("global minimum variance solve: %w", err)
	}
	gmvReturn, _ := portfolioMoments(gmvWeights, mu, cov)

	points := make([]domain.FrontierPoint, len(targetReturns))
	group := newSolveGroup()

	for i, target := range targetReturns {
		i, target := i, target

		if target < gmvReturn-targetTolerance {
			points[i] = skippedPoint(target, fmt.Sprintf(
				"target %.6f below global minimum variance return %.6f: %v",
				target, gmvReturn, domain.ErrInfeasibleTarget))
			continue
		}
		if target > maxReturn+targetTolerance {
			points[i] = skippedPoint(target, fmt.Sprintf(
				"target %.6f above maximum achievable return %.6f: %v",
				target, maxReturn, domain.ErrInfeasibleTarget))
			continue
		}

		group.Go(func() error {
			weights, err := o.minimizeVariance(mu, cov, bounds, &target)
			if err != nil {
				points[i] = skippedPoint(target, err.Error())
				return nil
			}
			_, variance := portfolioMoments(weights, mu, cov)
			points[i] = domain.FrontierPoint{
				TargetReturn: target,
				Volatility:   math.Sqrt(math.Max(variance, 0)),
				Weights:      weights,
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	solved := 0
	for _, p := range points {
		if !p.Skipped {
			solved++
		}
	}
	o.log.Debug().
		Int("targets", len(targetReturns)).
		Int("solved", solved).
		Msg("Swept efficient frontier")

	return points, nil
}

// minimizeVariance solves the minimum-variance problem, optionally with a
// target-return equality constraint.
func (o *Optimizer) minimizeVariance(
	mu []float64,
	cov [][]float64,
	bounds domain.WeightBounds,
	target *float64,
) ([]float64, error) {
	n := len(mu)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := projectToBounds(x, bounds)

			ret, variance := portfolioMoments(xProj, mu, cov)

			obj := variance
			obj += penaltyWeight * sumPenalty(xProj)
			if target != nil {
				obj += penaltyWeight * (ret - *target) * (ret - *target)
			}
			return obj
		},
		Grad: func(grad, x []float64) {
			xProj := projectToBounds(x, bounds)

			ret, _ := portfolioMoments(xProj, mu, cov)

			for i := 0; i < n; i++ {
				grad[i] = 0
				for j := 0; j < n; j++ {
					grad[i] += 2 * cov[i][j] * xProj[j]
				}
			}
			addSumPenaltyGradient(grad, xProj)
			if target != nil {
				for i := 0; i < n; i++ {
					grad[i] += 2 * penaltyWeight * (ret - *target) * mu[i]
				}
			}
		},
	}

	weights, err := o.solve(problem, n, bounds)
	if err != nil {
		return nil, err
	}

	if target != nil {
		ret, _ := portfolioMoments(weights, mu, cov)
		if math.Abs(ret-*target) > targetTolerance {
			return nil, fmt.Errorf("solver missed target return %.6f (achieved %.6f): %w",
				*target, ret, domain.ErrInfeasibleTarget)
		}
	}

	return weights, nil
}

// solve runs the minimization from an equal-weight start, retries with
// Nelder-Mead when BFGS fails, and enforces the weight invariants on the
// result.
func (o *Optimizer) solve(problem optimize.Problem, n int, bounds domain.WeightBounds) ([]float64, error) {
	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	settings := &optimize.Settings{MajorIterations: maxIterations}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		result, err = optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("solver error: %v: %w", err, domain.ErrOptimizationFailed)
		}
		if !converged(result.Status) {
			return nil, fmt.Errorf("solver did not converge within %d iterations (status=%v): %w",
				maxIterations, result.Status, domain.ErrOptimizationFailed)
		}
	}

	weights := projectToBounds(result.X, bounds)
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return nil, fmt.Errorf("solver produced a degenerate weight vector: %w", domain.ErrOptimizationFailed)
	}
	for i := range weights {
		weights[i] /= sum
	}

	if err := verifyWeights(weights, bounds); err != nil {
		return nil, err
	}

	return weights, nil
}

// portfolioFor attaches realized statistics to a weight vector.
func (o *Optimizer) portfolioFor(
	weights, mu []float64,
	cov [][]float64,
	riskFreeRate float64,
) (*domain.OptimalPortfolio, error) {
	ret, variance := portfolioMoments(weights, mu, cov)
	volatility := math.Sqrt(math.Max(variance, 0))

	sharpe := 0.0
	if volatility > 0 {
		sharpe = (ret - riskFreeRate) / volatility
	}

	if !formulas.AllFinite(weights) || !formulas.AllFinite([]float64{ret, volatility, sharpe}) {
		return nil, fmt.Errorf("non-finite values in optimization result: %w", domain.ErrOptimizationFailed)
	}

	return &domain.OptimalPortfolio{
		Weights:     weights,
		Return:      ret,
		Volatility:  volatility,
		SharpeRatio: sharpe,
	}, nil
}

// Helper functions

func validateInputs(mu []float64, cov [][]float64, bounds domain.WeightBounds) error {
	n := len(mu)
	if n == 0 {
		return fmt.Errorf("no assets provided: %w", domain.ErrInvalidParameter)
	}
	if !formulas.AllFinite(mu) {
		return fmt.Errorf("expected returns contain non-finite values: %w", domain.ErrInvalidInput)
	}
	if len(cov) != n {
		return fmt.Errorf("covariance matrix size %d doesn't match asset count %d: %w",
			len(cov), n, domain.ErrInvalidParameter)
	}
	for i := range cov {
		if len(cov[i]) != n {
			return fmt.Errorf("covariance matrix row %d has size %d, expected %d: %w",
				i, len(cov[i]), n, domain.ErrInvalidParameter)
		}
		if !formulas.AllFinite(cov[i]) {
			return fmt.Errorf("covariance matrix contains non-finite values: %w", domain.ErrInvalidInput)
		}
	}
	if bounds.Min > bounds.Max {
		return fmt.Errorf("weight bounds [%.4f, %.4f] are inverted: %w",
			bounds.Min, bounds.Max, domain.ErrInvalidParameter)
	}
	if float64(n)*bounds.Max < 1-weightTolerance || float64(n)*bounds.Min > 1+weightTolerance {
		return fmt.Errorf("weight bounds [%.4f, %.4f] cannot sum to 1 over %d assets: %w",
			bounds.Min, bounds.Max, n, domain.ErrInvalidParameter)
	}
	return nil
}

func projectToBounds(x []float64, bounds domain.WeightBounds) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(bounds.Min, math.Min(bounds.Max, x[i]))
	}
	return proj
}

func portfolioMoments(w, mu []float64, cov [][]float64) (ret, variance float64) {
	for i := range w {
		ret += mu[i] * w[i]
		for j := range w {
			variance += w[i] * w[j] * cov[i][j]
		}
	}
	return ret, variance
}

func sumPenalty(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return (sum - 1.0) * (sum - 1.0)
}

func addSumPenaltyGradient(grad, x []float64) {
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	for i := range grad {
		grad[i] += 2 * penaltyWeight * (sum - 1.0)
	}
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	default:
		return false
	}
}

// verifyWeights enforces the invariants callers rely on: sum to one and
// per-weight bounds, both within weightTolerance.
func verifyWeights(weights []float64, bounds domain.WeightBounds) error {
	if !formulas.AllFinite(weights) {
		return fmt.Errorf("weight vector contains non-finite values: %w", domain.ErrOptimizationFailed)
	}

	sum := 0.0
	for i, w := range weights {
		if w < bounds.Min-weightTolerance || w > bounds.Max+weightTolerance {
			return fmt.Errorf("weight %d = %.8f violates bounds [%.4f, %.4f]: %w",
				i, w, bounds.Min, bounds.Max, domain.ErrOptimizationFailed)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("weights sum to %.8f, expected 1: %w", sum, domain.ErrOptimizationFailed)
	}
	return nil
}

// extremeReturn computes the maximum (or minimum) achievable portfolio return
// under the sum-to-one and bound constraints by greedy allocation in
// expected-return order.
func extremeReturn(mu []float64, bounds domain.WeightBounds, maximize bool) (float64, error) {
	n := len(mu)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		if maximize {
			return mu[order[a]] > mu[order[b]]
		}
		return mu[order[a]] < mu[order[b]]
	})

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = bounds.Min
	}
	remaining := 1.0 - float64(n)*bounds.Min
	for _, idx := range order {
		if remaining <= 0 {
			break
		}
		delta := math.Min(bounds.Max-bounds.Min, remaining)
		weights[idx] += delta
		remaining -= delta
	}
	if remaining > weightTolerance {
		return 0, fmt.Errorf("bounds leave %.8f unallocatable: %w", remaining, domain.ErrInvalidParameter)
	}

	ret := 0.0
	for i := range weights {
		ret += weights[i] * mu[i]
	}
	return ret, nil
}

func skippedPoint(target float64, reason string) domain.FrontierPoint {
	return domain.FrontierPoint{
		TargetReturn: target,
		Skipped:      true,
		SkipReason:   reason,
	}
}
