// Package simulation generates forward-looking portfolio value distributions
// under Geometric Brownian Motion with correlated assets, and extracts tail
// risk metrics from them.
package simulation

import (
	"fmt"
	"math"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quantcockpit/engine/internal/domain"
	"github.com/quantcockpit/engine/internal/utils"
	"github.com/quantcockpit/engine/pkg/formulas"
)

// Request describes one simulation run. ExpectedReturns and Covariance are
// annualized; the simulator rescales them to per-period terms.
type Request struct {
	Weights         []float64
	ExpectedReturns []float64
	Covariance      [][]float64
	PeriodsPerYear  int
	HorizonPeriods  int
	NumPaths        int
	ShockMultiplier float64 // scales volatility only; drift and correlations unchanged
	InitialValue    float64
	Confidence      float64 // VaR confidence level, e.g. 0.95
	Seed            *uint64 // optional; same seed + same inputs => identical results
}

// Result is the terminal value distribution of one simulation run plus its
// summary metrics. Discarded after the caller extracts what it needs.
type Result struct {
	TerminalValues []float64          `json:"-"`
	Mean           float64            `json:"mean"`
	StdDev         float64            `json:"std_dev"`
	Percentiles    map[string]float64 `json:"percentiles"` // p05, p50, p95
	ValueAtRisk    float64            `json:"value_at_risk"`
	Confidence     float64            `json:"confidence"`
	NumPaths       int                `json:"num_paths"`
	HorizonPeriods int                `json:"horizon_periods"`
}

// Simulator runs Monte Carlo projections. Stateless between calls.
type Simulator struct {
	log zerolog.Logger
}

// NewSimulator creates a new Monte Carlo simulator.
func NewSimulator(log zerolog.Logger) *Simulator {
	return &Simulator{
		log: log.With().Str("component", "montecarlo").Logger(),
	}
}

// Simulate generates NumPaths correlated GBM paths over HorizonPeriods and
// summarizes the terminal portfolio value distribution.
func (s *Simulator) Simulate(req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	defer utils.TimeOperation("monte_carlo", s.log)()

	n := len(req.Weights)
	periods := float64(req.PeriodsPerYear)

	// Per-period drift; the shock multiplier applies to volatility only, so
	// the covariance scales by shock^2 and correlation coefficients are
	// untouched.
	drift := make([]float64, n)
	for i := range drift {
		drift[i] = req.ExpectedReturns[i] / periods
	}
	shock2 := req.ShockMultiplier * req.ShockMultiplier
	periodCov := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			periodCov = append(periodCov, req.Covariance[i][j]*shock2/periods)
		}
	}

	chol, err := factorize(n, periodCov)
	if err != nil {
		return nil, err
	}
	var lower mat.TriDense
	chol.LTo(&lower)

	variances := make([]float64, n)
	for i := 0; i < n; i++ {
		variances[i] = periodCov[i*n+i]
	}

	baseSeed := uint64(0)
	if req.Seed != nil {
		baseSeed = *req.Seed
	} else {
		baseSeed = rand.Uint64()
	}

	terminals := make([]float64, req.NumPaths)
	group := new(errgroup.Group)
	group.SetLimit(runtime.GOMAXPROCS(0))

	chunk := (req.NumPaths + runtime.GOMAXPROCS(0) - 1) / runtime.GOMAXPROCS(0)
	if chunk < 1 {
		chunk = 1
	}
	for start := 0; start < req.NumPaths; start += chunk {
		start := start
		end := start + chunk
		if end > req.NumPaths {
			end = req.NumPaths
		}
		group.Go(func() error {
			for p := start; p < end; p++ {
				// Each path owns a source derived from the base seed, so
				// results are identical regardless of worker scheduling.
				terminals[p] = simulatePath(req, drift, variances, &lower, baseSeed+uint64(p))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	if !formulas.AllFinite(terminals) {
		return nil, fmt.Errorf("simulation produced non-finite terminal values: %w", domain.ErrInvalidInput)
	}

	result := &Result{
		TerminalValues: terminals,
		Mean:           formulas.Mean(terminals),
		StdDev:         formulas.StdDev(terminals),
		Percentiles: map[string]float64{
			"p05": formulas.Quantile(terminals, 0.05),
			"p50": formulas.Quantile(terminals, 0.50),
			"p95": formulas.Quantile(terminals, 0.95),
		},
		ValueAtRisk:    req.InitialValue - formulas.Quantile(terminals, 1-req.Confidence),
		Confidence:     req.Confidence,
		NumPaths:       req.NumPaths,
		HorizonPeriods: req.HorizonPeriods,
	}

	s.log.Debug().
		Int("paths", req.NumPaths).
		Int("horizon", req.HorizonPeriods).
		Float64("shock", req.ShockMultiplier).
		Float64("var", result.ValueAtRisk).
		Msg("Completed Monte Carlo simulation")

	return result, nil
}

// simulatePath evolves each asset under GBM with correlated log-increments
// and returns the terminal portfolio value for one path.
func simulatePath(req Request, drift, variances []float64, lower *mat.TriDense, seed uint64) float64 {
	n := len(req.Weights)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}

	growth := make([]float64, n)
	for i := range growth {
		growth[i] = 1.0
	}

	eps := make([]float64, n)
	for t := 0; t < req.HorizonPeriods; t++ {
		for i := range eps {
			eps[i] = normal.Rand()
		}
		// z = L * eps gives increments with the period covariance.
		for i := 0; i < n; i++ {
			z := 0.0
			for j := 0; j <= i; j++ {
				z += lower.At(i, j) * eps[j]
			}
			growth[i] *= math.Exp(drift[i] - variances[i]/2 + z)
		}
	}

	value := 0.0
	for i := 0; i < n; i++ {
		value += req.Weights[i] * req.InitialValue * growth[i]
	}
	return value
}

// factorize computes the Cholesky factor of the per-period covariance,
// adding a small diagonal jitter when the matrix is only semidefinite
// (e.g. a zero-volatility asset).
func factorize(n int, data []float64) (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(n, data)); ok {
		return &chol, nil
	}

	jittered := make([]float64, len(data))
	copy(jittered, data)
	for i := 0; i < n; i++ {
		jittered[i*n+i] += 1e-10
	}
	if ok := chol.Factorize(mat.NewSymDense(n, jittered)); !ok {
		return nil, fmt.Errorf("covariance matrix is not positive definite: %w", domain.ErrInvalidInput)
	}
	return &chol, nil
}

func validateRequest(req Request) error {
	n := len(req.Weights)
	if n == 0 {
		return fmt.Errorf("no weights provided: %w", domain.ErrInvalidParameter)
	}
	if len(req.ExpectedReturns) != n {
		return fmt.Errorf("weights length %d doesn't match asset count %d: %w",
			n, len(req.ExpectedReturns), domain.ErrInvalidParameter)
	}
	if len(req.Covariance) != n {
		return fmt.Errorf("covariance matrix size %d doesn't match asset count %d: %w",
			len(req.Covariance), n, domain.ErrInvalidParameter)
	}
	for i := range req.Covariance {
		if len(req.Covariance[i]) != n {
			return fmt.Errorf("covariance matrix row %d has size %d, expected %d: %w",
				i, len(req.Covariance[i]), n, domain.ErrInvalidParameter)
		}
	}
	if req.HorizonPeriods < 1 {
		return fmt.Errorf("horizon periods must be >= 1, got %d: %w",
			req.HorizonPeriods, domain.ErrInvalidParameter)
	}
	if req.NumPaths < 1 {
		return fmt.Errorf("path count must be >= 1, got %d: %w",
			req.NumPaths, domain.ErrInvalidParameter)
	}
	if req.PeriodsPerYear < 1 {
		return fmt.Errorf("periods per year must be >= 1, got %d: %w",
			req.PeriodsPerYear, domain.ErrInvalidParameter)
	}
	if req.ShockMultiplier <= 0 || math.IsNaN(req.ShockMultiplier) || math.IsInf(req.ShockMultiplier, 0) {
		return fmt.Errorf("shock multiplier must be positive and finite, got %v: %w",
			req.ShockMultiplier, domain.ErrInvalidParameter)
	}
	if req.InitialValue <= 0 {
		return fmt.Errorf("initial value must be positive, got %v: %w",
			req.InitialValue, domain.ErrInvalidParameter)
	}
	if req.Confidence <= 0 || req.Confidence >= 1 {
		return fmt.Errorf("confidence must be in (0, 1), got %v: %w",
			req.Confidence, domain.ErrInvalidParameter)
	}
	if !formulas.AllFinite(req.Weights) || !formulas.AllFinite(req.ExpectedReturns) {
		return fmt.Errorf("weights or expected returns contain non-finite values: %w", domain.ErrInvalidInput)
	}
	for i := range req.Covariance {
		if !formulas.AllFinite(req.Covariance[i]) {
			return fmt.Errorf("covariance matrix contains non-finite values: %w", domain.ErrInvalidInput)
		}
	}
	return nil
}
