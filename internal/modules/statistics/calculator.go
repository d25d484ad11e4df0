// Package statistics converts raw price series into the risk/return model
// consumed by the optimizer and the simulator: per-asset return series,
// annualized statistics, and an annualized positive-semidefinite covariance
// matrix.
package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/quantcockpit/engine/internal/domain"
	"github.com/quantcockpit/engine/pkg/formulas"
)

// Options holds the engine-level knobs for statistics calculation.
type Options struct {
	RiskFreeRate     float64 // annualized
	PeriodsPerYear   int     // trading periods per year (252 for daily data)
	MomentumLookback int     // trailing periods for the momentum score
}

// MarketStatistics is the full output of one Compute call. Pure value object;
// safe to share and copy.
type MarketStatistics struct {
	Tickers    []string                          // ordering for Covariance rows/columns
	Dates      []string                          // inner-joined date index, ascending
	Returns    map[string][]float64              // periodic fractional returns per ticker
	Assets     map[string]domain.AssetStatistics // per-asset aggregates
	Covariance [][]float64                       // annualized, symmetric, PSD-clipped
}

// ExpectedReturns returns the annualized expected return vector ordered by
// Tickers, for handing to the optimizer.
func (m *MarketStatistics) ExpectedReturns() []float64 {
	mu := make([]float64, len(m.Tickers))
	for i, ticker := range m.Tickers {
		mu[i] = m.Assets[ticker].ExpectedReturn
	}
	return mu
}

// Calculator computes statistics from price series. Stateless between calls.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a new statistics calculator.
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("component", "statistics").Logger(),
	}
}

// Compute derives return series, per-asset statistics, and the annualized
// covariance matrix from the given price series. Series are aligned by inner
// join on dates; fewer than 2 joint observations is an error.
func (c *Calculator) Compute(series map[string][]domain.PricePoint, opts Options) (*MarketStatistics, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no price series provided: %w", domain.ErrInsufficientData)
	}
	if opts.PeriodsPerYear < 1 {
		return nil, fmt.Errorf("periods per year must be >= 1, got %d: %w", opts.PeriodsPerYear, domain.ErrInvalidParameter)
	}

	// Deterministic asset ordering.
	tickers := make([]string, 0, len(series))
	for ticker := range series {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	for _, ticker := range tickers {
		if len(series[ticker]) < 2 {
			return nil, fmt.Errorf("ticker %s has %d observations, need at least 2: %w",
				ticker, len(series[ticker]), domain.ErrInsufficientData)
		}
		for _, p := range series[ticker] {
			if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
				return nil, fmt.Errorf("ticker %s has a non-finite price on %s: %w",
					ticker, p.Date, domain.ErrInvalidInput)
			}
		}
	}

	dates, prices := alignSeries(tickers, series)
	if len(dates) < 2 {
		return nil, fmt.Errorf("only %d joint observations after date alignment: %w",
			len(dates), domain.ErrInsufficientData)
	}

	periodsPerYear := float64(opts.PeriodsPerYear)
	sqrtPeriods := math.Sqrt(periodsPerYear)

	returns := make(map[string][]float64, len(tickers))
	assets := make(map[string]domain.AssetStatistics, len(tickers))

	for _, ticker := range tickers {
		rets := formulas.CalculateReturns(prices[ticker])
		returns[ticker] = rets

		expectedReturn := formulas.Mean(rets) * periodsPerYear
		volatility := formulas.StdDev(rets) * sqrtPeriods

		// Zero-volatility policy: a constant price series gets Sharpe 0 and
		// an explicit flag instead of a NaN from the division.
		sharpe := 0.0
		zeroVol := volatility == 0
		if !zeroVol {
			sharpe = (expectedReturn - opts.RiskFreeRate) / volatility
		}

		assets[ticker] = domain.AssetStatistics{
			Ticker:           ticker,
			ExpectedReturn:   expectedReturn,
			Volatility:       volatility,
			SharpeRatio:      sharpe,
			Momentum:         momentumScore(prices[ticker], opts.MomentumLookback),
			ZeroVolatility:   zeroVol,
			ObservationCount: len(prices[ticker]),
		}
	}

	cov, err := annualizedCovariance(tickers, returns, periodsPerYear)
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Int("num_tickers", len(tickers)).
		Int("num_dates", len(dates)).
		Msg("Computed market statistics")

	return &MarketStatistics{
		Tickers:    tickers,
		Dates:      dates,
		Returns:    returns,
		Assets:     assets,
		Covariance: cov,
	}, nil
}

// alignSeries inner-joins the series on dates shared by every ticker and
// returns the joint date index plus per-ticker aligned price slices.
func alignSeries(tickers []string, series map[string][]domain.PricePoint) ([]string, map[string][]float64) {
	dateCount := make(map[string]int)
	for _, ticker := range tickers {
		seen := make(map[string]bool, len(series[ticker]))
		for _, p := range series[ticker] {
			if !seen[p.Date] {
				seen[p.Date] = true
				dateCount[p.Date]++
			}
		}
	}

	dates := make([]string, 0, len(dateCount))
	for date, count := range dateCount {
		if count == len(tickers) {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	dateIndex := make(map[string]int, len(dates))
	for i, date := range dates {
		dateIndex[date] = i
	}

	prices := make(map[string][]float64, len(tickers))
	for _, ticker := range tickers {
		aligned := make([]float64, len(dates))
		for _, p := range series[ticker] {
			if i, ok := dateIndex[p.Date]; ok {
				aligned[i] = p.Close
			}
		}
		prices[ticker] = aligned
	}

	return dates, prices
}

// momentumScore is the trailing fractional return over the lookback window,
// clamped to the available history. Uses the rate-of-change indicator.
func momentumScore(prices []float64, lookback int) float64 {
	if len(prices) < 2 {
		return 0
	}
	if lookback < 1 || lookback > len(prices)-1 {
		lookback = len(prices) - 1
	}

	roc := talib.Roc(prices, lookback)
	return roc[len(roc)-1] / 100.0
}

// annualizedCovariance builds the pairwise sample covariance matrix, scales
// it by periodsPerYear, and clips it to positive semidefinite. Symmetry is
// enforced by construction; the eigenvalue clip protects the optimizer and
// the Cholesky factorization in the simulator from floating-point noise.
func annualizedCovariance(tickers []string, returns map[string][]float64, periodsPerYear float64) ([][]float64, error) {
	n := len(tickers)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := formulas.Covariance(returns[tickers[i]], returns[tickers[j]]) * periodsPerYear
			cov[i][j] = v
			cov[j][i] = v
		}
	}

	return clipPositiveSemidefinite(cov)
}

// clipPositiveSemidefinite reconstructs the matrix with negative eigenvalues
// set to zero.
func clipPositiveSemidefinite(cov [][]float64) ([][]float64, error) {
	n := len(cov)
	data := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		data = append(data, cov[i]...)
	}

	sym := mat.NewSymDense(n, data)
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, fmt.Errorf("eigendecomposition of covariance matrix failed: %w", domain.ErrInvalidInput)
	}

	vals := eig.Values(nil)
	clipped := false
	for i := range vals {
		if vals[i] < 0 {
			vals[i] = 0
			clipped = true
		}
	}
	if !clipped {
		return cov, nil
	}

	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	var vd, rebuilt mat.Dense
	vd.Mul(&vecs, mat.NewDiagDense(n, vals))
	rebuilt.Mul(&vd, vecs.T())

	// Average with the transpose to remove any residual asymmetry from the
	// reconstruction.
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = (rebuilt.At(i, j) + rebuilt.At(j, i)) / 2
		}
	}

	return out, nil
}
