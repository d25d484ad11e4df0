package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/quantcockpit/engine/internal/domain"
	"github.com/quantcockpit/engine/internal/modules/scoring"
	"github.com/quantcockpit/engine/internal/modules/simulation"
	"github.com/quantcockpit/engine/internal/modules/statistics"
)

// seriesRequest is the common request body for analytics endpoints.
type seriesRequest struct {
	Tickers []string `json:"tickers"`
	From    string   `json:"from"`
	To      string   `json:"to"`
}

// Optional request fields are pointers so an explicit zero is distinguishable
// from an absent field: absent means "use the engine default", explicit values
// pass through untouched and invalid ones get rejected downstream.
type frontierRequest struct {
	seriesRequest
	Points *int `json:"points"`
}

type simulateRequest struct {
	seriesRequest
	Weights         []float64 `json:"weights"`
	HorizonPeriods  *int      `json:"horizon_periods"`
	NumPaths        *int      `json:"num_paths"`
	ShockMultiplier *float64  `json:"shock_multiplier"`
	InitialValue    *float64  `json:"initial_value"`
	Confidence      *float64  `json:"confidence"`
	Seed            *uint64   `json:"seed"`
}

type assetReport struct {
	domain.AssetStatistics
	Recommendation domain.Recommendation `json:"recommendation"`
}

// handleHealth handles health check requests. It probes the price store so a
// corrupted or unreachable database surfaces here instead of on the first
// analytics request.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.health.HealthCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"service": "analytics-engine",
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "analytics-engine",
	})
}

// handleTickers returns the symbols available in the price store.
func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := s.provider.ListTickers()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"tickers": tickers})
}

// handleStatistics returns per-asset statistics plus recommendations.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	var req seriesRequest
	if !s.decode(w, r, &req) {
		return
	}

	stats, err := s.computeStatistics(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	reports := make([]assetReport, 0, len(stats.Tickers))
	for _, ticker := range stats.Tickers {
		asset := stats.Assets[ticker]
		rating, err := scoring.Rate(asset.SharpeRatio)
		if err != nil {
			s.writeError(w, err)
			return
		}
		reports = append(reports, assetReport{AssetStatistics: asset, Recommendation: rating})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets":     reports,
		"covariance": stats.Covariance,
		"tickers":    stats.Tickers,
	})
}

// handleOptimize returns the maximum-Sharpe portfolio for the requested
// assets.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req seriesRequest
	if !s.decode(w, r, &req) {
		return
	}

	stats, portfolio, err := s.optimizeFor(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	portfolio.Tickers = stats.Tickers

	s.writeJSON(w, http.StatusOK, portfolio)
}

// handleFrontier sweeps the efficient frontier over an evenly spaced target
// return grid spanning the per-asset expected returns.
func (s *Server) handleFrontier(w http.ResponseWriter, r *http.Request) {
	var req frontierRequest
	if !s.decode(w, r, &req) {
		return
	}
	points := orDefault(req.Points, 25)
	if points < 2 {
		s.writeError(w, fmt.Errorf("frontier needs at least 2 points, got %d: %w",
			points, domain.ErrInvalidParameter))
		return
	}

	stats, err := s.computeStatistics(req.seriesRequest)
	if err != nil {
		s.writeError(w, err)
		return
	}

	mu := stats.ExpectedReturns()
	low, high := mu[0], mu[0]
	for _, v := range mu {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}

	targets := make([]float64, points)
	step := (high - low) / float64(points-1)
	for i := range targets {
		targets[i] = low + float64(i)*step
	}

	bounds := domain.WeightBounds{Min: s.engine.MinWeight, Max: s.engine.MaxWeight}
	frontier, err := s.optimizer.SweepFrontier(mu, stats.Covariance, bounds, targets)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tickers":  stats.Tickers,
		"frontier": frontier,
	})
}

// handleSimulate runs a Monte Carlo projection for the requested portfolio.
// When no weights are supplied, the maximum-Sharpe weights are used.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if !s.decode(w, r, &req) {
		return
	}

	stats, err := s.computeStatistics(req.seriesRequest)
	if err != nil {
		s.writeError(w, err)
		return
	}

	weights := req.Weights
	if len(weights) == 0 {
		portfolio, err := s.optimizer.MaximizeSharpe(
			stats.ExpectedReturns(),
			stats.Covariance,
			s.engine.RiskFreeRate,
			domain.WeightBounds{Min: s.engine.MinWeight, Max: s.engine.MaxWeight},
		)
		if err != nil {
			s.writeError(w, err)
			return
		}
		weights = portfolio.Weights
	}

	simReq := simulation.Request{
		Weights:         weights,
		ExpectedReturns: stats.ExpectedReturns(),
		Covariance:      stats.Covariance,
		PeriodsPerYear:  s.engine.PeriodsPerYear,
		HorizonPeriods:  orDefault(req.HorizonPeriods, s.engine.SimHorizonPeriods),
		NumPaths:        orDefault(req.NumPaths, s.engine.SimPaths),
		ShockMultiplier: orDefaultFloat(req.ShockMultiplier, s.engine.SimShockMultiplier),
		InitialValue:    orDefaultFloat(req.InitialValue, 10000),
		Confidence:      orDefaultFloat(req.Confidence, s.engine.SimConfidence),
		Seed:            req.Seed,
	}

	result, err := s.simulator.Simulate(simReq)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tickers":    stats.Tickers,
		"weights":    weights,
		"simulation": result,
	})
}

// computeStatistics fetches the requested price series and runs the
// statistics calculator with the engine configuration.
func (s *Server) computeStatistics(req seriesRequest) (*statistics.MarketStatistics, error) {
	if len(req.Tickers) == 0 {
		return nil, fmt.Errorf("no tickers requested: %w", domain.ErrInvalidParameter)
	}

	series := make(map[string][]domain.PricePoint, len(req.Tickers))
	for _, ticker := range req.Tickers {
		points, err := s.provider.GetPriceSeries(ticker, req.From, req.To)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			return nil, fmt.Errorf("no price history for %s in range: %w", ticker, domain.ErrInsufficientData)
		}
		series[ticker] = points
	}

	return s.calculator.Compute(series, statistics.Options{
		RiskFreeRate:     s.engine.RiskFreeRate,
		PeriodsPerYear:   s.engine.PeriodsPerYear,
		MomentumLookback: s.engine.MomentumLookback,
	})
}

func (s *Server) optimizeFor(req seriesRequest) (*statistics.MarketStatistics, *domain.OptimalPortfolio, error) {
	stats, err := s.computeStatistics(req)
	if err != nil {
		return nil, nil, err
	}

	portfolio, err := s.optimizer.MaximizeSharpe(
		stats.ExpectedReturns(),
		stats.Covariance,
		s.engine.RiskFreeRate,
		domain.WeightBounds{Min: s.engine.MinWeight, Max: s.engine.MaxWeight},
	)
	if err != nil {
		return nil, nil, err
	}
	return stats, portfolio, nil
}

// decode parses a JSON request body, answering 400 on malformed input.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps engine error kinds to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInsufficientData),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidParameter),
		errors.Is(err, domain.ErrInfeasibleTarget):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrOptimizationFailed):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Request failed")
	} else {
		s.log.Warn().Err(err).Msg("Request rejected")
	}

	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// orDefault fills in the engine default only when the field was absent from
// the request. Explicit values, including invalid ones like zero, pass
// through so validation can reject them.
func orDefault(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

func orDefaultFloat(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
