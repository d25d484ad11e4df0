package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcockpit/engine/internal/config"
	"github.com/quantcockpit/engine/internal/domain"
	"github.com/quantcockpit/engine/internal/modules/optimization"
	"github.com/quantcockpit/engine/internal/modules/simulation"
	"github.com/quantcockpit/engine/internal/modules/statistics"
)

// fakeHealth stands in for the price store's health probe.
type fakeHealth struct {
	err error
}

func (f *fakeHealth) HealthCheck(ctx context.Context) error {
	return f.err
}

// fakeProvider serves fixed in-memory price series.
type fakeProvider struct {
	series map[string][]domain.PricePoint
}

func (f *fakeProvider) GetPriceSeries(ticker, fromDate, toDate string) ([]domain.PricePoint, error) {
	return f.series[ticker], nil
}

func (f *fakeProvider) ListTickers() ([]string, error) {
	tickers := make([]string, 0, len(f.series))
	for t := range f.series {
		tickers = append(tickers, t)
	}
	return tickers, nil
}

func newTestServer() *Server {
	return newTestServerWithHealth(&fakeHealth{})
}

func newTestServerWithHealth(health HealthChecker) *Server {
	dates := []string{
		"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05",
		"2024-01-08", "2024-01-09", "2024-01-10", "2024-01-11",
	}
	aaa := []float64{100, 102, 101, 105, 104, 108, 107, 111}
	bbb := []float64{50, 49, 51, 50, 52, 51, 53, 54}

	provider := &fakeProvider{series: map[string][]domain.PricePoint{
		"AAA": pricePoints(dates, aaa),
		"BBB": pricePoints(dates, bbb),
	}}

	log := zerolog.Nop()
	return New(Config{
		Log:  log,
		Port: 0,
		Engine: config.EngineConfig{
			RiskFreeRate:       0.02,
			PeriodsPerYear:     252,
			MinWeight:          0,
			MaxWeight:          1,
			MomentumLookback:   3,
			SimHorizonPeriods:  21,
			SimPaths:           200,
			SimShockMultiplier: 1.0,
			SimConfidence:      0.95,
		},
		Health:     health,
		Provider:   provider,
		Calculator: statistics.NewCalculator(log),
		Optimizer:  optimization.NewOptimizer(log),
		Simulator:  simulation.NewSimulator(log),
	})
}

func postJSON(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func pricePoints(dates []string, closes []float64) []domain.PricePoint {
	points := make([]domain.PricePoint, len(dates))
	for i := range dates {
		points[i] = domain.PricePoint{Date: dates[i], Close: closes[i]}
	}
	return points
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestHandleHealth_StoreUnavailable(t *testing.T) {
	srv := newTestServerWithHealth(&fakeHealth{err: errors.New("integrity check failed")})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
	assert.Contains(t, rec.Body.String(), "integrity check failed")
}

func TestHandleStatistics(t *testing.T) {
	srv := newTestServer()

	rec := postJSON(t, srv, "/api/statistics", `{"tickers":["AAA","BBB"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tickers []string `json:"tickers"`
		Assets  []struct {
			Ticker         string  `json:"ticker"`
			ExpectedReturn float64 `json:"expected_return"`
			Volatility     float64 `json:"volatility"`
			Recommendation string  `json:"recommendation"`
		} `json:"assets"`
		Covariance [][]float64 `json:"covariance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, []string{"AAA", "BBB"}, resp.Tickers)
	require.Len(t, resp.Assets, 2)
	require.Len(t, resp.Covariance, 2)
	for _, asset := range resp.Assets {
		assert.Greater(t, asset.Volatility, 0.0)
		assert.NotEmpty(t, asset.Recommendation)
	}
}

func TestHandleStatistics_UnknownTicker(t *testing.T) {
	srv := newTestServer()

	rec := postJSON(t, srv, "/api/statistics", `{"tickers":["ZZZZ"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStatistics_NoTickers(t *testing.T) {
	srv := newTestServer()

	rec := postJSON(t, srv, "/api/statistics", `{"tickers":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStatistics_MalformedBody(t *testing.T) {
	srv := newTestServer()

	rec := postJSON(t, srv, "/api/statistics", `{"tickers":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleOptimize(t *testing.T) {
	srv := newTestServer()

	rec := postJSON(t, srv, "/api/optimize", `{"tickers":["AAA","BBB"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var portfolio domain.OptimalPortfolio
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &portfolio))

	assert.Equal(t, []string{"AAA", "BBB"}, portfolio.Tickers)
	require.Len(t, portfolio.Weights, 2)
	sum := portfolio.Weights[0] + portfolio.Weights[1]
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestHandleFrontier(t *testing.T) {
	srv := newTestServer()

	rec := postJSON(t, srv, "/api/frontier", `{"tickers":["AAA","BBB"],"points":10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tickers  []string               `json:"tickers"`
		Frontier []domain.FrontierPoint `json:"frontier"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Frontier, 10)
	solved := 0
	for _, p := range resp.Frontier {
		if !p.Skipped {
			solved++
		}
	}
	assert.Greater(t, solved, 0)
}

func TestHandleSimulate_SeededIsDeterministic(t *testing.T) {
	srv := newTestServer()
	body := `{"tickers":["AAA","BBB"],"num_paths":500,"horizon_periods":21,"seed":7}`

	first := postJSON(t, srv, "/api/simulate", body)
	require.Equal(t, http.StatusOK, first.Code)
	second := postJSON(t, srv, "/api/simulate", body)
	require.Equal(t, http.StatusOK, second.Code)

	assert.True(t, bytes.Equal(first.Body.Bytes(), second.Body.Bytes()))

	var resp struct {
		Weights    []float64 `json:"weights"`
		Simulation struct {
			Mean        float64            `json:"mean"`
			Percentiles map[string]float64 `json:"percentiles"`
			ValueAtRisk float64            `json:"value_at_risk"`
			NumPaths    int                `json:"num_paths"`
		} `json:"simulation"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &resp))

	require.Len(t, resp.Weights, 2)
	assert.Equal(t, 500, resp.Simulation.NumPaths)
	assert.Greater(t, resp.Simulation.Mean, 0.0)
	assert.Contains(t, resp.Simulation.Percentiles, "p50")
}

func TestHandleSimulate_InvalidShock(t *testing.T) {
	srv := newTestServer()

	rec := postJSON(t, srv, "/api/simulate", `{"tickers":["AAA","BBB"],"shock_multiplier":-2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSimulate_ExplicitZeroIsRejected(t *testing.T) {
	srv := newTestServer()

	// An explicit zero is an invalid value, not a request for the default.
	for _, body := range []string{
		`{"tickers":["AAA","BBB"],"num_paths":0}`,
		`{"tickers":["AAA","BBB"],"horizon_periods":0}`,
		`{"tickers":["AAA","BBB"],"confidence":0}`,
		`{"tickers":["AAA","BBB"],"initial_value":0}`,
		`{"tickers":["AAA","BBB"],"shock_multiplier":0}`,
	} {
		rec := postJSON(t, srv, "/api/simulate", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}

func TestHandleFrontier_DefaultsPointsWhenAbsent(t *testing.T) {
	srv := newTestServer()

	rec := postJSON(t, srv, "/api/frontier", `{"tickers":["AAA","BBB"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Frontier []domain.FrontierPoint `json:"frontier"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Frontier, 25)
}

func TestHandleFrontier_RejectsTooFewPoints(t *testing.T) {
	srv := newTestServer()

	for _, body := range []string{
		`{"tickers":["AAA","BBB"],"points":1}`,
		`{"tickers":["AAA","BBB"],"points":0}`,
		`{"tickers":["AAA","BBB"],"points":-3}`,
	} {
		rec := postJSON(t, srv, "/api/frontier", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}
