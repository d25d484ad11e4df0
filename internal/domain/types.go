package domain

// PricePoint is one (date, adjusted close) observation of a price series.
// Dates use the YYYY-MM-DD format throughout the engine.
type PricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// AssetStatistics is the per-asset aggregate derived from a return series.
// Immutable once computed.
type AssetStatistics struct {
	Ticker           string  `json:"ticker"`
	ExpectedReturn   float64 `json:"expected_return"` // annualized
	Volatility       float64 `json:"volatility"`      // annualized
	SharpeRatio      float64 `json:"sharpe_ratio"`
	Momentum         float64 `json:"momentum"` // trailing lookback return
	ZeroVolatility   bool    `json:"zero_volatility,omitempty"`
	ObservationCount int     `json:"observation_count"`
}

// FrontierPoint is one solved point on the efficient frontier. Points with
// Skipped set carry the reason the target was not solvable instead of weights.
type FrontierPoint struct {
	TargetReturn float64   `json:"target_return"`
	Volatility   float64   `json:"volatility"`
	Weights      []float64 `json:"weights,omitempty"`
	Skipped      bool      `json:"skipped,omitempty"`
	SkipReason   string    `json:"skip_reason,omitempty"`
}

// OptimalPortfolio is a weight vector with its realized statistics attached.
// Weights are ordered by the Tickers slice; they sum to 1 within tolerance
// and respect the configured per-asset bounds.
type OptimalPortfolio struct {
	Tickers     []string  `json:"tickers"`
	Weights     []float64 `json:"weights"`
	Return      float64   `json:"return"`     // annualized
	Volatility  float64   `json:"volatility"` // annualized
	SharpeRatio float64   `json:"sharpe_ratio"`
}

// WeightBounds are the per-asset allocation limits applied uniformly.
type WeightBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Recommendation is a categorical rating derived from a Sharpe ratio.
type Recommendation string

const (
	RecommendationStrongBuy Recommendation = "STRONG BUY"
	RecommendationBuy       Recommendation = "BUY"
	RecommendationHold      Recommendation = "HOLD"
	RecommendationSell      Recommendation = "SELL"
)
