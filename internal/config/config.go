// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults for the analytics engine. All of these can be overridden via
// environment variables; none are hardcoded into the computation modules.
const (
	DefaultPeriodsPerYear   = 252 // daily data
	DefaultMomentumLookback = 21  // ~1 trading month
	DefaultSimHorizon       = 252
	DefaultSimPaths         = 1000
	DefaultSimConfidence    = 0.95
)

// Config holds application configuration
type Config struct {
	DataDir  string // directory holding the price history database
	Port     int
	LogLevel string
	DevMode  bool

	Engine EngineConfig
}

// EngineConfig holds the engine-level analytics options.
type EngineConfig struct {
	RiskFreeRate     float64 // annualized, default 0
	PeriodsPerYear   int     // trading periods per year, default 252
	MinWeight        float64 // per-asset lower bound, default 0 (no shorting)
	MaxWeight        float64 // per-asset upper bound, default 1 (fully invested cap)
	MomentumLookback int     // trailing periods for the momentum score

	SimHorizonPeriods  int     // Monte Carlo forecast horizon
	SimPaths           int     // Monte Carlo path count
	SimShockMultiplier float64 // volatility stress multiplier
	SimConfidence      float64 // VaR confidence level
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ENGINE_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("ENGINE_PORT", 8001),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Engine: EngineConfig{
			RiskFreeRate:       getEnvAsFloat("RISK_FREE_RATE", 0.0),
			PeriodsPerYear:     getEnvAsInt("PERIODS_PER_YEAR", DefaultPeriodsPerYear),
			MinWeight:          getEnvAsFloat("MIN_WEIGHT", 0.0),
			MaxWeight:          getEnvAsFloat("MAX_WEIGHT", 1.0),
			MomentumLookback:   getEnvAsInt("MOMENTUM_LOOKBACK", DefaultMomentumLookback),
			SimHorizonPeriods:  getEnvAsInt("SIM_HORIZON_PERIODS", DefaultSimHorizon),
			SimPaths:           getEnvAsInt("SIM_PATHS", DefaultSimPaths),
			SimShockMultiplier: getEnvAsFloat("SIM_SHOCK_MULTIPLIER", 1.0),
			SimConfidence:      getEnvAsFloat("SIM_CONFIDENCE", DefaultSimConfidence),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.Engine.PeriodsPerYear < 1 {
		return fmt.Errorf("PERIODS_PER_YEAR must be >= 1, got %d", c.Engine.PeriodsPerYear)
	}
	if c.Engine.MinWeight > c.Engine.MaxWeight {
		return fmt.Errorf("MIN_WEIGHT %.4f exceeds MAX_WEIGHT %.4f", c.Engine.MinWeight, c.Engine.MaxWeight)
	}
	if c.Engine.SimConfidence <= 0 || c.Engine.SimConfidence >= 1 {
		return fmt.Errorf("SIM_CONFIDENCE must be in (0, 1), got %.4f", c.Engine.SimConfidence)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
