package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENGINE_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)

	assert.Equal(t, 0.0, cfg.Engine.RiskFreeRate)
	assert.Equal(t, 252, cfg.Engine.PeriodsPerYear)
	assert.Equal(t, 0.0, cfg.Engine.MinWeight)
	assert.Equal(t, 1.0, cfg.Engine.MaxWeight)
	assert.Equal(t, 21, cfg.Engine.MomentumLookback)
	assert.Equal(t, 252, cfg.Engine.SimHorizonPeriods)
	assert.Equal(t, 1000, cfg.Engine.SimPaths)
	assert.Equal(t, 1.0, cfg.Engine.SimShockMultiplier)
	assert.Equal(t, 0.95, cfg.Engine.SimConfidence)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_DATA_DIR", t.TempDir())
	t.Setenv("ENGINE_PORT", "9090")
	t.Setenv("RISK_FREE_RATE", "0.03")
	t.Setenv("SIM_PATHS", "5000")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 0.03, cfg.Engine.RiskFreeRate)
	assert.Equal(t, 5000, cfg.Engine.SimPaths)
	assert.True(t, cfg.DevMode)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("ENGINE_DATA_DIR", t.TempDir())
	t.Setenv("PERIODS_PER_YEAR", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Engine: EngineConfig{
			PeriodsPerYear: 252,
			MinWeight:      0,
			MaxWeight:      1,
			SimConfidence:  0.95,
		}}
	}

	assert.NoError(t, base().Validate())

	c := base()
	c.Engine.MinWeight = 0.8
	c.Engine.MaxWeight = 0.5
	assert.Error(t, c.Validate())

	c = base()
	c.Engine.SimConfidence = 1.0
	assert.Error(t, c.Validate())
}
