package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "https://api.weather.gov", cfg.Weather.BaseURL)
	assert.Equal(t, 2*time.Hour, cfg.Weather.ForecastTTL)
	assert.Equal(t, 30*time.Minute, cfg.Weather.AlertsTTL)
	assert.InDelta(t, 5.0, cfg.Weather.RatePerSecond, 0.001)
	assert.Equal(t, 25, cfg.EBird.RadiusKM)
	assert.Equal(t, 14, cfg.EBird.DaysBack)
	assert.Empty(t, cfg.LLM.Provider)
	assert.Equal(t, int64(600), cfg.LLM.MaxTokens)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.WarmInterval)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.SummaryInterval)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: huntstack.db
weather:
  forecast_ttl: 1h
llm:
  provider: anthropic
  anthropic_api_key: sk-test
scheduler:
  enabled: true
  states: [AR, MO]
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "huntstack.yaml"), []byte(yaml), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "huntstack.db", cfg.Store.DatabaseURL)
	assert.Equal(t, time.Hour, cfg.Weather.ForecastTTL)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, []string{"AR", "MO"}, cfg.Scheduler.States)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadExplicitPathMissing(t *testing.T) {
	chdirTemp(t)

	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HUNTSTACK_STORE_DRIVER", "sqlite")
	t.Setenv("HUNTSTACK_EBIRD_API_KEY", "ebird-key")
	t.Setenv("HUNTSTACK_SERVER_ADDR", ":9090")
	t.Setenv("HUNTSTACK_WEATHER_ALERTS_TTL", "5m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "ebird-key", cfg.EBird.APIKey)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Weather.AlertsTTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"postgres without url", func(c *Config) {}, "store.database_url is required"},
		{"postgres with url", func(c *Config) { c.Store.DatabaseURL = "postgres://localhost/huntstack" }, ""},
		{"sqlite", func(c *Config) { c.Store.Driver = "sqlite" }, ""},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"openai without key", func(c *Config) {
			c.Store.Driver = "sqlite"
			c.LLM.Provider = "openai"
		}, "llm.openai_api_key is required"},
		{"anthropic without key", func(c *Config) {
			c.Store.Driver = "sqlite"
			c.LLM.Provider = "anthropic"
		}, "llm.anthropic_api_key is required"},
		{"unknown llm", func(c *Config) {
			c.Store.Driver = "sqlite"
			c.LLM.Provider = "llama"
		}, "llm.provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Store: StoreConfig{Driver: "postgres"}}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.Same(t, logger, zap.L())

	_, err = NewLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
}
