package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrMissingSetting marks a configuration that cannot start the service.
var ErrMissingSetting = eris.New("missing setting")

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Weather   WeatherConfig   `yaml:"weather" mapstructure:"weather"`
	EBird     EBirdConfig     `yaml:"ebird" mapstructure:"ebird"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// StoreConfig selects the database backend. DatabaseURL is a Postgres
// connection string or a SQLite path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

type WeatherConfig struct {
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	ForecastTTL   time.Duration `yaml:"forecast_ttl" mapstructure:"forecast_ttl"`
	AlertsTTL     time.Duration `yaml:"alerts_ttl" mapstructure:"alerts_ttl"`
	RatePerSecond float64       `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

type EBirdConfig struct {
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	RadiusKM int    `yaml:"radius_km" mapstructure:"radius_km"`
	DaysBack int    `yaml:"days_back" mapstructure:"days_back"`
}

type LLMConfig struct {
	Provider        string `yaml:"provider" mapstructure:"provider"`
	OpenAIAPIKey    string `yaml:"openai_api_key" mapstructure:"openai_api_key"`
	OpenAIModel     string `yaml:"openai_model" mapstructure:"openai_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	MaxTokens       int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	States          []string      `yaml:"states" mapstructure:"states"`
	WarmInterval    time.Duration `yaml:"warm_interval" mapstructure:"warm_interval"`
	SummaryInterval time.Duration `yaml:"summary_interval" mapstructure:"summary_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from defaults, an optional config file and
// HUNTSTACK_ environment variables. An explicit path must exist; otherwise
// huntstack.yaml in the working directory is used when present.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("huntstack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HUNTSTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("weather.base_url", "https://api.weather.gov")
	v.SetDefault("weather.user_agent", "huntstack/1.0 (waterfowl hunting forecasts)")
	v.SetDefault("weather.timeout", 10*time.Second)
	v.SetDefault("weather.forecast_ttl", 2*time.Hour)
	v.SetDefault("weather.alerts_ttl", 30*time.Minute)
	v.SetDefault("weather.rate_per_second", 5.0)
	v.SetDefault("ebird.api_key", "")
	v.SetDefault("ebird.base_url", "https://api.ebird.org")
	v.SetDefault("ebird.radius_km", 25)
	v.SetDefault("ebird.days_back", 14)
	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_model", "gpt-4o-mini")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.anthropic_model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.max_tokens", 600)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.states", []string{"AR", "LA", "MO", "MS", "TN"})
	v.SetDefault("scheduler.warm_interval", 30*time.Minute)
	v.SetDefault("scheduler.summary_interval", 24*time.Hour)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate reports settings the service cannot run without.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.Wrap(ErrMissingSetting, "store.database_url is required for postgres")
		}
	case "sqlite":
	default:
		return eris.Errorf("store.driver must be postgres or sqlite, got %q", c.Store.Driver)
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "":
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return eris.Wrap(ErrMissingSetting, "llm.openai_api_key is required for the openai provider")
		}
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			return eris.Wrap(ErrMissingSetting, "llm.anthropic_api_key is required for the anthropic provider")
		}
	default:
		return eris.Errorf("llm.provider must be openai, anthropic or empty, got %q", c.LLM.Provider)
	}
	return nil
}

// NewLogger builds a zap logger and installs it as the global logger.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
