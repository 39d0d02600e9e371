package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lead-crm/pkg/fourlists"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	FourLists FourListsConfig `yaml:"fourlists" mapstructure:"fourlists"`
	Webhook   WebhookConfig   `yaml:"webhook" mapstructure:"webhook"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Import    ImportConfig    `yaml:"import" mapstructure:"import"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FourListsConfig configures the partner list-membership lookup.
type FourListsConfig struct {
	URL              string  `yaml:"url" mapstructure:"url"`
	APIKey           string  `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Timeout returns the per-request timeout.
func (c FourListsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ResetTimeout returns how long the breaker stays open.
func (c FourListsConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutSecs) * time.Second
}

// WebhookConfig configures outbound automation events. An empty URL
// disables delivery.
type WebhookConfig struct {
	URL              string `yaml:"url" mapstructure:"url"`
	Secret           string `yaml:"secret" mapstructure:"secret"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	APIToken    string   `yaml:"api_token" mapstructure:"api_token"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ImportConfig configures bulk lead imports.
type ImportConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADCRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("fourlists.url", fourlists.DefaultURL)
	v.SetDefault("fourlists.api_key", "")
	v.SetDefault("fourlists.timeout_secs", 10)
	v.SetDefault("fourlists.rate_limit", 5.0)
	v.SetDefault("fourlists.failure_threshold", 5)
	v.SetDefault("fourlists.reset_timeout_secs", 30)
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.initial_backoff_ms", 500)
	v.SetDefault("webhook.timeout_secs", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_token", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("import.concurrency", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command needs. mode is one of
// "serve", "check", "import", "sync" or "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required (sqlite file path)")
		}
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}

	switch mode {
	case "migrate":
	case "serve", "check", "import":
		if c.FourLists.URL == "" {
			errs = append(errs, "fourlists.url is required")
		}
		if c.FourLists.APIKey == "" {
			errs = append(errs, "fourlists.api_key is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if mode == "import" && (c.Import.Concurrency < 1 || c.Import.Concurrency > 32) {
			errs = append(errs, "import.concurrency must be between 1 and 32")
		}
	case "sync":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Store.DatabaseURL = mask(c.Store.DatabaseURL)
	c.FourLists.APIKey = mask(c.FourLists.APIKey)
	c.Webhook.Secret = mask(c.Webhook.Secret)
	c.Server.APIToken = mask(c.Server.APIToken)
	return c
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
