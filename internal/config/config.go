package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Merge     MergeConfig     `yaml:"merge" mapstructure:"merge"`
	Events    EventsConfig    `yaml:"events" mapstructure:"events"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Apply     ApplyConfig     `yaml:"apply" mapstructure:"apply"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig configures the hosted fallback oracle. An empty Key
// selects the no-op oracle.
type AnthropicConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	Model             string `yaml:"model" mapstructure:"model"`
	MaxTokens         int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs       int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	BreakerFailures   int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs  int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// Timeout returns the per-call oracle deadline.
func (c AnthropicConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// MergeConfig configures retries of merge transactions that lose a race on
// the (staff, date) unique key.
type MergeConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// EventsConfig configures the merged-activity event stream. No brokers
// disables publishing.
type EventsConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	BasicAuthUsername string   `yaml:"basic_auth_username" mapstructure:"basic_auth_username"`
	BasicAuthPassword string   `yaml:"basic_auth_password" mapstructure:"basic_auth_password"`
	CORSOrigins       []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ApplyConfig configures the batch apply command.
type ApplyConfig struct {
	MaxConcurrentBlocks int `yaml:"max_concurrent_blocks" mapstructure:"max_concurrent_blocks"`
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
	v.SetEnvPrefix("ACTIVITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "activity.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.timeout_secs", 20)
	v.SetDefault("anthropic.requests_per_minute", 30)
	v.SetDefault("anthropic.breaker_failures", 5)
	v.SetDefault("anthropic.breaker_reset_secs", 60)
	v.SetDefault("merge.max_attempts", 3)
	v.SetDefault("merge.initial_backoff_ms", 50)
	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "activity.merged")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.basic_auth_username", "")
	v.SetDefault("server.basic_auth_password", "")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("apply.max_concurrent_blocks", 4)
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

// Validate checks the settings the given command needs and reports every
// problem at once. mode is the cobra command name.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Anthropic.Key != "" && c.Anthropic.TimeoutSecs <= 0 {
		errs = append(errs, "anthropic.timeout_secs must be > 0")
	}
	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		errs = append(errs, "events.topic is required when events.brokers is set")
	}
	if c.Merge.MaxAttempts < 1 {
		errs = append(errs, "merge.max_attempts must be >= 1")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if (c.Server.BasicAuthUsername == "") != (c.Server.BasicAuthPassword == "") {
			errs = append(errs, "server.basic_auth_username and server.basic_auth_password must be set together")
		}
	case "apply":
		if c.Apply.MaxConcurrentBlocks < 1 || c.Apply.MaxConcurrentBlocks > 64 {
			errs = append(errs, "apply.max_concurrent_blocks must be between 1 and 64")
		}
	case "parse", "export", "staff", "migrate":
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
