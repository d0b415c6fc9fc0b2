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
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "activity.db", cfg.Store.SQLitePath)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Empty(t, cfg.Anthropic.Key)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(2048), cfg.Anthropic.MaxTokens)
	assert.Equal(t, 20*time.Second, cfg.Anthropic.Timeout())
	assert.Equal(t, 30, cfg.Anthropic.RequestsPerMinute)
	assert.Equal(t, 5, cfg.Anthropic.BreakerFailures)
	assert.Equal(t, 60, cfg.Anthropic.BreakerResetSecs)
	assert.Equal(t, 3, cfg.Merge.MaxAttempts)
	assert.Equal(t, 50, cfg.Merge.InitialBackoffMs)
	assert.Empty(t, cfg.Events.Brokers)
	assert.Equal(t, "activity.merged", cfg.Events.Topic)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Apply.MaxConcurrentBlocks)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/activity
events:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
server:
  port: 9090
  cors_origins: ["https://ops.example.com"]
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/activity", cfg.Store.DatabaseURL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Apply.MaxConcurrentBlocks)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("ACTIVITY_STORE_DRIVER", "postgres")
	t.Setenv("ACTIVITY_LOG_LEVEL", "warn")
	t.Setenv("ACTIVITY_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "activity.db"
	cfg.Merge.MaxAttempts = 3
	cfg.Server.Port = 8080
	cfg.Apply.MaxConcurrentBlocks = 4
	cfg.Events.Topic = "activity.merged"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	for _, mode := range []string{"serve", "parse", "apply", "export", "staff", "migrate"} {
		assert.NoError(t, validDefaults().Validate(mode), mode)
	}
}

func TestValidate_Postgres(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/activity"
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Server.Port = 0
	cfg.Server.BasicAuthUsername = "admin"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store.driver "mysql"`)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "must be set together")
}

func TestValidate_Events(t *testing.T) {
	cfg := validDefaults()
	cfg.Events.Brokers = []string{"localhost:9092"}
	cfg.Events.Topic = ""

	err := cfg.Validate("apply")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.topic")
}

func TestValidate_ApplyConcurrency(t *testing.T) {
	cfg := validDefaults()
	cfg.Apply.MaxConcurrentBlocks = 0
	assert.ErrorContains(t, cfg.Validate("apply"), "max_concurrent_blocks")

	// Only the apply command reads it.
	assert.NoError(t, cfg.Validate("parse"))
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
