package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rates-ingestor/src/models"
)

// clearEnv unsets every bound variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
		require.NoError(t, os.Unsetenv(env))
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := NewConfig("")
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "items.updates", cfg.NATS.Subject)
	assert.False(t, cfg.NATS.Required)
	assert.Equal(t, 60, cfg.Rates.IntervalSeconds)
	assert.Equal(t, "binance", cfg.Rates.SourceName)
	assert.Equal(t, models.DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 50051, cfg.GRPC_Port)
}

func TestNewConfig_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	yamlData := []byte(`
name: test-ingestor
nats:
  subject: from.yaml
rates:
  interval_seconds: 5
`)
	require.NoError(t, os.WriteFile(path, yamlData, 0o644))

	t.Setenv("NATS_SUBJECT", "from.env")
	t.Setenv("NATS_REQUIRED", "true")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/rates")

	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test-ingestor", cfg.Name)
	assert.Equal(t, 5, cfg.Rates.IntervalSeconds)
	assert.Equal(t, "from.env", cfg.NATS.Subject)
	assert.True(t, cfg.NATS.Required)
	assert.Equal(t, models.DriverPostgres, cfg.Database.Driver)
	// untouched by yaml and env
	assert.Equal(t, "rates-ingestor", cfg.NATS.ClientID)
}

func TestNewConfig_EnvDecodesThroughTags(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("GRPC_PORT", "9001")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6380")
	t.Setenv("RATES_INTERVAL_SECONDS", "30")

	cfg, err := NewConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 9001, cfg.GRPC_Port)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "127.0.0.1:6380", cfg.Redis.Addr)
	assert.Equal(t, 30, cfg.Rates.IntervalSeconds)
	// siblings of overridden keys keep their defaults
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, "binance", cfg.Rates.SourceName)
	assert.Equal(t, models.DriverMemory, cfg.Database.Driver)
}

func TestNewConfig_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RATES_INTERVAL_SECONDS=15\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("RATES_INTERVAL_SECONDS") })

	cfg, err := NewConfig("")
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Rates.IntervalSeconds)
}

func TestNewConfig_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.MConfig)
		ok     bool
	}{
		{"defaults", func(*models.MConfig) {}, true},
		{"empty name", func(c *models.MConfig) { c.Name = "" }, false},
		{"low port", func(c *models.MConfig) { c.Port = 80 }, false},
		{"bad grpc port", func(c *models.MConfig) { c.GRPC_Port = 70000 }, false},
		{"zero interval", func(c *models.MConfig) { c.Rates.IntervalSeconds = 0 }, false},
		{"empty subject", func(c *models.MConfig) { c.NATS.Subject = "" }, false},
		{"postgres without dsn", func(c *models.MConfig) { c.Database.Driver = models.DriverPostgres }, false},
		{"unknown driver", func(c *models.MConfig) { c.Database.Driver = "sqlite" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := models.DefaultConfig()
			tt.mutate(&m)
			err := (&Config{MConfig: &m}).Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
