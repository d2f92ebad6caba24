package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"rates-ingestor/src/models"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// envBindings maps viper keys to the environment variables that override them.
var envBindings = map[string]string{
	"nats.url":               "NATS_URL",
	"nats.subject":           "NATS_SUBJECT",
	"nats.required":          "NATS_REQUIRED",
	"rates.interval_seconds": "RATES_INTERVAL_SECONDS",
	"rates.source_url":       "RATES_SOURCE_URL",
	"rates.source_name":      "RATES_SOURCE_NAME",
	"database.dsn":           "DATABASE_URL",
	"redis.addr":             "REDIS_ADDR",
	"port":                   "HTTP_PORT",
	"grpc_port":              "GRPC_PORT",
	"logger.level":           "LOG_LEVEL",
}

// -----------------------------------------------------------------------------

// NewConfig builds the configuration from defaults, an optional YAML file,
// an optional .env file and the process environment, in that order.
func NewConfig(configPath string) (*Config, error) {
	// 1. Start from the documented defaults
	modelConfig := models.DefaultConfig()

	// 2. Decode the YAML file on top of the defaults
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, &modelConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
		}
	}

	// 3. Load .env into the process environment (missing file is fine)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	// 4. Overlay environment variables
	if err := applyEnv(&modelConfig); err != nil {
		return nil, err
	}

	config := &Config{MConfig: &modelConfig}

	// 5. Validate the resulting configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyEnv binds every known variable explicitly and decodes only the keys
// actually present in the environment onto cfg through their mapstructure tags.
func applyEnv(cfg *models.MConfig) error {
	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind env var %s: %w", env, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to decode environment overrides: %w", err)
	}

	// a database url selects the postgres driver
	if v.IsSet("database.dsn") && cfg.Database.DSN != "" {
		cfg.Database.Driver = models.DriverPostgres
	}

	return nil
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config name cannot be empty")
	}

	// Validate application ports
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid application port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GRPC_Port <= 1024 || c.GRPC_Port > 65535 {
		return fmt.Errorf("invalid gRPC port number: %d (must be between 1025 and 65535)", c.GRPC_Port)
	}

	// Validate rates section
	if c.Rates.IntervalSeconds < 1 {
		return fmt.Errorf("rates interval must be at least 1 second, got %d", c.Rates.IntervalSeconds)
	}
	if c.Rates.SourceURL == "" {
		return fmt.Errorf("rates source url cannot be empty")
	}
	if c.Rates.SourceName == "" {
		return fmt.Errorf("rates source name cannot be empty")
	}

	// Validate NATS section
	if c.NATS.Subject == "" {
		return fmt.Errorf("NATS subject cannot be empty")
	}
	if _, err := url.Parse(c.NATS.URL); err != nil || c.NATS.URL == "" {
		return fmt.Errorf("invalid NATS url '%s'", c.NATS.URL)
	}

	// Validate database section
	switch c.Database.Driver {
	case models.DriverMemory:
	case models.DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for driver '%s'", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database driver '%s'", c.Database.Driver)
	}

	return nil
}
