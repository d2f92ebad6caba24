package models

import "time"

// -----------------------------------------------------------------------------

// MConfig is the root configuration of the rates ingestor.
// Fields carry both yaml tags (file decode) and mapstructure tags (env overlay).
type MConfig struct {
	Name      string `yaml:"name" mapstructure:"name"`
	Port      int    `yaml:"port" mapstructure:"port"`
	GRPC_Host string `yaml:"grpc_host" mapstructure:"grpc_host"`
	GRPC_Port int    `yaml:"grpc_port" mapstructure:"grpc_port"`

	Logger    MLoggerConfig    `yaml:"logger" mapstructure:"logger"`
	NATS      MNATSConfig      `yaml:"nats" mapstructure:"nats"`
	Rates     MRatesConfig     `yaml:"rates" mapstructure:"rates"`
	Database  MDatabaseConfig  `yaml:"database" mapstructure:"database"`
	Redis     MRedisConfig     `yaml:"redis" mapstructure:"redis"`
	WebSocket MWebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// -----------------------------------------------------------------------------

// MLoggerConfig selects the log level and encoder.
type MLoggerConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json, console
}

// -----------------------------------------------------------------------------

// MNATSConfig configures the external event bus relay.
type MNATSConfig struct {
	URL            string        `yaml:"url" mapstructure:"url"`
	Subject        string        `yaml:"subject" mapstructure:"subject"`
	ClientID       string        `yaml:"client_id" mapstructure:"client_id"`
	Required       bool          `yaml:"required" mapstructure:"required"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	ReachTimeout   time.Duration `yaml:"reach_timeout" mapstructure:"reach_timeout"`
}

// -----------------------------------------------------------------------------

// MRatesConfig configures the periodic price fetch.
type MRatesConfig struct {
	IntervalSeconds int           `yaml:"interval_seconds" mapstructure:"interval_seconds"`
	SourceURL       string        `yaml:"source_url" mapstructure:"source_url"`
	SourceName      string        `yaml:"source_name" mapstructure:"source_name"`
	RequestTimeout  time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	AutoStart       bool          `yaml:"auto_start" mapstructure:"auto_start"`
}

// Interval returns the configured interval as a duration.
func (r MRatesConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// -----------------------------------------------------------------------------

// MDatabaseConfig selects the price store backend.
type MDatabaseConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // postgres, memory
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// -----------------------------------------------------------------------------

// MRedisConfig configures the latest-rate cache. An empty Addr keeps the cache in memory.
type MRedisConfig struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// -----------------------------------------------------------------------------

// MWebSocketConfig tunes the real-time endpoint.
type MWebSocketConfig struct {
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ReadLimit    int64         `yaml:"read_limit" mapstructure:"read_limit"`
}

// -----------------------------------------------------------------------------

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DefaultConfig returns the documented defaults. A config file and the
// environment are layered on top of it.
func DefaultConfig() MConfig {
	return MConfig{
		Name:      "rates-ingestor",
		Port:      8000,
		GRPC_Host: "0.0.0.0",
		GRPC_Port: 50051,
		Logger: MLoggerConfig{
			Level:  "info",
			Format: "json",
		},
		NATS: MNATSConfig{
			URL:            "nats://127.0.0.1:4222",
			Subject:        "items.updates",
			ClientID:       "rates-ingestor",
			Required:       false,
			ConnectTimeout: 1 * time.Second,
			ReachTimeout:   300 * time.Millisecond,
		},
		Rates: MRatesConfig{
			IntervalSeconds: 60,
			SourceURL:       "https://api.binance.com/api/v3/ticker/price",
			SourceName:      "binance",
			RequestTimeout:  10 * time.Second,
			AutoStart:       true,
		},
		Database: MDatabaseConfig{
			Driver: DriverMemory,
		},
		Redis: MRedisConfig{
			TTL: 2 * time.Minute,
		},
		WebSocket: MWebSocketConfig{
			WriteTimeout: 5 * time.Second,
			ReadLimit:    64 * 1024,
		},
	}
}
