package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rates-ingestor/src/models"
)

// -----------------------------------------------------------------------------

// Logger is a printf-style facade over zap shared by every component.
// Components prefix their messages with their own name: "%s : message".
type Logger struct {
	name  string
	sugar *zap.SugaredLogger
}

// -----------------------------------------------------------------------------

// NewLogger builds a logger from the logger section of the config.
func NewLogger(cfg models.MLoggerConfig, name string) (*Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level '%s': %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format '%s'", cfg.Format)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.TimeKey = "time"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.DisableStacktrace = true

	base, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	return &Logger{name: name, sugar: base.Named(name).Sugar()}, nil
}

// -----------------------------------------------------------------------------

// NewNopLogger returns a logger that discards everything. Used by tests.
func NewNopLogger() *Logger {
	return &Logger{name: "nop", sugar: zap.NewNop().Sugar()}
}

// -----------------------------------------------------------------------------

// NewFromZap wraps an existing zap logger (e.g. zaptest or an observer core).
func NewFromZap(base *zap.Logger, name string) *Logger {
	return &Logger{name: name, sugar: base.Sugar()}
}

// -----------------------------------------------------------------------------

// With returns a child logger carrying extra structured fields.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{name: l.name, sugar: l.sugar.With(keysAndValues...)}
}

// Named returns a child logger for a sub-component.
func (l *Logger) Named(name string) *Logger {
	return &Logger{name: name, sugar: l.sugar.Named(name)}
}

// Name returns the logger name.
func (l *Logger) Name() string { return l.name }

func (l *Logger) Debug(format string, args ...any)   { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...any)    { l.sugar.Infof(format, args...) }
func (l *Logger) Warning(format string, args ...any) { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...any)   { l.sugar.Errorf(format, args...) }

// Critical logs at error level with a critical marker. It does not exit;
// callers decide whether to stop the process.
func (l *Logger) Critical(format string, args ...any) {
	l.sugar.With("critical", true).Errorf(format, args...)
}

// -----------------------------------------------------------------------------

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
