// Package logger builds the zap loggers used by the CLI and the API server.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// New creates a logger from cfg. Unknown levels fall back to info and
// anything but "json" selects the console encoder. Logs go to stderr
// unless Output names stdout or a file, so command output stays clean.
func New(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var config zap.Config
	if cfg.Format == "json" {
		config = zap.NewProductionConfig()
		config.Encoding = "json"
	} else {
		config = zap.NewDevelopmentConfig()
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	config.Level = zap.NewAtomicLevelAt(level)

	out := cfg.Output
	if out == "" {
		out = "stderr"
	}
	config.OutputPaths = []string{out}
	config.ErrorOutputPaths = []string{out}

	return config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// Sync flushes buffered entries, ignoring the error zap reports for
// terminals that do not support fsync.
func Sync(l *zap.Logger) {
	_ = l.Sync()
}

// NewNop creates a no-op logger for testing
func NewNop() *zap.Logger {
	return zap.NewNop()
}
