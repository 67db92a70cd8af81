// Package telemetry builds ehrql-go's zap logger, wired the same way
// sqldef's util.InitSlog was: a single env-driven construction point,
// called once from cmd/ehrql's main.
package telemetry

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction. Zero value is the production
// default: info level, JSON encoding, no SQL echo.
type Config struct {
	Level  string // LOG_LEVEL: debug, info, warn, error
	LogSQL bool   // LOG_SQL: enables SQLLogger's debug-level statement echo
}

// FromEnv reads LOG_LEVEL and LOG_SQL, matching sqldef's own
// environment-variable-driven logger setup.
func FromEnv() Config {
	return Config{
		Level:  os.Getenv("LOG_LEVEL"),
		LogSQL: strings.EqualFold(os.Getenv("LOG_SQL"), "true") || os.Getenv("LOG_SQL") == "1",
	}
}

// New builds a zap logger from cfg. Output goes to stderr so stdout
// stays free for cmd/ehrql's generated SQL/dataset output.
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("telemetry: building logger: %w", err)
	}
	return logger, nil
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("telemetry: invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// SQLLogger wraps a zap logger with one Statement call that echoes a
// SQL statement at debug level when enabled and does nothing otherwise.
// No package outside its tests calls Statement, so no statement the
// dialects or cmd/ehrql send is echoed.
type SQLLogger struct {
	logger  *zap.Logger
	enabled bool
}

func NewSQLLogger(logger *zap.Logger, enabled bool) *SQLLogger {
	return &SQLLogger{logger: logger, enabled: enabled}
}

func (l *SQLLogger) Statement(label, sql string) {
	if l == nil || !l.enabled {
		return
	}
	l.logger.Debug("sql", zap.String("label", label), zap.String("sql", sql))
}
