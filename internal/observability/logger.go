package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions controls NewLoggerWith. Zero values select JSON at info level on stderr.
type LoggerOptions struct {
	Level  string // DEBUG, INFO, WARN or ERROR
	Format string // "json" or "console"
	Env    string // stamped on every entry as "env" when set
	// OutputPaths overrides zap's default of stderr.
	OutputPaths []string
}

// LoggerOptionsFromEnv reads LOG_LEVEL, LOG_FORMAT and ENV_NAME.
func LoggerOptionsFromEnv() LoggerOptions {
	return LoggerOptions{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		Env:    os.Getenv("ENV_NAME"),
	}
}

// NewLogger builds the process logger from the environment.
func NewLogger() (*zap.Logger, error) {
	return NewLoggerWith(LoggerOptionsFromEnv())
}

// NewLoggerWith builds a production logger with ISO8601 "timestamp" fields. Every entry
// carries the service name, and the environment when one is set.
func NewLoggerWith(opts LoggerOptions) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = parseLogLevel(opts.Level)
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.Sampling = nil
	}
	if len(opts.OutputPaths) > 0 {
		config.OutputPaths = opts.OutputPaths
	}

	fields := []zap.Field{zap.String("service", ServiceName)}
	if env := strings.TrimSpace(opts.Env); env != "" {
		fields = append(fields, zap.String("env", env))
	}
	return config.Build(zap.Fields(fields...))
}

// WidgetLogger returns the request-scoped logger from ctx (or fallback) tagged with the
// widget ID. Returns nil when neither logger exists.
func WidgetLogger(ctx context.Context, fallback *zap.Logger, widgetID string) *zap.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = fallback
	}
	if logger == nil {
		return nil
	}
	return logger.With(zap.String("widget", widgetID))
}

func parseLogLevel(s string) zap.AtomicLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "WARN":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "ERROR":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}
