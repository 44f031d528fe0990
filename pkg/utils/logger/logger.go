package logger

import (
	"context"
	"fmt"
	"os"
	"time"

	"arete/pkg/utils/contextkey"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger *Logger

// Logger wraps zap logger with context support
type Logger struct {
	zap *zap.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string `yaml:"level"`      // debug, info, warn, error
	Format     string `yaml:"format"`     // json, console
	OutputPath string `yaml:"outputPath"` // file path or "stdout"
	ErrorPath  string `yaml:"errorPath"`  // error log file path or "stderr"
}

// Init initializes the global logger
func Init(cfg Config) error {
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	globalLogger = l
	return nil
}

// NewLogger creates a new logger instance
func NewLogger(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    "func",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	writeSyncer, err := openSink(cfg.OutputPath, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	errorSyncer, err := openSink(cfg.ErrorPath, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log file: %w", err)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)
	zapLogger := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(errorSyncer),
	)

	return &Logger{zap: zapLogger}, nil
}

func openSink(path string, std *os.File) (zapcore.WriteSyncer, error) {
	if path == "" || path == "stdout" || path == "stderr" {
		if path == "stdout" {
			return zapcore.AddSync(os.Stdout), nil
		}
		if path == "stderr" {
			return zapcore.AddSync(os.Stderr), nil
		}
		return zapcore.AddSync(std), nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(file), nil
}

// customTimeEncoder formats time in RFC3339 format
func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format(time.RFC3339))
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// WithContext extracts fields from context (like trace_id) and returns logger with those fields
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return l.zap
	}
	return l.zap.With(extractFieldsFromContext(ctx)...)
}

// extractFieldsFromContext extracts structured fields from context
func extractFieldsFromContext(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if traceID := ctx.Value(contextkey.TraceID); traceID != nil {
		fields = append(fields, zap.String("trace_id", fmt.Sprint(traceID)))
	}
	if requestID := ctx.Value(contextkey.RequestID); requestID != nil {
		fields = append(fields, zap.String("request_id", fmt.Sprint(requestID)))
	}
	if sessionID := ctx.Value(contextkey.SessionID); sessionID != nil {
		fields = append(fields, zap.String("session_id", fmt.Sprint(sessionID)))
	}
	if problemID := ctx.Value(contextkey.ProblemID); problemID != nil {
		fields = append(fields, zap.String("problem_id", fmt.Sprint(problemID)))
	}
	return fields
}

// WithSession returns a child context that tags log lines with the session id.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextkey.SessionID, sessionID)
}

// Global logger convenience functions

// Debug logs a debug message
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	if globalLogger == nil {
		return
	}
	globalLogger.WithContext(ctx).Debug(msg, fields...)
}

// Info logs an info message
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	if globalLogger == nil {
		return
	}
	globalLogger.WithContext(ctx).Info(msg, fields...)
}

// Warn logs a warning message
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	if globalLogger == nil {
		return
	}
	globalLogger.WithContext(ctx).Warn(msg, fields...)
}

// Error logs an error message
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	if globalLogger == nil {
		return
	}
	globalLogger.WithContext(ctx).Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	if globalLogger == nil {
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}
	globalLogger.WithContext(ctx).Fatal(msg, fields...)
}

// Infof logs an info message with format
func Infof(ctx context.Context, format string, args ...interface{}) {
	if globalLogger == nil {
		return
	}
	globalLogger.WithContext(ctx).Info(fmt.Sprintf(format, args...))
}

// Warnf logs a warning message with format
func Warnf(ctx context.Context, format string, args ...interface{}) {
	if globalLogger == nil {
		return
	}
	globalLogger.WithContext(ctx).Warn(fmt.Sprintf(format, args...))
}

// Sync flushes the global logger
func Sync() error {
	if globalLogger == nil {
		return nil
	}
	return globalLogger.Sync()
}
