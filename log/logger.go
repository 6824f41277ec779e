// Package log provides structured logging with build context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the producer graph and scheduler
//   - SugaredLogger: Printf-style logging for CLI/debug surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
// A nil *Logger is valid and discards everything.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/buildout/types"
)

// Logger provides structured logging with build context.
// All log entries include the invocation and scope fields.
type Logger struct {
	zap *zap.Logger
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new logger with build context.
// Output defaults to os.Stderr.
func NewLogger(meta *types.BuildMeta) *Logger {
	return newLoggerWithWriter(meta, os.Stderr)
}

// NewNop returns a logger that discards all entries.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

func newEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

// WithOutput returns a new logger with a different output writer.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	if l == nil {
		return nil
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(newEncoderConfig()),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
	return &Logger{zap: l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))}
}

// With returns a child logger carrying an extra field.
func (l *Logger) With(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{zap: l.zap.With(zap.Any(key, value))}
}

// newLoggerWithWriter creates a logger writing to the specified writer.
func newLoggerWithWriter(meta *types.BuildMeta, w io.Writer) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(newEncoderConfig()),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)

	contextFields := []zap.Field{
		zap.String("invocation_id", meta.InvocationID),
		zap.String("scope", meta.Scope),
	}
	if meta.Project != nil {
		contextFields = append(contextFields, zap.String("project", *meta.Project))
	}

	return &Logger{zap: zap.New(core).With(contextFields...)}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	if l == nil {
		return &SugaredLogger{sugar: zap.NewNop().Sugar()}
	}
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
