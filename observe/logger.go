package observe

import (
	"context"
	"io"
	"os"
	"slices"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: the span in ctx, if any, is attached to the entry.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)

	// With returns a logger that adds fields to every entry.
	With(fields ...Field) Logger

	// WithOp returns a logger scoped to one cache operation.
	WithOp(meta OpMeta) Logger

	// Sync flushes buffered entries.
	Sync()
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// LoggingConfig configures the logging subsystem.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Level   string `yaml:"level" env:"LEVEL"` // debug|info|warn|error

	// Output is "stderr" (default), "stdout" or a file path. Files are
	// rotated according to Rotation.
	Output   string            `yaml:"output" env:"OUTPUT"`
	Rotation LogRotationConfig `yaml:"rotation" envPrefix:"ROTATION_"`
}

// LogRotationConfig defines log file rotation settings.
type LogRotationConfig struct {
	MaxSize    int  `yaml:"max_size" env:"MAX_SIZE"`       // megabytes before rotation (default 100)
	MaxBackups int  `yaml:"max_backups" env:"MAX_BACKUPS"` // rotated files to keep (default 3)
	MaxAge     int  `yaml:"max_age" env:"MAX_AGE"`         // days to retain rotated files (default 28)
	Compress   bool `yaml:"compress" env:"COMPRESS"`
}

// ParseLevel maps a level name to a zap level. Unknown names are info.
func ParseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type zapLogger struct {
	z *zap.Logger
}

// NewLogger creates a JSON logger writing to stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a JSON logger writing to w.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	return newZapLogger(ParseLevel(level), zapcore.Lock(zapcore.AddSync(w)))
}

// NewLoggerFromConfig creates a logger for cfg. The returned closer is
// non-nil when a rotated log file was opened.
func NewLoggerFromConfig(cfg LoggingConfig) (Logger, io.Closer, error) {
	switch cfg.Output {
	case "", "stderr":
		return NewLogger(cfg.Level), nil, nil
	case "stdout":
		return NewLoggerWithWriter(cfg.Level, os.Stdout), nil, nil
	}

	rot := cfg.Rotation
	if rot.MaxSize <= 0 {
		rot.MaxSize = 100
	}
	if rot.MaxBackups <= 0 {
		rot.MaxBackups = 3
	}
	if rot.MaxAge <= 0 {
		rot.MaxAge = 28
	}
	file := &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    rot.MaxSize,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAge,
		Compress:   rot.Compress,
	}
	return newZapLogger(ParseLevel(cfg.Level), zapcore.AddSync(file)), file, nil
}

func newZapLogger(level zapcore.Level, ws zapcore.WriteSyncer) Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "msg"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, zap.NewAtomicLevelAt(level))
	return &zapLogger{z: zap.New(core)}
}

// NewZapLogger adapts an existing zap logger.
func NewZapLogger(z *zap.Logger) Logger {
	return &zapLogger{z: z}
}

func (l *zapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.z.Info(msg, l.fields(ctx, fields)...)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.z.Warn(msg, l.fields(ctx, fields)...)
}

func (l *zapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.z.Error(msg, l.fields(ctx, fields)...)
}

func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.z.Debug(msg, l.fields(ctx, fields)...)
}

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(toZap(fields)...)}
}

func (l *zapLogger) WithOp(meta OpMeta) Logger {
	zf := []zap.Field{zap.String("cache.op", meta.Op)}
	if meta.Key != "" {
		zf = append(zf, zap.String("cache.key", meta.Key))
	}
	if meta.Mode != "" {
		zf = append(zf, zap.String("cache.mode", meta.Mode))
	}
	if len(meta.Tags) > 0 {
		zf = append(zf, zap.Strings("cache.tags", meta.Tags))
	}
	return &zapLogger{z: l.z.With(zf...)}
}

func (l *zapLogger) Sync() {
	_ = l.z.Sync()
}

func (l *zapLogger) fields(ctx context.Context, fields []Field) []zap.Field {
	zf := toZap(fields)
	if ctx == nil {
		return zf
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		zf = append(zf,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return zf
}

func toZap(fields []Field) []zap.Field {
	zf := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if isRedactedField(f.Key) {
			zf = append(zf, zap.String(f.Key, "[REDACTED]"))
			continue
		}
		if err, ok := f.Value.(error); ok {
			zf = append(zf, zap.String(f.Key, err.Error()))
			continue
		}
		zf = append(zf, zap.Any(f.Key, f.Value))
	}
	return zf
}

func isRedactedField(key string) bool {
	return slices.Contains(RedactedFields, key)
}

type nopLogger struct{}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Info(context.Context, string, ...Field)  {}
func (nopLogger) Warn(context.Context, string, ...Field)  {}
func (nopLogger) Error(context.Context, string, ...Field) {}
func (nopLogger) Debug(context.Context, string, ...Field) {}
func (l nopLogger) With(...Field) Logger                  { return l }
func (l nopLogger) WithOp(OpMeta) Logger                  { return l }
func (nopLogger) Sync()                                   {}

var (
	_ Logger = (*zapLogger)(nil)
	_ Logger = nopLogger{}
)
