/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity level of log messages
type Level int

const (
	TraceLevel Level = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
)

// zapTraceLevel sits one step below zap's debug level.
const zapTraceLevel = zapcore.DebugLevel - 1

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case TraceLevel:
		return "TRACE"
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a flag value to a Level, defaulting to InfoLevel.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TraceLevel
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case TraceLevel:
		return zapTraceLevel
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config holds the logger configuration
type Config struct {
	Level     Level
	UseColor  bool
	JSON      bool
	Component string
	NoOp      bool
}

// Logger wraps a zap logger with the package's field helpers.
type Logger struct {
	config Config
	zl     *zap.Logger
}

var (
	mu            sync.RWMutex
	defaultLogger *Logger
)

// Initialize sets up the default logger writing to stderr.
func Initialize(config Config) error {
	l, err := New(config, os.Stderr)
	if err != nil {
		return err
	}
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	return nil
}

// New builds a logger that writes to w.
func New(config Config, w io.Writer) (*Logger, error) {
	if w == nil {
		return nil, fmt.Errorf("logger output writer is nil")
	}
	core := zapcore.NewCore(newEncoder(config), zapcore.AddSync(w), config.Level.zap())
	zl := zap.New(core)
	if config.Component != "" {
		zl = zl.Named(config.Component)
	}
	if config.NoOp {
		zl = zl.With(zap.Bool("no_op", true))
	}
	return &Logger{config: config, zl: zl}, nil
}

func newEncoder(config Config) zapcore.Encoder {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		MessageKey:     "message",
		CallerKey:      "caller",
		StacktraceKey:  "",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	if config.JSON {
		encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
		encCfg.EncodeLevel = levelEncoder(false)
		return zapcore.NewJSONEncoder(encCfg)
	}
	encCfg.EncodeLevel = levelEncoder(config.UseColor)
	encCfg.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(encCfg)
}

// levelEncoder renders zap levels with this package's names, including TRACE.
func levelEncoder(color bool) zapcore.LevelEncoder {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		name := fromZap(l).String()
		if !color {
			enc.AppendString(name)
			return
		}
		switch name {
		case "TRACE":
			enc.AppendString("\033[37mTRACE\033[0m")
		case "DEBUG":
			enc.AppendString("\033[36mDEBUG\033[0m")
		case "INFO":
			enc.AppendString("\033[32mINFO\033[0m")
		case "WARN":
			enc.AppendString("\033[33mWARN\033[0m")
		case "ERROR":
			enc.AppendString("\033[31mERROR\033[0m")
		default:
			enc.AppendString(name)
		}
	}
}

func fromZap(l zapcore.Level) Level {
	switch {
	case l <= zapTraceLevel:
		return TraceLevel
	case l == zapcore.DebugLevel:
		return DebugLevel
	case l == zapcore.InfoLevel:
		return InfoLevel
	case l == zapcore.WarnLevel:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

// Log writes a log message
func (l *Logger) Log(level Level, message string, fields ...Field) {
	if ce := l.zl.Check(level.zap(), message); ce != nil {
		ce.Write(toZap(fields)...)
	}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

func toZap(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

// Field represents a structured field in a log entry
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Strings creates a string slice field
func Strings(key string, value []string) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Convenience functions for default logger
func Trace(message string, fields ...Field) {
	if l := current(); l != nil {
		l.Log(TraceLevel, message, fields...)
	}
}

func Debug(message string, fields ...Field) {
	if l := current(); l != nil {
		l.Log(DebugLevel, message, fields...)
	}
}

func Info(message string, fields ...Field) {
	if l := current(); l != nil {
		l.Log(InfoLevel, message, fields...)
		return
	}
	// Fallback to stderr if logger not initialized
	_, _ = fmt.Fprintf(os.Stderr, "[INFO] contentpack: %s\n", message)
}

func Warn(message string, fields ...Field) {
	if l := current(); l != nil {
		l.Log(WarnLevel, message, fields...)
	}
}

func Error(message string, fields ...Field) {
	if l := current(); l != nil {
		l.Log(ErrorLevel, message, fields...)
	}
}

// SetOutput redirects the default logger to w, keeping its configuration.
func SetOutput(w io.Writer) {
	l := current()
	if l == nil {
		return
	}
	if nl, err := New(l.config, w); err == nil {
		mu.Lock()
		defaultLogger = nl
		mu.Unlock()
	}
}

// Sync flushes the default logger.
func Sync() {
	if l := current(); l != nil {
		_ = l.Sync()
	}
}
