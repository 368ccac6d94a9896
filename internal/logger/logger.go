package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samvad-hq/samvad-relay/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging surface components depend on.
type Logger interface {
	DebugObj(msg, key string, obj interface{})
	InfoObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
	Named(name string) Logger
}

// ZapLogger implements Logger on top of zap and owns the activity log file.
type ZapLogger struct {
	log  *zap.Logger
	file *os.File
}

// New builds a logger that appends timestamped lines to cfg.LogFile and, when
// cfg.LogStdout is set, mirrors JSON records to stdout.
func New(cfg *config.Config) (*ZapLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	level := parseLevel(cfg.LogLevel)

	path := strings.TrimSpace(cfg.LogFile)
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(fileEncoderConfig()), zapcore.AddSync(file), level),
	}
	if cfg.LogStdout {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "ts"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(zapcore.Lock(os.Stdout)),
			level,
		))
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)).
		Named(cfg.AppName)
	return &ZapLogger{log: log, file: file}, nil
}

// NewFromCore wraps an existing core; used by tests that observe log output.
func NewFromCore(core zapcore.Core) *ZapLogger {
	return &ZapLogger{log: zap.New(core)}
}

// fileEncoderConfig renders "15:04:05 LEVEL name: message {fields}" lines.
func fileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		NameKey:          "logger",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeName:       func(name string, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(name + ":") },
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.DebugLevel
	}
}

// Close flushes buffered entries and closes the log file.
func (l *ZapLogger) Close() error {
	if l == nil || l.log == nil {
		return nil
	}
	_ = l.log.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *ZapLogger) Named(name string) Logger {
	return &ZapLogger{log: l.log.Named(name), file: l.file}
}

// Object logging helpers log obj as a structured field named key.
func (l *ZapLogger) InfoObj(msg, key string, obj interface{}) {
	l.log.Info(msg, field(key, obj)...)
}

func (l *ZapLogger) DebugObj(msg, key string, obj interface{}) {
	l.log.Debug(msg, field(key, obj)...)
}

func (l *ZapLogger) WarnObj(msg, key string, obj interface{}) {
	l.log.Warn(msg, field(key, obj)...)
}

func (l *ZapLogger) ErrorObj(msg, key string, obj interface{}) {
	l.log.Error(msg, field(key, obj)...)
}

func field(key string, obj interface{}) []zap.Field {
	if key == "" || obj == nil {
		return nil
	}
	return []zap.Field{zap.Any(key, obj)}
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) InfoObj(string, string, interface{})  {}
func (NopLogger) DebugObj(string, string, interface{}) {}
func (NopLogger) WarnObj(string, string, interface{})  {}
func (NopLogger) ErrorObj(string, string, interface{}) {}
func (n NopLogger) Named(string) Logger                { return n }

// Ensure returns log, or a NopLogger when log is nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return NopLogger{}
	}
	return log
}
