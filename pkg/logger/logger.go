package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Define log levels
var LevelMap = map[string]zapcore.Level{
	"error": zapcore.ErrorLevel,
	"debug": zapcore.DebugLevel,
	"warn":  zapcore.WarnLevel,
	"info":  zapcore.InfoLevel,
}

var allLevels = []string{"error", "debug", "warn", "info"}

type CustomLogger struct {
	levels              []string
	logBackTraceEnabled bool

	zl *zap.Logger
}

type Options struct {
	LogBackTraceEnabled bool
}

func NewDefaultLogger() *CustomLogger {
	return NewLoggerWithOptions(allLevels, &Options{LogBackTraceEnabled: true})
}

// NewLoggerWithOptions builds a console logger that only emits the listed
// levels. A single "all" entry enables every level.
func NewLoggerWithOptions(levels []string, options *Options) *CustomLogger {
	if len(levels) == 1 && levels[0] == "all" {
		levels = allLevels
	}
	if options == nil {
		options = &Options{}
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02  15:04:05.000")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	cl := &CustomLogger{
		levels:              levels,
		logBackTraceEnabled: options.LogBackTraceEnabled,
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(cl.enabled),
	)
	cl.zl = zap.New(core, cl.zapOptions()...)

	return cl
}

// NewWithCore wraps an arbitrary zap core, used by tests to observe output.
func NewWithCore(core zapcore.Core) *CustomLogger {
	cl := &CustomLogger{levels: allLevels}
	cl.zl = zap.New(core)
	return cl
}

func NewNop() *CustomLogger {
	return &CustomLogger{zl: zap.NewNop()}
}

func (cl *CustomLogger) zapOptions() []zap.Option {
	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if cl.logBackTraceEnabled {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return opts
}

// With returns a child logger that attaches fields to every entry.
func (cl *CustomLogger) With(fields ...zap.Field) *CustomLogger {
	return &CustomLogger{
		levels:              cl.levels,
		logBackTraceEnabled: cl.logBackTraceEnabled,
		zl:                  cl.zl.With(fields...),
	}
}

func (cl *CustomLogger) Info(msg string, fields ...zap.Field) {
	cl.zl.Info(msg, fields...)
}

func (cl *CustomLogger) Warn(msg string, fields ...zap.Field) {
	cl.zl.Warn(msg, fields...)
}

func (cl *CustomLogger) Debug(msg string, fields ...zap.Field) {
	cl.zl.Debug(msg, fields...)
}

func (cl *CustomLogger) Error(msg string, fields ...zap.Field) {
	cl.zl.Error(msg, fields...)
}

// Fatal logs at error level and exits the process.
func (cl *CustomLogger) Fatal(msg string, fields ...zap.Field) {
	cl.zl.Error(msg, fields...)
	_ = cl.zl.Sync()
	os.Exit(1)
}

func (cl *CustomLogger) Sync() error {
	return cl.zl.Sync()
}

func (cl *CustomLogger) enabled(lvl zapcore.Level) bool {
	for _, l := range cl.levels {
		if zl, ok := LevelMap[l]; ok && zl == lvl {
			return true
		}
	}
	return false
}
