package logging

import (
	"context"
	"fmt"
	"io"
	"os"

	"bitbucket.org/kleinnic74/pinphotos/consts"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKeyType string

const (
	loggerKey = loggerKeyType("logger")

	defaultMemoryLines = 1000
)

// Options controls where logs are written to
type Options struct {
	DevMode     bool   `json:"devmode" mapstructure:"devmode"`
	File        string `json:"file" mapstructure:"file"`
	LogglyToken string `json:"loggly" mapstructure:"loggly"`
	MemoryLines int    `json:"memory" mapstructure:"memory"`
}

var (
	rootLogger *zap.Logger
	memory     *memoryLogs
	closers    []io.Closer
)

func init() {
	rootLogger = zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr),
		levelFilter(consts.IsDevMode())))
}

func levelFilter(devmode bool) zap.LevelEnablerFunc {
	min := zapcore.InfoLevel
	if devmode {
		min = zapcore.DebugLevel
	}
	return zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= min
	})
}

// Init replaces the root logger. It is meant to be called once at startup,
// before any sub-logger has been derived from the root logger.
func Init(o Options) error {
	filter := levelFilter(o.DevMode)

	var jsonEncoder zapcore.Encoder
	if o.DevMode {
		jsonEncoder = zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		jsonEncoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	var cores []zapcore.Core
	if o.DevMode {
		consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), filter))
	}
	if o.File != "" {
		logfile, err := os.OpenFile(o.File, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", o.File, err)
		}
		closers = append(closers, logfile)
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.Lock(logfile), filter))
	}
	if o.LogglyToken != "" {
		loggly := NewLogglySink(o.LogglyToken)
		closers = append(closers, loggly)
		cores = append(cores, zapcore.NewCore(NewLogglyEncoder(), loggly, filter))
	}
	lines := o.MemoryLines
	if lines <= 0 {
		lines = defaultMemoryLines
	}
	memory = NewMemoryLogger(lines).(*memoryLogs)
	cores = append(cores, zapcore.NewCore(jsonEncoder, memory, filter))

	rootLogger = zap.New(zapcore.NewTee(cores...))
	rootLogger.With(zap.Bool("devmode", o.DevMode)).Info("Logging initialized")
	return nil
}

// Close flushes the root logger and releases the log sinks opened by Init
func Close() {
	rootLogger.Sync()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i].Close()
	}
	closers = nil
}

// Dump writes the in-memory logs to w, most recent first if reverse is set
func Dump(w io.Writer, reverse bool) error {
	if memory == nil {
		return nil
	}
	return memory.Export(w, reverse)
}

// From returns the logger of the current context, if no logger is available, returns the root logger
func From(ctx context.Context) *zap.Logger {
	l := ctx.Value(loggerKey)
	if l == nil {
		return rootLogger
	}
	return l.(*zap.Logger)
}

func SubFrom(ctx context.Context, name string) (*zap.Logger, context.Context) {
	logger := From(ctx).Named(name)
	return logger, Context(ctx, logger)
}

func Context(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = rootLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

func FromWithNameAndFields(ctx context.Context, name string, fields ...zapcore.Field) (*zap.Logger, context.Context) {
	logger := From(ctx).With(fields...).Named(name)
	ctx = Context(ctx, logger)
	return logger, ctx
}

func FromWithFields(ctx context.Context, fields ...zapcore.Field) (*zap.Logger, context.Context) {
	logger := From(ctx).With(fields...)
	ctx = Context(ctx, logger)
	return logger, ctx
}
