package util

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
	maskPhones   bool
)

// Init builds the process-wide logger on first call and returns it. Later
// calls return the same logger regardless of arguments.
func Init(environment, level, format string) *zap.Logger {
	once.Do(func() {
		logger, err := buildConfig(environment, level, format).Build(
			zap.AddCaller(),
			zap.AddCallerSkip(1),
		)
		if err != nil {
			panic("failed to initialize logger: " + err.Error())
		}

		maskPhones = environment == "production"
		globalLogger = logger
		zap.ReplaceGlobals(logger)
	})

	return globalLogger
}

// buildConfig returns the zap config for an environment. Production logs
// sampled JSON without stack traces; everything else gets the development
// preset. format overrides the encoding either way.
func buildConfig(environment, level, format string) zap.Config {
	var cfg zap.Config
	if environment == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.DisableStacktrace = true
		cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(parseLogLevel(level))

	switch format {
	case "json":
		cfg.Encoding = "json"
		cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	default:
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg
}

// Get returns the global logger, initializing a production logger if
// nothing called Init yet.
func Get() *zap.Logger {
	if globalLogger == nil {
		return Init("production", "info", "json")
	}
	return globalLogger
}

func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

// parseLogLevel falls back to info on anything zap does not recognise.
func parseLogLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { Get().Fatal(msg, fields...) }

// Field helpers, so callers need not import zap for the common cases.
func String(key, value string) zap.Field            { return zap.String(key, value) }
func Strings(key string, values []string) zap.Field { return zap.Strings(key, values) }
func Bool(key string, value bool) zap.Field         { return zap.Bool(key, value) }
func Int(key string, value int) zap.Field           { return zap.Int(key, value) }
func Time(key string, value time.Time) zap.Field    { return zap.Time(key, value) }
func Duration(key string, value time.Duration) zap.Field {
	return zap.Duration(key, value)
}

// ErrorField is named to avoid clashing with Error.
func ErrorField(err error) zap.Field { return zap.Error(err) }

// Phone logs a phone number, keeping only the country prefix and last
// two digits once the production logger is active.
func Phone(key, phoneNumber string) zap.Field {
	if !maskPhones {
		return zap.String(key, phoneNumber)
	}
	return zap.String(key, MaskPhone(phoneNumber))
}

func MaskPhone(phoneNumber string) string {
	if len(phoneNumber) <= 5 {
		return strings.Repeat("*", len(phoneNumber))
	}
	return phoneNumber[:3] + strings.Repeat("*", len(phoneNumber)-5) + phoneNumber[len(phoneNumber)-2:]
}
