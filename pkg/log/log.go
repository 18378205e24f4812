// Package log provides the process-wide structured logger used by every
// component of carl. It mirrors the small zap wrapper that e2d's components
// import as "github.com/criticalstack/e2d/pkg/log".
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = NewLoggerWithLevel("carl", zapcore.InfoLevel)

// NewLoggerWithLevel builds a zap.Logger with the given name and minimum
// level from zap's production config, which always encodes JSON.
func NewLoggerWithLevel(name string, level zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l.Named(name)
}

// SetLevel swaps the package-level logger for one at the given level,
// preserving the "carl" name. Intended to be called once at startup from the
// CLI's --verbose/-v flag handling.
func SetLevel(level zapcore.Level) {
	logger = NewLoggerWithLevel("carl", level)
}

// L returns the current package-level logger, for components that want to
// attach additional fields via With(...).
func L() *zap.Logger { return logger }

func Debug(msg string, fields ...zap.Field) { logger.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { logger.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { logger.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { logger.Sugar().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { logger.Sugar().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { logger.Sugar().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { logger.Sugar().Errorf(format, args...) }

// Fatal/Fatalf log at fatal level and then os.Exit(1) via zap's Fatal,
// matching the teacher's main.go use of log.Fatalf on startup failure.
func Fatal(args ...interface{})                 { logger.Sugar().Fatal(args...) }
func Fatalf(format string, args ...interface{}) { logger.Sugar().Fatalf(format, args...) }
