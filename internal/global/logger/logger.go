package logger

import "gitlab.com/opensubmit.net/internal/adapter/logging"

// Logger is the process-wide logger used before dependencies are wired
var Logger = logging.NewZapLogger()

// UseDebug switches the global logger to debug level
func UseDebug() {
	Logger = logging.NewDebugLogger()
}

func Info(msg string, args ...interface{}) {
	Logger.Info(msg, args...)
}

func Error(msg string, args ...interface{}) {
	Logger.Error(msg, args...)
}

func Debug(msg string, args ...interface{}) {
	Logger.Debug(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	Logger.Warn(msg, args...)
}

func Sync() {
	_ = Logger.Sync()
}
