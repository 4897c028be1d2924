package logger

import "fmt"

// Init sets up a default logger so the printf helpers work before the
// environment is known. InitStructured replaces it once config is loaded.
func Init() {
	InitStructured("")
}

// Info logs a printf-style info message
func Info(format string, args ...interface{}) {
	zlog.Info().Msg(fmt.Sprintf(format, args...))
}

// Warn logs a printf-style warning message
func Warn(format string, args ...interface{}) {
	zlog.Warn().Msg(fmt.Sprintf(format, args...))
}

// Error logs a printf-style error message
func Error(format string, args ...interface{}) {
	zlog.Error().Msg(fmt.Sprintf(format, args...))
}
