// Package obslog provides the shared structured logger for the tracker core.
package obslog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Base is the process-wide logger. Components derive a named entry from it
// rather than constructing their own logrus.Logger.
var Base *logrus.Logger

func init() {
	Base = New("info")
}

// New creates a configured logger writing JSON lines to stdout.
func New(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}

// For returns a named entry for a component, e.g. obslog.For("plant").
func For(component string) *logrus.Entry {
	return Base.WithField("component", component)
}

// SetLevel changes the base logger's level at runtime.
func SetLevel(level string) {
	switch level {
	case "debug":
		Base.SetLevel(logrus.DebugLevel)
	case "info":
		Base.SetLevel(logrus.InfoLevel)
	case "warn":
		Base.SetLevel(logrus.WarnLevel)
	case "error":
		Base.SetLevel(logrus.ErrorLevel)
	}
}
