// Package log provides the leveled, printf-style logging facade used
// across every other package in this module.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// PluggableLoggerInterface is the logging contract every component
// depends on instead of a concrete logger, so tests can inject a
// no-op or capturing implementation.
type PluggableLoggerInterface interface {
	Trace(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

type logrusLogger struct {
	entry *logrus.Logger
}

// New builds a PluggableLoggerInterface at the given level
// ("trace", "debug", "info", "warn", "error"). An unrecognized level
// falls back to "info".
func New(level string) PluggableLoggerInterface {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return &logrusLogger{entry: l}
}

func (l *logrusLogger) Trace(msg string, args ...interface{}) { l.entry.Tracef(msg, args...) }
func (l *logrusLogger) Debug(msg string, args ...interface{}) { l.entry.Debugf(msg, args...) }
func (l *logrusLogger) Info(msg string, args ...interface{})  { l.entry.Infof(msg, args...) }
func (l *logrusLogger) Warn(msg string, args ...interface{})  { l.entry.Warnf(msg, args...) }
func (l *logrusLogger) Error(msg string, args ...interface{}) { l.entry.Errorf(msg, args...) }

// NewNoop returns a logger that discards everything, for tests.
func NewNoop() PluggableLoggerInterface {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.PanicLevel)
	return &logrusLogger{entry: l}
}
