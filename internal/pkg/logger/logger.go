package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options controls how a logger is built
type Options struct {
	Level      string
	JSON       bool
	Output     io.Writer
	AppName    string
	Production bool
}

// New builds a logrus logger. Nothing here is global; callers pass the
// returned logger down to the features that need it.
func New(opts Options) *logrus.Logger {
	l := logrus.New()

	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stdout)
	}

	if opts.JSON || opts.Production {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	l.SetLevel(ParseLevel(opts.Level))
	return l
}

// ParseLevel maps a level name to a logrus level, defaulting to info
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Module returns an entry tagged with the module and function name
func Module(l logrus.FieldLogger, module, funcName string) *logrus.Entry {
	if l == nil {
		l = Discard()
	}
	return l.WithFields(logrus.Fields{
		"module":   module,
		"funcName": funcName,
	})
}

// LogError records err with the calling module, function and a short context
func LogError(l logrus.FieldLogger, module, funcName, context string, data any, err error) {
	entry := Module(l, module, funcName).WithField("context", context)
	if data != nil {
		entry = entry.WithField("data", data)
	}
	if err != nil {
		entry.Error(err.Error())
		return
	}
	entry.Error(context)
}
