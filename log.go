package luamigrate

import "github.com/sirupsen/logrus"

// Logger is the logging sink consumed throughout the engine. Message text
// is documentation for operators, never parsed by callers.
type Logger interface {
	Printf(format string, v ...interface{})
	Verbose() bool
}

// NewLogrusLogger adapts a logrus logger to the Logger interface.
func NewLogrusLogger(l *logrus.Logger, verbose bool) Logger {
	return &logrusLogger{l: l, verbose: verbose}
}

type logrusLogger struct {
	l       *logrus.Logger
	verbose bool
}

func (l *logrusLogger) Printf(format string, v ...interface{}) {
	l.l.Infof(format, v...)
}

func (l *logrusLogger) Verbose() bool {
	return l.verbose
}
