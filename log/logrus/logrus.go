package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/texpool"
)

var _ texpool.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New adapts l. Every record carries component=texpool.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "texpool")}
}

func (l LogrusLogger) Debug(msg string, f texpool.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f texpool.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f texpool.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f texpool.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
