package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/stratacache"
)

var _ stratacache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

func (l Logger) Debug(msg string, f stratacache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l Logger) Info(msg string, f stratacache.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f stratacache.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f stratacache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
