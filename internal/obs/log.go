// Package obs wires the process-wide ambient observability stack:
// structured logging and the Prometheus metrics registry. Services take
// a *logrus.Logger and a *Metrics as constructor parameters rather than
// reaching for package-level globals.
package obs

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the root logger for a ronet process. level is one of
// "trace","debug","info","warn","error"; invalid values fall back to info.
func NewLogger(level, service string) *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(os.Stderr)
	lg.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	lg.SetLevel(lvl)
	return lg.WithField("service", service).Logger
}
