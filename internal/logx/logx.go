// Package logx configures the shared logrus logger the CLI and driver
// log through, so every component reports through one consistent
// formatter instead of mixing fmt.Println and structured fields.
package logx

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing to stderr with a text formatter,
// at Debug level when verbose is set and Info otherwise.
func New(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
