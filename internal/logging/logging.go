// Package logging configures the process-wide logrus logger from the
// --log/--log-format flags, the way libcontainer/process_linux.go
// expects a configured logrus.Logger already in place (it logs via
// logrus.WithError, never fmt.Print*).
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options configures the logger.
type Options struct {
	// Path is the log file to append to. Empty means stderr.
	Path string
	// Format is "json" or "txt" ("txt" is the default).
	Format string
}

// Configure sets up logrus.StandardLogger() per opts and returns a
// close function for the opened log file, if any.
func Configure(opts Options) (func(), error) {
	var out io.Writer = os.Stderr
	closer := func() {}

	if opts.Path != "" {
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		out = f
		closer = func() { f.Close() }
	}

	logrus.SetOutput(out)

	switch opts.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000000000Z07:00"})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return closer, nil
}
