// Package logging builds the component loggers used across tasksync. Each
// component gets a stdlib *log.Logger with a bracketed prefix; output goes
// to a rotating file, stderr, both, or nowhere.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects log destinations.
type Options struct {
	// File enables size-rotated file logging.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Verbose also writes to stderr.
	Verbose bool
}

// Sink is a shared log destination.
type Sink struct {
	w      io.Writer
	closer io.Closer
}

// Open creates a sink for opts. With neither File nor Verbose set, logs are
// discarded.
func Open(opts Options) *Sink {
	var writers []io.Writer
	var closer io.Closer

	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, lj)
		closer = lj
	}
	if opts.Verbose {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		return &Sink{w: io.Discard}
	case 1:
		return &Sink{w: writers[0], closer: closer}
	default:
		return &Sink{w: io.MultiWriter(writers...), closer: closer}
	}
}

// Logger returns a logger for component, e.g. Logger("store") logs with a
// "[store] " prefix.
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.w, "["+component+"] ", log.LstdFlags)
}

// Close flushes and closes the log file, if any.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
