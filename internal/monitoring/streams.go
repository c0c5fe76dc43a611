package monitoring

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions selects where the ops, diag and trace streams are written.
type LogOptions struct {
	// Dir holds the rotated log files. Empty keeps everything on stderr.
	Dir   string
	Diag  bool
	Trace bool
	// Rotation limits; zero values use 10MB, 5 backups and 30 days.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Streams are the three log writers handed to each package's SetLogWriters.
// A nil writer disables that stream.
type Streams struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer

	files []*lumberjack.Logger
}

func (o LogOptions) rotating(name string) *lumberjack.Logger {
	l := &lumberjack.Logger{
		Filename:   filepath.Join(o.Dir, name),
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   true,
	}
	if l.MaxSize <= 0 {
		l.MaxSize = 10
	}
	if l.MaxBackups <= 0 {
		l.MaxBackups = 5
	}
	if l.MaxAge <= 0 {
		l.MaxAge = 30
	}
	return l
}

// OpenStreams builds the log streams for the binary called name. Ops always
// reaches stderr; with a Dir it is also kept in <name>.log, diag joins it
// there and trace goes to its own <name>-trace.log.
func OpenStreams(name string, o LogOptions, stderr io.Writer) (*Streams, error) {
	if stderr == nil {
		stderr = os.Stderr
	}
	s := &Streams{Ops: stderr}
	if o.Dir == "" {
		if o.Diag {
			s.Diag = stderr
		}
		if o.Trace {
			s.Trace = stderr
		}
		return s, nil
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	main := o.rotating(name + ".log")
	s.files = append(s.files, main)
	s.Ops = io.MultiWriter(stderr, main)
	if o.Diag {
		s.Diag = main
	}
	if o.Trace {
		trace := o.rotating(name + "-trace.log")
		s.files = append(s.files, trace)
		s.Trace = trace
	}
	return s, nil
}

// Install points Logf at the ops stream.
func (s *Streams) Install() {
	SetLogger(log.New(s.Ops, "", log.LstdFlags).Printf)
}

// Close closes the rotated files.
func (s *Streams) Close() error {
	var errs []error
	for _, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
