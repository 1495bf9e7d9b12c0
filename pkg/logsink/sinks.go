package logsink

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/core-tools/hsu-procdesc-go/pkg/errors"
	"github.com/core-tools/hsu-procdesc-go/pkg/procdesc"

	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"
)

const TimestampLayout = time.RFC3339

// Options control rotation of the opened files. Zero values use lumberjack defaults.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Now is used for line timestamps, time.Now when nil
	Now func() time.Time
}

// Sinks are the writers an external runtime attaches to a child's stdout and
// stderr. Stdout lines go to out_file and log_file, stderr lines to
// error_file and log_file.
type Sinks struct {
	Stdout io.Writer
	Stderr io.Writer

	mutex      sync.Mutex
	timestamps bool
	now        func() time.Time
	files      map[string]*lumberjack.Logger
	writers    []*lineWriter
}

// Open prepares rotating writers for the given paths. Files are created
// lazily on first write. Empty paths are skipped.
func Open(paths procdesc.LogPaths, opts Options) (*Sinks, error) {
	if paths.OutFile == "" && paths.ErrorFile == "" && paths.CombinedFile == "" {
		return nil, errors.NewValidationError("no log paths configured", nil)
	}

	s := &Sinks{
		timestamps: paths.Timestamps,
		now:        opts.Now,
		files:      make(map[string]*lumberjack.Logger),
	}
	if s.now == nil {
		s.now = time.Now
	}

	stdout := &lineWriter{sinks: s, targets: s.targets(opts, paths.OutFile, paths.CombinedFile)}
	stderr := &lineWriter{sinks: s, targets: s.targets(opts, paths.ErrorFile, paths.CombinedFile)}
	s.writers = []*lineWriter{stdout, stderr}
	s.Stdout = stdout
	s.Stderr = stderr

	return s, nil
}

func (s *Sinks) targets(opts Options, paths ...string) []io.Writer {
	var targets []io.Writer
	seen := make(map[string]bool)
	for _, path := range paths {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		targets = append(targets, s.file(opts, path))
	}
	return targets
}

func (s *Sinks) file(opts Options, path string) *lumberjack.Logger {
	if f, ok := s.files[path]; ok {
		return f
	}
	f := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	s.files[path] = f
	return f
}

// Close writes any unterminated line and closes every file
func (s *Sinks) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var err error
	for _, w := range s.writers {
		err = multierr.Append(err, w.flush())
	}
	for _, f := range s.files {
		err = multierr.Append(err, f.Close())
	}
	if err != nil {
		return errors.NewIOError("failed to close log sinks", err)
	}
	return nil
}

type lineWriter struct {
	sinks   *Sinks
	targets []io.Writer
	pending []byte
}

// Write buffers p and writes every completed line once to each target. A
// failed line is not retried; its error is returned with n == len(p) since
// all of p was consumed.
func (w *lineWriter) Write(p []byte) (int, error) {
	w.sinks.mutex.Lock()
	defer w.sinks.mutex.Unlock()

	w.pending = append(w.pending, p...)
	var err error
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		err = multierr.Append(err, w.writeLine(w.pending[:i+1]))
		w.pending = w.pending[i+1:]
	}
	if err != nil {
		return len(p), errors.NewIOError("failed to write log line", err)
	}
	return len(p), nil
}

// flush expects the sinks mutex to be held
func (w *lineWriter) flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	line := append(w.pending, '\n')
	w.pending = nil
	return w.writeLine(line)
}

func (w *lineWriter) writeLine(data []byte) error {
	line := make([]byte, 0, len(data)+32)
	if w.sinks.timestamps {
		line = append(line, w.sinks.now().Format(TimestampLayout)...)
		line = append(line, ": "...)
	}
	line = append(line, data...)

	var err error
	for _, target := range w.targets {
		if _, writeErr := target.Write(line); writeErr != nil {
			err = multierr.Append(err, writeErr)
		}
	}
	return err
}
