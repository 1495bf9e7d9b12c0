package logsink

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/core-tools/hsu-procdesc-go/pkg/errors"
	"github.com/core-tools/hsu-procdesc-go/pkg/procdesc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSinks_SplitsStreamsAndCombines(t *testing.T) {
	dir := t.TempDir()
	paths := procdesc.LogPaths{
		ErrorFile:    filepath.Join(dir, "logs", "err.log"),
		OutFile:      filepath.Join(dir, "logs", "out.log"),
		CombinedFile: filepath.Join(dir, "logs", "combined.log"),
	}

	sinks, err := Open(paths, Options{})
	require.NoError(t, err)

	fmt.Fprint(sinks.Stdout, "listening on :8080\nconn")
	fmt.Fprint(sinks.Stderr, "db ping failed\n")
	fmt.Fprint(sinks.Stdout, "ected\n")
	fmt.Fprint(sinks.Stderr, "no newline")
	require.NoError(t, sinks.Close())

	assert.Equal(t, "listening on :8080\nconnected\n", readFile(t, paths.OutFile))
	assert.Equal(t, "db ping failed\nno newline\n", readFile(t, paths.ErrorFile))
	assert.Equal(t, "listening on :8080\ndb ping failed\nconnected\nno newline\n", readFile(t, paths.CombinedFile))
}

func TestSinks_Timestamps(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	paths := procdesc.LogPaths{
		OutFile:    filepath.Join(dir, "out.log"),
		Timestamps: true,
	}

	sinks, err := Open(paths, Options{Now: func() time.Time { return now }})
	require.NoError(t, err)

	fmt.Fprintln(sinks.Stdout, "started")
	fmt.Fprintln(sinks.Stderr, "dropped, no error file")
	require.NoError(t, sinks.Close())

	assert.Equal(t, "2024-05-01T12:30:00Z: started\n", readFile(t, paths.OutFile))
	_, err = os.Stat(filepath.Join(dir, "err.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestSinks_SamePathWrittenOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "all.log")

	sinks, err := Open(procdesc.LogPaths{OutFile: path, CombinedFile: path}, Options{})
	require.NoError(t, err)

	fmt.Fprintln(sinks.Stdout, "once")
	require.NoError(t, sinks.Close())

	assert.Equal(t, "once\n", readFile(t, path))
}

func TestOpen_NoPaths(t *testing.T) {
	_, err := Open(procdesc.LogPaths{Timestamps: true}, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

type failingWriter struct {
	failures int
	lines    []string
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.failures > 0 {
		w.failures--
		return 0, stderrors.New("disk full")
	}
	w.lines = append(w.lines, string(p))
	return len(p), nil
}

func TestLineWriter_FailedLineIsNotRetried(t *testing.T) {
	failing := &failingWriter{failures: 1}
	var healthy bytes.Buffer
	sinks := &Sinks{now: time.Now}
	w := &lineWriter{sinks: sinks, targets: []io.Writer{failing, &healthy}}
	sinks.writers = []*lineWriter{w}

	n, err := w.Write([]byte("first\nsecond\npartial"))
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
	assert.Equal(t, len("first\nsecond\npartial"), n)

	n, err = w.Write([]byte(" line\n"))
	require.NoError(t, err)
	assert.Equal(t, len(" line\n"), n)
	require.NoError(t, sinks.Close())

	assert.Equal(t, []string{"second\n", "partial line\n"}, failing.lines)
	assert.Equal(t, "first\nsecond\npartial line\n", healthy.String())
}
