package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Setup
// =============================================================================

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: file logging at info level
	path := filepath.Join(t.TempDir(), "logs", "docrag.log")
	logger, cleanup, err := Setup(Config{Level: "info", FilePath: path})
	require.NoError(t, err)

	// When: logging below and at the level
	logger.Debug("hidden")
	logger.Info("ingest_complete", slog.String("doc", "a.txt"), slog.Int("chunks", 3))
	cleanup()

	// Then: only the info line is written, as JSON
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "ingest_complete", rec["msg"])
	assert.Equal(t, "a.txt", rec["doc"])
	assert.Equal(t, float64(3), rec["chunks"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()

	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.Stderr)
	assert.Equal(t, DefaultLogPath(), cfg.FilePath)
}

func TestFindLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")

	_, err := FindLogFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	got, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

// =============================================================================
// RotatingWriter
// =============================================================================

func TestRotatingWriter_Rotates(t *testing.T) {
	// Given: a 1 MB writer keeping two rotated files
	path := filepath.Join(t.TempDir(), "docrag.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	line := bytes.Repeat([]byte("x"), 600*1024)

	// When: writing four lines of 600 KB
	for i := 0; i < 4; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	// Then: each write past 1 MB rotated, and only .1 and .2 are kept
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(line)), info.Size())
}

func TestRotatingWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docrag.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewRotatingWriter(path, 1, 1)
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "a.log"), 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

// =============================================================================
// Viewer
// =============================================================================

const sampleLog = `{"time":"2026-01-02T10:00:00.000Z","level":"DEBUG","msg":"embedder_created","provider":"static"}
{"time":"2026-01-02T10:00:01.000Z","level":"INFO","msg":"ingest_complete","doc":"a.txt","chunks":3}
not json at all
{"time":"2026-01-02T10:00:02.000Z","level":"WARN","msg":"search_branch_failed","branch":"vector"}
`

func TestViewer_TailFiltersByLevel(t *testing.T) {
	// Given: a log with mixed levels and a non-JSON line
	path := filepath.Join(t.TempDir(), "docrag.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	v := NewViewer(ViewerConfig{Level: "info", NoColor: true}, nil)

	// When: tailing the last three lines
	entries, err := v.Tail(path, 3)

	// Then: the debug line falls outside the tail and raw lines pass through
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "ingest_complete", entries[0].Msg)
	assert.False(t, entries[1].Valid)
	assert.Equal(t, "search_branch_failed", entries[2].Msg)
}

func TestViewer_TailPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docrag.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`vector`), NoColor: true}, nil)

	entries, err := v.Tail(path, 100)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "vector", entries[0].Attrs["branch"])
}

func TestViewer_Format(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, nil)
	e := ParseLine(`{"time":"2026-01-02T10:00:01.5Z","level":"INFO","msg":"ingest_complete","doc":"a.txt","chunks":3}`)

	assert.Equal(t, "10:00:01.500 INFO  ingest_complete chunks=3 doc=a.txt", v.Format(e))
	assert.Equal(t, "plain", v.Format(ParseLine("plain")))
}

func TestViewer_Print(t *testing.T) {
	var buf bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &buf)

	v.Print([]LogEntry{ParseLine("a"), ParseLine("b")})

	assert.Equal(t, "a\nb\n", buf.String())
}

func TestViewer_Follow(t *testing.T) {
	// Given: a follower started on an existing file
	path := filepath.Join(t.TempDir(), "docrag.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	v := NewViewer(ViewerConfig{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()
	time.Sleep(200 * time.Millisecond)

	// When: a new line is appended
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"time":"2026-01-02T10:00:03Z","level":"INFO","msg":"delete_complete"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the new line is delivered
	select {
	case e := <-entries:
		assert.Equal(t, "delete_complete", e.Msg)
	case <-ctx.Done():
		t.Fatal("no entry received")
	}
	cancel()
	assert.NoError(t, <-done)
}
