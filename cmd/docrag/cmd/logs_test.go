package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"time":"2026-01-02T10:00:00.000Z","level":"DEBUG","msg":"embedder_created","provider":"static"}
{"time":"2026-01-02T10:00:01.000Z","level":"INFO","msg":"ingest_complete","documents":2}
{"time":"2026-01-02T10:00:02.000Z","level":"ERROR","msg":"delete_partial","doc":"guide.md"}
`

func writeSampleLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docrag.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	return path
}

func TestLogs_TailFile(t *testing.T) {
	// Given: a log file with three entries
	newTestEnv(t)
	path := writeSampleLog(t)

	// When: showing the last two lines
	stdout, stderr, err := run(t, "logs", "--file", path, "-n", "2")

	// Then: only those entries are printed and the path goes to stderr
	require.NoError(t, err)
	assert.NotContains(t, stdout, "embedder_created")
	assert.Contains(t, stdout, "ingest_complete")
	assert.Contains(t, stdout, "delete_partial")
	assert.Contains(t, stderr, "Log file: "+path)
}

func TestLogs_LevelAndFilter(t *testing.T) {
	newTestEnv(t)
	path := writeSampleLog(t)

	errorsOnly := mustRun(t, "logs", "--file", path, "--level", "error")
	filtered := mustRun(t, "logs", "--file", path, "--filter", "ingest_")

	assert.Contains(t, errorsOnly, "delete_partial")
	assert.NotContains(t, errorsOnly, "ingest_complete")
	assert.Contains(t, filtered, "ingest_complete")
	assert.NotContains(t, filtered, "delete_partial")
}

func TestLogs_InvalidFilter(t *testing.T) {
	newTestEnv(t)
	path := writeSampleLog(t)

	_, _, err := run(t, "logs", "--file", path, "--filter", "(")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestLogs_MissingFile(t *testing.T) {
	newTestEnv(t)

	_, _, err := run(t, "logs", "--file", filepath.Join(t.TempDir(), "none.log"))

	assert.Error(t, err)
}
