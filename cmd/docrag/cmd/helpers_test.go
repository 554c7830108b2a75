package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEnv isolates a command run: home, user config and project directory
// point into a temp dir and embeddings use the offline static provider.
type testEnv struct {
	project string
	docs    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "xdg"))
	t.Setenv("DOCRAG_EMBED_PROVIDER", "static")
	t.Setenv("DOCRAG_EMBED_DIMENSIONS", "64")
	t.Setenv("NO_COLOR", "1")

	env := &testEnv{
		project: filepath.Join(base, "project"),
		docs:    filepath.Join(base, "project", "docs"),
	}
	require.NoError(t, os.MkdirAll(env.docs, 0o755))
	t.Chdir(env.project)
	return env
}

func (e *testEnv) writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.docs, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e *testEnv) dataDir() string {
	return filepath.Join(e.project, ".docrag")
}

// run executes the root command with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := execute(context.Background(), root)
	return stdout.String(), stderr.String(), err
}

// mustRun is run that fails the test on error.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := run(t, args...)
	require.NoError(t, err, "docrag %v\nstdout: %s\nstderr: %s", args, stdout, stderr)
	return stdout
}

// ingestSamples writes and ingests two documents and a file without reader.
func (e *testEnv) ingestSamples(t *testing.T) {
	t.Helper()
	e.writeDoc(t, "guide.md", "# Account guide\n\nTo reset your password open settings and choose reset password.")
	e.writeDoc(t, "faq.txt", "Refunds are processed within five business days after approval.")
	e.writeDoc(t, "photo.png", "not a document")
	mustRun(t, "ingest", e.docs, "--plain")
}
