package index

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/embed"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/lifecycle"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/ui"
	"github.com/Aman-CERP/docrag/pkg/indexer"
)

// MockIngester records IngestDocument calls.
type MockIngester struct {
	IngestDocumentFn func(ctx context.Context, docName, text string, opts lifecycle.IngestOptions) (*lifecycle.IngestResult, error)
	DeleteDocumentFn func(ctx context.Context, docName string) (*lifecycle.DeleteResult, error)

	Ingested []string
	Deleted  []string
}

func (m *MockIngester) IngestDocument(ctx context.Context, docName, text string, opts lifecycle.IngestOptions) (*lifecycle.IngestResult, error) {
	m.Ingested = append(m.Ingested, docName)
	if m.IngestDocumentFn != nil {
		return m.IngestDocumentFn(ctx, docName, text, opts)
	}
	return &lifecycle.IngestResult{Report: &indexer.Report{
		DocName: docName,
		Chunks:  1,
		Lexical: &store.BatchReport{Index: store.IndexLexical, Total: 1, Written: 1},
	}}, nil
}

func (m *MockIngester) DeleteDocument(ctx context.Context, docName string) (*lifecycle.DeleteResult, error) {
	m.Deleted = append(m.Deleted, docName)
	if m.DeleteDocumentFn != nil {
		return m.DeleteDocumentFn(ctx, docName)
	}
	return &lifecycle.DeleteResult{}, nil
}

func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// docTree lays out three readable documents, an image and a hidden file.
func docTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "The moon pulls the tides of the ocean twice a day.")
	writeFile(t, dir, "b.md", "# Tides\n\nSpring tides follow the full moon.")
	writeFile(t, dir, filepath.Join("sub", "c.txt"), "Neap tides are weaker.")
	writeFile(t, dir, "photo.png", "not a document")
	writeFile(t, dir, filepath.Join(".cache", "d.txt"), "hidden")
	return dir
}

func newManager(t *testing.T) *lifecycle.Manager {
	t.Helper()
	m, err := lifecycle.New(
		lifecycle.WithLexical(store.NewBleveLexicalIndex("")),
		lifecycle.WithVector(store.NewHNSWVectorIndex("", store.DefaultVectorConfig(testDims))),
		lifecycle.WithEmbedder(embed.NewStaticEmbedder(testDims)),
		lifecycle.WithChunkSize(40),
	)
	require.NoError(t, err)
	require.NoError(t, m.EnsureIndexes(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewRunner_RequiresDependencies(t *testing.T) {
	_, err := NewRunner(RunnerDependencies{Ingester: &MockIngester{}})
	assert.Error(t, err)

	_, err = NewRunner(RunnerDependencies{Renderer: ui.NewPlainRenderer(ui.Config{})})
	assert.Error(t, err)
}

func TestRunner_IngestsDirectory(t *testing.T) {
	// Given: a directory of mixed files and a real manager
	dir := docTree(t)
	m := newManager(t)
	var out bytes.Buffer
	r, err := NewRunner(RunnerDependencies{
		Renderer: ui.NewPlainRenderer(ui.NewConfig(&out)),
		Ingester: m,
		Embedder: m.Embedder(),
	})
	require.NoError(t, err)

	// When: running over the directory with embeddings
	res, err := r.Run(context.Background(), RunnerConfig{Paths: []string{dir}, WithEmbeddings: true})

	// Then: every readable document is indexed under its base name
	require.NoError(t, err)
	assert.Equal(t, 3, res.Documents)
	assert.Equal(t, 1, res.Unsupported)
	assert.Equal(t, 1, res.Warnings)
	assert.Equal(t, 0, res.Errors)
	assert.Equal(t, res.Chunks, res.Vectors)
	assert.Greater(t, res.Chunks, 3)

	docs, err := m.ListDocuments(context.Background())
	require.NoError(t, err)
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.DocName
	}
	assert.Equal(t, []string{"a.txt", "b.md", "c.txt"}, names)

	// And: the summary was rendered
	assert.Contains(t, out.String(), "Complete: 3 documents")
	assert.Contains(t, out.String(), "photo.png")
}

func TestRunner_IgnoreAndSingleFile(t *testing.T) {
	dir := docTree(t)
	ing := &MockIngester{}
	r, err := NewRunner(RunnerDependencies{Renderer: ui.NewPlainRenderer(ui.Config{}), Ingester: ing})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), RunnerConfig{
		Paths:  []string{dir, filepath.Join(dir, "a.txt")},
		Ignore: []string{"sub", "*.md"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, ing.Ingested)
	assert.Equal(t, 1, res.Documents)
}

func TestRunner_HonoursIgnoreFile(t *testing.T) {
	// Given: a .docragignore that drops the sub directory
	dir := docTree(t)
	writeFile(t, dir, ".docragignore", "# generated\nsub/\n")
	ing := &MockIngester{}
	r, err := NewRunner(RunnerDependencies{Renderer: ui.NewPlainRenderer(ui.Config{}), Ingester: ing})
	require.NoError(t, err)

	// When: ingesting the directory
	res, err := r.Run(context.Background(), RunnerConfig{Paths: []string{dir}})

	// Then: only top-level documents are read
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.md"}, ing.Ingested)
	assert.Equal(t, 2, res.Documents)
}

func TestRunner_MissingPath(t *testing.T) {
	r, err := NewRunner(RunnerDependencies{Renderer: ui.NewPlainRenderer(ui.Config{}), Ingester: &MockIngester{}})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), RunnerConfig{Paths: []string{filepath.Join(t.TempDir(), "nope")}})

	assert.Error(t, err)
}

func TestRunner_FailedDocumentDoesNotStopRun(t *testing.T) {
	// Given: an ingester that rejects one document
	dir := docTree(t)
	ing := &MockIngester{
		IngestDocumentFn: func(_ context.Context, name, _ string, _ lifecycle.IngestOptions) (*lifecycle.IngestResult, error) {
			if name == "b.md" {
				return nil, docerrors.ValidationError("bad document", nil)
			}
			return &lifecycle.IngestResult{}, nil
		},
	}
	renderer := ui.NewPlainRenderer(ui.Config{})
	r, err := NewRunner(RunnerDependencies{Renderer: renderer, Ingester: ing})
	require.NoError(t, err)

	// When: running
	res, err := r.Run(context.Background(), RunnerConfig{Paths: []string{dir}})

	// Then: the other documents still go through
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, 1, res.Errors)
	var failed []string
	for _, ev := range renderer.Errors() {
		if !ev.IsWarn {
			failed = append(failed, filepath.Base(ev.File))
		}
	}
	assert.Equal(t, []string{"b.md"}, failed)
}

func TestRunner_RetriesRetryableFailure(t *testing.T) {
	// Given: the first attempt fails before writing anything
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "retry me")
	calls := 0
	ing := &MockIngester{
		IngestDocumentFn: func(context.Context, string, string, lifecycle.IngestOptions) (*lifecycle.IngestResult, error) {
			calls++
			if calls == 1 {
				return nil, docerrors.IndexUnavailableError("lexical", errors.New("busy"))
			}
			return &lifecycle.IngestResult{}, nil
		},
	}
	r, err := NewRunner(RunnerDependencies{Renderer: ui.NewPlainRenderer(ui.Config{}), Ingester: ing})
	require.NoError(t, err)

	// When: running with retries
	res, err := r.Run(context.Background(), RunnerConfig{Paths: []string{dir}, Retries: 2, RetryDelay: time.Millisecond})

	// Then: the second attempt succeeds
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, res.Documents)
}

func TestRunner_NoRetryAfterPartialWrite(t *testing.T) {
	// Given: a failure after the lexical write landed
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "written once")
	calls := 0
	ing := &MockIngester{
		IngestDocumentFn: func(context.Context, string, string, lifecycle.IngestOptions) (*lifecycle.IngestResult, error) {
			calls++
			return &lifecycle.IngestResult{Report: &indexer.Report{
				Lexical: &store.BatchReport{Total: 1, Written: 1},
			}}, docerrors.IndexUnavailableError("vector", errors.New("busy"))
		},
	}
	r, err := NewRunner(RunnerDependencies{Renderer: ui.NewPlainRenderer(ui.Config{}), Ingester: ing})
	require.NoError(t, err)

	// When: running with retries
	res, err := r.Run(context.Background(), RunnerConfig{Paths: []string{dir}, Retries: 3, RetryDelay: time.Millisecond})

	// Then: no duplicate append is attempted
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Chunks)
}

func TestRunner_ReplaceIsPassedThrough(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "replace")
	var got lifecycle.IngestOptions
	ing := &MockIngester{
		IngestDocumentFn: func(_ context.Context, _, text string, opts lifecycle.IngestOptions) (*lifecycle.IngestResult, error) {
			got = opts
			assert.True(t, strings.HasPrefix(text, "replace"))
			return &lifecycle.IngestResult{}, nil
		},
	}
	r, err := NewRunner(RunnerDependencies{Renderer: ui.NewPlainRenderer(ui.Config{}), Ingester: ing})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), RunnerConfig{Paths: []string{dir}, ReplaceExisting: true, WithEmbeddings: true})

	require.NoError(t, err)
	assert.True(t, got.ReplaceExisting)
	assert.True(t, got.WithEmbeddings)
}

func TestRunner_Cancelled(t *testing.T) {
	dir := docTree(t)
	r, err := NewRunner(RunnerDependencies{Renderer: ui.NewPlainRenderer(ui.Config{}), Ingester: &MockIngester{}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Run(ctx, RunnerConfig{Paths: []string{dir}})

	assert.ErrorIs(t, err, context.Canceled)
}
