package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/lifecycle"
	"github.com/Aman-CERP/docrag/internal/watcher"
	"github.com/Aman-CERP/docrag/pkg/searcher"
)

func TestNewCoordinator_RequiresStore(t *testing.T) {
	_, err := NewCoordinator(CoordinatorConfig{})
	assert.Error(t, err)
}

func TestCoordinator_HandleEvents(t *testing.T) {
	// Given: a watched directory with a changed and a removed document
	dir := t.TempDir()
	writeFile(t, dir, filepath.Join("notes", "plan.md"), "new plan")
	writeFile(t, dir, "photo.png", "png")
	var opts lifecycle.IngestOptions
	store := &MockIngester{
		IngestDocumentFn: func(_ context.Context, _, _ string, o lifecycle.IngestOptions) (*lifecycle.IngestResult, error) {
			opts = o
			return &lifecycle.IngestResult{}, nil
		},
	}
	c, err := NewCoordinator(CoordinatorConfig{Root: dir, Store: store, WithEmbeddings: true})
	require.NoError(t, err)

	// When: handling a batch
	stats, err := c.HandleEvents(context.Background(), []watcher.FileEvent{
		{Path: filepath.Join("notes", "plan.md"), Operation: watcher.OpModify},
		{Path: "old.txt", Operation: watcher.OpDelete},
		{Path: "moved.pdf", Operation: watcher.OpRename},
		{Path: "photo.png", Operation: watcher.OpCreate},
		{Path: "notes", Operation: watcher.OpCreate, IsDir: true},
		{Path: "vanished.txt", Operation: watcher.OpCreate},
	})

	// Then: the document is replaced and removed files are deleted
	require.NoError(t, err)
	assert.Equal(t, []string{"plan.md"}, store.Ingested)
	assert.True(t, opts.ReplaceExisting)
	assert.True(t, opts.WithEmbeddings)
	assert.Equal(t, []string{"old.txt", "moved.pdf"}, store.Deleted)
	assert.Equal(t, EventStats{Ingested: 1, Deleted: 2, Skipped: 3}, stats)
}

func TestCoordinator_FailureContinuesBatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "a")
	store := &MockIngester{
		DeleteDocumentFn: func(context.Context, string) (*lifecycle.DeleteResult, error) {
			return &lifecycle.DeleteResult{}, docerrors.New(docerrors.ErrCodeIndexFailed, "partial", nil)
		},
	}
	c, err := NewCoordinator(CoordinatorConfig{Root: dir, Store: store})
	require.NoError(t, err)

	stats, err := c.HandleEvents(context.Background(), []watcher.FileEvent{
		{Path: "b.txt", Operation: watcher.OpDelete},
		{Path: "a.txt", Operation: watcher.OpCreate},
	})

	require.NoError(t, err)
	assert.Equal(t, EventStats{Ingested: 1, Failed: 1}, stats)
}

func TestCoordinator_ReplacesInRealIndexes(t *testing.T) {
	// Given: a document already ingested
	dir := t.TempDir()
	path := writeFile(t, dir, "tides.txt", "first version about tides")
	m := newManager(t)
	c, err := NewCoordinator(CoordinatorConfig{Root: dir, Store: m, WithEmbeddings: true})
	require.NoError(t, err)
	ctx := context.Background()
	_, err = c.HandleEvents(ctx, []watcher.FileEvent{{Path: "tides.txt", Operation: watcher.OpCreate}})
	require.NoError(t, err)

	// When: the file changes and is handled again
	writeFile(t, dir, "tides.txt", "second version about tides")
	_, err = c.HandleEvents(ctx, []watcher.FileEvent{{Path: "tides.txt", Operation: watcher.OpModify}})
	require.NoError(t, err)

	// Then: only the new content is searchable
	resp, err := m.Search(ctx, "first", searcher.Options{Strategy: searcher.Lexical, TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	docs, err := m.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, docs[0].Chunks)

	// And: removing the file removes the document
	_, err = c.HandleEvents(ctx, []watcher.FileEvent{{Path: filepath.Base(path), Operation: watcher.OpDelete}})
	require.NoError(t, err)
	docs, err = m.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCoordinator_Cancelled(t *testing.T) {
	c, err := NewCoordinator(CoordinatorConfig{Root: t.TempDir(), Store: &MockIngester{}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.HandleEvents(ctx, []watcher.FileEvent{{Path: "a.txt", Operation: watcher.OpDelete}})

	assert.ErrorIs(t, err, context.Canceled)
}
