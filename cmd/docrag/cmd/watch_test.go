package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/index"
	"github.com/Aman-CERP/docrag/internal/lifecycle"
	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/watcher"
)

// =============================================================================
// Mocks
// =============================================================================

// MockWatcher hands out caller-controlled channels.
type MockWatcher struct {
	events chan []watcher.FileEvent
	errs   chan error
	once   sync.Once
}

func newMockWatcher() *MockWatcher {
	return &MockWatcher{
		events: make(chan []watcher.FileEvent, 4),
		errs:   make(chan error, 4),
	}
}

func (m *MockWatcher) Start(ctx context.Context, _ string) error {
	<-ctx.Done()
	return nil
}

func (m *MockWatcher) Stop() error {
	m.once.Do(func() {
		close(m.events)
		close(m.errs)
	})
	return nil
}

func (m *MockWatcher) Events() <-chan []watcher.FileEvent { return m.events }
func (m *MockWatcher) Errors() <-chan error               { return m.errs }

// MockDocumentStore records what the coordinator asks for.
type MockDocumentStore struct {
	mu        sync.Mutex
	ingested  []string
	deleted   []string
	IngestErr error
}

func (m *MockDocumentStore) IngestDocument(_ context.Context, docName, _ string, _ lifecycle.IngestOptions) (*lifecycle.IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IngestErr != nil {
		return nil, m.IngestErr
	}
	m.ingested = append(m.ingested, docName)
	return &lifecycle.IngestResult{}, nil
}

func (m *MockDocumentStore) DeleteDocument(_ context.Context, docName string) (*lifecycle.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, docName)
	return &lifecycle.DeleteResult{DocName: docName}, nil
}

func newWatchFixture(t *testing.T, store *MockDocumentStore) (string, *index.Coordinator) {
	t.Helper()
	root := t.TempDir()
	coord, err := index.NewCoordinator(index.CoordinatorConfig{Root: root, Store: store})
	require.NoError(t, err)
	return root, coord
}

// =============================================================================
// watchLoop
// =============================================================================

func TestWatchLoop_AppliesBatches(t *testing.T) {
	// Given: a new file and a removed one in the watched directory
	store := &MockDocumentStore{}
	root, coord := newWatchFixture(t, store)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("# Notes\n\nbody"), 0o644))

	w := newMockWatcher()
	w.events <- []watcher.FileEvent{
		{Path: "notes.md", Operation: watcher.OpCreate},
		{Path: "old.txt", Operation: watcher.OpDelete},
	}
	require.NoError(t, w.Stop())

	var buf bytes.Buffer
	out := output.New(&buf)

	// When: the loop drains the batch and the channel closes
	err := watchLoop(context.Background(), w, make(chan error), coord, out)

	// Then: both changes reach the store and are summarised
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.md"}, store.ingested)
	assert.Equal(t, []string{"old.txt"}, store.deleted)
	assert.Contains(t, buf.String(), "1 updated, 1 removed")
}

func TestWatchLoop_ReportsFailures(t *testing.T) {
	store := &MockDocumentStore{IngestErr: errors.New("disk full")}
	root, coord := newWatchFixture(t, store)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha"), 0o644))

	w := newMockWatcher()
	w.events <- []watcher.FileEvent{{Path: "a.txt", Operation: watcher.OpModify}}
	require.NoError(t, w.Stop())

	var buf bytes.Buffer
	err := watchLoop(context.Background(), w, make(chan error), coord, output.New(&buf))

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "0 updated, 0 removed, 1 failed (see log)")
}

func TestWatchLoop_SkipsQuietBatches(t *testing.T) {
	store := &MockDocumentStore{}
	_, coord := newWatchFixture(t, store)

	w := newMockWatcher()
	w.events <- []watcher.FileEvent{
		{Path: "sub", Operation: watcher.OpCreate, IsDir: true},
		{Path: "image.png", Operation: watcher.OpCreate},
	}
	require.NoError(t, w.Stop())

	var buf bytes.Buffer
	err := watchLoop(context.Background(), w, make(chan error), coord, output.New(&buf))

	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestWatchLoop_StopsOnCancel(t *testing.T) {
	// Given: a loop with no events
	_, coord := newWatchFixture(t, &MockDocumentStore{})
	w := newMockWatcher()
	defer func() { _ = w.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- watchLoop(ctx, w, make(chan error), coord, output.New(&buf)) }()

	// When: the context is cancelled
	cancel()

	// Then: the loop returns cleanly
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watchLoop did not return after cancel")
	}
	assert.Contains(t, buf.String(), "Stopped.")
}

func TestWatchLoop_ReturnsStartError(t *testing.T) {
	_, coord := newWatchFixture(t, &MockDocumentStore{})
	w := newMockWatcher()
	defer func() { _ = w.Stop() }()

	started := make(chan error, 1)
	started <- errors.New("root is not a directory")

	err := watchLoop(context.Background(), w, started, coord, output.New(&bytes.Buffer{}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "root is not a directory")
}

func TestWatch_RequiresDirectory(t *testing.T) {
	// Given: no argument and a config without paths.docs_dir
	newTestEnv(t)
	t.Setenv("DOCRAG_DOCS_DIR", "")

	_, _, err := run(t, "watch")

	require.Error(t, err)
}
