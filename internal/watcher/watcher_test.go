package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "RENAME", OpRename.String())
	assert.Equal(t, "UNKNOWN", Operation(99).String())
	assert.True(t, OpRename.Gone())
	assert.False(t, OpModify.Gone())
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{Debounce: time.Second}.WithDefaults()

	assert.Equal(t, time.Second, o.Debounce)
	assert.Equal(t, 5*time.Second, o.PollInterval)
	assert.Equal(t, 256, o.BufferSize)
}

// collect drains batches until pred holds for the accumulated events.
func collect(t *testing.T, w Watcher, pred func(map[string]Operation) bool) map[string]Operation {
	t.Helper()
	seen := make(map[string]Operation)
	deadline := time.After(5 * time.Second)
	for !pred(seen) {
		select {
		case batch, ok := <-w.Events():
			require.True(t, ok, "events closed early")
			for _, ev := range batch {
				seen[ev.Path] = ev.Operation
			}
		case <-deadline:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	return seen
}

func TestHybridWatcher_ReportsDocumentChanges(t *testing.T) {
	for _, polling := range []bool{false, true} {
		name := "fsnotify"
		if polling {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			// Given: a watched directory with one document
			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, "old.txt"), []byte("old"), 0o644))
			w, err := NewHybridWatcher(Options{
				Debounce:     30 * time.Millisecond,
				PollInterval: 50 * time.Millisecond,
				Accept:       docsOnly,
				ForcePolling: polling,
			})
			require.NoError(t, err)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() { _ = w.Start(ctx, root) }()
			require.Eventually(t, func() bool { return w.Root() != "" }, time.Second, 10*time.Millisecond)
			time.Sleep(100 * time.Millisecond)

			// When: a document is added, one removed and a non-document written
			require.NoError(t, os.WriteFile(filepath.Join(root, "new.md"), []byte("# new"), 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(root, "photo.png"), []byte("png"), 0o644))
			require.NoError(t, os.Remove(filepath.Join(root, "old.txt")))

			// Then: both document changes are reported
			seen := collect(t, w, func(m map[string]Operation) bool {
				_, created := m["new.md"]
				_, removed := m["old.txt"]
				return created && removed
			})
			assert.False(t, seen["new.md"].Gone())
			assert.True(t, seen["old.txt"].Gone())
			assert.NotContains(t, seen, "photo.png")

			require.NoError(t, w.Stop())
			require.NoError(t, w.Stop())
		})
	}
}

func TestHybridWatcher_RejectsMissingRoot(t *testing.T) {
	w, err := NewHybridWatcher(Options{})
	require.NoError(t, err)
	defer w.Stop()

	err = w.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))

	assert.Error(t, err)
}

func TestPollingWatcher_DetectsChanges(t *testing.T) {
	// Given: a polling watcher with a baseline
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644))
	p := NewPollingWatcher(time.Hour, NewFilter(nil, docsOnly))
	p.root = root
	require.NoError(t, p.baseline())

	// When: one file grows, one is removed, one is added
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("aaaa"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.md"), []byte("c"), 0o644))
	require.NoError(t, p.poll())

	// Then: three events are queued
	got := make(map[string]Operation)
	for i := 0; i < 3; i++ {
		ev := <-p.Events()
		got[ev.Path] = ev.Operation
	}
	assert.Equal(t, map[string]Operation{"a.txt": OpModify, "b.txt": OpDelete, "c.md": OpCreate}, got)
	require.NoError(t, p.Stop())
}
