package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name       string
		prev, next Operation
		want       Operation
		keep       bool
	}{
		{"create then modify stays create", OpCreate, OpModify, OpCreate, true},
		{"create then delete cancels", OpCreate, OpDelete, 0, false},
		{"create then rename cancels", OpCreate, OpRename, 0, false},
		{"delete then create is modify", OpDelete, OpCreate, OpModify, true},
		{"rename then create is modify", OpRename, OpCreate, OpModify, true},
		{"modify then delete is delete", OpModify, OpDelete, OpDelete, true},
		{"modify then modify", OpModify, OpModify, OpModify, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, keep := merge(tt.prev, tt.next)
			assert.Equal(t, tt.keep, keep)
			if keep {
				assert.Equal(t, tt.want, op)
			}
		})
	}
}

func receive(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a batch")
		return nil
	}
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// When: a burst of writes hits two files
	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Path: "b.md", Operation: OpModify})
		d.Add(FileEvent{Path: "a.txt", Operation: OpModify})
	}

	// Then: one batch with one event per path, sorted by path
	batch := receive(t, d)
	require.Len(t, batch, 2)
	assert.Equal(t, "a.txt", batch[0].Path)
	assert.Equal(t, "b.md", batch[1].Path)
}

func TestDebouncer_CancelledPathNotEmitted(t *testing.T) {
	d := NewDebouncer(time.Hour)
	defer d.Stop()

	d.Add(FileEvent{Path: "scratch.txt", Operation: OpCreate})
	d.Add(FileEvent{Path: "scratch.txt", Operation: OpDelete})
	d.Add(FileEvent{Path: "kept.txt", Operation: OpCreate})
	d.Flush()

	batch := receive(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "kept.txt", batch[0].Path)
}

func TestDebouncer_FlushEmptyIsNoop(t *testing.T) {
	d := NewDebouncer(time.Hour)
	defer d.Stop()

	d.Flush()

	select {
	case <-d.Output():
		t.Fatal("unexpected batch")
	default:
	}
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "a.txt", Operation: OpCreate})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "b.txt", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
}
