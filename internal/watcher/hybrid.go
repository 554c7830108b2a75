package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HybridWatcher watches with fsnotify, or by polling when fsnotify cannot
// be created or ForcePolling is set.
type HybridWatcher struct {
	opts      Options
	filter    *Filter
	fs        *fsnotify.Watcher
	poll      *PollingWatcher
	debouncer *Debouncer

	events  chan []FileEvent
	errors  chan error
	stopCh  chan struct{}
	dropped atomic.Uint64

	mu      sync.RWMutex
	root    string
	stopped bool
}

// NewHybridWatcher creates a watcher. It does not start watching.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()
	h := &HybridWatcher{
		opts:      opts,
		filter:    NewFilter(opts.Ignore, opts.Accept),
		debouncer: NewDebouncer(opts.Debounce),
		events:    make(chan []FileEvent, opts.BufferSize),
		errors:    make(chan error, 8),
		stopCh:    make(chan struct{}),
	}
	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			h.fs = fsw
			return h, nil
		}
		slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	h.poll = NewPollingWatcher(opts.PollInterval, h.filter)
	return h, nil
}

// Start implements Watcher.
func (h *HybridWatcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", abs)
	}
	if err := h.filter.LoadIgnoreFile(abs); err != nil {
		slog.Warn("ignore_file_unreadable", slog.String("root", abs), slog.String("error", err.Error()))
	}
	h.mu.Lock()
	h.root = abs
	h.mu.Unlock()

	go h.forward(ctx)
	slog.Info("watch_started", slog.String("root", abs), slog.String("mode", h.Mode()))

	if h.fs != nil {
		return h.runFsnotify(ctx)
	}
	return h.runPolling(ctx)
}

func (h *HybridWatcher) runFsnotify(ctx context.Context) error {
	if err := h.addTree(h.root); err != nil {
		return fmt.Errorf("watch directories: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case ev, ok := <-h.fs.Events:
			if !ok {
				return nil
			}
			h.handle(ev)
		case err, ok := <-h.fs.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case ev, ok := <-h.poll.Events():
				if !ok {
					return
				}
				h.debouncer.Add(ev)
			case err, ok := <-h.poll.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()
	return h.poll.Start(ctx, h.root)
}

// handle converts an fsnotify event and feeds the debouncer.
func (h *HybridWatcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(h.root, ev.Name)
	if err != nil {
		return
	}

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}
	if isDir {
		if ev.Has(fsnotify.Create) && !h.filter.SkipDir(rel) {
			if err := h.addTree(ev.Name); err != nil {
				h.emitError(err)
			}
		}
		return
	}
	if h.filter.SkipFile(rel) {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}
	h.debouncer.Add(FileEvent{Path: rel, Operation: op, Timestamp: time.Now()})
}

// addTree watches dir and every non-skipped directory below it. Files
// already present in a newly created directory are reported as created.
func (h *HybridWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(h.root, path)
		if d.IsDir() {
			if h.filter.SkipDir(rel) {
				return filepath.SkipDir
			}
			return h.fs.Add(path)
		}
		if dir != h.root && !h.filter.SkipFile(rel) {
			h.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
		}
		return nil
	})
}

func (h *HybridWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case batch, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			h.emit(batch)
		}
	}
}

func (h *HybridWatcher) emit(batch []FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.events <- batch:
	default:
		n := h.dropped.Add(1)
		slog.Warn("watch_batch_dropped", slog.Int("events", len(batch)), slog.Uint64("total_dropped", n))
	}
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
	}
}

// Stop implements Watcher.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	h.debouncer.Stop()
	if h.fs != nil {
		_ = h.fs.Close()
	}
	if h.poll != nil {
		_ = h.poll.Stop()
	}
	close(h.events)
	close(h.errors)
	return nil
}

// Events implements Watcher.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors implements Watcher.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// Mode returns "fsnotify" or "polling".
func (h *HybridWatcher) Mode() string {
	if h.fs != nil {
		return "fsnotify"
	}
	return "polling"
}

// Root returns the absolute watched directory.
func (h *HybridWatcher) Root() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.root
}

// DroppedBatches returns how many batches were dropped on a full buffer.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.dropped.Load()
}

var _ Watcher = (*HybridWatcher)(nil)
