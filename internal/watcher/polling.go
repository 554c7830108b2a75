package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the tree every interval.
// It emits unbatched events; HybridWatcher debounces them.
type PollingWatcher struct {
	interval time.Duration
	filter   *Filter

	mu      sync.Mutex
	root    string
	state   map[string]snapshot
	events  chan FileEvent
	errors  chan error
	stopCh  chan struct{}
	stopped bool
}

type snapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher. A nil filter reports every
// non-hidden file.
func NewPollingWatcher(interval time.Duration, filter *Filter) *PollingWatcher {
	if filter == nil {
		filter = NewFilter(nil, nil)
	}
	return &PollingWatcher{
		interval: interval,
		filter:   filter,
		state:    make(map[string]snapshot),
		events:   make(chan FileEvent, 256),
		errors:   make(chan error, 8),
		stopCh:   make(chan struct{}),
	}
}

// Start records a baseline and then polls until ctx is done or Stop.
func (p *PollingWatcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	p.mu.Lock()
	p.root = abs
	p.mu.Unlock()

	if err := p.baseline(); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.poll(); err != nil {
				p.emitError(err)
			}
		}
	}
}

// Stop closes the channels. Safe to call more than once.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns single file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns scan errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

func (p *PollingWatcher) baseline() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	current, err := p.scan()
	if err != nil {
		return err
	}
	p.state = current
	return nil
}

// poll diffs the tree against the previous scan and emits the changes.
func (p *PollingWatcher) poll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.scan()
	if err != nil {
		return err
	}
	now := time.Now()
	for rel, snap := range current {
		prev, ok := p.state[rel]
		switch {
		case !ok:
			p.emit(FileEvent{Path: rel, Operation: OpCreate, Timestamp: now})
		case prev != snap:
			p.emit(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel := range p.state {
		if _, ok := current[rel]; !ok {
			p.emit(FileEvent{Path: rel, Operation: OpDelete, Timestamp: now})
		}
	}
	p.state = current
	return nil
}

// scan walks the root and snapshots every reportable file. Must be called
// with mu held.
func (p *PollingWatcher) scan() (map[string]snapshot, error) {
	out := make(map[string]snapshot)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == p.root {
				return err
			}
			return nil
		}
		rel, relErr := filepath.Rel(p.root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if p.filter.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if p.filter.SkipFile(rel) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		out[rel] = snapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return out, err
}

// emit sends without blocking. Must be called with mu held.
func (p *PollingWatcher) emit(ev FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- ev:
	default:
		slog.Warn("poll_event_dropped", slog.String("path", ev.Path), slog.String("op", ev.Operation.String()))
	}
}

func (p *PollingWatcher) emitError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	select {
	case p.errors <- err:
	default:
	}
}
