package watcher

import (
	"context"
	"time"
)

// Operation is the kind of change observed for a path.
type Operation int

const (
	// OpCreate is a new file.
	OpCreate Operation = iota
	// OpModify is a changed file.
	OpModify
	// OpDelete is a removed file.
	OpDelete
	// OpRename is a file moved away from its path. The new path, if it is
	// inside the tree, arrives as a separate OpCreate.
	OpRename
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Gone reports whether the path no longer holds the file after op.
func (op Operation) Gone() bool {
	return op == OpDelete || op == OpRename
}

// FileEvent is one change to a path.
type FileEvent struct {
	// Path is relative to the watched root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher delivers debounced batches of file events.
type Watcher interface {
	// Start watches root until ctx is done or Stop is called. It blocks.
	Start(ctx context.Context, root string) error

	// Stop releases resources and closes both channels. Safe to call
	// more than once.
	Stop() error

	// Events returns batches of coalesced events.
	Events() <-chan []FileEvent

	// Errors returns non-fatal watcher errors.
	Errors() <-chan error
}

// Options configures a watcher.
type Options struct {
	// Debounce is the quiet period before a batch is emitted.
	Debounce time.Duration

	// PollInterval is the scan interval of the polling fallback.
	PollInterval time.Duration

	// BufferSize is the capacity of the batch channel.
	BufferSize int

	// Ignore holds gitignore-style patterns. A .docragignore file at the
	// watched root is added on Start.
	Ignore []string

	// Accept, when set, must return true for a file to be reported.
	Accept func(path string) bool

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		Debounce:     500 * time.Millisecond,
		PollInterval: 5 * time.Second,
		BufferSize:   256,
	}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	return o
}
