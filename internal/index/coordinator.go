package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/lifecycle"
	"github.com/Aman-CERP/docrag/internal/reader"
	"github.com/Aman-CERP/docrag/internal/watcher"
)

// DocumentStore is the part of *lifecycle.Manager the Coordinator drives.
type DocumentStore interface {
	DocumentIngester
	DeleteDocument(ctx context.Context, docName string) (*lifecycle.DeleteResult, error)
}

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// Root is the watched directory event paths are relative to.
	Root string

	// Store receives ingests and deletions (required).
	Store DocumentStore

	// Readers extracts text. Defaults to reader.Default().
	Readers *reader.Registry

	WithEmbeddings bool

	// MaxFileSize defaults to DefaultMaxFileSize if zero.
	MaxFileSize int64
}

// EventStats counts what one HandleEvents call did.
type EventStats struct {
	Ingested int
	Deleted  int
	Skipped  int
	Failed   int
}

// Coordinator applies watcher events to the indexes: a created or modified
// file replaces its document, a removed or renamed-away file deletes it.
// Document names are base file names, matching directory ingestion.
type Coordinator struct {
	config CoordinatorConfig
	mu     sync.Mutex
}

// NewCoordinator creates a new index coordinator.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if config.Readers == nil {
		config.Readers = reader.Default()
	}
	return &Coordinator{config: config}, nil
}

// maxFileSize returns the effective maximum file size (uses default if not configured).
func (c *Coordinator) maxFileSize() int64 {
	if c.config.MaxFileSize > 0 {
		return c.config.MaxFileSize
	}
	return DefaultMaxFileSize
}

// HandleEvents processes a batch of file events. A failing event is logged
// and the batch continues; only cancellation is returned as an error.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) (EventStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stats EventStats
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		outcome, err := c.handleEvent(ctx, event)
		if err != nil {
			stats.Failed++
			slog.Warn("failed to process file event",
				slog.String("path", event.Path),
				slog.String("operation", event.Operation.String()),
				slog.String("error", err.Error()))
			continue
		}
		switch outcome {
		case outcomeIngested:
			stats.Ingested++
		case outcomeDeleted:
			stats.Deleted++
		default:
			stats.Skipped++
		}
	}
	return stats, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeIngested
	outcomeDeleted
)

// handleEvent processes a single file event.
func (c *Coordinator) handleEvent(ctx context.Context, event watcher.FileEvent) (outcome, error) {
	slog.Debug("processing file event",
		slog.String("path", event.Path),
		slog.String("operation", event.Operation.String()),
		slog.Bool("is_dir", event.IsDir))

	if event.IsDir {
		return outcomeSkipped, nil
	}

	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		return c.ingestFile(ctx, event.Path)
	case watcher.OpDelete, watcher.OpRename:
		return c.removeFile(ctx, event.Path)
	default:
		return outcomeSkipped, nil
	}
}

func (c *Coordinator) ingestFile(ctx context.Context, relPath string) (outcome, error) {
	abs := filepath.Join(c.config.Root, relPath)
	if !c.config.Readers.Supported(abs) {
		return outcomeSkipped, nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// removed again before the batch was handled
			return outcomeSkipped, nil
		}
		return outcomeSkipped, docerrors.IOError("cannot stat "+relPath, err)
	}
	if info.Size() > c.maxFileSize() {
		slog.Warn("file_too_large",
			slog.String("path", relPath),
			slog.Int64("size", info.Size()),
			slog.Int64("limit", c.maxFileSize()))
		return outcomeSkipped, nil
	}

	text, err := c.config.Readers.Read(ctx, abs)
	if err != nil {
		return outcomeSkipped, err
	}
	name := filepath.Base(relPath)
	res, err := c.config.Store.IngestDocument(ctx, name, text, lifecycle.IngestOptions{
		WithEmbeddings:  c.config.WithEmbeddings,
		ReplaceExisting: true,
	})
	if err != nil {
		return outcomeSkipped, err
	}

	attrs := []any{slog.String("doc", name)}
	if res != nil && res.Report != nil {
		attrs = append(attrs,
			slog.Int("chunks", res.LexicalWritten()),
			slog.Int("vectors", res.VectorWritten()))
	}
	slog.Info("document_reingested", attrs...)
	return outcomeIngested, nil
}

func (c *Coordinator) removeFile(ctx context.Context, relPath string) (outcome, error) {
	if !c.config.Readers.Supported(relPath) {
		return outcomeSkipped, nil
	}
	name := filepath.Base(relPath)
	res, err := c.config.Store.DeleteDocument(ctx, name)
	if err != nil {
		return outcomeSkipped, err
	}
	slog.Info("document_removed", slog.String("doc", name), slog.Int("records", res.Removed()))
	return outcomeDeleted, nil
}
