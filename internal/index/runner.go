package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Aman-CERP/docrag/internal/embed"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/lifecycle"
	"github.com/Aman-CERP/docrag/internal/reader"
	"github.com/Aman-CERP/docrag/internal/ui"
	"github.com/Aman-CERP/docrag/internal/watcher"
)

// DefaultMaxFileSize is the default maximum file size to ingest. Larger
// files are skipped with a warning instead of failing in the reader.
const DefaultMaxFileSize = reader.MaxFileSize

// DocumentIngester writes one document's text into the indexes.
// *lifecycle.Manager implements it.
type DocumentIngester interface {
	IngestDocument(ctx context.Context, docName, text string, opts lifecycle.IngestOptions) (*lifecycle.IngestResult, error)
}

// RunnerConfig configures an ingestion run.
type RunnerConfig struct {
	// Paths are files or directories. Directories are walked recursively.
	Paths []string

	WithEmbeddings  bool
	ReplaceExisting bool

	// Retries is the number of extra attempts for a document whose ingest
	// failed with a retryable error before anything was written.
	Retries int
	// RetryDelay is the first backoff delay. Defaults to one second.
	RetryDelay time.Duration

	// Ignore holds gitignore-style patterns of files and directories to
	// leave out. A .docragignore file at the root of each directory path
	// adds to them.
	Ignore []string

	// MaxFileSize defaults to DefaultMaxFileSize if zero.
	MaxFileSize int64
}

// RunnerResult contains the outcome of an ingestion run.
type RunnerResult struct {
	// Documents is the number of documents ingested.
	Documents int
	Chunks    int
	Vectors   int

	// SkippedChunks counts chunks left out of the vector index.
	SkippedChunks int

	// Unsupported counts files without a registered reader.
	Unsupported int

	// Errors is the count of documents that failed.
	Errors int

	// Warnings is the count of non-fatal warnings.
	Warnings int

	Duration time.Duration
}

// RunnerDependencies contains the injected dependencies for Runner.
type RunnerDependencies struct {
	// Renderer for progress display (required).
	Renderer ui.Renderer

	// Ingester writes documents (required).
	Ingester DocumentIngester

	// Readers extracts text. Defaults to reader.Default().
	Readers *reader.Registry

	// Embedder is only used to describe the run in the summary.
	Embedder embed.Embedder
}

// Runner ingests files and directories with progress reporting.
type Runner struct {
	renderer ui.Renderer
	ingester DocumentIngester
	readers  *reader.Registry
	embedder embed.Embedder
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Ingester == nil {
		return nil, fmt.Errorf("ingester is required")
	}
	readers := deps.Readers
	if readers == nil {
		readers = reader.Default()
	}
	return &Runner{
		renderer: deps.Renderer,
		ingester: deps.Ingester,
		readers:  readers,
		embedder: deps.Embedder,
	}, nil
}

// Run scans cfg.Paths, then reads and ingests every supported file. A
// failing document is reported and the run moves on; Run only returns an
// error when the context is cancelled or nothing could be scanned.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	start := time.Now()
	res := &RunnerResult{}
	var timing ui.StageTimings

	scanStart := time.Now()
	files, err := r.scan(ctx, cfg, res)
	timing.Scan = time.Since(scanStart)
	if err != nil {
		return res, err
	}

	opts := lifecycle.IngestOptions{
		WithEmbeddings:  cfg.WithEmbeddings,
		ReplaceExisting: cfg.ReplaceExisting,
	}
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
		name := filepath.Base(path)

		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageReading,
			Current:     i,
			Total:       len(files),
			CurrentFile: path,
		})
		readStart := time.Now()
		text, err := r.readers.Read(ctx, path)
		timing.Read += time.Since(readStart)
		if err != nil {
			res.Errors++
			r.renderer.AddError(ui.ErrorEvent{File: path, Err: err})
			slog.Warn("read_failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}

		ingestStart := time.Now()
		ir, err := r.ingest(ctx, name, text, opts, cfg)
		timing.Ingest += time.Since(ingestStart)

		chunks := 0
		if ir != nil && ir.Report != nil {
			chunks = ir.LexicalWritten()
			res.Chunks += ir.LexicalWritten()
			res.Vectors += ir.VectorWritten()
			res.SkippedChunks += len(ir.Skipped)
		}
		if err != nil {
			res.Errors++
			r.renderer.AddError(ui.ErrorEvent{File: path, Err: err})
			slog.Warn("ingest_failed", slog.String("doc", name), slog.String("error", err.Error()))
		} else {
			res.Documents++
		}

		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageIngesting,
			Current:     i + 1,
			Total:       len(files),
			Chunks:      chunks,
			CurrentFile: path,
		})
	}

	res.Duration = time.Since(start)
	stats := ui.CompletionStats{
		Documents: res.Documents,
		Chunks:    res.Chunks,
		Vectors:   res.Vectors,
		Skipped:   res.SkippedChunks,
		Duration:  res.Duration,
		Errors:    res.Errors,
		Warnings:  res.Warnings,
		Stages:    timing,
	}
	if r.embedder != nil && cfg.WithEmbeddings {
		stats.Embedder = ui.EmbedderInfo{Model: r.embedder.ModelName(), Dimensions: r.embedder.Dimensions()}
	}
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageComplete, Current: len(files), Total: len(files)})
	r.renderer.Complete(stats)

	slog.Info("ingest_run_complete",
		slog.Int("documents", res.Documents),
		slog.Int("chunks", res.Chunks),
		slog.Int("vectors", res.Vectors),
		slog.Int("errors", res.Errors),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// ingest runs one IngestDocument call, retrying a retryable failure only
// while nothing has been written, so a retry never appends duplicates.
func (r *Runner) ingest(ctx context.Context, name, text string, opts lifecycle.IngestOptions, cfg RunnerConfig) (*lifecycle.IngestResult, error) {
	if cfg.Retries <= 0 {
		return r.ingester.IngestDocument(ctx, name, text, opts)
	}

	var last *lifecycle.IngestResult
	retry := docerrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.Retries
	if cfg.RetryDelay > 0 {
		retry.InitialDelay = cfg.RetryDelay
	}
	retry.ShouldRetry = func(err error) bool {
		if last != nil && last.Report != nil && (last.LexicalWritten() > 0 || last.VectorWritten() > 0) {
			return false
		}
		return docerrors.IsRetryable(err)
	}
	err := docerrors.Retry(ctx, retry, func() error {
		ir, err := r.ingester.IngestDocument(ctx, name, text, opts)
		last = ir
		return err
	})
	return last, err
}

// scan expands cfg.Paths into a sorted list of readable files.
func (r *Runner) scan(ctx context.Context, cfg RunnerConfig, res *RunnerResult) ([]string, error) {
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("Scanning %d path(s)...", len(cfg.Paths)),
	})

	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	seen := make(map[string]struct{})
	var files []string

	consider := func(path string, size int64) {
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		if !r.readers.Supported(path) {
			res.Unsupported++
			res.Warnings++
			r.renderer.AddError(ui.ErrorEvent{
				File:   path,
				Err:    docerrors.New(docerrors.ErrCodeUnsupportedType, "no reader for file type", nil),
				IsWarn: true,
			})
			return
		}
		if size > maxSize {
			res.Warnings++
			r.renderer.AddError(ui.ErrorEvent{
				File:   path,
				Err:    fmt.Errorf("file size %d exceeds limit %d", size, maxSize),
				IsWarn: true,
			})
			return
		}
		files = append(files, path)
	}

	for _, p := range cfg.Paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, docerrors.IOError(fmt.Sprintf("cannot access %s", p), err).WithDetail("path", p)
		}
		if !info.IsDir() {
			consider(p, info.Size())
			continue
		}
		filter := watcher.NewFilter(cfg.Ignore, nil)
		if err := filter.LoadIgnoreFile(p); err != nil {
			res.Warnings++
			r.renderer.AddError(ui.ErrorEvent{File: p, Err: err, IsWarn: true})
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				res.Warnings++
				r.renderer.AddError(ui.ErrorEvent{File: path, Err: err, IsWarn: true})
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, relErr := filepath.Rel(p, path)
			if relErr != nil {
				return nil
			}
			if d.IsDir() {
				if filter.SkipDir(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || filter.SkipFile(rel) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return nil
			}
			consider(path, fi.Size())
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	slog.Info("ingest_scan_complete",
		slog.Int("files", len(files)),
		slog.Int("unsupported", res.Unsupported))
	return files, nil
}
