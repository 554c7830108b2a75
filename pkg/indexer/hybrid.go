package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/embed"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/telemetry"
)

// ErrNoLexical is returned when creating a HybridIndexer without a lexical index.
var ErrNoLexical = errors.New("lexical index is required")

// ErrNilEmbedder is returned when a vector index is given without an embedder.
var ErrNilEmbedder = errors.New("embedder is required with a vector index")

// HybridIndexer writes every chunk to the lexical index and, when asked,
// embeds chunks and writes them to the vector index.
//
// HybridIndexer is safe for concurrent use.
type HybridIndexer struct {
	lexical  store.LexicalIndex
	vector   store.VectorIndex // may be nil for lexical-only mode
	embedder embed.Embedder
	metrics  *telemetry.Metrics

	chunkSize   int
	batchSize   int
	concurrency int
	pool        *ants.Pool

	mu     sync.RWMutex
	closed bool
}

// Option configures a HybridIndexer.
type Option func(*HybridIndexer)

// WithLexical sets the lexical index. Required.
func WithLexical(idx store.LexicalIndex) Option {
	return func(h *HybridIndexer) { h.lexical = idx }
}

// WithVector sets the vector index. Pass nil for lexical-only mode.
func WithVector(idx store.VectorIndex) Option {
	return func(h *HybridIndexer) { h.vector = idx }
}

// WithEmbedder sets the embedder used for the vector index.
func WithEmbedder(e embed.Embedder) Option {
	return func(h *HybridIndexer) { h.embedder = e }
}

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(n int) Option {
	return func(h *HybridIndexer) { h.chunkSize = n }
}

// WithConcurrency bounds how many embedding batches run at once.
func WithConcurrency(n int) Option {
	return func(h *HybridIndexer) { h.concurrency = n }
}

// WithBatchSize sets how many chunks go to the embedder per call.
func WithBatchSize(n int) Option {
	return func(h *HybridIndexer) { h.batchSize = n }
}

// WithMetrics records ingests on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *HybridIndexer) { h.metrics = m }
}

// New creates a HybridIndexer.
//
// Returns ErrNoLexical without a lexical index and ErrNilEmbedder when a
// vector index is configured without an embedder.
func New(opts ...Option) (*HybridIndexer, error) {
	h := &HybridIndexer{}
	for _, opt := range opts {
		opt(h)
	}

	if h.lexical == nil {
		return nil, ErrNoLexical
	}
	if h.vector != nil && h.embedder == nil {
		return nil, ErrNilEmbedder
	}
	if h.chunkSize <= 0 {
		h.chunkSize = chunk.DefaultSize
	}
	if h.batchSize <= 0 || h.batchSize > embed.MaxBatchSize {
		h.batchSize = embed.MaxBatchSize
	}
	if h.concurrency <= 0 {
		h.concurrency = min(runtime.NumCPU(), 4)
	}

	pool, err := ants.NewPool(h.concurrency)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	h.pool = pool
	return h, nil
}

// Ingest chunks text and writes it to the indexes.
//
// The lexical write always happens. With withEmbeddings the chunks are
// embedded and written to the vector index; skipped chunks are listed in
// the Report. A failure of one index does not stop the other. The error
// is nil only when every attempted index write succeeded.
func (h *HybridIndexer) Ingest(ctx context.Context, docName, text string, withEmbeddings bool) (*Report, error) {
	if strings.TrimSpace(docName) == "" {
		return nil, docerrors.ValidationError("doc_name is required", nil)
	}
	if withEmbeddings && h.vector == nil {
		return nil, docerrors.ValidationError("vector indexing is not configured", nil).
			WithSuggestion("configure an embedding provider or ingest without embeddings")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, docerrors.IndexUnavailableError(store.IndexLexical, errors.New("indexer is closed"))
	}

	start := time.Now()
	report := &Report{DocName: docName}
	chunks := chunk.Collect(docName, text, h.chunkSize)
	report.Chunks = len(chunks)

	// Blank chunks keep their ids but no index accepts them.
	writable := make([]store.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if embed.IsBlank(c.Content) {
			report.Skipped = append(report.Skipped, SkippedChunk{ChunkID: c.ChunkID, Reason: SkipBlank})
			continue
		}
		writable = append(writable, c)
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if len(writable) > 0 {
		report.Lexical, report.LexicalErr = h.lexical.UpsertBatch(ctx, writable)
	}

	if withEmbeddings && len(writable) > 0 {
		embedded, skipped, err := h.embedChunks(ctx, docName, writable)
		if err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		report.Skipped = append(report.Skipped, skipped...)
		if len(embedded) > 0 {
			report.Vector, report.VectorErr = h.vector.UpsertBatch(ctx, embedded)
		}
	}

	report.Duration = time.Since(start)
	err := report.Err()
	h.metrics.RecordIngest(ctx, report.LexicalWritten(), report.VectorWritten(), len(report.Skipped), report.Duration, err)

	attrs := []any{
		slog.String("doc", docName),
		slog.Int("chunks", report.Chunks),
		slog.Int("lexical", report.LexicalWritten()),
		slog.Int("vector", report.VectorWritten()),
		slog.Int("skipped", len(report.Skipped)),
		slog.Duration("duration", report.Duration),
	}
	if err != nil {
		slog.Warn("ingest_incomplete", append(attrs, slog.String("error", err.Error()))...)
	} else {
		slog.Info("ingest_complete", attrs...)
	}
	return report, err
}

// Close releases the worker pool. The indexes are owned by the caller.
//
// This method is idempotent.
func (h *HybridIndexer) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.pool.Release()
	return nil
}

var _ Ingester = (*HybridIndexer)(nil)
