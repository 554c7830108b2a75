// Package lifecycle owns the two indexes of a docrag data directory.
//
// A Manager creates both indexes idempotently, ingests documents through
// the hybrid indexer, deletes a document from both indexes at once, and
// answers queries through the hybrid retriever. Mutating operations are
// serialised in-process by a mutex and across processes by a file lock on
// the data directory.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/docrag/internal/embed"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/reader"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/telemetry"
	"github.com/Aman-CERP/docrag/pkg/indexer"
	"github.com/Aman-CERP/docrag/pkg/searcher"
)

// DefaultOpTimeout bounds each index operation when none is configured.
const DefaultOpTimeout = 60 * time.Second

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("lifecycle manager is closed")

// Manager coordinates ingestion, deletion and search over one lexical and
// one optional vector index.
type Manager struct {
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	embedder embed.Embedder
	readers  *reader.Registry
	lock     *store.DataDirLock
	metrics  *telemetry.Metrics

	chunkSize     int
	concurrency   int
	batchSize     int
	normalization searcher.Normalization
	branchTimeout time.Duration
	opTimeout     time.Duration

	indexer   *indexer.HybridIndexer
	retriever *searcher.Retriever

	// mu serialises mutating operations within the process; the file lock
	// does the same across processes. Reads never take it.
	mu     sync.Mutex
	closed atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLexical sets the lexical index. Required.
func WithLexical(idx store.LexicalIndex) Option {
	return func(m *Manager) { m.lexical = idx }
}

// WithVector sets the vector index. A Manager without one is lexical-only.
func WithVector(idx store.VectorIndex) Option {
	return func(m *Manager) { m.vector = idx }
}

// WithEmbedder sets the embedder. Required with a vector index.
func WithEmbedder(e embed.Embedder) Option {
	return func(m *Manager) { m.embedder = e }
}

// WithReaders sets the document reader registry used by IngestFile.
func WithReaders(r *reader.Registry) Option {
	return func(m *Manager) { m.readers = r }
}

// WithLock sets the cross-process data directory lock.
func WithLock(l *store.DataDirLock) Option {
	return func(m *Manager) { m.lock = l }
}

// WithMetrics records ingest and search metrics.
func WithMetrics(mt *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithChunkSize sets the chunk width in characters.
func WithChunkSize(n int) Option {
	return func(m *Manager) { m.chunkSize = n }
}

// WithConcurrency sets the number of embedding workers.
func WithConcurrency(n int) Option {
	return func(m *Manager) { m.concurrency = n }
}

// WithBatchSize sets the number of chunks per embedding request.
func WithBatchSize(n int) Option {
	return func(m *Manager) { m.batchSize = n }
}

// WithNormalization sets the score normalization applied before fusion.
func WithNormalization(n searcher.Normalization) Option {
	return func(m *Manager) { m.normalization = n }
}

// WithBranchTimeout bounds each sub-search of a query.
func WithBranchTimeout(d time.Duration) Option {
	return func(m *Manager) { m.branchTimeout = d }
}

// WithOpTimeout bounds each index operation.
func WithOpTimeout(d time.Duration) Option {
	return func(m *Manager) { m.opTimeout = d }
}

// New assembles a Manager from already constructed indexes. It does not
// create schemas; call EnsureIndexes before the first write.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{opTimeout: DefaultOpTimeout}
	for _, opt := range opts {
		opt(m)
	}
	if m.lexical == nil {
		return nil, indexer.ErrNoLexical
	}
	if m.readers == nil {
		m.readers = reader.Default()
	}

	ixOpts := []indexer.Option{
		indexer.WithLexical(m.lexical),
		indexer.WithMetrics(m.metrics),
	}
	if m.chunkSize > 0 {
		ixOpts = append(ixOpts, indexer.WithChunkSize(m.chunkSize))
	}
	if m.concurrency > 0 {
		ixOpts = append(ixOpts, indexer.WithConcurrency(m.concurrency))
	}
	if m.batchSize > 0 {
		ixOpts = append(ixOpts, indexer.WithBatchSize(m.batchSize))
	}

	lexSearcher, err := searcher.NewLexicalSearcher(m.lexical)
	if err != nil {
		return nil, err
	}
	rtOpts := []searcher.Option{
		searcher.WithLexicalSearcher(lexSearcher),
		searcher.WithNormalization(m.normalization),
		searcher.WithTimeout(m.branchTimeout),
		searcher.WithMetrics(m.metrics),
	}

	if m.vector != nil {
		if m.embedder == nil {
			return nil, indexer.ErrNilEmbedder
		}
		ixOpts = append(ixOpts, indexer.WithVector(m.vector), indexer.WithEmbedder(m.embedder))
		vecSearcher, err := searcher.NewVectorSearcher(m.embedder, m.vector)
		if err != nil {
			return nil, err
		}
		rtOpts = append(rtOpts, searcher.WithVectorSearcher(vecSearcher))
	}

	if m.indexer, err = indexer.New(ixOpts...); err != nil {
		return nil, err
	}
	if m.retriever, err = searcher.NewRetriever(rtOpts...); err != nil {
		_ = m.indexer.Close()
		return nil, err
	}
	return m, nil
}

// Lexical returns the lexical index.
func (m *Manager) Lexical() store.LexicalIndex { return m.lexical }

// Vector returns the vector index, or nil for a lexical-only Manager.
func (m *Manager) Vector() store.VectorIndex { return m.vector }

// Embedder returns the embedder, or nil.
func (m *Manager) Embedder() embed.Embedder { return m.embedder }

// Readers returns the document reader registry.
func (m *Manager) Readers() *reader.Registry { return m.readers }

// HasVector reports whether a vector index is configured.
func (m *Manager) HasVector() bool { return m.vector != nil }

// EnsureIndexes creates or opens both indexes. It is idempotent and does
// not take the data directory lock: opening an existing index does not
// modify it, and schema creation is itself idempotent.
func (m *Manager) EnsureIndexes(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	if err := m.lexical.EnsureSchema(opCtx); err != nil {
		return err
	}
	if m.vector != nil {
		if err := m.vector.EnsureSchema(opCtx); err != nil {
			return err
		}
	}
	return nil
}

// IngestOptions controls one ingestion.
type IngestOptions struct {
	// WithEmbeddings also writes vectors for every chunk.
	WithEmbeddings bool
	// ReplaceExisting deletes the document from both indexes first.
	ReplaceExisting bool
	// DocName overrides the document name derived from a file path.
	DocName string
}

// IngestResult is the outcome of one ingestion.
type IngestResult struct {
	*indexer.Report
	// Replaced holds the deletion outcome when ReplaceExisting was set.
	Replaced *DeleteResult
}

// IngestDocument chunks text and writes it into the indexes under docName.
// Without ReplaceExisting the chunks are appended to any already stored
// for docName.
func (m *Manager) IngestDocument(ctx context.Context, docName, text string, opts IngestOptions) (*IngestResult, error) {
	if strings.TrimSpace(docName) == "" {
		return nil, docerrors.ValidationError("document name must not be empty", nil)
	}
	withEmbeddings := opts.WithEmbeddings && m.vector != nil
	if opts.WithEmbeddings && m.vector == nil {
		slog.Warn("ingest_without_vectors",
			slog.String("doc", docName),
			slog.String("reason", "no vector index configured"))
	}

	unlock, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	res := &IngestResult{}
	if opts.ReplaceExisting {
		del := m.deleteLocked(ctx, docName)
		res.Replaced = del
		if err := del.Err(); err != nil {
			return res, err
		}
	}

	opCtx, cancel := m.opContext(ctx)
	defer cancel()
	report, err := m.indexer.Ingest(opCtx, docName, text, withEmbeddings)
	res.Report = report
	return res, err
}

// IngestFile reads path with the reader registry and ingests its text.
// The document name is the file's base name unless opts.DocName is set.
func (m *Manager) IngestFile(ctx context.Context, path string, opts IngestOptions) (*IngestResult, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	text, err := m.readers.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	name := opts.DocName
	if name == "" {
		name = filepath.Base(path)
	}
	return m.IngestDocument(ctx, name, text, opts)
}

// DeleteDocument removes every chunk of docName from both indexes.
// The returned error is nil only when every configured index succeeded.
func (m *Manager) DeleteDocument(ctx context.Context, docName string) (*DeleteResult, error) {
	if strings.TrimSpace(docName) == "" {
		return nil, docerrors.ValidationError("document name must not be empty", nil)
	}

	unlock, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	res := m.deleteLocked(ctx, docName)
	return res, res.Err()
}

// Exclusive runs fn while holding the write lock, so maintenance work such
// as index repair cannot interleave with ingestion or deletion.
func (m *Manager) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	unlock, err := m.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	opCtx, cancel := m.opContext(ctx)
	defer cancel()
	return fn(opCtx)
}

// ListDocuments returns every document in the lexical index with its
// chunk count, sorted by name.
func (m *Manager) ListDocuments(ctx context.Context) ([]store.DocumentInfo, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	opCtx, cancel := m.opContext(ctx)
	defer cancel()
	return m.lexical.Documents(opCtx)
}

// Search runs query through the hybrid retriever. Searches never take the
// write lock.
func (m *Manager) Search(ctx context.Context, query string, opts searcher.Options) (*searcher.Response, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	return m.retriever.Search(ctx, query, opts)
}

// Close releases the indexer, the embedder and both indexes.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	errs = append(errs, m.indexer.Close())
	if m.embedder != nil {
		errs = append(errs, m.embedder.Close())
	}
	errs = append(errs, m.lexical.Close())
	if m.vector != nil {
		errs = append(errs, m.vector.Close())
	}
	if m.lock != nil {
		errs = append(errs, m.lock.Unlock())
	}
	return errors.Join(errs...)
}

// acquire takes the in-process mutex and then the data directory lock.
// Another process holding the lock yields ERR_209_INDEX_LOCKED.
func (m *Manager) acquire() (func(), error) {
	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.lock == nil {
		return m.mu.Unlock, nil
	}
	if err := m.lock.TryLock(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	return func() {
		if err := m.lock.Unlock(); err != nil {
			slog.Warn("unlock_failed", slog.String("lock", m.lock.Path()), slog.String("error", err.Error()))
		}
		m.mu.Unlock()
	}, nil
}

func (m *Manager) isClosed() bool {
	return m.closed.Load()
}

func (m *Manager) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.opTimeout)
}
