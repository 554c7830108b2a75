package indexer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/docrag/internal/store"
)

// MockLexical implements store.LexicalIndex for testing.
type MockLexical struct {
	UpsertBatchFn func(ctx context.Context, chunks []store.Chunk) (*store.BatchReport, error)

	mu      sync.Mutex
	written []store.Chunk
}

func (m *MockLexical) EnsureSchema(context.Context) error { return nil }

func (m *MockLexical) UpsertBatch(ctx context.Context, chunks []store.Chunk) (*store.BatchReport, error) {
	if m.UpsertBatchFn != nil {
		return m.UpsertBatchFn(ctx, chunks)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, chunks...)
	return &store.BatchReport{Index: store.IndexLexical, Total: len(chunks), Written: len(chunks)}, nil
}

func (m *MockLexical) Search(context.Context, string, int) ([]store.Hit, error) { return nil, nil }
func (m *MockLexical) DeleteByDocument(context.Context, string) (int, error)     { return 0, nil }
func (m *MockLexical) Documents(context.Context) ([]store.DocumentInfo, error)   { return nil, nil }
func (m *MockLexical) DocumentChunks(context.Context, string) ([]store.Chunk, error) {
	return nil, nil
}
func (m *MockLexical) Keys(context.Context) ([]store.ChunkKey, error) { return nil, nil }
func (m *MockLexical) Count(context.Context) (int, error)             { return len(m.written), nil }
func (m *MockLexical) Close() error                                   { return nil }

// MockVector implements store.VectorIndex for testing.
type MockVector struct {
	UpsertBatchFn func(ctx context.Context, chunks []store.Chunk) (*store.BatchReport, error)

	upsertCalled atomic.Int32
	mu           sync.Mutex
	written      []store.Chunk
}

func (m *MockVector) EnsureSchema(context.Context) error { return nil }
func (m *MockVector) Dimensions() int                    { return 4 }

func (m *MockVector) UpsertBatch(ctx context.Context, chunks []store.Chunk) (*store.BatchReport, error) {
	m.upsertCalled.Add(1)
	if m.UpsertBatchFn != nil {
		return m.UpsertBatchFn(ctx, chunks)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, chunks...)
	return &store.BatchReport{Index: store.IndexVector, Total: len(chunks), Written: len(chunks)}, nil
}

func (m *MockVector) Search(context.Context, []float32, int) ([]store.Hit, error) { return nil, nil }
func (m *MockVector) DeleteByDocument(context.Context, string) (int, error)       { return 0, nil }
func (m *MockVector) Keys(context.Context) ([]store.ChunkKey, error)              { return nil, nil }
func (m *MockVector) Count(context.Context) (int, error)                          { return len(m.written), nil }
func (m *MockVector) Close() error                                                { return nil }

// MockEmbedder implements embed.Embedder for testing.
type MockEmbedder struct {
	EmbedFn      func(ctx context.Context, text string) ([]float32, error)
	EmbedBatchFn func(ctx context.Context, texts []string) ([][]float32, error)

	embedCalled      atomic.Int32
	embedBatchCalled atomic.Int32
}

func unitVector() []float32 { return []float32{1, 0, 0, 0} }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalled.Add(1)
	if m.EmbedFn != nil {
		return m.EmbedFn(ctx, text)
	}
	return unitVector(), nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.embedBatchCalled.Add(1)
	if m.EmbedBatchFn != nil {
		return m.EmbedBatchFn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = unitVector()
	}
	return out, nil
}

func (m *MockEmbedder) Dimensions() int                { return 4 }
func (m *MockEmbedder) ModelName() string              { return "mock-model" }
func (m *MockEmbedder) Available(context.Context) bool { return true }
func (m *MockEmbedder) Close() error                   { return nil }
