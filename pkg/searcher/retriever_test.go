package searcher

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/embed"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/pkg/indexer"
)

// downEmbedder fails every call like an unreachable gateway.
type downEmbedder struct{ embed.Embedder }

func (downEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, docerrors.EmbeddingError("gateway unreachable", nil).WithDetail("reason", embed.ReasonUnavailable)
}

type fixture struct {
	lex *store.BleveLexicalIndex
	vec *store.HNSWVectorIndex
	emb embed.Embedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	f := &fixture{
		lex: store.NewBleveLexicalIndex(filepath.Join(dir, "lexical.bleve")),
		vec: store.NewHNSWVectorIndex(filepath.Join(dir, store.VectorFileName), store.DefaultVectorConfig(64)),
		emb: embed.NewStaticEmbedder(64),
	}
	require.NoError(t, f.lex.EnsureSchema(ctx))
	require.NoError(t, f.vec.EnsureSchema(ctx))
	t.Cleanup(func() { _ = f.lex.Close(); _ = f.vec.Close() })

	idx, err := indexer.New(indexer.WithLexical(f.lex), indexer.WithVector(f.vec),
		indexer.WithEmbedder(f.emb), indexer.WithChunkSize(60))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := map[string]string{
		"solar.txt":  "Photovoltaic panels convert sunlight into electricity. Inverters feed the grid with alternating current.",
		"garden.txt": "Tomatoes need sunlight and regular watering. Mulch keeps the soil moist through summer.",
		"ledger.txt": "The quarterly ledger reconciles invoices against payments received from customers.",
	}
	for name, text := range docs {
		_, err := idx.Ingest(ctx, name, text, true)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) retriever(t *testing.T, emb embed.Embedder) *Retriever {
	t.Helper()
	lex, err := NewLexicalSearcher(f.lex)
	require.NoError(t, err)
	vec, err := NewVectorSearcher(emb, f.vec)
	require.NoError(t, err)
	return newRetriever(t, WithLexicalSearcher(lex), WithVectorSearcher(vec))
}

func TestRetriever_LexicalRoundTrip(t *testing.T) {
	// Given: three ingested documents
	f := newFixture(t)
	r := f.retriever(t, f.emb)

	// When: searching lexically for a term unique to one document
	resp, err := r.Search(context.Background(), "invoices", Options{Strategy: Lexical})

	// Then: that document's chunk is returned with the term in its content
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "ledger.txt", resp.Results[0].DocName)
	assert.Contains(t, resp.Results[0].Content, "invoices")
}

func TestRetriever_HybridTopKAndDedup(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(t, f.emb)

	for _, k := range []int{1, 2, 4} {
		resp, err := r.Search(context.Background(), "sunlight", Options{TopK: k})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(resp.Results), k)

		seen := map[store.ChunkKey]bool{}
		for _, res := range resp.Results {
			assert.False(t, seen[res.Key()])
			seen[res.Key()] = true
		}
	}
}

func TestRetriever_UnreachableGateway_HybridStillReturnsLexical(t *testing.T) {
	// Given: indexes built earlier and a gateway that is now down
	f := newFixture(t)
	r := f.retriever(t, downEmbedder{f.emb})

	// When: searching hybrid
	resp, err := r.Search(context.Background(), "sunlight", Options{TopK: 5})

	// Then: the lexical ranking comes back with a vector warning
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, res := range resp.Results {
		assert.Equal(t, SourceLexical, res.Source)
	}
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, SourceVector, resp.Warnings[0].Branch)
}

func TestRetriever_DeletedDocumentNeverReturned(t *testing.T) {
	// Given: a deleted document
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.lex.DeleteByDocument(ctx, "garden.txt")
	require.NoError(t, err)
	_, err = f.vec.DeleteByDocument(ctx, "garden.txt")
	require.NoError(t, err)
	r := f.retriever(t, f.emb)

	// When: searching under every strategy for its terms
	for _, s := range []Strategy{Lexical, Vector, Hybrid} {
		resp, err := r.Search(ctx, "tomatoes watering mulch", Options{TopK: 10, Strategy: s})
		require.NoError(t, err)

		// Then: none of its chunks appear
		for _, res := range resp.Results {
			assert.NotEqual(t, "garden.txt", res.DocName, s.String())
		}
	}
}
