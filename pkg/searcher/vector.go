package searcher

import (
	"context"

	"github.com/Aman-CERP/docrag/internal/embed"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
)

// VectorSearcher embeds the query and runs cosine k-NN against a
// store.VectorIndex.
type VectorSearcher struct {
	embedder embed.Embedder
	index    store.VectorIndex
}

// NewVectorSearcher returns ErrNilEmbedder or ErrNilVectorIndex when a
// dependency is missing.
func NewVectorSearcher(e embed.Embedder, idx store.VectorIndex) (*VectorSearcher, error) {
	if e == nil {
		return nil, ErrNilEmbedder
	}
	if idx == nil {
		return nil, ErrNilVectorIndex
	}
	return &VectorSearcher{embedder: e, index: idx}, nil
}

// Search embeds query and delegates to the index. A blank query is a
// ValidationFailure; an empty embedding for a non-blank query is an
// EmbeddingFailure.
func (s *VectorSearcher) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if embed.IsBlank(query) {
		return nil, errEmptyQuery()
	}
	if topK <= 0 {
		return []Result{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, docerrors.EmbeddingError("embedder returned no vector for a non-empty query", nil).
			WithDetail("reason", embed.ReasonMalformed)
	}

	hits, err := s.index.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	return fromHits(hits, SourceVector), nil
}

func errEmptyQuery() error {
	return docerrors.New(docerrors.ErrCodeQueryEmpty, "query text is empty", nil).
		WithSuggestion("vector and hybrid search need query text to embed")
}

var _ Searcher = (*VectorSearcher)(nil)
