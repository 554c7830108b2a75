package searcher

import (
	"context"
	"strings"

	"github.com/Aman-CERP/docrag/internal/store"
)

// LexicalSearcher runs BM25 queries against a store.LexicalIndex.
type LexicalSearcher struct {
	index store.LexicalIndex
}

// NewLexicalSearcher returns ErrNilLexicalIndex when idx is nil.
func NewLexicalSearcher(idx store.LexicalIndex) (*LexicalSearcher, error) {
	if idx == nil {
		return nil, ErrNilLexicalIndex
	}
	return &LexicalSearcher{index: idx}, nil
}

// Search delegates to the index and tags results lexical. A blank query
// matches nothing.
func (s *LexicalSearcher) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if strings.TrimSpace(query) == "" || topK <= 0 {
		return []Result{}, nil
	}
	hits, err := s.index.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	return fromHits(hits, SourceLexical), nil
}

var _ Searcher = (*LexicalSearcher)(nil)
