package searcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
)

// DefaultTopK is used when Options.TopK is zero.
const DefaultTopK = 5

// ErrNilLexicalIndex is returned when creating a LexicalSearcher without an index.
var ErrNilLexicalIndex = errors.New("lexical index is required")

// ErrNilEmbedder is returned when creating a VectorSearcher without an embedder.
var ErrNilEmbedder = errors.New("embedder is required")

// ErrNilVectorIndex is returned when creating a VectorSearcher without an index.
var ErrNilVectorIndex = errors.New("vector index is required")

// ErrNoSearchers is returned when creating a Retriever without any searcher.
var ErrNoSearchers = errors.New("at least one searcher is required")

// Source tags which index produced a result.
type Source string

const (
	SourceLexical Source = "lexical"
	SourceVector  Source = "vector"
)

// rank orders sources for tie-breaking: lexical first.
func (s Source) rank() int {
	if s == SourceLexical {
		return 0
	}
	return 1
}

// Strategy selects which indexes a search consults.
type Strategy int

const (
	// Hybrid queries both indexes and fuses the results. It is the default.
	Hybrid Strategy = iota
	Lexical
	Vector
)

// ParseStrategy resolves a strategy name. Empty selects Hybrid.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hybrid":
		return Hybrid, nil
	case "lexical", "bm25", "keyword":
		return Lexical, nil
	case "vector", "semantic":
		return Vector, nil
	default:
		return Hybrid, docerrors.New(docerrors.ErrCodeInvalidStrategy,
			fmt.Sprintf("unknown search strategy %q", s), nil).
			WithSuggestion("use lexical, vector or hybrid")
	}
}

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case Lexical:
		return "lexical"
	case Vector:
		return "vector"
	default:
		return "hybrid"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(b []byte) error {
	parsed, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Normalization is the per-branch score policy applied before fusion.
type Normalization string

const (
	// NormalizeNone compares raw scores.
	NormalizeNone Normalization = "none"

	// NormalizeMinMax rescales each branch to [0, 1].
	NormalizeMinMax Normalization = "minmax"
)

// ParseNormalization resolves a policy name. Empty selects NormalizeNone.
func ParseNormalization(s string) (Normalization, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "raw":
		return NormalizeNone, nil
	case "minmax", "min-max":
		return NormalizeMinMax, nil
	default:
		return NormalizeNone, docerrors.ValidationError(fmt.Sprintf("unknown normalization %q", s), nil)
	}
}

// Searcher is one retrieval branch.
//
// Implementations must be safe for concurrent use.
type Searcher interface {
	// Search returns at most topK results, best first. Returns an empty
	// slice (not nil) when nothing matches.
	Search(ctx context.Context, query string, topK int) ([]Result, error)
}

// Options controls a Retriever.Search call.
type Options struct {
	// TopK caps the results. Zero selects DefaultTopK; negative is invalid.
	TopK     int
	Strategy Strategy
}

// Result is one ranked chunk.
type Result struct {
	DocName string  `json:"doc_name"`
	ChunkID int     `json:"chunk_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  Source  `json:"source"`
}

// Key returns the deduplication key.
func (r Result) Key() store.ChunkKey {
	return store.ChunkKey{DocName: r.DocName, ChunkID: r.ChunkID}
}

func fromHits(hits []store.Hit, src Source) []Result {
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{
			DocName: h.DocName,
			ChunkID: h.ChunkID,
			Content: h.Content,
			Score:   h.Score,
			Source:  src,
		}
	}
	return out
}

// BranchError reports a hybrid branch that failed while the other
// succeeded.
type BranchError struct {
	Branch Source
	Err    error
}

func (e BranchError) Error() string {
	return fmt.Sprintf("%s search failed: %v", e.Branch, e.Err)
}

func (e BranchError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the branch with its structured error.
func (e BranchError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Branch Source `json:"branch"`
		Error  any    `json:"error"`
	}{e.Branch, docerrors.ToJSON(e.Err)})
}

// Response is the outcome of a search.
type Response struct {
	Strategy Strategy      `json:"strategy"`
	Results  []Result      `json:"results"`
	Warnings []BranchError `json:"warnings,omitempty"`
}

// Degraded reports whether a branch was dropped.
func (r *Response) Degraded() bool {
	return len(r.Warnings) > 0
}
