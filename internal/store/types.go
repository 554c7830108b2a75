// Package store provides the two parallel chunk indexes: a lexical index
// (Bleve or SQLite FTS5, BM25 scoring) and a vector index (HNSW, cosine).
//
// Both indexes hold the same logical records. A record is identified to the
// caller by its (doc_name, chunk_id) pair, but that pair is not the storage
// key: every write gets a fresh internal id, so writing the same pair twice
// stores two records. Deleting by document removes all of them.
package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// Index names used in reports and errors.
const (
	IndexLexical = "lexical"
	IndexVector  = "vector"
)

// Schema field names shared by both indexes.
const (
	FieldDocName = "doc_name"
	FieldChunkID = "chunk_id"
	FieldContent = "content"
)

// ChunkKey is the logical identity of a chunk across both indexes.
type ChunkKey struct {
	DocName string `json:"doc_name"`
	ChunkID int    `json:"chunk_id"`
}

// String returns "doc_name#chunk_id".
func (k ChunkKey) String() string {
	return fmt.Sprintf("%s#%d", k.DocName, k.ChunkID)
}

// Less orders keys by doc_name then chunk_id.
func (k ChunkKey) Less(o ChunkKey) bool {
	return compareKeys(k, o) < 0
}

func compareKeys(a, b ChunkKey) int {
	if c := cmp.Compare(a.DocName, b.DocName); c != 0 {
		return c
	}
	return cmp.Compare(a.ChunkID, b.ChunkID)
}

// Chunk is one indexed record.
type Chunk struct {
	DocName string
	ChunkID int
	Content string

	// Vector is only stored by the vector index.
	Vector []float32
}

// Key returns the chunk's logical identity.
func (c Chunk) Key() ChunkKey {
	return ChunkKey{DocName: c.DocName, ChunkID: c.ChunkID}
}

// Hit is a search hit with its raw index score.
type Hit struct {
	Chunk
	Score float64
}

// DocumentInfo summarises one document held by an index.
type DocumentInfo struct {
	DocName string `json:"doc_name"`
	Chunks  int    `json:"chunks"`
}

// ItemFailure records one rejected record of a batch write.
type ItemFailure struct {
	// Position is the record's position in the submitted batch.
	Position int
	Key      ChunkKey
	Err      error
}

// BatchReport describes the outcome of an UpsertBatch call.
// A failed item never aborts the rest of the batch.
type BatchReport struct {
	Index    string
	Total    int
	Written  int
	Failures []ItemFailure
}

// Failed returns the number of rejected records.
func (r *BatchReport) Failed() int {
	if r == nil {
		return 0
	}
	return len(r.Failures)
}

// OK reports whether every record was written.
func (r *BatchReport) OK() bool {
	return r.Failed() == 0
}

// Err returns a PartialBatchFailure describing the rejected records,
// or nil when the whole batch was written.
func (r *BatchReport) Err() error {
	if r.OK() {
		return nil
	}
	err := docerrors.PartialBatchError(r.Index, r.Failed(), r.Total)
	keys := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		keys = append(keys, fmt.Sprintf("%s: %v", f.Key, f.Err))
	}
	return err.WithDetail("items", strings.Join(keys, "; "))
}

func (r *BatchReport) fail(pos int, c Chunk, err error) {
	r.Failures = append(r.Failures, ItemFailure{Position: pos, Key: c.Key(), Err: err})
}

// LexicalIndex is an inverted index over chunk content scored by BM25.
type LexicalIndex interface {
	// EnsureSchema creates the index with its fixed schema if it does not
	// exist yet. Calling it again is a no-op.
	EnsureSchema(ctx context.Context) error

	// UpsertBatch writes chunks under fresh internal ids. Per-item failures
	// are reported in the BatchReport and the returned error is a
	// PartialBatchFailure; an unreachable store is IndexUnavailable.
	UpsertBatch(ctx context.Context, chunks []Chunk) (*BatchReport, error)

	// Search returns at most topK hits by BM25 score, descending. Ties are
	// broken by (doc_name, chunk_id) ascending.
	Search(ctx context.Context, query string, topK int) ([]Hit, error)

	// DeleteByDocument removes every chunk of docName and returns how many
	// records were removed.
	DeleteByDocument(ctx context.Context, docName string) (int, error)

	// Documents lists every document with its chunk count, by name.
	Documents(ctx context.Context) ([]DocumentInfo, error)

	// DocumentChunks returns a document's chunks ordered by chunk_id.
	DocumentChunks(ctx context.Context, docName string) ([]Chunk, error)

	// Keys returns the logical key of every stored record.
	Keys(ctx context.Context) ([]ChunkKey, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	Close() error
}

// VectorIndex is a nearest-neighbour index over chunk embeddings.
type VectorIndex interface {
	// EnsureSchema creates the index with its configured dimension if it
	// does not exist yet. Opening an index created with a different
	// dimension fails with ERR_402_DIMENSION_MISMATCH.
	EnsureSchema(ctx context.Context) error

	// Dimensions returns the fixed vector length of the index.
	Dimensions() int

	// UpsertBatch writes chunks with their vectors. A chunk without a vector
	// or with a vector of the wrong length is rejected as a validation
	// failure in the BatchReport.
	UpsertBatch(ctx context.Context, chunks []Chunk) (*BatchReport, error)

	// Search returns at most topK hits by cosine similarity, descending.
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)

	DeleteByDocument(ctx context.Context, docName string) (int, error)
	Keys(ctx context.Context) ([]ChunkKey, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// ErrDimensionMismatch indicates a vector of the wrong length.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// dimensionError wraps ErrDimensionMismatch as a ValidationFailure.
func dimensionError(expected, got int) *docerrors.DocError {
	return docerrors.New(docerrors.ErrCodeDimensionMismatch,
		ErrDimensionMismatch{Expected: expected, Got: got}.Error(),
		ErrDimensionMismatch{Expected: expected, Got: got})
}

// validateChunk checks the fields every index requires.
func validateChunk(c Chunk) error {
	if c.DocName == "" {
		return docerrors.ValidationError("doc_name is required", nil)
	}
	if c.ChunkID < 0 {
		return docerrors.ValidationError(fmt.Sprintf("chunk_id must be non-negative, got %d", c.ChunkID), nil)
	}
	if strings.TrimSpace(c.Content) == "" {
		return docerrors.ValidationError("content is empty", nil)
	}
	return nil
}

// errNotReady is returned when an operation runs before EnsureSchema.
func errNotReady(index string) error {
	return docerrors.IndexUnavailableError(index, fmt.Errorf("schema not initialised")).
		WithSuggestion("call EnsureSchema before reading or writing")
}

// errClosed is returned when an operation runs after Close.
func errClosed(index string) error {
	return docerrors.IndexUnavailableError(index, fmt.Errorf("index is closed"))
}

// sortHits orders hits by score descending then key ascending.
func sortHits(hits []Hit) {
	slices.SortStableFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return compareKeys(a.Key(), b.Key())
	})
}
