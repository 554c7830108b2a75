package indexer

import (
	"errors"
	"time"

	"github.com/Aman-CERP/docrag/internal/store"
)

// Skip reasons recorded in SkippedChunk.
const (
	SkipBlank          = "blank"
	SkipEmptyEmbedding = "empty_embedding"
	SkipEmbedFailed    = "embedding_failed"
)

// SkippedChunk is a chunk left out of one or both indexes.
type SkippedChunk struct {
	ChunkID int    `json:"chunk_id"`
	Reason  string `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

// Report describes one Ingest call.
type Report struct {
	DocName string `json:"doc_name"`

	// Chunks is the number of chunks the text split into.
	Chunks int `json:"chunks"`

	Lexical *store.BatchReport `json:"lexical,omitempty"`
	Vector  *store.BatchReport `json:"vector,omitempty"`

	// Skipped lists chunks not written to the vector index. Blank chunks
	// are missing from the lexical index as well.
	Skipped []SkippedChunk `json:"skipped,omitempty"`

	LexicalErr error `json:"-"`
	VectorErr  error `json:"-"`

	Duration time.Duration `json:"duration"`
}

// SkippedIDs returns the ids of skipped chunks in order.
func (r *Report) SkippedIDs() []int {
	ids := make([]int, len(r.Skipped))
	for i, s := range r.Skipped {
		ids[i] = s.ChunkID
	}
	return ids
}

// LexicalWritten returns the number of records written to the lexical index.
func (r *Report) LexicalWritten() int {
	if r.Lexical == nil {
		return 0
	}
	return r.Lexical.Written
}

// VectorWritten returns the number of records written to the vector index.
func (r *Report) VectorWritten() int {
	if r.Vector == nil {
		return 0
	}
	return r.Vector.Written
}

// Err joins the per-index errors, or returns nil when both succeeded.
func (r *Report) Err() error {
	return errors.Join(r.LexicalErr, r.VectorErr)
}
