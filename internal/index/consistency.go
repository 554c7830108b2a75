// Package index provides maintenance operations over a data directory:
// the cross-index consistency check, directory ingestion and incremental
// updates driven by file events.
package index

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanVector is a vector record whose chunk is not in the
	// lexical index.
	InconsistencyOrphanVector InconsistencyType = iota
	// InconsistencyMissingVector is a lexical chunk without a vector.
	InconsistencyMissingVector
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Inconsistency represents a detected cross-index issue.
type Inconsistency struct {
	Type InconsistencyType `json:"-"`
	Kind string            `json:"type"`
	Key  store.ChunkKey    `json:"key"`
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// LexicalChunks and VectorChunks are the distinct keys in each index.
	LexicalChunks int `json:"lexical_chunks"`
	VectorChunks  int `json:"vector_chunks"`

	Inconsistencies []Inconsistency `json:"inconsistencies"`

	Duration time.Duration `json:"duration"`
}

// Consistent reports whether no issue was found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// Count returns the number of issues of type t.
func (r *CheckResult) Count(t InconsistencyType) int {
	n := 0
	for _, issue := range r.Inconsistencies {
		if issue.Type == t {
			n++
		}
	}
	return n
}

// RepairResult summarises a Repair call.
type RepairResult struct {
	// OrphanDocuments are documents removed from the vector index because
	// the lexical index no longer holds them.
	OrphanDocuments []string `json:"orphan_documents,omitempty"`
	OrphansRemoved  int      `json:"orphans_removed"`

	// Reembedded is the number of missing vectors restored.
	Reembedded int `json:"reembedded"`

	// Unrepaired counts issues left in place.
	Unrepaired int `json:"unrepaired"`
}

// ConsistencyChecker validates that the lexical and vector indexes hold the
// same (doc_name, chunk_id) set. The lexical index is the source of truth:
// a chunk with no vector only costs recall, a vector with no lexical chunk
// is stale.
type ConsistencyChecker struct {
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	embedder embed.Embedder
}

// NewConsistencyChecker creates a checker. embedder may be nil, in which
// case Repair cannot restore missing vectors.
func NewConsistencyChecker(lexical store.LexicalIndex, vector store.VectorIndex, embedder embed.Embedder) *ConsistencyChecker {
	return &ConsistencyChecker{
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
	}
}

// Check compares the key sets of both indexes.
// This is O(n) where n is the total number of records across both indexes.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	lexKeys, err := c.lexical.Keys(ctx)
	if err != nil {
		return nil, err
	}
	vecKeys, err := c.vector.Keys(ctx)
	if err != nil {
		return nil, err
	}

	lexSet := keySet(lexKeys)
	vecSet := keySet(vecKeys)

	var issues []Inconsistency
	for k := range vecSet {
		if _, ok := lexSet[k]; !ok {
			issues = append(issues, newIssue(InconsistencyOrphanVector, k))
		}
	}
	for k := range lexSet {
		if _, ok := vecSet[k]; !ok {
			issues = append(issues, newIssue(InconsistencyMissingVector, k))
		}
	}
	slices.SortFunc(issues, func(a, b Inconsistency) int {
		if a.Type != b.Type {
			return int(a.Type) - int(b.Type)
		}
		if a.Key.Less(b.Key) {
			return -1
		}
		if b.Key.Less(a.Key) {
			return 1
		}
		return 0
	})

	return &CheckResult{
		LexicalChunks:   len(lexSet),
		VectorChunks:    len(vecSet),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair fixes detected inconsistencies.
//   - Orphan vectors: a document absent from the lexical index is deleted
//     from the vector index. Orphans of a document the lexical index still
//     holds are left alone, since deleting them would drop the document's
//     valid vectors too.
//   - Missing vectors: re-embedded from the lexical content when an
//     embedder is available, otherwise logged (requires re-ingest).
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) (*RepairResult, error) {
	res := &RepairResult{}

	lexDocs, err := c.lexical.Documents(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(lexDocs))
	for _, d := range lexDocs {
		known[d.DocName] = struct{}{}
	}

	orphanDocs := make(map[string]struct{})
	missing := make(map[string][]int)
	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanVector:
			if _, ok := known[issue.Key.DocName]; ok {
				res.Unrepaired++
				continue
			}
			orphanDocs[issue.Key.DocName] = struct{}{}
		case InconsistencyMissingVector:
			missing[issue.Key.DocName] = append(missing[issue.Key.DocName], issue.Key.ChunkID)
		}
	}

	for doc := range orphanDocs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := c.vector.DeleteByDocument(ctx, doc)
		if err != nil {
			slog.Warn("orphan_delete_failed", slog.String("doc", doc), slog.String("error", err.Error()))
			res.Unrepaired++
			continue
		}
		res.OrphanDocuments = append(res.OrphanDocuments, doc)
		res.OrphansRemoved += n
	}
	slices.Sort(res.OrphanDocuments)
	if res.OrphansRemoved > 0 {
		slog.Info("orphan_vectors_removed",
			slog.Int("documents", len(res.OrphanDocuments)),
			slog.Int("records", res.OrphansRemoved))
	}

	if len(missing) == 0 {
		return res, nil
	}
	if c.embedder == nil {
		n := 0
		for _, ids := range missing {
			n += len(ids)
		}
		res.Unrepaired += n
		slog.Warn("index has chunks without vectors, run 'docrag ingest --replace' to rebuild",
			slog.Int("missing_count", n))
		return res, nil
	}

	for doc, ids := range missing {
		restored, err := c.reembed(ctx, doc, ids)
		res.Reembedded += restored
		res.Unrepaired += len(ids) - restored
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			slog.Warn("reembed_failed", slog.String("doc", doc), slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// reembed restores the vectors of doc's chunks listed in ids.
func (c *ConsistencyChecker) reembed(ctx context.Context, doc string, ids []int) (int, error) {
	chunks, err := c.lexical.DocumentChunks(ctx, doc)
	if err != nil {
		return 0, err
	}
	want := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var (
		batch []store.Chunk
		texts []string
	)
	for _, ch := range chunks {
		if _, ok := want[ch.ChunkID]; !ok {
			continue
		}
		delete(want, ch.ChunkID)
		batch = append(batch, ch)
		texts = append(texts, ch.Content)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	out := batch[:0]
	for i, ch := range batch {
		if len(vectors[i]) == 0 {
			continue
		}
		ch.Vector = vectors[i]
		out = append(out, ch)
	}
	if len(out) == 0 {
		return 0, nil
	}
	report, err := c.vector.UpsertBatch(ctx, out)
	if report == nil {
		return 0, err
	}
	return report.Written, err
}

// QuickCheck performs a lightweight consistency check.
// It only verifies counts match across indexes, not individual keys.
// Returns true if counts are consistent.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	lexCount, err := c.lexical.Count(ctx)
	if err != nil {
		return false, err
	}
	vecCount, err := c.vector.Count(ctx)
	if err != nil {
		return false, err
	}

	consistent := lexCount == vecCount
	if !consistent {
		slog.Debug("index counts mismatch",
			slog.Int("lexical", lexCount),
			slog.Int("vector", vecCount))
	}
	return consistent, nil
}

func keySet(keys []store.ChunkKey) map[store.ChunkKey]struct{} {
	set := make(map[store.ChunkKey]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func newIssue(t InconsistencyType, k store.ChunkKey) Inconsistency {
	return Inconsistency{Type: t, Kind: t.String(), Key: k}
}
