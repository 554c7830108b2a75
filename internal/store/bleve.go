package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// pageSize bounds how many hits a single listing request materialises.
const pageSize = 1000

// BleveLexicalIndex is the default LexicalIndex, backed by Bleve v2.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// NewBleveLexicalIndex returns an index rooted at path. An empty path keeps
// the index in memory. Nothing is opened until EnsureSchema.
func NewBleveLexicalIndex(path string) *BleveLexicalIndex {
	return &BleveLexicalIndex{path: path}
}

// Path returns the on-disk location of the index, or "" for memory.
func (b *BleveLexicalIndex) Path() string {
	return b.path
}

// EnsureSchema opens the index, creating it with the chunk mapping if it
// does not exist. A corrupted on-disk index is cleared and recreated.
func (b *BleveLexicalIndex) EnsureSchema(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errClosed(IndexLexical)
	}
	if b.index != nil {
		return nil
	}

	idx, err := openOrCreateBleve(b.path)
	if err != nil {
		return docerrors.IndexUnavailableError(IndexLexical, err).WithDetail("path", b.path)
	}
	b.index = idx
	return nil
}

func openOrCreateBleve(path string) (bleve.Index, error) {
	im, err := chunkMapping()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return bleve.NewMemOnly(im)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	if vErr := validateBleveIntegrity(path); vErr != nil {
		slog.Warn("lexical_index_corrupted",
			slog.String("path", path),
			slog.String("error", vErr.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w (original: %v)", path, rmErr, vErr)
		}
		slog.Info("lexical_index_cleared",
			slog.String("path", path),
			slog.String("reason", "corruption detected, documents must be re-ingested"))
	}

	idx, err := bleve.Open(path)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		return bleve.New(path, im)
	case err != nil && isBleveCorruption(err):
		slog.Warn("lexical_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("lexical index corrupted, cannot clear: %w (original: %v)", rmErr, err)
		}
		return bleve.New(path, im)
	case err != nil:
		return nil, fmt.Errorf("failed to open lexical index: %w", err)
	}
	return idx, nil
}

// validateBleveIntegrity checks index_meta.json before opening. A missing
// directory is fine: the index will be created.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isBleveCorruption(err error) bool {
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

// chunkMapping is the fixed lexical schema: doc_name as an exact keyword,
// content analyzed with doc_analyzer, chunk_id numeric. All three are stored
// so hits can be returned without a second lookup.
func chunkMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(AnalyzerName, analyzerConfig()); err != nil {
		return nil, fmt.Errorf("failed to add %s: %w", AnalyzerName, err)
	}

	docName := bleve.NewKeywordFieldMapping()
	docName.Store = true

	content := bleve.NewTextFieldMapping()
	content.Analyzer = AnalyzerName
	content.Store = true

	chunkID := bleve.NewNumericFieldMapping()
	chunkID.Store = true

	dm := bleve.NewDocumentMapping()
	dm.AddFieldMappingsAt(FieldDocName, docName)
	dm.AddFieldMappingsAt(FieldContent, content)
	dm.AddFieldMappingsAt(FieldChunkID, chunkID)

	im.DefaultMapping = dm
	im.DefaultAnalyzer = AnalyzerName
	return im, nil
}

// ready returns the open index or the reason it cannot be used.
// Callers hold b.mu.
func (b *BleveLexicalIndex) ready() (bleve.Index, error) {
	if b.closed {
		return nil, errClosed(IndexLexical)
	}
	if b.index == nil {
		return nil, errNotReady(IndexLexical)
	}
	return b.index, nil
}

// UpsertBatch indexes chunks under fresh UUIDs.
func (b *BleveLexicalIndex) UpsertBatch(ctx context.Context, chunks []Chunk) (*BatchReport, error) {
	report := &BatchReport{Index: IndexLexical, Total: len(chunks)}
	if len(chunks) == 0 {
		return report, nil
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	idx, err := b.ready()
	if err != nil {
		return report, err
	}

	batch := idx.NewBatch()
	for i, c := range chunks {
		if vErr := validateChunk(c); vErr != nil {
			report.fail(i, c, vErr)
			continue
		}
		if iErr := batch.Index(uuid.NewString(), bleveFields(c)); iErr != nil {
			report.fail(i, c, docerrors.Wrap(docerrors.ErrCodeIndexFailed, iErr))
			continue
		}
		report.Written++
	}

	if report.Written > 0 {
		if err := idx.Batch(batch); err != nil {
			report.Written = 0
			return report, docerrors.IndexUnavailableError(IndexLexical, err)
		}
	}
	return report, report.Err()
}

func bleveFields(c Chunk) map[string]interface{} {
	return map[string]interface{}{
		FieldDocName: c.DocName,
		FieldChunkID: float64(c.ChunkID),
		FieldContent: c.Content,
	}
}

// Search runs a match query over content.
func (b *BleveLexicalIndex) Search(ctx context.Context, queryStr string, topK int) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, err := b.ready()
	if err != nil {
		return nil, err
	}
	if topK <= 0 || strings.TrimSpace(queryStr) == "" {
		return []Hit{}, nil
	}

	mq := bleve.NewMatchQuery(queryStr)
	mq.SetField(FieldContent)
	mq.Analyzer = AnalyzerName

	req := bleve.NewSearchRequestOptions(mq, topK, 0, false)
	req.Fields = []string{FieldDocName, FieldChunkID, FieldContent}
	req.SortBy([]string{"-_score", FieldDocName, FieldChunkID})

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, docerrors.IndexUnavailableError(IndexLexical, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{Chunk: chunkFromFields(h.Fields), Score: h.Score})
	}
	return hits, nil
}

// DeleteByDocument removes every record whose doc_name equals docName.
func (b *BleveLexicalIndex) DeleteByDocument(ctx context.Context, docName string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, err := b.ready()
	if err != nil {
		return 0, err
	}

	matches, err := collectAll(ctx, idx, docQuery(docName), nil, nil)
	if err != nil {
		return 0, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	if len(matches) == 0 {
		return 0, nil
	}

	batch := idx.NewBatch()
	for _, m := range matches {
		batch.Delete(m.ID)
	}
	if err := idx.Batch(batch); err != nil {
		return 0, docerrors.IndexUnavailableError(IndexLexical, err).WithDetail("doc_name", docName)
	}
	return len(matches), nil
}

// Documents lists document names with their chunk counts.
func (b *BleveLexicalIndex) Documents(ctx context.Context) ([]DocumentInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, err := b.ready()
	if err != nil {
		return nil, err
	}

	matches, err := collectAll(ctx, idx, bleve.NewMatchAllQuery(), []string{FieldDocName}, nil)
	if err != nil {
		return nil, docerrors.IndexUnavailableError(IndexLexical, err)
	}

	counts := make(map[string]int)
	for _, m := range matches {
		name, _ := m.Fields[FieldDocName].(string)
		counts[name]++
	}
	docs := make([]DocumentInfo, 0, len(counts))
	for name, n := range counts {
		docs = append(docs, DocumentInfo{DocName: name, Chunks: n})
	}
	slices.SortFunc(docs, func(a, b DocumentInfo) int { return strings.Compare(a.DocName, b.DocName) })
	return docs, nil
}

// DocumentChunks returns the stored chunks of one document by chunk_id.
func (b *BleveLexicalIndex) DocumentChunks(ctx context.Context, docName string) ([]Chunk, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, err := b.ready()
	if err != nil {
		return nil, err
	}

	matches, err := collectAll(ctx, idx, docQuery(docName),
		[]string{FieldDocName, FieldChunkID, FieldContent}, []string{FieldChunkID, "_id"})
	if err != nil {
		return nil, docerrors.IndexUnavailableError(IndexLexical, err)
	}

	chunks := make([]Chunk, 0, len(matches))
	for _, m := range matches {
		chunks = append(chunks, chunkFromFields(m.Fields))
	}
	return chunks, nil
}

// Keys returns the logical key of every record.
func (b *BleveLexicalIndex) Keys(ctx context.Context) ([]ChunkKey, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, err := b.ready()
	if err != nil {
		return nil, err
	}

	matches, err := collectAll(ctx, idx, bleve.NewMatchAllQuery(), []string{FieldDocName, FieldChunkID}, nil)
	if err != nil {
		return nil, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	keys := make([]ChunkKey, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, chunkFromFields(m.Fields).Key())
	}
	return keys, nil
}

// Count returns the number of stored records.
func (b *BleveLexicalIndex) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, err := b.ready()
	if err != nil {
		return 0, err
	}
	n, err := idx.DocCount()
	if err != nil {
		return 0, docerrors.IndexUnavailableError(IndexLexical, err)
	}
	return int(n), nil
}

// Close closes the index. It is safe to call more than once.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

func docQuery(docName string) query.Query {
	tq := bleve.NewTermQuery(docName)
	tq.SetField(FieldDocName)
	return tq
}

// collectAll pages through every match of q.
func collectAll(ctx context.Context, idx bleve.Index, q query.Query, fields, sortBy []string) (search.DocumentMatchCollection, error) {
	var out search.DocumentMatchCollection
	for from := 0; ; from += pageSize {
		req := bleve.NewSearchRequestOptions(q, pageSize, from, false)
		req.Fields = fields
		if len(sortBy) > 0 {
			req.SortBy(sortBy)
		} else {
			req.SortBy([]string{"_id"})
		}
		res, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Hits...)
		if len(res.Hits) < pageSize || uint64(len(out)) >= res.Total {
			return out, nil
		}
	}
}

func chunkFromFields(fields map[string]interface{}) Chunk {
	var c Chunk
	c.DocName, _ = fields[FieldDocName].(string)
	c.Content, _ = fields[FieldContent].(string)
	switch v := fields[FieldChunkID].(type) {
	case float64:
		c.ChunkID = int(v)
	case int:
		c.ChunkID = v
	}
	return c
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)
