package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/coder/hnsw"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// VectorConfig configures an HNSWVectorIndex.
type VectorConfig struct {
	// Dimensions is the fixed vector length. Zero adopts the dimension of an
	// existing index; creating a new index requires a positive value.
	Dimensions int
	M          int
	EfSearch   int
	// ExactLimit is the live record count up to which Search scans every
	// vector instead of walking the graph. Negative always uses the graph.
	ExactLimit int
}

// DefaultExactLimit is the ExactLimit used when none is configured.
const DefaultExactLimit = 2048

// DefaultVectorConfig returns the defaults for dims-length vectors.
func DefaultVectorConfig(dims int) VectorConfig {
	return VectorConfig{Dimensions: dims, M: 16, EfSearch: 64, ExactLimit: DefaultExactLimit}
}

// vectorRecord is what the index keeps for each live graph node.
type vectorRecord struct {
	DocName string
	ChunkID int
	Content string
	// Vector is the unit-length copy that was added to the graph.
	Vector []float32
}

type vectorMeta struct {
	Dimensions int
	M          int
	EfSearch   int
	NextKey    uint64
	Records    map[uint64]vectorRecord
}

// HNSWVectorIndex implements VectorIndex on coder/hnsw with cosine distance.
//
// Deletes are lazy: a deleted node stays in the graph but loses its record,
// so it is skipped at query time. Search oversamples by the number of such
// orphans so topK live hits are still found.
//
// Small indexes are searched exactly. Larger ones walk the graph, whose
// levels come from spineLevels rather than a random source, so the top layer
// always holds a single node and every walk starts from it. The same query
// against the same graph therefore returns the same hits.
type HNSWVectorIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	config  VectorConfig
	path    string
	levels  *spineLevels
	records map[uint64]vectorRecord
	byDoc   map[string][]uint64
	nextKey uint64
	closed  bool
}

// NewHNSWVectorIndex returns an index persisted at path (plus path+".meta").
// An empty path keeps the index in memory. Nothing is read until
// EnsureSchema.
func NewHNSWVectorIndex(path string, cfg VectorConfig) *HNSWVectorIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	if cfg.ExactLimit == 0 {
		cfg.ExactLimit = DefaultExactLimit
	}
	return &HNSWVectorIndex{path: path, config: cfg}
}

func (s *HNSWVectorIndex) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = s.config.M
	g.EfSearch = s.config.EfSearch
	g.Ml = spineMl
	s.levels = &spineLevels{}
	g.Rng = rand.New(s.levels)
	return g
}

const spineMl = 0.25

// spineLevels is the rand.Source behind the graph's level draws. The library
// climbs one level per draw at or below Ml, so climb zero draws followed by a
// high one yield exactly climb levels.
//
// The library enters each layer through a node taken from a map, which is
// only stable while the top layer holds one node. spineLevels keeps every
// node on the base layer except the one inserted when the graph reaches
// 4, 16, 64, ... nodes. That node gets a layer of its own on top of the
// existing ones.
type spineLevels struct {
	climb int
}

// next arms the source for the node inserted into a graph of n nodes.
func (l *spineLevels) next(n int) {
	l.climb = 0
	step := int(math.Round(1 / spineMl))
	for p := step; p <= n; p *= step {
		if p == n {
			l.climb = spineLevel(n, step)
			return
		}
	}
}

// spineLevel returns the layer index for the node promoted at size n.
func spineLevel(n, step int) int {
	level := 0
	for ; n >= step; n /= step {
		level++
	}
	return level
}

func (l *spineLevels) Int63() int64 {
	if l.climb > 0 {
		l.climb--
		return 0
	}
	return 1 << 62
}

func (l *spineLevels) Seed(int64) {}

// Dimensions returns the fixed vector length.
func (s *HNSWVectorIndex) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Dimensions
}

// EnsureSchema loads an existing index from disk or creates an empty one.
// A stored dimension that differs from the configured one is an error.
func (s *HNSWVectorIndex) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed(IndexVector)
	}
	if s.graph != nil {
		return nil
	}

	if s.path != "" {
		meta, err := readVectorMeta(s.path)
		if err != nil && !os.IsNotExist(err) {
			return docerrors.IndexUnavailableError(IndexVector, err).WithDetail("path", s.path)
		}
		if meta != nil {
			return s.load(meta)
		}
	}

	if s.config.Dimensions <= 0 {
		return docerrors.ConfigError("vector dimension must be positive to create an index", nil).
			WithDetail("dimensions", fmt.Sprint(s.config.Dimensions))
	}
	s.graph = s.newGraph()
	s.records = make(map[uint64]vectorRecord)
	s.byDoc = make(map[string][]uint64)
	return s.persist()
}

func (s *HNSWVectorIndex) load(meta *vectorMeta) error {
	if s.config.Dimensions != 0 && meta.Dimensions != s.config.Dimensions {
		return dimensionError(meta.Dimensions, s.config.Dimensions).
			WithDetail("path", s.path).
			WithSuggestion("delete the vector index or configure the dimension it was created with")
	}
	s.config.Dimensions = meta.Dimensions
	s.config.M = meta.M
	s.config.EfSearch = meta.EfSearch

	g := s.newGraph()
	if f, err := os.Open(s.path); err == nil {
		defer f.Close()
		// Import needs an io.ByteReader.
		if err := g.Import(bufio.NewReader(f)); err != nil {
			return docerrors.New(docerrors.ErrCodeCorruptIndex, "failed to import vector graph", err).
				WithDetail("path", s.path)
		}
	} else if !os.IsNotExist(err) {
		return docerrors.IndexUnavailableError(IndexVector, err)
	}

	s.graph = g
	s.records = meta.Records
	if s.records == nil {
		s.records = make(map[uint64]vectorRecord)
	}
	s.nextKey = meta.NextKey
	s.byDoc = make(map[string][]uint64)
	for key, r := range s.records {
		s.byDoc[r.DocName] = append(s.byDoc[r.DocName], key)
	}
	return nil
}

func (s *HNSWVectorIndex) ready() error {
	if s.closed {
		return errClosed(IndexVector)
	}
	if s.graph == nil {
		return errNotReady(IndexVector)
	}
	return nil
}

// UpsertBatch adds every valid chunk as a new graph node.
func (s *HNSWVectorIndex) UpsertBatch(ctx context.Context, chunks []Chunk) (*BatchReport, error) {
	report := &BatchReport{Index: IndexVector, Total: len(chunks)}
	if len(chunks) == 0 {
		return report, nil
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return report, err
	}

	for i, c := range chunks {
		vec, err := s.prepare(c)
		if err != nil {
			report.fail(i, c, err)
			continue
		}
		key := s.nextKey
		s.nextKey++
		s.levels.next(s.graph.Len())
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.records[key] = vectorRecord{DocName: c.DocName, ChunkID: c.ChunkID, Content: c.Content, Vector: vec}
		s.byDoc[c.DocName] = append(s.byDoc[c.DocName], key)
		report.Written++
	}

	if report.Written > 0 {
		if err := s.persist(); err != nil {
			return report, err
		}
	}
	return report, report.Err()
}

// prepare validates c and returns a normalised copy of its vector.
func (s *HNSWVectorIndex) prepare(c Chunk) ([]float32, error) {
	if err := validateChunk(c); err != nil {
		return nil, err
	}
	if len(c.Vector) == 0 {
		return nil, docerrors.New(docerrors.ErrCodeMissingVector,
			fmt.Sprintf("chunk %s has no vector", c.Key()), nil)
	}
	if len(c.Vector) != s.config.Dimensions {
		return nil, dimensionError(s.config.Dimensions, len(c.Vector))
	}
	vec := slices.Clone(c.Vector)
	if !normalizeInPlace(vec) {
		return nil, docerrors.ValidationError(fmt.Sprintf("chunk %s has a zero-magnitude vector", c.Key()), nil)
	}
	return vec, nil
}

// Search returns the topK live nodes nearest to vector.
func (s *HNSWVectorIndex) Search(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(vector) != s.config.Dimensions {
		return nil, dimensionError(s.config.Dimensions, len(vector))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 || len(s.records) == 0 {
		return []Hit{}, nil
	}

	q := slices.Clone(vector)
	if !normalizeInPlace(q) {
		return nil, docerrors.ValidationError("query vector has zero magnitude", nil)
	}

	var hits []Hit
	if len(s.records) <= s.config.ExactLimit {
		hits = s.scan(q)
	} else {
		hits = s.walk(q, topK)
	}
	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// scan scores every live record.
func (s *HNSWVectorIndex) scan(q []float32) []Hit {
	hits := make([]Hit, 0, len(s.records))
	for _, r := range s.records {
		hits = append(hits, r.hit(s.graph.Distance(q, r.Vector)))
	}
	return hits
}

// walk searches the graph, oversampling past orphaned nodes.
func (s *HNSWVectorIndex) walk(q []float32, topK int) []Hit {
	orphans := s.graph.Len() - len(s.records)
	k := min(topK+orphans, s.graph.Len())

	nodes := s.graph.Search(q, k)
	hits := make([]Hit, 0, len(nodes))
	for _, n := range nodes {
		r, live := s.records[n.Key]
		if !live {
			continue
		}
		hits = append(hits, r.hit(s.graph.Distance(q, n.Value)))
	}
	return hits
}

func (r vectorRecord) hit(distance float32) Hit {
	return Hit{
		Chunk: Chunk{DocName: r.DocName, ChunkID: r.ChunkID, Content: r.Content},
		Score: cosineScore(distance),
	}
}

// DeleteByDocument orphans every node of docName.
func (s *HNSWVectorIndex) DeleteByDocument(ctx context.Context, docName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return 0, err
	}

	keys := s.byDoc[docName]
	if len(keys) == 0 {
		return 0, nil
	}
	for _, key := range keys {
		delete(s.records, key)
	}
	delete(s.byDoc, docName)

	if err := s.persist(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Keys returns the logical key of every live node.
func (s *HNSWVectorIndex) Keys(ctx context.Context) ([]ChunkKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	keys := make([]ChunkKey, 0, len(s.records))
	for _, r := range s.records {
		keys = append(keys, ChunkKey{DocName: r.DocName, ChunkID: r.ChunkID})
	}
	slices.SortFunc(keys, compareKeys)
	return keys, nil
}

// Count returns the number of live nodes.
func (s *HNSWVectorIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return 0, err
	}
	return len(s.records), nil
}

// VectorStats reports live and orphaned graph nodes.
type VectorStats struct {
	Live       int
	GraphNodes int
	Orphans    int
}

// Stats returns node counts. Orphans are lazily deleted nodes.
func (s *HNSWVectorIndex) Stats() VectorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph == nil {
		return VectorStats{}
	}
	return VectorStats{
		Live:       len(s.records),
		GraphNodes: s.graph.Len(),
		Orphans:    s.graph.Len() - len(s.records),
	}
}

// Close releases the graph. Data is already on disk.
func (s *HNSWVectorIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.graph = nil
	return nil
}

// persist writes the graph and metadata atomically. Callers hold s.mu.
func (s *HNSWVectorIndex) persist() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return docerrors.IndexUnavailableError(IndexVector, err)
	}

	if s.graph.Len() > 0 {
		if err := writeAtomic(s.path, func(f *os.File) error { return s.graph.Export(f) }); err != nil {
			return docerrors.IndexUnavailableError(IndexVector, fmt.Errorf("failed to save graph: %w", err))
		}
	} else {
		_ = os.Remove(s.path)
	}

	meta := vectorMeta{
		Dimensions: s.config.Dimensions,
		M:          s.config.M,
		EfSearch:   s.config.EfSearch,
		NextKey:    s.nextKey,
		Records:    s.records,
	}
	if err := writeAtomic(s.path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(meta) }); err != nil {
		return docerrors.IndexUnavailableError(IndexVector, fmt.Errorf("failed to save metadata: %w", err))
	}
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readVectorMeta(vectorPath string) (*vectorMeta, error) {
	f, err := os.Open(vectorPath + ".meta")
	if err != nil {
		return nil, err
	}
	defer func() {
		if cErr := f.Close(); cErr != nil {
			slog.Warn("vector_meta_close_failed", slog.String("error", cErr.Error()))
		}
	}()

	var meta vectorMeta
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode vector metadata: %w", err)
	}
	return &meta, nil
}

// ReadVectorDimensions returns the dimension of the index stored at
// vectorPath, or 0 when none exists yet.
func ReadVectorDimensions(vectorPath string) (int, error) {
	meta, err := readVectorMeta(vectorPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return meta.Dimensions, nil
}

// normalizeInPlace scales v to unit length and reports false for a zero vector.
func normalizeInPlace(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return false
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// cosineScore maps cosine distance [0,2] to a similarity in [0,1],
// i.e. (1 + cos) / 2.
func cosineScore(distance float32) float64 {
	return 1 - float64(distance)/2
}

var _ VectorIndex = (*HNSWVectorIndex)(nil)
