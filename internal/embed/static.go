package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// StaticDimensions is the default dimension of the static embedder.
const StaticDimensions = 256

const (
	wordWeight  = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// StaticEmbedder hashes words and character trigrams into a fixed-size
// vector. It needs no network or model, is deterministic, and places texts
// that share vocabulary close together. Semantic quality is low; it exists
// for offline use and tests.
type StaticEmbedder struct {
	mu     sync.RWMutex
	dims   int
	closed bool
}

// NewStaticEmbedder returns a static embedder producing dims-length
// vectors. A non-positive dims selects StaticDimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed returns the unit-length hashed vector of text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, failure(ReasonUnavailable, "embedder is closed", nil)
	}
	if IsBlank(text) {
		return []float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, classify("static", err)
	}

	vec := make([]float32, e.dims)
	for _, w := range words(text) {
		vec[hashToIndex(w, e.dims)] += wordWeight
	}
	for _, g := range runeNgrams(squash(text), ngramSize) {
		vec[hashToIndex(g, e.dims)] += ngramWeight
	}
	return normalizeVector(vec), nil
}

// EmbedBatch embeds each text.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// words lowercases text and splits it into letter/digit runs. Han, Hiragana,
// Katakana and Hangul characters become single-character words so
// unsegmented CJK text still shares features.
func words(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case isCJK(r):
			flush()
			out = append(out, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}

// squash keeps only lowercased letters and digits.
func squash(text string) []rune {
	out := make([]rune, 0, len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return out
}

// runeNgrams returns every n-rune window of rs.
func runeNgrams(rs []rune, n int) []string {
	if len(rs) < n {
		return []string{}
	}
	out := make([]string, 0, len(rs)-n+1)
	for i := 0; i+n <= len(rs); i++ {
		out = append(out, string(rs[i:i+n]))
	}
	return out
}

// hashToIndex maps s onto [0, size) with FNV-64.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// Dimensions returns the vector length.
func (e *StaticEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns "static".
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Available is true until Close.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

var _ Embedder = (*StaticEmbedder)(nil)
