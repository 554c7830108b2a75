// Package vocab ranks the characteristic terms of an indexed document by
// TF-IDF against the rest of the collection.
//
// Terms come from the lexical index's own analyzer, so the vocabulary of a
// document is exactly what a lexical query can match.
package vocab

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/errgroup"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
)

// DefaultLimit is the number of terms returned when Options.Limit is zero.
const DefaultLimit = 50

// Source is the read side of a lexical index. store.LexicalIndex
// implements it.
type Source interface {
	Documents(ctx context.Context) ([]store.DocumentInfo, error)
	DocumentChunks(ctx context.Context, docName string) ([]store.Chunk, error)
}

// Term is one ranked vocabulary entry.
type Term struct {
	Term string `json:"term"`
	// Count is the term's frequency in the document.
	Count int `json:"count"`
	// DocFreq is the number of documents containing the term.
	DocFreq int     `json:"doc_freq"`
	Score   float64 `json:"score"`
}

// Options controls Extract.
type Options struct {
	// Limit caps the result; negative returns every term.
	Limit int
	// MinLength drops shorter terms, counted in runes. Defaults to 2.
	MinLength int
	// KeepNumbers keeps purely numeric terms.
	KeepNumbers bool
	// Workers bounds concurrent document scans. Defaults to 4.
	Workers int
}

// Extract returns the terms of docName ordered by TF-IDF score, highest
// first, ties broken alphabetically. Scores use smoothed inverse document
// frequency, ln((1+N)/(1+df))+1, and are L2-normalised over the document.
func Extract(ctx context.Context, src Source, docName string, opts Options) ([]Term, error) {
	if strings.TrimSpace(docName) == "" {
		return nil, docerrors.ValidationError("document name must not be empty", nil)
	}
	if opts.MinLength <= 0 {
		opts.MinLength = 2
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}

	docs, err := src.Documents(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(docs, func(d store.DocumentInfo) bool { return d.DocName == docName }) {
		return nil, docerrors.DocumentNotFoundError(docName)
	}

	counts, err := termCounts(ctx, src, docName, opts)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return []Term{}, nil
	}

	df, err := documentFrequencies(ctx, src, docs, docName, counts, opts)
	if err != nil {
		return nil, err
	}

	n := float64(len(docs))
	terms := make([]Term, 0, len(counts))
	var norm float64
	for term, c := range counts {
		idf := math.Log((1+n)/(1+float64(df[term]))) + 1
		score := float64(c) * idf
		norm += score * score
		terms = append(terms, Term{Term: term, Count: c, DocFreq: df[term], Score: score})
	}
	norm = math.Sqrt(norm)
	for i := range terms {
		terms[i].Score /= norm
	}

	slices.SortFunc(terms, func(a, b Term) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Term, b.Term)
	})
	if opts.Limit > 0 && len(terms) > opts.Limit {
		terms = terms[:opts.Limit]
	}
	return terms, nil
}

// termCounts counts the kept terms of one document.
func termCounts(ctx context.Context, src Source, docName string, opts Options) (map[string]int, error) {
	chunks, err := src.DocumentChunks(ctx, docName)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, ch := range chunks {
		for _, t := range store.Analyze(ch.Content) {
			if keep(t, opts) {
				counts[t]++
			}
		}
	}
	return counts, nil
}

// documentFrequencies counts, for each term of the target document, how
// many documents contain it. The target itself counts once.
func documentFrequencies(ctx context.Context, src Source, docs []store.DocumentInfo, target string, terms map[string]int, opts Options) (map[string]int, error) {
	df := make(map[string]int, len(terms))
	for t := range terms {
		df[t] = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, d := range docs {
		if d.DocName == target {
			continue
		}
		name := d.DocName
		g.Go(func() error {
			chunks, err := src.DocumentChunks(gctx, name)
			if err != nil {
				return err
			}
			seen := make(map[string]struct{})
			for _, ch := range chunks {
				for _, t := range store.Analyze(ch.Content) {
					if _, ok := terms[t]; ok {
						seen[t] = struct{}{}
					}
				}
			}
			mu.Lock()
			for t := range seen {
				df[t]++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return df, nil
}

func keep(term string, opts Options) bool {
	if len([]rune(term)) < opts.MinLength {
		return false
	}
	if opts.KeepNumbers {
		return true
	}
	return strings.IndexFunc(term, func(r rune) bool { return !unicode.IsDigit(r) && r != '.' && r != ',' }) >= 0
}
