package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// StopFilterName is the name of the document stop word filter.
	StopFilterName = "doc_stop"

	// AnalyzerName is the analyzer applied to chunk content and queries.
	AnalyzerName = "doc_analyzer"
)

// DefaultStopWords are dropped from content and queries before scoring.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"in", "is", "it", "of", "on", "or", "that", "the", "this", "to",
	"was", "were", "with",
}

func init() {
	_ = registry.RegisterTokenFilter(StopFilterName, stopFilterConstructor)
}

// analyzerConfig describes doc_analyzer: unicode word segmentation, CJK
// width folding, lowercasing, stop words, then CJK bigrams so Chinese and
// Japanese text is searchable without a dictionary.
func analyzerConfig() map[string]interface{} {
	return map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			cjk.WidthName,
			lowercase.Name,
			StopFilterName,
			cjk.BigramName,
		},
	}
}

var (
	sharedOnce     sync.Once
	sharedAnalyzer analysis.Analyzer
	sharedErr      error
)

func defaultAnalyzer() (analysis.Analyzer, error) {
	sharedOnce.Do(func() {
		cache := registry.NewCache()
		sharedAnalyzer, sharedErr = cache.DefineAnalyzer(AnalyzerName, analyzerConfig())
		if sharedErr != nil {
			sharedErr = fmt.Errorf("failed to define %s: %w", AnalyzerName, sharedErr)
		}
	})
	return sharedAnalyzer, sharedErr
}

// Analyze runs text through doc_analyzer and returns its terms in order.
// The SQLite backend and vocabulary extraction use it so every lexical
// component agrees with the Bleve index on what a term is.
func Analyze(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	a, err := defaultAnalyzer()
	if err != nil {
		// Registration is static; fall back to whitespace splitting.
		return strings.Fields(strings.ToLower(text))
	}
	stream := a.Analyze([]byte(text))
	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		terms = append(terms, string(tok.Term))
	}
	return terms
}

// BuildStopWordMap builds a lookup set from a list of stop words.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

func stopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &stopFilter{stopWords: BuildStopWordMap(DefaultStopWords)}, nil
}

type stopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *stopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := input[:0]
	for _, tok := range input {
		if _, stop := f.stopWords[string(tok.Term)]; !stop {
			out = append(out, tok)
		}
	}
	return out
}
