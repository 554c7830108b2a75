package mcp

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/docrag/pkg/searcher"
)

func TestFormatResults(t *testing.T) {
	// Given: two ranked results
	resp := &searcher.Response{
		Strategy: searcher.Hybrid,
		Results: []searcher.Result{
			{DocName: "a.md", ChunkID: 0, Content: "first", Score: 2, Source: searcher.SourceLexical},
			{DocName: "b.md", ChunkID: 4, Content: "second", Score: 1, Source: searcher.SourceVector},
		},
	}

	// When: formatting
	out := FormatResults("query", resp)

	// Then: a numbered markdown list in rank order
	assert.Contains(t, out, `## Results for "query"`)
	assert.Contains(t, out, "Found 2 results (hybrid)")
	assert.Contains(t, out, "### 1. a.md #0 (score: 2.0000, lexical)")
	assert.Contains(t, out, "### 2. b.md #4 (score: 1.0000, vector)")
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
}

func TestFormatResults_Singular(t *testing.T) {
	resp := &searcher.Response{Strategy: searcher.Lexical, Results: []searcher.Result{{DocName: "a.md"}}}

	assert.Contains(t, FormatResults("q", resp), "Found 1 result (lexical)")
}

func TestFormatResults_EmptyDegraded(t *testing.T) {
	resp := &searcher.Response{
		Strategy: searcher.Hybrid,
		Warnings: []searcher.BranchError{{Branch: searcher.SourceVector, Err: errors.New("down")}},
	}

	out := FormatResults("q", resp)

	assert.Contains(t, out, "vector search unavailable, showing lexical results only")
	assert.Contains(t, out, `No results found for "q"`)
}

func TestToRetrievalOutput_EmptyResultsNotNil(t *testing.T) {
	out := ToRetrievalOutput("q", &searcher.Response{Strategy: searcher.Vector})

	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
	assert.Equal(t, "vector", out.Strategy)
	assert.Nil(t, out.Warnings)
}
