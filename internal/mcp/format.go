package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/docrag/pkg/searcher"
)

// FormatResults renders a retrieval response as markdown for clients that
// display text content.
func FormatResults(query string, resp *searcher.Response) string {
	var sb strings.Builder
	for _, w := range resp.Warnings {
		fmt.Fprintf(&sb, "> **Warning:** %s search unavailable, showing %s results only.\n\n",
			w.Branch, otherBranch(w.Branch))
	}

	if len(resp.Results) == 0 {
		fmt.Fprintf(&sb, "No results found for \"%s\"", query)
		return sb.String()
	}

	fmt.Fprintf(&sb, "## Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(resp.Results))
	if len(resp.Results) != 1 {
		sb.WriteString("s")
	}
	fmt.Fprintf(&sb, " (%s)\n\n", resp.Strategy)

	for i, r := range resp.Results {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, num int, r searcher.Result) {
	fmt.Fprintf(sb, "### %d. %s #%d (score: %.4f, %s)\n\n", num, r.DocName, r.ChunkID, r.Score, r.Source)
	fmt.Fprintf(sb, "```\n%s\n```\n\n", r.Content)
}

func otherBranch(s searcher.Source) searcher.Source {
	if s == searcher.SourceLexical {
		return searcher.SourceVector
	}
	return searcher.SourceLexical
}

// clampTopK ensures topK is within bounds.
func clampTopK(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	return min(topK, MaxTopK)
}

// ToRetrievalOutput converts a search response to the tool output.
func ToRetrievalOutput(query string, resp *searcher.Response) RetrievalOutput {
	out := RetrievalOutput{
		Query:    query,
		Strategy: resp.Strategy.String(),
		Results:  make([]ResultOutput, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, ResultOutput{
			DocName: r.DocName,
			ChunkID: r.ChunkID,
			Content: r.Content,
			Score:   r.Score,
			Source:  string(r.Source),
		})
	}
	for _, w := range resp.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}
	return out
}
