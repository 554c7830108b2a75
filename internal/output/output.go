// Package output formats command results for the CLI: status lines,
// ranked search results, document listings and JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/docrag/internal/lifecycle"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/ui"
	"github.com/Aman-CERP/docrag/internal/vocab"
	"github.com/Aman-CERP/docrag/pkg/searcher"
)

// SnippetWidth is the number of runes of chunk content shown per result.
const SnippetWidth = 240

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer without colors.
func New(out io.Writer) *Writer {
	return &Writer{out: out, styles: ui.NoColorStyles()}
}

// NewStyled creates a Writer that colors output when out is a terminal.
func NewStyled(out io.Writer, noColor bool) *Writer {
	return &Writer{out: out, styles: ui.GetStyles(noColor || !ui.IsTTY(out))}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints a code block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Results prints a search response, best result first. Degraded hybrid
// searches list the failed branch before the results.
func (w *Writer) Results(query string, resp *searcher.Response) {
	for _, warn := range resp.Warnings {
		w.Warningf("%s branch unavailable: %v", warn.Branch, warn.Err)
	}
	if len(resp.Results) == 0 {
		w.Statusf("", "No results for %q (%s)", query, resp.Strategy)
		return
	}

	header := fmt.Sprintf("%d results for %q (%s)", len(resp.Results), query, resp.Strategy)
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(header))
	for i, r := range resp.Results {
		_, _ = fmt.Fprintln(w.out)
		loc := fmt.Sprintf("%d. %s #%d", i+1, r.DocName, r.ChunkID)
		meta := fmt.Sprintf("score %.4f  %s", r.Score, r.Source)
		_, _ = fmt.Fprintf(w.out, "%s  %s\n", w.styles.Active.Render(loc), w.styles.Label.Render(meta))
		snippet := lipgloss.NewStyle().PaddingLeft(3).Render(Snippet(r.Content, SnippetWidth))
		_, _ = fmt.Fprintln(w.out, snippet)
	}
}

// Documents prints indexed documents with their chunk counts.
func (w *Writer) Documents(docs []store.DocumentInfo) {
	if len(docs) == 0 {
		w.Status("", "No documents indexed. Run 'docrag ingest <path>' first.")
		return
	}
	tw := tabwriter.NewWriter(w.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DOCUMENT\tCHUNKS")
	total := 0
	for _, d := range docs {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", d.DocName, d.Chunks)
		total += d.Chunks
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render(fmt.Sprintf("%d documents, %d chunks", len(docs), total)))
}

// Terms prints a ranked vocabulary.
func (w *Writer) Terms(docName string, terms []vocab.Term) {
	if len(terms) == 0 {
		w.Statusf("", "No terms in %s", docName)
		return
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render("Vocabulary of "+docName))
	tw := tabwriter.NewWriter(w.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TERM\tCOUNT\tDOCS\tSCORE")
	for _, t := range terms {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%.4f\n", t.Term, t.Count, t.DocFreq, t.Score)
	}
	_ = tw.Flush()
}

// Deleted summarises a document delete.
func (w *Writer) Deleted(res *lifecycle.DeleteResult) {
	switch {
	case res.Complete() && res.Removed() == 0:
		w.Warningf("%s was not indexed; nothing removed", res.DocName)
	case res.Complete():
		w.Successf("Deleted %s (%s)", res.DocName, outcomes(res))
	case res.Partial():
		w.Errorf("Partially deleted %s (%s); run 'docrag check --repair'", res.DocName, outcomes(res))
	default:
		w.Errorf("Failed to delete %s", res.DocName)
	}
}

func outcomes(res *lifecycle.DeleteResult) string {
	part := func(name string, o lifecycle.IndexOutcome) string {
		switch {
		case o.Skipped:
			return name + " skipped"
		case o.Err != nil:
			return name + " failed"
		default:
			return fmt.Sprintf("%s %d", name, o.Removed)
		}
	}
	return part(string(store.IndexLexical), res.Lexical) + ", " + part(string(store.IndexVector), res.Vector)
}

// Snippet collapses whitespace and truncates s to width runes.
func Snippet(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-1]) + "…"
}
