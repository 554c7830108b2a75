package ui

import (
	"encoding/json"
	"fmt"
	"io"
)

// StatusInfo describes the indexes of a data directory.
type StatusInfo struct {
	DataDir        string `json:"data_dir"`
	Documents      int    `json:"documents"`
	LexicalChunks  int    `json:"lexical_chunks"`
	VectorChunks   int    `json:"vector_chunks"`
	LexicalBackend string `json:"lexical_backend"`
	LexicalSize    int64  `json:"lexical_size"`
	VectorSize     int64  `json:"vector_size"`
	// VectorOrphans counts deleted vectors still held by the graph.
	VectorOrphans  int    `json:"vector_orphans"`
	Dimensions     int    `json:"dimensions"`
	EmbedderModel  string `json:"embedder_model"`
	// EmbedderStatus is "ready", "offline" or "none".
	EmbedderStatus string `json:"embedder_status"`
}

// Consistent reports whether both indexes hold the same number of chunks.
func (s StatusInfo) Consistent() bool {
	return s.LexicalChunks == s.VectorChunks
}

// StatusRenderer prints StatusInfo.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render prints info for a terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	w := r.out
	_, _ = fmt.Fprintf(w, "%s\n\n", r.styles.Header.Render("Index status: "+info.DataDir))
	_, _ = fmt.Fprintf(w, "  Documents:  %d\n", info.Documents)
	_, _ = fmt.Fprintf(w, "  Lexical:    %d chunks, %s (%s)\n", info.LexicalChunks, FormatBytes(info.LexicalSize), info.LexicalBackend)
	_, _ = fmt.Fprintf(w, "  Vector:     %d chunks, %s, %d dims", info.VectorChunks, FormatBytes(info.VectorSize), info.Dimensions)
	if info.VectorOrphans > 0 {
		_, _ = fmt.Fprintf(w, ", %d orphaned nodes", info.VectorOrphans)
	}
	_, _ = fmt.Fprintln(w)
	if info.Consistent() {
		_, _ = fmt.Fprintf(w, "  Sync:       %s\n", r.styles.Success.Render("consistent"))
	} else {
		_, _ = fmt.Fprintf(w, "  Sync:       %s\n", r.styles.Warning.Render("counts differ, run 'docrag check'"))
	}
	_, _ = fmt.Fprintf(w, "  Embedder:   %s (%s)\n", info.EmbedderModel, r.renderStatus(info.EmbedderStatus))
	return nil
}

// RenderJSON prints info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline":
		return r.styles.Warning.Render(status)
	default:
		return status
	}
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMG"[exp])
}
