package cmd

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/ui"
)

// embedderProbeTimeout bounds the reachability check of 'docrag status'.
const embedderProbeTimeout = 5 * time.Second

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and embedder status",
		Long: `Show document and chunk counts for both indexes, their size on disk,
the vector dimension and whether the embedding provider is reachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				info, err := collectStatus(ctx, s)
				if err != nil {
					return err
				}
				r := ui.NewStatusRenderer(cmd.OutOrStdout(), plainOutput() || !ui.IsTTY(cmd.OutOrStdout()))
				if jsonOutput {
					return r.RenderJSON(info)
				}
				return r.Render(info)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func collectStatus(ctx context.Context, s *session) (ui.StatusInfo, error) {
	m := s.manager
	dir := s.cfg.Paths.DataDir
	info := ui.StatusInfo{DataDir: dir}

	docs, err := m.ListDocuments(ctx)
	if err != nil {
		return info, err
	}
	info.Documents = len(docs)

	if info.LexicalChunks, err = m.Lexical().Count(ctx); err != nil {
		return info, err
	}
	base := store.LexicalBasePath(dir)
	info.LexicalBackend = string(store.DetectLexicalBackend(base))
	switch store.LexicalBackend(info.LexicalBackend) {
	case store.LexicalBackendBleve:
		info.LexicalSize = pathSize(base + ".bleve")
	case store.LexicalBackendSQLite:
		info.LexicalSize = pathSize(base + ".db")
	}

	if m.HasVector() {
		if info.VectorChunks, err = m.Vector().Count(ctx); err != nil {
			return info, err
		}
		info.Dimensions = m.Vector().Dimensions()
		info.VectorSize = pathSize(store.VectorPath(dir))
		if h, ok := m.Vector().(*store.HNSWVectorIndex); ok {
			info.VectorOrphans = h.Stats().Orphans
		}
	}

	info.EmbedderStatus = "none"
	if emb := m.Embedder(); emb != nil {
		info.EmbedderModel = emb.ModelName()
		probeCtx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
		defer cancel()
		info.EmbedderStatus = "offline"
		if emb.Available(probeCtx) {
			info.EmbedderStatus = "ready"
		}
	}
	return info, nil
}

// pathSize returns the size of a file, or the total size of the files in
// a directory. Missing paths are zero.
func pathSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if !fi.IsDir() {
		return fi.Size()
	}
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}
