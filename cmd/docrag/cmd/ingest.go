package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/index"
	"github.com/Aman-CERP/docrag/internal/ui"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	replace      bool
	noEmbeddings bool
	retries      int
	ignore       []string
	plain        bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest [path...]",
		Short: "Chunk and index files or directories",
		Long: `Read files, split them into fixed-size chunks and write the chunks to
the lexical index and, unless --no-embeddings is set, the vector index.

Directories are walked recursively. Files without a reader (.txt, .md,
.pdf, .json, .html, .xlsx) are skipped with a warning. The document name
is the base file name. Without arguments paths.docs_dir is ingested.
Paths matching an --ignore pattern or the .docragignore file at the top
of a directory are skipped.

Re-ingesting a document appends new chunks; use --replace to delete the
previous copy first.

Examples:
  docrag ingest ./docs
  docrag ingest guide.md faq.txt --replace
  docrag ingest ./docs --ignore "drafts/" --no-embeddings`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.replace, "replace", false, "Delete existing chunks of each document before writing")
	cmd.Flags().BoolVar(&opts.noEmbeddings, "no-embeddings", false, "Write the lexical index only")
	cmd.Flags().IntVar(&opts.retries, "retries", 0, "Extra attempts for documents that failed before anything was written")
	cmd.Flags().StringSliceVar(&opts.ignore, "ignore", nil, "Gitignore-style pattern of files or directories to skip (repeatable)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output instead of the interactive view")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, paths []string, opts ingestOptions) error {
	return withSession(ctx, func(ctx context.Context, s *session) error {
		if len(paths) == 0 {
			if s.cfg.Paths.DocsDir == "" {
				return fmt.Errorf("no path given and paths.docs_dir is not set")
			}
			paths = []string{s.cfg.Paths.DocsDir}
		}

		renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
			ui.WithForcePlain(opts.plain),
			ui.WithNoColor(plainOutput()),
			ui.WithTitle(strings.Join(paths, ", ")),
		))
		runner, err := index.NewRunner(index.RunnerDependencies{
			Renderer: renderer,
			Ingester: s.manager,
			Readers:  s.manager.Readers(),
			Embedder: s.manager.Embedder(),
		})
		if err != nil {
			return err
		}

		if err := renderer.Start(ctx); err != nil {
			return err
		}
		res, runErr := runner.Run(ctx, index.RunnerConfig{
			Paths:           paths,
			WithEmbeddings:  s.cfg.Ingest.WithEmbeddings && !opts.noEmbeddings,
			ReplaceExisting: s.cfg.Ingest.Replace || opts.replace,
			Retries:         opts.retries,
			Ignore:          opts.ignore,
		})
		if err := renderer.Stop(); err != nil {
			slog.Debug("renderer_stop_failed", slog.String("error", err.Error()))
		}
		if runErr != nil {
			return runErr
		}

		slog.Info("ingest_complete",
			slog.Int("documents", res.Documents),
			slog.Int("chunks", res.Chunks),
			slog.Int("vectors", res.Vectors),
			slog.Int("errors", res.Errors),
			slog.Duration("duration", res.Duration))
		if res.Errors > 0 {
			return fmt.Errorf("%d document(s) failed to ingest", res.Errors)
		}
		return nil
	})
}
