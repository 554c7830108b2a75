package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/index"
	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/ui"
	"github.com/Aman-CERP/docrag/internal/watcher"
)

// watchOptions holds CLI flags for watch.
type watchOptions struct {
	ignore       []string
	noEmbeddings bool
	initial      bool
	polling      bool
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Keep the index in sync with a directory",
		Long: `Watch a directory and apply changes to the index as they happen.

A created or modified file replaces its document; a removed file deletes
it. Bursts of events are coalesced over watch.debounce. Document names are
base file names, so two files with the same name in different folders
share one document.

Without an argument paths.docs_dir is watched. Stop with Ctrl+C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runWatch(ctx, cmd, args, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.ignore, "ignore", nil, "Gitignore-style pattern of files or directories to skip (repeatable)")
	cmd.Flags().BoolVar(&opts.noEmbeddings, "no-embeddings", false, "Write the lexical index only")
	cmd.Flags().BoolVar(&opts.initial, "initial", false, "Ingest the whole directory with --replace before watching")
	cmd.Flags().BoolVar(&opts.polling, "polling", false, "Poll the directory instead of using filesystem notifications")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, args []string, opts watchOptions) error {
	return withSession(ctx, func(ctx context.Context, s *session) error {
		root := s.cfg.Paths.DocsDir
		if len(args) == 1 {
			root = args[0]
		}
		if root == "" {
			return fmt.Errorf("no directory given and paths.docs_dir is not set")
		}

		m := s.manager
		out := output.NewStyled(cmd.OutOrStdout(), plainOutput())
		withEmbeddings := s.cfg.Ingest.WithEmbeddings && !opts.noEmbeddings

		if opts.initial {
			runner, err := index.NewRunner(index.RunnerDependencies{
				Renderer: ui.NewPlainRenderer(ui.NewConfig(cmd.OutOrStdout())),
				Ingester: m,
				Readers:  m.Readers(),
				Embedder: m.Embedder(),
			})
			if err != nil {
				return err
			}
			if _, err := runner.Run(ctx, index.RunnerConfig{
				Paths:           []string{root},
				WithEmbeddings:  withEmbeddings,
				ReplaceExisting: true,
				Ignore:          opts.ignore,
			}); err != nil {
				return err
			}
		}

		coord, err := index.NewCoordinator(index.CoordinatorConfig{
			Root:           root,
			Store:          m,
			Readers:        m.Readers(),
			WithEmbeddings: withEmbeddings,
		})
		if err != nil {
			return err
		}

		w, err := watcher.NewHybridWatcher(watcher.Options{
			Debounce:     s.cfg.WatchDebounce(),
			Ignore:       opts.ignore,
			Accept:       m.Readers().Supported,
			ForcePolling: opts.polling,
		})
		if err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()

		started := make(chan error, 1)
		go func() { started <- w.Start(ctx, root) }()

		out.Statusf("👀", "Watching %s (%s). Press Ctrl+C to stop.", root, w.Mode())
		return watchLoop(ctx, w, started, coord, out)
	})
}

// watchLoop applies event batches until ctx is done or the watcher ends.
func watchLoop(ctx context.Context, w watcher.Watcher, started <-chan error, coord *index.Coordinator, out *output.Writer) error {
	errs := w.Errors()
	for {
		select {
		case <-ctx.Done():
			out.Status("", "Stopped.")
			return nil
		case err := <-started:
			if err != nil && ctx.Err() == nil {
				return err
			}
			out.Status("", "Stopped.")
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			stats, err := coord.HandleEvents(ctx, batch)
			if err != nil {
				if ctx.Err() != nil {
					out.Status("", "Stopped.")
					return nil
				}
				return err
			}
			if stats.Ingested+stats.Deleted+stats.Failed == 0 {
				continue
			}
			line := fmt.Sprintf("%d updated, %d removed", stats.Ingested, stats.Deleted)
			if stats.Failed > 0 {
				out.Warningf("%s, %d failed (see log)", line, stats.Failed)
			} else {
				out.Success(line)
			}
		}
	}
}
