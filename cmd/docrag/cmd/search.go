package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/mcp"
	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/pkg/searcher"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	topK     int
	strategy string
	json     bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Search the indexed documents.

The hybrid strategy runs a BM25 lexical search and a vector similarity
search concurrently, merges both lists and keeps the best score per chunk.
If one branch fails the other branch's results are returned with a
warning.

Examples:
  docrag search "how do I reset my password"
  docrag search "refund policy" --top-k 10
  docrag search "ERR_CONN_RESET" --strategy lexical
  docrag search "onboarding checklist" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Maximum number of results (default: search.top_k)")
	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "Search strategy: hybrid, lexical, vector (default: search.strategy)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	return withSession(ctx, func(ctx context.Context, s *session) error {
		name := opts.strategy
		if name == "" {
			name = s.cfg.Search.Strategy
		}
		strategy, err := searcher.ParseStrategy(name)
		if err != nil {
			return err
		}
		topK := opts.topK
		if topK == 0 {
			topK = s.cfg.Search.TopK
		}

		slog.Info("search_started",
			slog.String("query", query),
			slog.String("strategy", strategy.String()),
			slog.Int("top_k", topK))

		resp, err := s.manager.Search(ctx, query, searcher.Options{TopK: topK, Strategy: strategy})
		if err != nil {
			return err
		}

		out := output.NewStyled(cmd.OutOrStdout(), plainOutput())
		if opts.json {
			return out.JSON(mcp.ToRetrievalOutput(query, resp))
		}
		out.Results(query, resp)
		return nil
	})
}
