package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/vocab"
)

func newVocabCmd() *cobra.Command {
	var (
		opts       vocab.Options
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "vocab <doc-name>",
		Short: "Show the terms that characterise a document",
		Long: `Rank the terms of one document by TF-IDF against the rest of the
collection. Terms that appear in every document score lowest.

Examples:
  docrag vocab handbook.pdf
  docrag vocab release-notes.md --limit 20 --numbers`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				terms, err := vocab.Extract(ctx, s.manager.Lexical(), args[0], opts)
				if err != nil {
					return err
				}
				out := output.NewStyled(cmd.OutOrStdout(), plainOutput())
				if jsonOutput {
					return out.JSON(terms)
				}
				out.Terms(args[0], terms)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", vocab.DefaultLimit, "Maximum number of terms (negative for all)")
	cmd.Flags().IntVar(&opts.MinLength, "min-length", 2, "Minimum term length in characters")
	cmd.Flags().BoolVar(&opts.KeepNumbers, "numbers", false, "Keep purely numeric terms")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
