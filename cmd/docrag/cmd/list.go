package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/store"
)

func newListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List indexed documents",
		Long:    `List every document in the lexical index with its chunk count.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				docs, err := s.manager.ListDocuments(ctx)
				if err != nil {
					return err
				}
				out := output.NewStyled(cmd.OutOrStdout(), plainOutput())
				if jsonOutput {
					if docs == nil {
						docs = []store.DocumentInfo{}
					}
					return out.JSON(docs)
				}
				out.Documents(docs)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
