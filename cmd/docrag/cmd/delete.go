package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/output"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <doc-name>",
		Aliases: []string{"rm"},
		Short:   "Remove a document from both indexes",
		Long: `Remove every chunk of a document from the lexical and vector indexes.

Both indexes are cleaned up even if one of them fails. A partial delete
is reported and exits non-zero; run 'docrag check --repair' to remove the
leftover vectors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				res, err := s.manager.DeleteDocument(ctx, args[0])
				if res != nil {
					output.NewStyled(cmd.OutOrStdout(), plainOutput()).Deleted(res)
				}
				return err
			})
		},
	}
	return cmd
}
