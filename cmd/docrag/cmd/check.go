package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/index"
	"github.com/Aman-CERP/docrag/internal/output"
)

// maxListedIssues caps the inconsistencies printed in text mode.
const maxListedIssues = 20

// checkOutput is the JSON output of 'docrag check'.
type checkOutput struct {
	*index.CheckResult
	Repair *index.RepairResult `json:"repair,omitempty"`
}

func newCheckCmd() *cobra.Command {
	var (
		repair     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the lexical and vector indexes",
		Long: `Compare the (document, chunk) keys of the lexical and vector indexes.

Reports chunks without a vector and vectors whose chunk is gone from the
lexical index. With --repair, documents that only exist in the vector
index are deleted and missing vectors are re-embedded. The repair holds
the data directory write lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				m := s.manager
				if !m.HasVector() {
					return fmt.Errorf("no vector index configured; nothing to compare")
				}
				checker := index.NewConsistencyChecker(m.Lexical(), m.Vector(), m.Embedder())

				res, err := checker.Check(ctx)
				if err != nil {
					return err
				}
				result := checkOutput{CheckResult: res}

				if repair && !res.Consistent() {
					err := m.Exclusive(ctx, func(ctx context.Context) error {
						rr, err := checker.Repair(ctx, res.Inconsistencies)
						result.Repair = rr
						return err
					})
					if err != nil {
						return err
					}
					slog.Info("repair_complete",
						slog.Int("orphans_removed", result.Repair.OrphansRemoved),
						slog.Int("reembedded", result.Repair.Reembedded),
						slog.Int("unrepaired", result.Repair.Unrepaired))
				}

				out := output.NewStyled(cmd.OutOrStdout(), plainOutput())
				if jsonOutput {
					return out.JSON(result)
				}
				printCheck(out, result)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Fix the inconsistencies that can be fixed")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func printCheck(out *output.Writer, res checkOutput) {
	out.Statusf("", "Lexical chunks: %d, vector chunks: %d", res.LexicalChunks, res.VectorChunks)
	if res.Consistent() {
		out.Success("Indexes are consistent")
		return
	}

	out.Warningf("%d missing vectors, %d orphan vectors",
		res.Count(index.InconsistencyMissingVector),
		res.Count(index.InconsistencyOrphanVector))
	for i, issue := range res.Inconsistencies {
		if i == maxListedIssues {
			out.Statusf("", "... %d more", len(res.Inconsistencies)-maxListedIssues)
			break
		}
		out.Statusf("", "%-14s %s #%d", issue.Kind, issue.Key.DocName, issue.Key.ChunkID)
	}

	if res.Repair == nil {
		out.Status("", "Run 'docrag check --repair' to fix them.")
		return
	}
	out.Successf("Repaired: %d orphan vectors removed, %d vectors re-embedded, %d left",
		res.Repair.OrphansRemoved, res.Repair.Reembedded, res.Repair.Unrepaired)
}
