package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics and telemetry",
		Long:  `Display statistics about query patterns, search latency and index activity.`,
	}

	cmd.AddCommand(newStatsQueriesCmd())
	cmd.AddCommand(newStatsActivityCmd())
	return cmd
}

func newStatsQueriesCmd() *cobra.Command {
	var (
		jsonOutput bool
		days       int
		top        int
	)

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show query pattern statistics",
		Long: `Display the local query log kept in the data directory:
  - Queries per strategy (hybrid/lexical/vector)
  - Top query terms
  - Recent zero-result queries
  - Latency distribution

Nothing is recorded anywhere but the data directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatsQueries(cmd, jsonOutput, days, top)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	cmd.Flags().IntVar(&top, "top", 10, "Number of top terms and zero-result queries to show")

	return cmd
}

// StatsQueriesOutput is the JSON output format for query stats.
type StatsQueriesOutput struct {
	Days                int              `json:"days"`
	TotalQueries        int64            `json:"total_queries"`
	QueryTypeCounts     map[string]int64 `json:"query_type_counts"`
	TopTerms            []StatsTermCount `json:"top_terms"`
	ZeroResultQueries   []string         `json:"zero_result_queries"`
	LatencyDistribution map[string]int64 `json:"latency_distribution"`
}

// StatsTermCount represents a term and its frequency.
type StatsTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func runStatsQueries(cmd *cobra.Command, jsonOutput bool, days, top int) error {
	if days <= 0 {
		return fmt.Errorf("--days must be positive, got %d", days)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openMetricsStore(cfg.Paths.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stats, err := getQueryStats(store, time.Now(), days, top)
	if err != nil {
		return fmt.Errorf("failed to get query stats: %w", err)
	}

	out := output.NewStyled(cmd.OutOrStdout(), plainOutput())
	if jsonOutput {
		return out.JSON(stats)
	}
	printQueryStats(cmd, out, stats)
	return nil
}

// openMetricsStore opens an existing metrics database of dataDir.
func openMetricsStore(dataDir string) (*telemetry.SQLiteMetricsStore, error) {
	path := filepath.Join(dataDir, telemetry.MetricsFileName)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no query log found in %s\nRun 'docrag search' or 'docrag serve' to record queries", dataDir)
	}
	store, err := telemetry.OpenSQLiteMetricsStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics store: %w", err)
	}
	return store, nil
}

func getQueryStats(store telemetry.QueryMetricsStore, now time.Time, days, top int) (*StatsQueriesOutput, error) {
	to := now.Format(time.DateOnly)
	from := now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly)

	types, err := store.GetQueryTypeCounts(from, to)
	if err != nil {
		return nil, err
	}
	latencies, err := store.GetLatencyCounts(from, to)
	if err != nil {
		return nil, err
	}
	terms, err := store.GetTopTerms(top)
	if err != nil {
		return nil, err
	}
	zero, err := store.GetZeroResultQueries(top)
	if err != nil {
		return nil, err
	}

	stats := &StatsQueriesOutput{
		Days:                days,
		QueryTypeCounts:     make(map[string]int64, len(types)),
		TopTerms:            make([]StatsTermCount, 0, len(terms)),
		ZeroResultQueries:   zero,
		LatencyDistribution: make(map[string]int64, len(latencies)),
	}
	for qt, n := range types {
		stats.QueryTypeCounts[string(qt)] = n
		stats.TotalQueries += n
	}
	for b, n := range latencies {
		stats.LatencyDistribution[string(b)] = n
	}
	for _, t := range terms {
		stats.TopTerms = append(stats.TopTerms, StatsTermCount{Term: t.Term, Count: t.Count})
	}
	if stats.ZeroResultQueries == nil {
		stats.ZeroResultQueries = []string{}
	}
	return stats, nil
}

func printQueryStats(cmd *cobra.Command, out *output.Writer, stats *StatsQueriesOutput) {
	out.Statusf("📊", "%d queries in the last %d days", stats.TotalQueries, stats.Days)
	if stats.TotalQueries == 0 && len(stats.TopTerms) == 0 {
		return
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "\nSTRATEGY\tQUERIES")
	for _, qt := range []telemetry.QueryType{telemetry.QueryTypeHybrid, telemetry.QueryTypeLexical, telemetry.QueryTypeVector} {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", qt, stats.QueryTypeCounts[string(qt)])
	}

	_, _ = fmt.Fprintln(w, "\nLATENCY\tQUERIES")
	for _, b := range telemetry.LatencyBuckets {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", latencyLabel(b), stats.LatencyDistribution[string(b)])
	}

	if len(stats.TopTerms) > 0 {
		_, _ = fmt.Fprintln(w, "\nTERM\tCOUNT")
		for _, t := range stats.TopTerms {
			_, _ = fmt.Fprintf(w, "%s\t%d\n", t.Term, t.Count)
		}
	}
	_ = w.Flush()

	if len(stats.ZeroResultQueries) > 0 {
		out.Newline()
		out.Warning("Recent queries with no results:")
		for _, q := range stats.ZeroResultQueries {
			out.Statusf("", "%q", q)
		}
	}
}

func latencyLabel(b telemetry.LatencyBucket) string {
	switch b {
	case telemetry.BucketP10:
		return "<10ms"
	case telemetry.BucketP50:
		return "10-50ms"
	case telemetry.BucketP100:
		return "50-100ms"
	case telemetry.BucketP500:
		return "100-500ms"
	default:
		return ">=500ms"
	}
}

func newStatsActivityCmd() *cobra.Command {
	var (
		jsonOutput bool
		days       int
	)

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show ingest, search and failure counters",
		Long: `Display the OpenTelemetry counters recorded by previous commands,
summed per day in the data directory:
  - Documents and chunks ingested, chunks left out of the vector index
  - Searches per strategy and outcome
  - Hybrid branches dropped from responses
  - Chunks and queries that could not be embedded, by reason`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openMetricsStore(cfg.Paths.DataDir)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := getActivityStats(store, time.Now(), days)
			if err != nil {
				return fmt.Errorf("failed to get activity stats: %w", err)
			}
			out := output.NewStyled(cmd.OutOrStdout(), plainOutput())
			if jsonOutput {
				return out.JSON(stats)
			}
			printActivityStats(cmd, out, stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	return cmd
}

// StatsActivityOutput is the JSON output format for activity stats.
type StatsActivityOutput struct {
	Days     int                       `json:"days"`
	Counters []telemetry.ActivityCount `json:"counters"`
}

func getActivityStats(store *telemetry.SQLiteMetricsStore, now time.Time, days int) (*StatsActivityOutput, error) {
	to := now.Format(time.DateOnly)
	from := now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly)
	counts, err := store.GetActivityCounts(from, to)
	if err != nil {
		return nil, err
	}
	return &StatsActivityOutput{Days: days, Counters: counts}, nil
}

func printActivityStats(cmd *cobra.Command, out *output.Writer, stats *StatsActivityOutput) {
	if len(stats.Counters) == 0 {
		out.Statusf("📈", "No activity recorded in the last %d days", stats.Days)
		return
	}
	out.Statusf("📈", "Activity in the last %d days", stats.Days)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "\nCOUNTER\tLABELS\tTOTAL")
	for _, c := range stats.Counters {
		label := c.Label
		if label == "" {
			label = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", c.Counter, label, c.Count)
	}
	_ = w.Flush()
}
