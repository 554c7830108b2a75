package telemetry

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteMetricsStore {
	t.Helper()
	s, err := OpenSQLiteMetricsStore(filepath.Join(t.TempDir(), "nested", MetricsFileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSQLiteMetricsStore_NilDB(t *testing.T) {
	_, err := NewSQLiteMetricsStore(nil)
	assert.Error(t, err)
}

func TestSQLiteMetricsStore_QueryTypeCounts(t *testing.T) {
	// Given: counts saved on two days, twice on the first
	s := openTestStore(t)
	require.NoError(t, s.SaveQueryTypeCounts("2026-01-06", map[QueryType]int64{QueryTypeHybrid: 10, QueryTypeLexical: 5}))
	require.NoError(t, s.SaveQueryTypeCounts("2026-01-06", map[QueryType]int64{QueryTypeHybrid: 2}))
	require.NoError(t, s.SaveQueryTypeCounts("2026-01-08", map[QueryType]int64{QueryTypeVector: 1}))

	// When: reading one day and the whole range
	day, err := s.GetQueryTypeCounts("2026-01-06", "2026-01-06")
	require.NoError(t, err)
	all, err := s.GetQueryTypeCounts("2026-01-01", "2026-01-31")
	require.NoError(t, err)

	// Then: counts accumulate
	assert.Equal(t, map[QueryType]int64{QueryTypeHybrid: 12, QueryTypeLexical: 5}, day)
	assert.Equal(t, int64(1), all[QueryTypeVector])
}

func TestSQLiteMetricsStore_TopTerms(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertTermCounts(map[string]int64{"ocean": 3, "tide": 1}))
	require.NoError(t, s.UpsertTermCounts(map[string]int64{"tide": 5}))
	require.NoError(t, s.UpsertTermCounts(nil))

	terms, err := s.GetTopTerms(1)

	require.NoError(t, err)
	assert.Equal(t, []TermCount{{Term: "tide", Count: 6}}, terms)
}

func TestSQLiteMetricsStore_ZeroResultQueriesAreBounded(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	for i := 0; i < ZeroResultLimit+5; i++ {
		require.NoError(t, s.AddZeroResultQuery(fmt.Sprintf("q%d", i), now))
	}

	all, err := s.GetZeroResultQueries(1000)
	require.NoError(t, err)
	assert.Len(t, all, ZeroResultLimit)
	assert.Equal(t, fmt.Sprintf("q%d", ZeroResultLimit+4), all[0])
}

func TestSQLiteMetricsStore_LatencyCounts(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveLatencyCounts("2026-02-01", map[LatencyBucket]int64{BucketP10: 4, BucketP500: 1}))
	require.NoError(t, s.SaveLatencyCounts("2026-02-01", map[LatencyBucket]int64{BucketP10: 1}))

	counts, err := s.GetLatencyCounts("2026-02-01", "2026-02-01")

	require.NoError(t, err)
	assert.Equal(t, int64(5), counts[BucketP10])
	assert.Equal(t, int64(1), counts[BucketP500])
}

func TestSQLiteMetricsStore_Reopen(t *testing.T) {
	// Given: a flushed collector
	path := filepath.Join(t.TempDir(), MetricsFileName)
	s, err := OpenSQLiteMetricsStore(path)
	require.NoError(t, err)
	m := NewQueryMetricsWithConfig(s, QueryMetricsConfig{})
	m.Record(QueryEvent{Query: "persistent tides", QueryType: QueryTypeHybrid, ResultCount: 1})
	require.NoError(t, m.Close())
	require.NoError(t, s.Close())

	// When: reopening
	s2, err := OpenSQLiteMetricsStore(path)
	require.NoError(t, err)
	defer s2.Close()

	// Then: the activity survived
	today := time.Now().Format(time.DateOnly)
	counts, err := s2.GetQueryTypeCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[QueryTypeHybrid])
}

func TestSQLiteMetricsStore_ActivityCounts(t *testing.T) {
	// Given: degraded-branch counts for two strategies over two days
	s := openTestStore(t)
	require.NoError(t, s.SaveActivityCounts("2026-05-01", []ActivityCount{
		{Counter: "docrag.search.branch_failures", Label: "branch=vector", Count: 3},
		{Counter: "docrag.search.branch_failures", Label: "branch=lexical", Count: 1},
		{Counter: "docrag.ingest.skipped", Count: 4},
	}))
	require.NoError(t, s.SaveActivityCounts("2026-05-02", []ActivityCount{
		{Counter: "docrag.search.branch_failures", Label: "branch=vector", Count: 2},
	}))

	// When: reading both days
	counts, err := s.GetActivityCounts("2026-05-01", "2026-05-02")

	// Then: series are summed and ordered by counter, then label
	require.NoError(t, err)
	assert.Equal(t, []ActivityCount{
		{Counter: "docrag.ingest.skipped", Label: "", Count: 4},
		{Counter: "docrag.search.branch_failures", Label: "branch=lexical", Count: 1},
		{Counter: "docrag.search.branch_failures", Label: "branch=vector", Count: 5},
	}, counts)
}
