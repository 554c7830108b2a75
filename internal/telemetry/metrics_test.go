package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordIngest(ctx, 1, 1, 0, time.Second, nil)
		m.RecordSearch(ctx, "q", "hybrid", 1, time.Millisecond, nil)
		m.RecordBranchFailure(ctx, "vector")
		m.RecordEmbedFailure(ctx, "timeout")
	})
	assert.Nil(t, m.Queries())
}

func TestMetrics_RecordSearchFeedsQueryLog(t *testing.T) {
	// Given: metrics on a no-op meter with a query log
	q := NewQueryMetrics(nil)
	m, err := NewMetrics(noop.NewMeterProvider().Meter("test"), q)
	require.NoError(t, err)
	ctx := context.Background()

	// When: recording a successful and a failed search
	m.RecordSearch(ctx, "ocean tides", "lexical", 0, time.Millisecond, nil)
	m.RecordSearch(ctx, "broken", "vector", 0, time.Millisecond, errors.New("down"))

	// Then: only the successful one reaches the log
	s := m.Queries().Snapshot()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, int64(1), s.QueryTypeCounts[QueryTypeLexical])
}

func TestCollector_Metrics(t *testing.T) {
	c := NewCollector()
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	assert.NotNil(t, c.Metrics(nil))
}
