package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every docrag instrument.
const MeterName = "github.com/Aman-CERP/docrag"

// Metrics records ingest and search activity as OpenTelemetry instruments.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ingests        metric.Int64Counter
	chunks         metric.Int64Counter
	skipped        metric.Int64Counter
	ingestLatency  metric.Float64Histogram
	searches       metric.Int64Counter
	searchLatency  metric.Float64Histogram
	branchFailures metric.Int64Counter
	embedFailures  metric.Int64Counter

	queries *QueryMetrics
}

// NewMetrics creates the instruments on meter. queries may be nil.
func NewMetrics(meter metric.Meter, queries *QueryMetrics) (*Metrics, error) {
	m := &Metrics{queries: queries}
	var err error

	if m.ingests, err = meter.Int64Counter("docrag.ingest.documents",
		metric.WithDescription("Documents ingested")); err != nil {
		return nil, err
	}
	if m.chunks, err = meter.Int64Counter("docrag.ingest.chunks",
		metric.WithDescription("Chunks written per index")); err != nil {
		return nil, err
	}
	if m.skipped, err = meter.Int64Counter("docrag.ingest.skipped",
		metric.WithDescription("Chunks left out of the vector index")); err != nil {
		return nil, err
	}
	if m.ingestLatency, err = meter.Float64Histogram("docrag.ingest.duration",
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.searches, err = meter.Int64Counter("docrag.search.requests"); err != nil {
		return nil, err
	}
	if m.searchLatency, err = meter.Float64Histogram("docrag.search.duration",
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.branchFailures, err = meter.Int64Counter("docrag.search.branch_failures",
		metric.WithDescription("Hybrid branches that failed and were dropped")); err != nil {
		return nil, err
	}
	if m.embedFailures, err = meter.Int64Counter("docrag.embed.failures"); err != nil {
		return nil, err
	}
	return m, nil
}

// Metrics creates the instruments on the collector's meter. A meter that
// rejects an instrument is reported to the otel error handler and yields
// nil, which records nothing.
func (c *Collector) Metrics(queries *QueryMetrics) *Metrics {
	m, err := NewMetrics(c.Meter(), queries)
	if err != nil {
		otel.Handle(err)
		return nil
	}
	return m
}

// Queries returns the in-memory query log, if any.
func (m *Metrics) Queries() *QueryMetrics {
	if m == nil {
		return nil
	}
	return m.queries
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", "error")
	}
	return attribute.String("outcome", "ok")
}

// RecordIngest records one document ingest.
func (m *Metrics) RecordIngest(ctx context.Context, lexical, vector, skipped int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ingests.Add(ctx, 1, metric.WithAttributes(outcome(err)))
	m.chunks.Add(ctx, int64(lexical), metric.WithAttributes(attribute.String("index", "lexical")))
	m.chunks.Add(ctx, int64(vector), metric.WithAttributes(attribute.String("index", "vector")))
	m.skipped.Add(ctx, int64(skipped))
	m.ingestLatency.Record(ctx, d.Seconds(), metric.WithAttributes(outcome(err)))
}

// RecordSearch records one search call and feeds the query log.
func (m *Metrics) RecordSearch(ctx context.Context, query, strategy string, results int, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("strategy", strategy), outcome(err))
	m.searches.Add(ctx, 1, attrs)
	m.searchLatency.Record(ctx, d.Seconds(), attrs)

	if m.queries != nil && err == nil {
		m.queries.Record(QueryEvent{
			Query:       query,
			QueryType:   QueryType(strategy),
			ResultCount: results,
			Latency:     d,
			Timestamp:   time.Now(),
		})
	}
}

// RecordBranchFailure records a hybrid branch dropped from a response.
func (m *Metrics) RecordBranchFailure(ctx context.Context, branch string) {
	if m == nil {
		return
	}
	m.branchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("branch", branch)))
}

// RecordEmbedFailure records a chunk or query that could not be embedded.
func (m *Metrics) RecordEmbedFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.embedFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
