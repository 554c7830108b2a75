package telemetry

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// ActivityCount is one counter series summed over a period. Label holds the
// series attributes encoded as "key=value" pairs joined by commas, or ""
// for a counter without attributes.
type ActivityCount struct {
	Counter string `json:"counter"`
	Label   string `json:"label"`
	Count   int64  `json:"count"`
}

// ActivityStore persists daily counter totals.
type ActivityStore interface {
	SaveActivityCounts(date string, counts []ActivityCount) error
}

// Collector is the meter provider behind Metrics. Its reader reports deltas,
// so every Collect returns only what was recorded since the previous one.
type Collector struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// NewCollector creates a meter provider with a delta-temporality reader.
func NewCollector() *Collector {
	reader := sdkmetric.NewManualReader(sdkmetric.WithTemporalitySelector(
		func(sdkmetric.InstrumentKind) metricdata.Temporality { return metricdata.DeltaTemporality }))
	return &Collector{
		reader:   reader,
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
}

// Meter returns the docrag meter of the provider.
func (c *Collector) Meter() metric.Meter {
	return c.provider.Meter(MeterName)
}

// Collect returns the counter deltas since the last Collect. Histograms
// contribute their observation count under "<name>.count".
func (c *Collector) Collect(ctx context.Context) ([]ActivityCount, error) {
	var rm metricdata.ResourceMetrics
	if err := c.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	var counts []ActivityCount
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if dp.Value != 0 {
						counts = append(counts, ActivityCount{Counter: m.Name, Label: encodeLabel(dp.Attributes), Count: dp.Value})
					}
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					if dp.Count != 0 {
						counts = append(counts, ActivityCount{Counter: m.Name + ".count", Label: encodeLabel(dp.Attributes), Count: int64(dp.Count)})
					}
				}
			}
		}
	}
	return counts, nil
}

func encodeLabel(set attribute.Set) string {
	return set.Encoded(attribute.DefaultEncoder())
}

func splitActivitySeries(series string, n int64) ActivityCount {
	counter, label, _ := strings.Cut(series, activitySep)
	return ActivityCount{Counter: counter, Label: label, Count: n}
}

func sortActivity(counts []ActivityCount) {
	slices.SortFunc(counts, func(a, b ActivityCount) int {
		return cmp.Or(cmp.Compare(a.Counter, b.Counter), cmp.Compare(a.Label, b.Label))
	})
}

// Persist collects the pending deltas and adds them to the totals of the
// day now falls in.
func (c *Collector) Persist(ctx context.Context, store ActivityStore, now time.Time) error {
	counts, err := c.Collect(ctx)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return nil
	}
	return store.SaveActivityCounts(now.Format(time.DateOnly), counts)
}

// Shutdown stops the provider. Instruments record nothing afterwards.
func (c *Collector) Shutdown(ctx context.Context) error {
	return c.provider.Shutdown(ctx)
}
