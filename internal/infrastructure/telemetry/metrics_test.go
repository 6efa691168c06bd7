package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

// newTestMeterProvider returns a provider backed by a manual reader.
func newTestMeterProvider(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

// sumByAttr totals an int64 sum's data points keyed by the value of attr.
func sumByAttr(t *testing.T, data metricdata.Aggregation, attr string) map[string]int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected an int64 sum, got %T", data)

	out := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key(attr))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()

	mp, err := NewMeterProvider(ctx, MetricsConfig{ServiceName: "remittance-test"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestHistogram_RecordDuration(t *testing.T) {
	provider, reader := newTestMeterProvider(t)

	h, err := NewHistogram(provider.Meter("test"), HistogramOpts{
		Name:       "test_duration_seconds",
		Unit:       "s",
		Boundaries: OperationDurationBuckets,
	})
	require.NoError(t, err)

	h.RecordDuration(context.Background(), 250*time.Millisecond)
	h.Record(context.Background(), 0.75)

	hist, ok := collect(t, reader)["test_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 1.0, hist.DataPoints[0].Sum, 1e-9)
	assert.Equal(t, OperationDurationBuckets, hist.DataPoints[0].Bounds)
}

func TestGauge_Record(t *testing.T) {
	provider, reader := newTestMeterProvider(t)

	g, err := NewGauge(provider.Meter("test"), "test_gauge", "", "{unit}")
	require.NoError(t, err)
	g.Record(context.Background(), 3)
	g.Record(context.Background(), 7)

	gauge, ok := collect(t, reader)["test_gauge"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(7), gauge.DataPoints[0].Value)
}
