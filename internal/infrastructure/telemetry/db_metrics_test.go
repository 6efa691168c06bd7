package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestNewDBMetrics(t *testing.T) {
	provider, _ := newTestMeterProvider(t)

	m, err := NewDBMetrics(provider.Meter("test"), DBMetricsConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, m.config.SlowQueryThreshold)
	assert.Equal(t, 15*time.Second, m.config.PoolStatsInterval)

	_, err = NewDBMetrics(nil, DBMetricsConfig{}, nil)
	assert.ErrorIs(t, err, ErrMeterNil)
}

func TestDBMetrics_RecordQuery(t *testing.T) {
	provider, reader := newTestMeterProvider(t)
	m, err := NewDBMetrics(provider.Meter("test"), DBMetricsConfig{SlowQueryThreshold: 100 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordQuery(ctx, "SELECT", "payments", 10*time.Millisecond)
	m.RecordQuery(ctx, "SELECT", "payments", 300*time.Millisecond)
	m.RecordQuery(ctx, "", "", 150*time.Millisecond)

	data := collect(t, reader)
	assert.Equal(t, map[string]int64{"SELECT": 2, "OTHER": 1}, sumByAttr(t, data["db_query_total"], "db.operation"))
	assert.Equal(t, map[string]int64{"payments": 1, "unknown": 1}, sumByAttr(t, data["db_slow_query_total"], "db.table"))
}

func TestDBMetrics_Register(t *testing.T) {
	provider, reader := newTestMeterProvider(t)
	m, err := NewDBMetrics(provider.Meter("test"), DBMetricsConfig{}, zap.NewNop())
	require.NoError(t, err)

	db := setupTestDB(t)
	require.NoError(t, m.Register(db))

	require.NoError(t, db.Create(&testPayment{ID: "p-1", Reference: "REF-1"}).Error)
	var got testPayment
	require.NoError(t, db.First(&got, "id = ?", "p-1").Error)
	require.NoError(t, db.Model(&got).Update("reference", "REF-2").Error)
	require.NoError(t, db.Delete(&got).Error)

	counts := sumByAttr(t, collect(t, reader)["db_query_total"], "db.operation")
	assert.Equal(t, int64(1), counts["INSERT"])
	assert.Equal(t, int64(1), counts["SELECT"])
	assert.Equal(t, int64(1), counts["UPDATE"])
	assert.Equal(t, int64(1), counts["DELETE"])
}

func TestDBMetrics_PoolStats(t *testing.T) {
	provider, reader := newTestMeterProvider(t)
	m, err := NewDBMetrics(provider.Meter("test"), DBMetricsConfig{PoolStatsInterval: time.Hour}, zap.NewNop())
	require.NoError(t, err)

	t.Run("requires register", func(t *testing.T) {
		unregistered, err := NewDBMetrics(provider.Meter("test"), DBMetricsConfig{}, zap.NewNop())
		require.NoError(t, err)
		unregistered.StartPoolStatsCollection(context.Background())
		unregistered.Stop()
	})

	require.NoError(t, m.Register(setupTestDB(t)))
	m.StartPoolStatsCollection(context.Background())

	assert.Eventually(t, func() bool {
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &rm); err != nil {
			return false
		}
		for _, sm := range rm.ScopeMetrics {
			for _, metric := range sm.Metrics {
				if metric.Name == "db_pool_connections_max" {
					g := metric.Data.(metricdata.Gauge[int64])
					return len(g.DataPoints) == 1 && g.DataPoints[0].Value == 1
				}
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	m.Stop()
	assert.NotPanics(t, m.Stop)
}
