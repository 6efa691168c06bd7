package integration

import (
	"context"
	"testing"
	"time"

	"github.com/erp/remittance/internal/domain/remittance"
	"github.com/erp/remittance/internal/infrastructure/cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func cachedResult(reference string) *remittance.ReconciliationResult {
	return &remittance.ReconciliationResult{
		Status:           remittance.StatusMatched,
		PaymentReference: reference,
		PaymentAmount:    decimal.RequireFromString("1750.25"),
		ARBalance:        decimal.RequireFromString("1750.25"),
		TotalDifference:  decimal.Zero,
		Threshold:        decimal.RequireFromString("0.01"),
		ProcessingMetrics: remittance.ProcessingMetrics{
			TotalInvoices: 3,
			FacilityTypes: []string{"Clinic", "Hospital"},
			AllMatched:    true,
		},
	}
}

func TestRedisResultCache(t *testing.T) {
	tr := NewTestRedis(t)
	ctx := context.Background()

	c, err := cache.NewRedisResultCache(cache.RedisConfig{Addr: tr.Addr}, "test:recon:", time.Minute, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
	})

	cent := decimal.RequireFromString("0.01")
	dollar := decimal.RequireFromString("1")

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, c.PingContext(ctx))
	})

	t.Run("miss then hit", func(t *testing.T) {
		got, err := c.Get(ctx, "REF-1", cent)
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, c.Set(ctx, "REF-1", cent, cachedResult("REF-1")))

		got, err = c.Get(ctx, "REF-1", cent)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, remittance.StatusMatched, got.Status)
		assert.True(t, got.PaymentAmount.Equal(decimal.RequireFromString("1750.25")))
		assert.Equal(t, []string{"Clinic", "Hospital"}, got.ProcessingMetrics.FacilityTypes)

		ttl, err := tr.Client.TTL(ctx, "test:recon:REF-1").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)
	})

	t.Run("thresholds are cached separately", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "REF-2", cent, cachedResult("REF-2")))

		got, err := c.Get(ctx, "REF-2", dollar)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = c.Get(ctx, "REF-2", decimal.RequireFromString("0.010"))
		require.NoError(t, err)
		assert.NotNil(t, got, "equal thresholds share an entry")
	})

	t.Run("invalidate drops every threshold", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "REF-3", cent, cachedResult("REF-3")))
		require.NoError(t, c.Set(ctx, "REF-3", dollar, cachedResult("REF-3")))

		require.NoError(t, c.Invalidate(ctx, "REF-3"))

		for _, threshold := range []decimal.Decimal{cent, dollar} {
			got, err := c.Get(ctx, "REF-3", threshold)
			require.NoError(t, err)
			assert.Nil(t, got)
		}
	})

	t.Run("corrupt entry is dropped", func(t *testing.T) {
		require.NoError(t, tr.Client.HSet(ctx, "test:recon:REF-4", "0.01", "{not json").Err())

		got, err := c.Get(ctx, "REF-4", cent)
		assert.Error(t, err)
		assert.Nil(t, got)

		exists, err := tr.Client.HExists(ctx, "test:recon:REF-4", "0.01").Result()
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestRedisResultCache_Unreachable(t *testing.T) {
	skipIfShort(t)

	_, err := cache.NewRedisResultCache(cache.RedisConfig{Addr: "127.0.0.1:1"}, "", time.Minute, zaptest.NewLogger(t))
	assert.Error(t, err)
}
