package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testPayment struct {
	ID        string `gorm:"primaryKey"`
	Reference string
	CreatedAt time.Time
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&testPayment{}))
	return db
}

func setupSpanRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, sr
}

// statementIn returns a session whose statement context carries ctx.
func statementIn(db *gorm.DB, ctx context.Context, table string) *gorm.DB {
	tx := db.Session(&gorm.Session{NewDB: true, Context: ctx})
	tx.Statement.Table = table
	tx.Statement.RowsAffected = 2
	return tx
}

func TestNewDBTracingPlugin_Defaults(t *testing.T) {
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, zap.NewNop())
	assert.Equal(t, 200*time.Millisecond, p.config.SlowQueryThresh)
	assert.Equal(t, "remittance", p.config.DBName)
	assert.False(t, p.config.LogFullSQL)

	def := DefaultDBTracingConfig()
	assert.False(t, def.Enabled)
	assert.False(t, def.LogFullSQL)
}

func TestDBTracingPlugin_Register(t *testing.T) {
	t.Run("disabled registers nothing", func(t *testing.T) {
		db := setupTestDB(t)
		require.NoError(t, NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop()).Register(db))
		assert.Nil(t, db.Callback().Query().Get("otel_span:after_query"))
	})

	t.Run("enabled installs callbacks", func(t *testing.T) {
		db := setupTestDB(t)
		cfg := DefaultDBTracingConfig()
		cfg.Enabled = true
		require.NoError(t, NewDBTracingPlugin(cfg, zap.NewNop()).Register(db))
		assert.NotNil(t, db.Callback().Query().Get("otel_span:after_query"))
		assert.NotNil(t, db.Callback().Create().Get("otel_span:before_create"))

		require.NoError(t, db.Create(&testPayment{ID: "p-1", Reference: "REF-1"}).Error)
	})

	t.Run("double registration fails", func(t *testing.T) {
		db := setupTestDB(t)
		cfg := DefaultDBTracingConfig()
		cfg.Enabled = true
		require.NoError(t, NewDBTracingPlugin(cfg, zap.NewNop()).Register(db))
		assert.Error(t, NewDBTracingPlugin(cfg, zap.NewNop()).Register(db))
	})
}

func TestDBTracingPlugin_Annotate(t *testing.T) {
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: 50 * time.Millisecond}, zap.NewNop())
	db := setupTestDB(t)

	t.Run("slow query", func(t *testing.T) {
		tp, sr := setupSpanRecorder(t)
		ctx, span := tp.Tracer("test").Start(context.Background(), "db")

		p.annotate(statementIn(db, ctx, "payments"), "query", 120*time.Millisecond)
		span.End()

		ended := sr.Ended()[0]
		attrs := map[string]any{}
		for _, kv := range ended.Attributes() {
			attrs[string(kv.Key)] = kv.Value.AsInterface()
		}
		assert.Equal(t, true, attrs["db.slow_query"])
		assert.Equal(t, int64(120), attrs["db.query_duration_ms"])
		assert.Equal(t, "payments", attrs["db.sql.table"])
		assert.Equal(t, int64(2), attrs["db.rows_affected"])
		require.Len(t, ended.Events(), 1)
		assert.Equal(t, "slow_query_warning", ended.Events()[0].Name)
	})

	t.Run("fast query is not flagged", func(t *testing.T) {
		tp, sr := setupSpanRecorder(t)
		ctx, span := tp.Tracer("test").Start(context.Background(), "db")

		p.annotate(statementIn(db, ctx, "payments"), "query", 10*time.Millisecond)
		span.End()

		for _, kv := range sr.Ended()[0].Attributes() {
			assert.NotEqual(t, "db.slow_query", string(kv.Key))
		}
		assert.Empty(t, sr.Ended()[0].Events())
	})

	t.Run("error marks span", func(t *testing.T) {
		tp, sr := setupSpanRecorder(t)
		ctx, span := tp.Tracer("test").Start(context.Background(), "db")

		tx := statementIn(db, ctx, "payment_allocations")
		tx.Error = errors.New("deadlock detected")
		p.annotate(tx, "update", time.Millisecond)
		span.End()

		assert.Equal(t, codes.Error, sr.Ended()[0].Status().Code)
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		tp, sr := setupSpanRecorder(t)
		ctx, span := tp.Tracer("test").Start(context.Background(), "db")

		tx := statementIn(db, ctx, "invoices")
		tx.Error = gorm.ErrRecordNotFound
		p.annotate(tx, "query", time.Millisecond)
		span.End()

		assert.Equal(t, codes.Unset, sr.Ended()[0].Status().Code)
	})

	t.Run("no recording span", func(t *testing.T) {
		assert.NotPanics(t, func() {
			p.annotate(statementIn(db, context.Background(), "payments"), "query", time.Second)
		})
	})
}

func TestSQLOperation(t *testing.T) {
	tests := []struct {
		op, sql, want string
	}{
		{"create", "", "INSERT"},
		{"query", "", "SELECT"},
		{"update", "", "UPDATE"},
		{"delete", "", "DELETE"},
		{"raw", "  select 1", "SELECT"},
		{"row", "DELETE FROM payment_allocations", "DELETE"},
		{"raw", "INSERT INTO payments", "INSERT"},
		{"raw", "UPDATE payments SET", "UPDATE"},
		{"raw", "BEGIN", "OTHER"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sqlOperation(tt.op, tt.sql), "%s %q", tt.op, tt.sql)
	}
}
