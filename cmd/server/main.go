package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appremittance "github.com/erp/remittance/internal/application/remittance"
	"github.com/erp/remittance/internal/infrastructure/cache"
	"github.com/erp/remittance/internal/infrastructure/config"
	"github.com/erp/remittance/internal/infrastructure/logger"
	"github.com/erp/remittance/internal/infrastructure/migration"
	"github.com/erp/remittance/internal/infrastructure/persistence"
	"github.com/erp/remittance/internal/infrastructure/storage"
	"github.com/erp/remittance/internal/infrastructure/telemetry"
	"github.com/erp/remittance/internal/interfaces/http/handler"
	"github.com/erp/remittance/internal/interfaces/http/middleware"
	"github.com/erp/remittance/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Remittance Reconciliation API
//	@version		1.0
//	@description	Records customer payments against AR invoices and reports reconciliation discrepancies.

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	baseLog, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(baseLog)
	}()

	ctx := context.Background()
	tel := setupTelemetry(ctx, cfg, baseLog)
	defer tel.shutdown(baseLog)
	log := tel.logger

	log.Info("Starting remittance service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	if cfg.Database.AutoMigrate {
		if err := runMigrations(cfg, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)

	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	db, err := persistence.Open(connectCtx, &cfg.Database, gormLog)
	cancelConnect()
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	dbTracing.DBName = cfg.Database.DBName
	if err := telemetry.NewDBTracingPlugin(dbTracing, log).Register(db.DB); err != nil {
		log.Warn("Database tracing unavailable", zap.Error(err))
	}

	dbMetrics, err := telemetry.NewDBMetrics(tel.meter.Meter("remittance/db"), telemetry.DBMetricsConfig{
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Warn("Database metrics unavailable", zap.Error(err))
	} else if err := dbMetrics.Register(db.DB); err != nil {
		log.Warn("Database metrics unavailable", zap.Error(err))
	} else {
		dbMetrics.StartPoolStatsCollection(ctx)
		defer dbMetrics.Stop()
	}

	// Result cache
	resultCache, err := cache.NewResultCacheFactory(cfg.Cache, cfg.Redis, cache.WithLogger(log)).Create()
	if err != nil {
		log.Fatal("Failed to create result cache", zap.Error(err))
	}
	if resultCache != nil {
		defer func() {
			_ = resultCache.Close()
		}()
	}

	// Report archive
	reports := setupReportStore(ctx, cfg, log)

	reconMetrics, err := telemetry.NewReconciliationMetrics(tel.meter.Meter("remittance/reconciliation"))
	if err != nil {
		log.Warn("Reconciliation metrics unavailable", zap.Error(err))
	}

	opts := []appremittance.ServiceOption{
		appremittance.WithDefaultThreshold(cfg.Reconciliation.DefaultThreshold),
		appremittance.WithLogger(log),
		appremittance.WithMetrics(reconMetrics),
	}
	if resultCache != nil {
		opts = append(opts, appremittance.WithResultCache(resultCache))
	}
	if reports != nil {
		opts = append(opts, appremittance.WithReportStore(reports, cfg.Storage.KeyPrefix))
	}
	service := appremittance.NewReconciliationService(db.Ledger(), opts...)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxies", zap.Error(err))
		}
	} else {
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestID())
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(tel.meter.Meter("remittance/http"), log))
	engine.Use(middleware.ProfilingWithConfig(middleware.ProfilingConfig{
		Enabled:   cfg.Telemetry.ProfilingEnabled,
		SkipPaths: middleware.DefaultProfilingConfig().SkipPaths,
	}))

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	checks := map[string]handler.Pinger{"database": db}
	if p, ok := resultCache.(handler.Pinger); ok {
		checks["cache"] = p
	}
	healthHandler := handler.NewHealthHandler(cfg.App.Name, version, checks)
	healthHandler.Register(engine)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewRemittanceHandler(service).Routes()).
		Register(healthHandler.Routes())
	r.Setup()
	for _, route := range r.Routes() {
		log.Debug("Route registered",
			zap.String("group", route.Group),
			zap.String("method", route.Method),
			zap.String("path", route.Path),
		)
	}

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("Server exited gracefully")
}

// runMigrations applies the embedded schema over its own connection, since
// closing the migrator closes the connection it was given.
func runMigrations(cfg *config.Config, log *zap.Logger) error {
	sqlDB, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	m, err := migration.New(sqlDB, log)
	if err != nil {
		return err
	}
	defer m.Close()

	return m.Up()
}

// setupReportStore returns the S3 archive when storage is enabled, or nil so
// the report endpoint answers 503.
func setupReportStore(ctx context.Context, cfg *config.Config, log *zap.Logger) appremittance.ReportStore {
	if !cfg.Storage.Enabled {
		log.Info("Reconciliation report archive disabled")
		return nil
	}

	store, err := storage.NewS3ReportStore(&cfg.Storage, storage.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to create report store", zap.Error(err))
	}

	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.EnsureBucket(ensureCtx); err != nil {
		log.Fatal("Failed to prepare report bucket",
			zap.String("bucket", store.Bucket()),
			zap.Error(err),
		)
	}

	log.Info("Reconciliation report archive enabled", zap.String("bucket", store.Bucket()))
	return store
}

// telemetryStack holds the providers started for this process
type telemetryStack struct {
	tracer   *telemetry.TracerProvider
	meter    *telemetry.MeterProvider
	logs     *telemetry.LoggerProvider
	profiler *telemetry.Profiler
	logger   *zap.Logger
}

// setupTelemetry starts tracing, metrics, the OTLP log bridge and the
// profiler. A provider that fails to start is logged and left disabled.
func setupTelemetry(ctx context.Context, cfg *config.Config, log *zap.Logger) *telemetryStack {
	tc := cfg.Telemetry
	stack := &telemetryStack{logger: log}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		SamplingRatio:     tc.SamplingRatio,
		ServiceName:       tc.ServiceName,
		ServiceVersion:    version,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		log.Warn("Tracing unavailable", zap.Error(err))
		tp, _ = telemetry.NewTracerProvider(ctx, telemetry.Config{}, log)
	}
	stack.tracer = tp

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           tc.MetricsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ExportInterval:    tc.MetricsExportInterval,
		ServiceName:       tc.ServiceName,
		ServiceVersion:    version,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		log.Warn("Metrics unavailable", zap.Error(err))
		mp, _ = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{}, log)
	}
	stack.meter = mp

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           tc.LogsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ServiceName:       tc.ServiceName,
		ServiceVersion:    version,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		log.Warn("Log export unavailable", zap.Error(err))
	} else {
		stack.logs = lp
		stack.logger = telemetry.Bridge(log, tc.ServiceName, lp)
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         tc.ProfilingEnabled,
		ServerAddress:   tc.PyroscopeEndpoint,
		ApplicationName: tc.ServiceName,
	}, log)
	if err != nil {
		log.Warn("Profiling unavailable", zap.Error(err))
	} else {
		stack.profiler = profiler
		if tc.SpanProfiles && profiler.IsEnabled() {
			if err := tp.EnableSpanProfiles(); err != nil {
				log.Warn("Span profiles unavailable", zap.Error(err))
			}
		}
	}

	return stack
}

func (s *telemetryStack) shutdown(log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.profiler != nil {
		if err := s.profiler.Stop(); err != nil {
			log.Warn("Profiler shutdown failed", zap.Error(err))
		}
	}
	if s.logs != nil {
		if err := s.logs.Shutdown(ctx); err != nil {
			log.Warn("Log provider shutdown failed", zap.Error(err))
		}
	}
	if err := s.meter.Shutdown(ctx); err != nil {
		log.Warn("Meter provider shutdown failed", zap.Error(err))
	}
	if err := s.tracer.Shutdown(ctx); err != nil {
		log.Warn("Tracer provider shutdown failed", zap.Error(err))
	}
}
