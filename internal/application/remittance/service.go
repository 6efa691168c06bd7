package remittance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/erp/remittance/internal/domain/remittance"
	"github.com/erp/remittance/internal/domain/shared"
	"github.com/erp/remittance/internal/infrastructure/logger"
	"github.com/erp/remittance/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultThreshold is the tolerance used when neither the caller nor the
// configuration supplies one
var DefaultThreshold = decimal.RequireFromString("0.01")

// ErrReportsDisabled is returned by ReportURL when no report store is configured
var ErrReportsDisabled = shared.NewDomainError(shared.CodeReportsDisabled, "Reconciliation report archive is not configured")

// ReportStore archives rendered reconciliation reports
type ReportStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	ObjectExists(ctx context.Context, key string) (bool, error)
	GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
	// DeletePrefix removes every object whose key starts with prefix
	DeletePrefix(ctx context.Context, prefix string) error
}

// ReportKey is the object key of the report for reference at threshold.
// A later analysis with the same inputs overwrites it.
func ReportKey(prefix, reference string, threshold decimal.Decimal) string {
	return path.Join(prefix, referenceSegment(reference), threshold.String()+".json")
}

// ReportPrefix is the key prefix shared by every report of reference
func ReportPrefix(prefix, reference string) string {
	return path.Join(prefix, referenceSegment(reference)) + "/"
}

// referenceSegment escapes reference into a single key segment that can
// not climb out of the report prefix.
func referenceSegment(reference string) string {
	seg := url.PathEscape(reference)
	if seg == "." || seg == ".." {
		return strings.ReplaceAll(seg, ".", "%2E")
	}
	return seg
}

// ReconciliationService is the application entry point for recording
// payments and analyzing reconciliations. Cache, report store and metrics
// are optional.
type ReconciliationService struct {
	engine           *remittance.ReconciliationEngine
	cache            remittance.ResultCache
	reports          ReportStore
	reportPrefix     string
	metrics          *telemetry.ReconciliationMetrics
	defaultThreshold decimal.Decimal
	logger           *zap.Logger
}

// ServiceOption configures a ReconciliationService
type ServiceOption func(*ReconciliationService)

// WithResultCache serves repeated analyses from cache. A nil cache disables caching.
func WithResultCache(cache remittance.ResultCache) ServiceOption {
	return func(s *ReconciliationService) {
		s.cache = cache
	}
}

// WithReportStore archives every computed analysis under prefix
func WithReportStore(store ReportStore, prefix string) ServiceOption {
	return func(s *ReconciliationService) {
		s.reports = store
		s.reportPrefix = prefix
	}
}

// WithMetrics records reconciliation and payment counters
func WithMetrics(metrics *telemetry.ReconciliationMetrics) ServiceOption {
	return func(s *ReconciliationService) {
		s.metrics = metrics
	}
}

// WithDefaultThreshold sets the tolerance used when a caller omits one
func WithDefaultThreshold(threshold decimal.Decimal) ServiceOption {
	return func(s *ReconciliationService) {
		s.defaultThreshold = threshold
	}
}

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *ReconciliationService) {
		s.logger = l
	}
}

// NewReconciliationService creates a service over the given ledger
func NewReconciliationService(ledger remittance.Ledger, opts ...ServiceOption) *ReconciliationService {
	s := &ReconciliationService{
		engine:           remittance.NewReconciliationEngine(ledger),
		defaultThreshold: DefaultThreshold,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultThreshold returns the tolerance applied when a caller omits one
func (s *ReconciliationService) DefaultThreshold() decimal.Decimal {
	return s.defaultThreshold
}

// RecordPayment writes a payment and its allocations, then drops any cached
// analysis and archived report for the reference.
func (s *ReconciliationService) RecordPayment(
	ctx context.Context,
	payment remittance.PaymentInput,
	allocations []remittance.AllocationInput,
) (*remittance.RecordResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "remittance", "record_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentReference, payment.PaymentReference,
		telemetry.SpanAttrCustomerID, payment.CustomerID,
		telemetry.SpanAttrInvoiceCount, len(allocations),
	)
	ctx = logger.WithCustomerID(logger.WithPaymentReference(ctx, payment.PaymentReference), payment.CustomerID)
	log := logger.For(ctx, s.logger)

	result, err := s.engine.RecordPayment(ctx, payment, allocations)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordPayment(ctx, telemetry.OutcomeFailed, 0)
		log.Warn("Failed to record payment", zap.Error(err))
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, result.PaymentID)
	s.metrics.RecordPayment(ctx, telemetry.OutcomeSuccess, len(result.Allocations))

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, payment.PaymentReference); err != nil {
			log.Warn("Failed to invalidate cached reconciliation", zap.Error(err))
		}
	}
	if s.reports != nil {
		if err := s.reports.DeletePrefix(ctx, ReportPrefix(s.reportPrefix, payment.PaymentReference)); err != nil {
			telemetry.AddEvent(span, "report_purge_failed", "error", err.Error())
			log.Warn("Failed to purge archived reconciliation reports", zap.Error(err))
		}
	}

	telemetry.SetOK(span)
	log.Info("Payment recorded",
		zap.String(logger.FieldPaymentID, result.PaymentID),
		zap.Int("allocations", len(result.Allocations)),
		logger.Amount("total_payment", result.Totals.Payment),
	)
	return result, nil
}

// AnalyzeReconciliation reconciles the payment with the given reference.
// A nil threshold uses the service default.
func (s *ReconciliationService) AnalyzeReconciliation(
	ctx context.Context,
	reference string,
	threshold *decimal.Decimal,
) (*remittance.ReconciliationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "remittance", "analyze_reconciliation")
	defer span.End()

	limit := s.resolveThreshold(threshold)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentReference, reference,
		telemetry.SpanAttrThreshold, limit.String(),
	)
	ctx = logger.WithPaymentReference(ctx, reference)
	log := logger.For(ctx, s.logger).With(logger.Threshold(limit))
	start := time.Now()

	cacheResult := telemetry.CacheNone
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, reference, limit)
		switch {
		case err != nil:
			log.Warn("Reconciliation cache read failed", zap.Error(err))
			cacheResult = telemetry.CacheMiss
		case cached != nil:
			telemetry.SetAttributes(span,
				telemetry.SpanAttrCacheHit, true,
				telemetry.SpanAttrReconciliationStatus, cached.Status.String(),
			)
			s.metrics.RecordReconciliation(ctx, cached.Status.String(), telemetry.CacheHit, time.Since(start), nil)
			telemetry.SetOK(span)
			log.Debug("Reconciliation served from cache", zap.String("status", cached.Status.String()))
			return cached, nil
		default:
			cacheResult = telemetry.CacheMiss
		}
		telemetry.SetAttributes(span, telemetry.SpanAttrCacheHit, false)
	}

	result, err := s.engine.AnalyzeReconciliation(ctx, reference, limit)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordReconciliation(ctx, "", cacheResult, time.Since(start), nil)
		log.Warn("Reconciliation failed", zap.Error(err))
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, reference, limit, result); err != nil {
			log.Warn("Failed to cache reconciliation", zap.Error(err))
		}
	}
	if s.reports != nil {
		if err := s.archive(ctx, reference, limit, result); err != nil {
			telemetry.AddEvent(span, "report_archive_failed", "error", err.Error())
			log.Warn("Failed to archive reconciliation report", zap.Error(err))
		}
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrReconciliationStatus, result.Status.String(),
		telemetry.SpanAttrTotalDifference, result.TotalDifference,
	)
	s.metrics.RecordReconciliation(ctx, result.Status.String(), cacheResult, time.Since(start), discrepantFacilityTypes(result))
	telemetry.SetOK(span)

	if result.IsMatched() {
		log.Info(result.Summary())
	} else {
		log.Warn(result.Summary(),
			logger.Amount("total_difference", result.TotalDifference),
			zap.Int("affected_invoices", result.DiscrepancySummary.AffectedInvoiceCount),
		)
	}
	return result, nil
}

// ReportURL returns a presigned download link for the archived report of
// reference at threshold, running the analysis first when no report exists.
func (s *ReconciliationService) ReportURL(
	ctx context.Context,
	reference string,
	threshold *decimal.Decimal,
	expiresIn time.Duration,
) (string, time.Time, error) {
	if s.reports == nil {
		return "", time.Time{}, ErrReportsDisabled
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "remittance", "report_url")
	defer span.End()

	limit := s.resolveThreshold(threshold)
	key := ReportKey(s.reportPrefix, reference, limit)
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentReference, reference, "report.key", key)

	exists, err := s.reports.ObjectExists(ctx, key)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", time.Time{}, shared.WrapDomainError(shared.CodePersistence, "failed to look up report", err)
	}
	if !exists {
		// bypass the cache so the report is written even when a result is cached
		result, err := s.engine.AnalyzeReconciliation(ctx, reference, limit)
		if err != nil {
			telemetry.RecordError(span, err)
			return "", time.Time{}, err
		}
		if err := s.archive(ctx, reference, limit, result); err != nil {
			telemetry.RecordError(span, err)
			return "", time.Time{}, shared.WrapDomainError(shared.CodePersistence, "failed to archive report", err)
		}
	}

	url, expiresAt, err := s.reports.GenerateDownloadURL(ctx, key, expiresIn)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", time.Time{}, shared.WrapDomainError(shared.CodePersistence, "failed to sign report URL", err)
	}
	telemetry.SetOK(span)
	return url, expiresAt, nil
}

func (s *ReconciliationService) archive(
	ctx context.Context,
	reference string,
	threshold decimal.Decimal,
	result *remittance.ReconciliationResult,
) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return s.reports.Upload(ctx, ReportKey(s.reportPrefix, reference, threshold), data, "application/json")
}

func (s *ReconciliationService) resolveThreshold(threshold *decimal.Decimal) decimal.Decimal {
	if threshold != nil {
		return *threshold
	}
	return s.defaultThreshold
}

func discrepantFacilityTypes(result *remittance.ReconciliationResult) []string {
	if result.DiscrepancySummary == nil {
		return nil
	}
	types := make([]string, 0, len(result.InvoiceDiscrepancies))
	for _, d := range result.InvoiceDiscrepancies {
		types = append(types, d.FacilityType)
	}
	return types
}
