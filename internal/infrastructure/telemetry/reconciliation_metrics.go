package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Outcome labels for write operations
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Cache labels for analyses
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
	CacheNone = "none"
)

// ReconciliationMetrics holds the business instruments of the service.
// A nil *ReconciliationMetrics records nothing.
type ReconciliationMetrics struct {
	reconciliationTotal    *Counter
	reconciliationDuration *Histogram
	invoiceDiscrepancies   *Counter
	paymentsRecorded       *Counter
	allocationsRecorded    *Counter
}

// NewReconciliationMetrics registers the reconciliation instruments on meter.
func NewReconciliationMetrics(meter metric.Meter) (*ReconciliationMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &ReconciliationMetrics{}
	var err error

	if m.reconciliationTotal, err = NewCounter(meter,
		"remittance_reconciliation_total",
		"Reconciliation analyses by outcome status",
		"{reconciliation}",
	); err != nil {
		return nil, err
	}

	if m.reconciliationDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "remittance_reconciliation_duration_seconds",
		Description: "Latency of reconciliation analyses",
		Unit:        "s",
		Boundaries:  OperationDurationBuckets,
	}); err != nil {
		return nil, err
	}

	if m.invoiceDiscrepancies, err = NewCounter(meter,
		"remittance_invoice_discrepancy_total",
		"Invoices whose remittance differed from net AR beyond the threshold",
		"{invoice}",
	); err != nil {
		return nil, err
	}

	if m.paymentsRecorded, err = NewCounter(meter,
		"remittance_payment_recorded_total",
		"Remittance payments written to the ledger",
		"{payment}",
	); err != nil {
		return nil, err
	}

	if m.allocationsRecorded, err = NewCounter(meter,
		"remittance_allocation_recorded_total",
		"Payment allocations written to the ledger",
		"{allocation}",
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordReconciliation records one analysis. status is empty when the analysis
// failed. discrepantFacilityTypes holds the facility type of every flagged
// invoice, repeated per invoice.
func (m *ReconciliationMetrics) RecordReconciliation(
	ctx context.Context,
	status string,
	cache string,
	duration time.Duration,
	discrepantFacilityTypes []string,
) {
	if m == nil {
		return
	}
	if status == "" {
		status = OutcomeFailed
	}

	m.reconciliationTotal.Inc(ctx,
		AttrReconciliationStatus.String(status),
		AttrCacheResult.String(cache),
	)
	m.reconciliationDuration.RecordDuration(ctx, duration,
		AttrCacheResult.String(cache),
	)
	for _, facilityType := range discrepantFacilityTypes {
		m.invoiceDiscrepancies.Inc(ctx, AttrFacilityType.String(facilityType))
	}
}

// RecordPayment records one RecordPayment call and how many allocations it wrote.
func (m *ReconciliationMetrics) RecordPayment(ctx context.Context, outcome string, allocations int) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Inc(ctx, AttrOutcome.String(outcome))
	if outcome == OutcomeSuccess && allocations > 0 {
		m.allocationsRecorded.Add(ctx, int64(allocations))
	}
}
