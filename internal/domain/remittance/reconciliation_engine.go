package remittance

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/erp/remittance/internal/domain/shared"
	"github.com/erp/remittance/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ReconciliationEngine records customer payments with their invoice
// allocations and reconciles recorded payments against AR.
//
// The engine holds no mutable state between calls; every accumulator lives
// for one invocation. It does not lock or retry: callers must not record the
// same payment reference concurrently, and ledger failures surface as-is.
type ReconciliationEngine struct {
	ledger Ledger
}

// NewReconciliationEngine creates an engine backed by the given ledger
func NewReconciliationEngine(ledger Ledger) *ReconciliationEngine {
	return &ReconciliationEngine{ledger: ledger}
}

// RecordPayment normalizes a payment and its allocations and writes them to
// the ledger as one unit. Every monetary field is parsed before the first
// write, so invalid input never reaches the ledger.
//
// Recording the same (date, reference) again replaces the earlier payment:
// allocations absent from the new call are removed.
func (e *ReconciliationEngine) RecordPayment(
	ctx context.Context,
	payment PaymentInput,
	allocations []AllocationInput,
) (*RecordResult, error) {
	p, err := NormalizePayment(payment)
	if err != nil {
		return nil, err
	}

	normalized := make([]*Allocation, 0, len(allocations))
	for _, in := range allocations {
		a, err := NormalizeAllocation(p.ID, in)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, a)
	}

	var records []AllocationRecord
	err = e.ledger.InTransaction(ctx, func(ctx context.Context, w LedgerWriter) error {
		paymentID, err := w.UpsertPayment(ctx, p)
		if err != nil {
			return persistenceError("upsert payment", err)
		}
		p.ID = paymentID

		records = make([]AllocationRecord, 0, len(normalized))
		keep := make([]string, 0, len(normalized))
		for _, a := range normalized {
			a.PaymentID = paymentID
			rec, err := w.UpsertAllocation(ctx, p.CustomerID, a)
			if err != nil {
				return persistenceError(fmt.Sprintf("upsert allocation for invoice %s", a.InvoiceNumber), err)
			}
			records = append(records, *rec)
			keep = append(keep, rec.AllocationID)
		}

		if err := w.PruneAllocations(ctx, paymentID, keep); err != nil {
			return persistenceError("prune allocations", err)
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError("transaction", err)
	}

	// Net amounts per facility type, summed exactly and rounded on report
	facilityTotals := make(map[string]decimal.Decimal)
	for _, a := range normalized {
		facilityTotals[a.FacilityType] = facilityTotals[a.FacilityType].Add(a.Amount)
	}
	for facilityType, total := range facilityTotals {
		facilityTotals[facilityType] = valueobject.RoundCents(total)
	}

	return &RecordResult{
		PaymentID:      p.ID,
		Allocations:    records,
		FacilityTotals: facilityTotals,
		Totals: RecordTotals{
			Payment:   p.NetTotalPaid,
			Invoice:   p.GrossInvoiceTotal,
			Discounts: p.TotalDiscounts,
			Charges:   p.TotalCharges,
		},
	}, nil
}

// AnalyzeReconciliation reconciles the payment with the given reference
// against the AR records of its allocated invoices. A difference counts as a
// discrepancy only when its magnitude is strictly greater than threshold.
func (e *ReconciliationEngine) AnalyzeReconciliation(
	ctx context.Context,
	reference string,
	threshold decimal.Decimal,
) (*ReconciliationResult, error) {
	if threshold.IsNegative() {
		return nil, shared.NewInvalidMonetaryValueError("threshold", threshold.String(),
			errors.New("threshold must not be negative"))
	}

	payment, err := e.ledger.FetchPaymentByReference(ctx, reference)
	if err != nil {
		return nil, persistenceError("fetch payment", err)
	}
	if payment == nil {
		return nil, shared.NewPaymentNotFoundError(reference)
	}

	rows, err := e.ledger.FetchAllocationRows(ctx, payment.ID)
	if err != nil {
		return nil, persistenceError("fetch allocations", err)
	}

	return Reconcile(payment, rows, threshold), nil
}

// Reconcile computes the reconciliation result for a payment and its
// allocation rows. rows must be ordered by facility type then invoice number;
// that order is kept in the discrepancy list and breaks ties between
// facility summaries.
func Reconcile(payment *Payment, rows []AllocationRow, threshold decimal.Decimal) *ReconciliationResult {
	netAR := payment.NetAR()
	metrics := computeProcessingMetrics(rows)

	// Invoice-level comparison
	allMatched := true
	var details []InvoiceDiscrepancyDetail
	for _, row := range rows {
		invoiceNetAR := row.NetAR()
		diff := valueobject.RoundCents(row.AllocatedAmount.Sub(invoiceNetAR))
		if valueobject.ExceedsThreshold(diff, threshold) {
			allMatched = false
			details = append(details, InvoiceDiscrepancyDetail{
				InvoiceNumber:    row.InvoiceNumber,
				FacilityID:       row.FacilityID,
				FacilityType:     row.FacilityType,
				ServiceType:      row.ServiceType,
				RemittanceAmount: row.AllocatedAmount,
				ARAmount:         invoiceNetAR,
				Difference:       diff,
			})
		}
	}

	facilities := SummarizeFacilities(rows, threshold)

	// Payment-level comparison catches slippage no single invoice accounts for
	totalDifference := valueobject.RoundCents(payment.NetTotalPaid.Sub(netAR))
	if valueobject.ExceedsThreshold(totalDifference, threshold) {
		allMatched = false
	}
	metrics.AllMatched = allMatched

	result := &ReconciliationResult{
		Status:            StatusMatched,
		PaymentReference:  payment.PaymentReference,
		PaymentAmount:     payment.NetTotalPaid,
		ARBalance:         netAR,
		TotalDifference:   totalDifference,
		ProcessingMetrics: metrics,
		RemittanceFields:  payment.RemittanceFields(),
		Threshold:         threshold,
	}
	if allMatched {
		return result
	}

	result.Status = StatusDiscrepancyFound
	result.InvoiceDiscrepancies = details
	if result.InvoiceDiscrepancies == nil {
		result.InvoiceDiscrepancies = []InvoiceDiscrepancyDetail{}
	}
	result.DiscrepancySummary = &DiscrepancySummary{
		TotalDifference:       totalDifference,
		AffectedFacilityCount: countFacilitiesWithDiscrepancy(facilities),
		AffectedInvoiceCount:  len(details),
		TotalRemittanceAmount: payment.NetTotalPaid,
		TotalARAmount:         netAR,
		FacilityDifferences:   facilities,
		AffectedServiceTypes:  affectedServiceTypes(details),
	}
	return result
}

// SummarizeFacilities aggregates rows per facility type. Sums are exact and
// only the aggregates are rounded. The result is ordered by the magnitude of
// the difference, largest first, with ties kept in the order facility types
// first appear in rows.
func SummarizeFacilities(rows []AllocationRow, threshold decimal.Decimal) []FacilityAmountSummary {
	type accumulator struct {
		remitTotal decimal.Decimal
		arGross    decimal.Decimal
		discounts  decimal.Decimal
		services   map[string]struct{}
		count      int
	}

	order := make([]string, 0)
	totals := make(map[string]*accumulator)
	for _, row := range rows {
		acc, ok := totals[row.FacilityType]
		if !ok {
			acc = &accumulator{services: make(map[string]struct{})}
			totals[row.FacilityType] = acc
			order = append(order, row.FacilityType)
		}
		acc.remitTotal = acc.remitTotal.Add(row.AllocatedAmount)
		acc.arGross = acc.arGross.Add(row.ARAmount)
		acc.discounts = acc.discounts.Add(row.Discounts)
		acc.services[row.ServiceType] = struct{}{}
		acc.count++
	}

	summaries := make([]FacilityAmountSummary, 0, len(order))
	for _, facilityType := range order {
		acc := totals[facilityType]
		netAR := valueobject.RoundCents(acc.arGross.Sub(acc.discounts))
		remitTotal := valueobject.RoundCents(acc.remitTotal)
		diff := valueobject.RoundCents(remitTotal.Sub(netAR))

		summaries = append(summaries, FacilityAmountSummary{
			FacilityType:     facilityType,
			RemittanceAmount: remitTotal,
			ARSystemAmount:   netAR,
			Difference:       diff,
			ServiceTypes:     sortedKeys(acc.services),
			InvoiceCount:     acc.count,
			HasDiscrepancy:   valueobject.ExceedsThreshold(diff, threshold),
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Difference.Abs().GreaterThan(summaries[j].Difference.Abs())
	})
	return summaries
}

func computeProcessingMetrics(rows []AllocationRow) ProcessingMetrics {
	facilityTypes := make(map[string]struct{})
	serviceTypes := make(map[string]struct{})
	for _, row := range rows {
		facilityTypes[row.FacilityType] = struct{}{}
		if row.ServiceType != "" {
			serviceTypes[row.ServiceType] = struct{}{}
		}
	}

	ft := sortedKeys(facilityTypes)
	st := sortedKeys(serviceTypes)
	return ProcessingMetrics{
		TotalInvoices:     len(rows),
		FacilityTypes:     ft,
		FacilityTypeCount: len(ft),
		ServiceTypes:      st,
		ServiceTypeCount:  len(st),
		AllMatched:        len(rows) > 0,
	}
}

func countFacilitiesWithDiscrepancy(summaries []FacilityAmountSummary) int {
	count := 0
	for _, s := range summaries {
		if s.HasDiscrepancy {
			count++
		}
	}
	return count
}

func affectedServiceTypes(details []InvoiceDiscrepancyDetail) []string {
	set := make(map[string]struct{}, len(details))
	for _, d := range details {
		set[d.ServiceType] = struct{}{}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// persistenceError passes domain errors through and wraps anything else as a
// PERSISTENCE_ERROR naming the failed operation.
func persistenceError(operation string, err error) error {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return shared.NewPersistenceError(operation, err)
}
