package remittance

import (
	"fmt"
	"time"

	"github.com/erp/remittance/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ReconciliationStatus is the overall outcome of a reconciliation
type ReconciliationStatus string

const (
	StatusMatched          ReconciliationStatus = "MATCHED"
	StatusDiscrepancyFound ReconciliationStatus = "DISCREPANCY_FOUND"
)

// IsValid checks if the status is a known value
func (s ReconciliationStatus) IsValid() bool {
	return s == StatusMatched || s == StatusDiscrepancyFound
}

func (s ReconciliationStatus) String() string {
	return string(s)
}

// InvoiceDiscrepancyDetail describes one invoice whose remittance differs from
// its net AR amount by more than the threshold.
type InvoiceDiscrepancyDetail struct {
	InvoiceNumber    string          `json:"invoice_number"`
	FacilityID       string          `json:"facility_id"`
	FacilityType     string          `json:"facility_type"`
	ServiceType      string          `json:"service_type"`
	RemittanceAmount decimal.Decimal `json:"remittance_amount"`
	ARAmount         decimal.Decimal `json:"ar_amount"`
	Difference       decimal.Decimal `json:"difference"`
}

// FacilityAmountSummary aggregates remittance and AR for one facility type
type FacilityAmountSummary struct {
	FacilityType     string          `json:"facility_type"`
	RemittanceAmount decimal.Decimal `json:"remittance_amount"`
	ARSystemAmount   decimal.Decimal `json:"ar_system_amount"`
	Difference       decimal.Decimal `json:"difference"`
	ServiceTypes     []string        `json:"service_types"`
	InvoiceCount     int             `json:"invoice_count"`
	HasDiscrepancy   bool            `json:"has_discrepancy"`
}

// ProcessingMetrics describes the invoice set a reconciliation ran over
type ProcessingMetrics struct {
	TotalInvoices     int      `json:"total_invoices"`
	FacilityTypes     []string `json:"facility_types"`
	FacilityTypeCount int      `json:"facility_type_count"`
	ServiceTypes      []string `json:"service_types"`
	ServiceTypeCount  int      `json:"service_type_count"`
	AllMatched        bool     `json:"all_matched"`
}

// DiscrepancySummary is present on a result only when a discrepancy was found
type DiscrepancySummary struct {
	TotalDifference       decimal.Decimal         `json:"total_difference"`
	AffectedFacilityCount int                     `json:"affected_facility_count"`
	AffectedInvoiceCount  int                     `json:"affected_invoice_count"`
	TotalRemittanceAmount decimal.Decimal         `json:"total_remittance_amount"`
	TotalARAmount         decimal.Decimal         `json:"total_ar_amount"`
	FacilityDifferences   []FacilityAmountSummary `json:"facility_differences"`
	AffectedServiceTypes  []string                `json:"affected_service_types"`
}

// RemittanceFields echoes the remittance metadata of the reconciled payment
type RemittanceFields struct {
	CustomerName       string          `json:"customer_name"`
	CustomerID         string          `json:"customer_id"`
	PaymentDate        time.Time       `json:"payment_date"`
	PaymentMethod      string          `json:"payment_method"`
	PaymentReference   string          `json:"payment_reference"`
	TotalPayment       decimal.Decimal `json:"total_payment"`
	TotalInvoiceAmount decimal.Decimal `json:"total_invoice_amount"`
	TotalDiscounts     decimal.Decimal `json:"total_discounts"`
	TotalCharges       decimal.Decimal `json:"total_charges"`
	BankAccount        string          `json:"bank_account"`
	RemittanceNotes    string          `json:"remittance_notes,omitempty"`
}

// ReconciliationResult is the outcome of analyzing one payment.
// DiscrepancySummary and InvoiceDiscrepancies are nil when Status is MATCHED.
type ReconciliationResult struct {
	Status               ReconciliationStatus       `json:"status"`
	PaymentReference     string                     `json:"payment_reference"`
	PaymentAmount        decimal.Decimal            `json:"payment_amount"`
	ARBalance            decimal.Decimal            `json:"ar_balance"`
	TotalDifference      decimal.Decimal            `json:"total_difference"`
	ProcessingMetrics    ProcessingMetrics          `json:"processing_metrics"`
	DiscrepancySummary   *DiscrepancySummary        `json:"discrepancy_summary"`
	InvoiceDiscrepancies []InvoiceDiscrepancyDetail `json:"invoice_discrepancies"`
	RemittanceFields     RemittanceFields           `json:"remittance_fields"`
	Threshold            decimal.Decimal            `json:"threshold"`
}

// IsMatched reports whether the payment reconciled within the threshold
func (r *ReconciliationResult) IsMatched() bool {
	return r.Status == StatusMatched
}

// Summary renders a one-line human-readable description of the result
func (r *ReconciliationResult) Summary() string {
	line := fmt.Sprintf("%s %s: remitted %s against AR %s (difference %s) across %d invoices",
		r.PaymentReference,
		r.Status,
		valueobject.FormatCurrency(r.PaymentAmount),
		valueobject.FormatCurrency(r.ARBalance),
		valueobject.FormatCurrency(r.TotalDifference),
		r.ProcessingMetrics.TotalInvoices,
	)
	if r.DiscrepancySummary != nil {
		line += fmt.Sprintf(", %d invoices in %d facility types flagged",
			r.DiscrepancySummary.AffectedInvoiceCount,
			r.DiscrepancySummary.AffectedFacilityCount,
		)
	}
	return line
}

// RecordTotals are the normalized payment-level amounts of a recorded payment
type RecordTotals struct {
	Payment   decimal.Decimal `json:"payment"`
	Invoice   decimal.Decimal `json:"invoice"`
	Discounts decimal.Decimal `json:"discounts"`
	Charges   decimal.Decimal `json:"charges"`
}

// RecordResult is returned by RecordPayment
type RecordResult struct {
	PaymentID      string                     `json:"payment_id"`
	Allocations    []AllocationRecord         `json:"allocations"`
	FacilityTotals map[string]decimal.Decimal `json:"facility_totals"`
	Totals         RecordTotals               `json:"totals"`
}
