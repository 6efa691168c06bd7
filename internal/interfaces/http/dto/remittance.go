package dto

import (
	"time"

	"github.com/erp/remittance/internal/domain/remittance"
	"github.com/erp/remittance/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Monetary request fields are left untyped so callers may send JSON numbers,
// numeric strings or formatted strings such as "$1,050.00". They are decoded
// with UseNumber and parsed exactly by the domain.

// PaymentRequest is the payment header of a remittance
type PaymentRequest struct {
	CustomerID         string `json:"customer_id" binding:"required,max=64"`
	PaymentDate        string `json:"payment_date" binding:"required,datetime=2006-01-02"`
	PaymentReference   string `json:"payment_reference" binding:"required,max=64"`
	PaymentMethod      string `json:"payment_method" binding:"max=32"`
	BankAccount        string `json:"bank_account" binding:"max=64"`
	TotalPayment       any    `json:"total_payment" binding:"required,monetary"`
	TotalInvoiceAmount any    `json:"total_invoice_amount" binding:"required,monetary"`
	TotalDiscounts     any    `json:"total_discounts" binding:"omitempty,monetary"`
	TotalCharges       any    `json:"total_charges" binding:"omitempty,monetary"`
	InvoiceCount       int    `json:"invoice_count" binding:"gte=0"`
	RemittanceNotes    string `json:"remittance_notes" binding:"max=2000"`
}

// InvoiceAllocationRequest is one remittance line item
type InvoiceAllocationRequest struct {
	InvoiceNumber     string `json:"invoice_number" binding:"required,max=64"`
	FacilityID        string `json:"facility_id" binding:"max=64"`
	FacilityType      string `json:"facility_type" binding:"max=64"`
	ServiceType       string `json:"service_type" binding:"max=64"`
	AmountPaid        any    `json:"amount_paid" binding:"required,monetary"`
	InvoiceAmount     any    `json:"invoice_amount" binding:"omitempty,monetary"`
	DiscountsApplied  any    `json:"discounts_applied" binding:"omitempty,monetary"`
	AdditionalCharges any    `json:"additional_charges" binding:"omitempty,monetary"`
}

// RecordPaymentRequest is the body of POST /remittance/payments
type RecordPaymentRequest struct {
	Payment  PaymentRequest             `json:"payment"`
	Invoices []InvoiceAllocationRequest `json:"invoices" binding:"dive"`
}

// ToInputs converts the request into engine inputs
func (r *RecordPaymentRequest) ToInputs() (remittance.PaymentInput, []remittance.AllocationInput, error) {
	date, err := time.Parse(remittance.PaymentDateLayout, r.Payment.PaymentDate)
	if err != nil {
		return remittance.PaymentInput{}, nil, err
	}

	payment := remittance.PaymentInput{
		CustomerID:         r.Payment.CustomerID,
		PaymentDate:        date,
		PaymentReference:   r.Payment.PaymentReference,
		PaymentMethod:      r.Payment.PaymentMethod,
		BankAccount:        r.Payment.BankAccount,
		TotalPayment:       r.Payment.TotalPayment,
		TotalInvoiceAmount: r.Payment.TotalInvoiceAmount,
		TotalDiscounts:     r.Payment.TotalDiscounts,
		TotalCharges:       r.Payment.TotalCharges,
		InvoiceCount:       r.Payment.InvoiceCount,
		RemittanceNotes:    r.Payment.RemittanceNotes,
	}

	allocations := make([]remittance.AllocationInput, 0, len(r.Invoices))
	for _, inv := range r.Invoices {
		allocations = append(allocations, remittance.AllocationInput{
			InvoiceNumber:     inv.InvoiceNumber,
			FacilityID:        inv.FacilityID,
			FacilityType:      inv.FacilityType,
			ServiceType:       inv.ServiceType,
			AmountPaid:        inv.AmountPaid,
			InvoiceAmount:     inv.InvoiceAmount,
			DiscountsApplied:  inv.DiscountsApplied,
			AdditionalCharges: inv.AdditionalCharges,
		})
	}
	return payment, allocations, nil
}

// ReconciliationQuery holds the query parameters of the reconciliation endpoint
type ReconciliationQuery struct {
	Threshold string `form:"threshold" binding:"omitempty,monetary"`
}

// ReportQuery holds the query parameters of the report endpoint. ExpiresIn is
// in seconds and capped at the seven days a presigned S3 URL may live.
type ReportQuery struct {
	Threshold string `form:"threshold" binding:"omitempty,monetary"`
	ExpiresIn int    `form:"expires_in" binding:"omitempty,gte=1,lte=604800"`
}

// money converts an exact amount to a float at cent precision. This is the
// only place amounts leave decimal form.
func money(d decimal.Decimal) float64 {
	return valueobject.RoundCents(d).InexactFloat64()
}

// AllocationResponse is one written allocation
type AllocationResponse struct {
	AllocationID  string  `json:"allocation_id"`
	InvoiceID     string  `json:"invoice_id"`
	InvoiceNumber string  `json:"invoice_number"`
	Amount        float64 `json:"amount"`
	InvoiceAmount float64 `json:"invoice_amount"`
	Discounts     float64 `json:"discounts"`
	Charges       float64 `json:"charges"`
}

// TotalsResponse are the payment-level amounts of a recorded payment
type TotalsResponse struct {
	Payment   float64 `json:"payment"`
	Invoice   float64 `json:"invoice"`
	Discounts float64 `json:"discounts"`
	Charges   float64 `json:"charges"`
}

// RecordPaymentResponse is returned by POST /remittance/payments
type RecordPaymentResponse struct {
	PaymentID      string               `json:"payment_id"`
	Allocations    []AllocationResponse `json:"allocations"`
	FacilityTotals map[string]float64   `json:"facility_totals"`
	Totals         TotalsResponse       `json:"totals"`
}

// NewRecordPaymentResponse converts a record result for transport
func NewRecordPaymentResponse(r *remittance.RecordResult) RecordPaymentResponse {
	allocations := make([]AllocationResponse, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		allocations = append(allocations, AllocationResponse{
			AllocationID:  a.AllocationID,
			InvoiceID:     a.InvoiceID,
			InvoiceNumber: a.InvoiceNumber,
			Amount:        money(a.Amount),
			InvoiceAmount: money(a.InvoiceAmount),
			Discounts:     money(a.Discounts),
			Charges:       money(a.Charges),
		})
	}

	totals := make(map[string]float64, len(r.FacilityTotals))
	for facilityType, total := range r.FacilityTotals {
		totals[facilityType] = money(total)
	}

	return RecordPaymentResponse{
		PaymentID:      r.PaymentID,
		Allocations:    allocations,
		FacilityTotals: totals,
		Totals: TotalsResponse{
			Payment:   money(r.Totals.Payment),
			Invoice:   money(r.Totals.Invoice),
			Discounts: money(r.Totals.Discounts),
			Charges:   money(r.Totals.Charges),
		},
	}
}

// InvoiceDiscrepancyResponse is one flagged invoice
type InvoiceDiscrepancyResponse struct {
	InvoiceNumber    string  `json:"invoice_number"`
	FacilityID       string  `json:"facility_id"`
	FacilityType     string  `json:"facility_type"`
	ServiceType      string  `json:"service_type"`
	RemittanceAmount float64 `json:"remittance_amount"`
	ARAmount         float64 `json:"ar_amount"`
	Difference       float64 `json:"difference"`
}

// FacilitySummaryResponse aggregates one facility type
type FacilitySummaryResponse struct {
	FacilityType     string   `json:"facility_type"`
	RemittanceAmount float64  `json:"remittance_amount"`
	ARSystemAmount   float64  `json:"ar_system_amount"`
	Difference       float64  `json:"difference"`
	ServiceTypes     []string `json:"service_types"`
	InvoiceCount     int      `json:"invoice_count"`
	HasDiscrepancy   bool     `json:"has_discrepancy"`
}

// DiscrepancySummaryResponse is present only when a discrepancy was found
type DiscrepancySummaryResponse struct {
	TotalDifference       float64                   `json:"total_difference"`
	AffectedFacilityCount int                       `json:"affected_facility_count"`
	AffectedInvoiceCount  int                       `json:"affected_invoice_count"`
	TotalRemittanceAmount float64                   `json:"total_remittance_amount"`
	TotalARAmount         float64                   `json:"total_ar_amount"`
	FacilityDifferences   []FacilitySummaryResponse `json:"facility_differences"`
	AffectedServiceTypes  []string                  `json:"affected_service_types"`
}

// RemittanceFieldsResponse echoes the reconciled payment's remittance metadata
type RemittanceFieldsResponse struct {
	CustomerName       string  `json:"customer_name"`
	CustomerID         string  `json:"customer_id"`
	PaymentDate        string  `json:"payment_date"`
	PaymentMethod      string  `json:"payment_method"`
	PaymentReference   string  `json:"payment_reference"`
	TotalPayment       float64 `json:"total_payment"`
	TotalInvoiceAmount float64 `json:"total_invoice_amount"`
	TotalDiscounts     float64 `json:"total_discounts"`
	TotalCharges       float64 `json:"total_charges"`
	BankAccount        string  `json:"bank_account"`
	RemittanceNotes    string  `json:"remittance_notes,omitempty"`
}

// ReconciliationResponse is returned by the reconciliation endpoint
type ReconciliationResponse struct {
	Status               string                       `json:"status"`
	Summary              string                       `json:"summary"`
	PaymentReference     string                       `json:"payment_reference"`
	PaymentAmount        float64                      `json:"payment_amount"`
	ARBalance            float64                      `json:"ar_balance"`
	TotalDifference      float64                      `json:"total_difference"`
	Threshold            string                       `json:"threshold"`
	ProcessingMetrics    remittance.ProcessingMetrics `json:"processing_metrics"`
	DiscrepancySummary   *DiscrepancySummaryResponse  `json:"discrepancy_summary"`
	InvoiceDiscrepancies []InvoiceDiscrepancyResponse `json:"invoice_discrepancies"`
	RemittanceFields     RemittanceFieldsResponse     `json:"remittance_fields"`
}

// NewReconciliationResponse converts a reconciliation result for transport
func NewReconciliationResponse(r *remittance.ReconciliationResult) ReconciliationResponse {
	resp := ReconciliationResponse{
		Status:            r.Status.String(),
		Summary:           r.Summary(),
		PaymentReference:  r.PaymentReference,
		PaymentAmount:     money(r.PaymentAmount),
		ARBalance:         money(r.ARBalance),
		TotalDifference:   money(r.TotalDifference),
		Threshold:         r.Threshold.String(),
		ProcessingMetrics: r.ProcessingMetrics,
		RemittanceFields:  newRemittanceFieldsResponse(r.RemittanceFields),
	}

	if r.InvoiceDiscrepancies != nil {
		resp.InvoiceDiscrepancies = make([]InvoiceDiscrepancyResponse, 0, len(r.InvoiceDiscrepancies))
		for _, d := range r.InvoiceDiscrepancies {
			resp.InvoiceDiscrepancies = append(resp.InvoiceDiscrepancies, InvoiceDiscrepancyResponse{
				InvoiceNumber:    d.InvoiceNumber,
				FacilityID:       d.FacilityID,
				FacilityType:     d.FacilityType,
				ServiceType:      d.ServiceType,
				RemittanceAmount: money(d.RemittanceAmount),
				ARAmount:         money(d.ARAmount),
				Difference:       money(d.Difference),
			})
		}
	}

	if s := r.DiscrepancySummary; s != nil {
		facilities := make([]FacilitySummaryResponse, 0, len(s.FacilityDifferences))
		for _, f := range s.FacilityDifferences {
			facilities = append(facilities, FacilitySummaryResponse{
				FacilityType:     f.FacilityType,
				RemittanceAmount: money(f.RemittanceAmount),
				ARSystemAmount:   money(f.ARSystemAmount),
				Difference:       money(f.Difference),
				ServiceTypes:     f.ServiceTypes,
				InvoiceCount:     f.InvoiceCount,
				HasDiscrepancy:   f.HasDiscrepancy,
			})
		}
		resp.DiscrepancySummary = &DiscrepancySummaryResponse{
			TotalDifference:       money(s.TotalDifference),
			AffectedFacilityCount: s.AffectedFacilityCount,
			AffectedInvoiceCount:  s.AffectedInvoiceCount,
			TotalRemittanceAmount: money(s.TotalRemittanceAmount),
			TotalARAmount:         money(s.TotalARAmount),
			FacilityDifferences:   facilities,
			AffectedServiceTypes:  s.AffectedServiceTypes,
		}
	}
	return resp
}

func newRemittanceFieldsResponse(f remittance.RemittanceFields) RemittanceFieldsResponse {
	return RemittanceFieldsResponse{
		CustomerName:       f.CustomerName,
		CustomerID:         f.CustomerID,
		PaymentDate:        f.PaymentDate.Format(remittance.PaymentDateLayout),
		PaymentMethod:      f.PaymentMethod,
		PaymentReference:   f.PaymentReference,
		TotalPayment:       money(f.TotalPayment),
		TotalInvoiceAmount: money(f.TotalInvoiceAmount),
		TotalDiscounts:     money(f.TotalDiscounts),
		TotalCharges:       money(f.TotalCharges),
		BankAccount:        f.BankAccount,
		RemittanceNotes:    f.RemittanceNotes,
	}
}

// ReportURLResponse is a presigned link to an archived reconciliation report
type ReportURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
