package remittance

import (
	"fmt"
	"strings"

	"github.com/erp/remittance/internal/domain/shared"
	"github.com/erp/remittance/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// AllocationInput is one remittance line item before normalization
type AllocationInput struct {
	InvoiceNumber     string
	FacilityID        string
	FacilityType      string
	ServiceType       string
	AmountPaid        any // net amount allocated to the invoice
	InvoiceAmount     any // gross invoice amount
	DiscountsApplied  any
	AdditionalCharges any
}

// Allocation is a normalized line item linking a payment to an invoice
type Allocation struct {
	PaymentID     string
	InvoiceNumber string
	FacilityID    string
	FacilityType  string
	ServiceType   string
	Amount        decimal.Decimal
	InvoiceAmount decimal.Decimal
	Discounts     decimal.Decimal
	Charges       decimal.Decimal
}

// AllocationRecord is the ledger's receipt for a written allocation
type AllocationRecord struct {
	AllocationID  string          `json:"allocation_id"`
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	InvoiceAmount decimal.Decimal `json:"invoice_amount"`
	Discounts     decimal.Decimal `json:"discounts"`
	Charges       decimal.Decimal `json:"charges"`
}

// AllocationRow is an allocation read back from the ledger joined with its
// invoice and facility. ARAmount and Discounts come from the invoice record,
// AllocatedAmount from the allocation.
type AllocationRow struct {
	InvoiceNumber   string
	InvoiceID       string
	FacilityID      string
	FacilityType    string
	ServiceType     string
	AllocatedAmount decimal.Decimal
	ARAmount        decimal.Decimal
	Discounts       decimal.Decimal
}

// NetAR returns the invoice's AR amount less discounts, rounded to cents
func (r AllocationRow) NetAR() decimal.Decimal {
	return valueobject.RoundCents(r.ARAmount.Sub(r.Discounts))
}

// NormalizeAllocation parses every monetary field of in for the given payment
func NormalizeAllocation(paymentID string, in AllocationInput) (*Allocation, error) {
	if strings.TrimSpace(in.InvoiceNumber) == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "invoice number is required")
	}

	field := func(name string) string {
		return fmt.Sprintf("invoices[%s].%s", in.InvoiceNumber, name)
	}

	amount, err := valueobject.ParseField(field("amount_paid"), in.AmountPaid)
	if err != nil {
		return nil, err
	}
	invoiceAmount, err := valueobject.ParseField(field("invoice_amount"), in.InvoiceAmount)
	if err != nil {
		return nil, err
	}
	discounts, err := valueobject.ParseField(field("discounts_applied"), in.DiscountsApplied)
	if err != nil {
		return nil, err
	}
	charges, err := valueobject.ParseField(field("additional_charges"), in.AdditionalCharges)
	if err != nil {
		return nil, err
	}

	return &Allocation{
		PaymentID:     paymentID,
		InvoiceNumber: in.InvoiceNumber,
		FacilityID:    in.FacilityID,
		FacilityType:  in.FacilityType,
		ServiceType:   in.ServiceType,
		Amount:        amount,
		InvoiceAmount: invoiceAmount,
		Discounts:     discounts,
		Charges:       charges,
	}, nil
}
