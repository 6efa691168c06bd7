// Package remittance reconciles customer payment remittances against
// accounts-receivable invoice records.
package remittance

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/remittance/internal/domain/shared"
	"github.com/erp/remittance/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PaymentDateLayout is the layout used for payment dates in identifiers
const PaymentDateLayout = "2006-01-02"

// PaymentInput is a payment as received from a remittance, before its
// monetary fields are normalized. Monetary fields accept anything
// valueobject.ParseAmount accepts.
type PaymentInput struct {
	CustomerID         string
	PaymentDate        time.Time
	PaymentReference   string
	PaymentMethod      string
	BankAccount        string
	TotalPayment       any // net amount actually remitted
	TotalInvoiceAmount any // gross AR amount
	TotalDiscounts     any
	TotalCharges       any
	InvoiceCount       int
	RemittanceNotes    string
}

// Payment is a normalized customer payment as held by the ledger
type Payment struct {
	ID                string
	CustomerID        string
	CustomerName      string
	PaymentDate       time.Time
	PaymentReference  string
	PaymentMethod     string
	BankAccount       string
	GrossInvoiceTotal decimal.Decimal
	TotalDiscounts    decimal.Decimal
	TotalCharges      decimal.Decimal
	NetTotalPaid      decimal.Decimal
	InvoiceCount      int
	RemittanceNotes   string
}

// PaymentID returns the ledger key for a payment: date plus reference
func PaymentID(paymentDate time.Time, reference string) string {
	return fmt.Sprintf("PMT-%s-%s", paymentDate.Format(PaymentDateLayout), reference)
}

// AllocationID returns the ledger key for an allocation: payment plus invoice
func AllocationID(paymentID, invoiceID string) string {
	return fmt.Sprintf("ALLOC-%s-%s", paymentID, invoiceID)
}

// NormalizePayment validates identifying fields and parses every monetary
// field of in. The returned payment carries its ledger ID.
func NormalizePayment(in PaymentInput) (*Payment, error) {
	if strings.TrimSpace(in.PaymentReference) == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "payment reference is required")
	}
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "customer id is required")
	}
	if in.PaymentDate.IsZero() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "payment date is required")
	}

	netPaid, err := valueobject.ParseField("total_payment", in.TotalPayment)
	if err != nil {
		return nil, err
	}
	gross, err := valueobject.ParseField("total_invoice_amount", in.TotalInvoiceAmount)
	if err != nil {
		return nil, err
	}
	discounts, err := valueobject.ParseField("total_discounts", in.TotalDiscounts)
	if err != nil {
		return nil, err
	}
	charges, err := valueobject.ParseField("total_charges", in.TotalCharges)
	if err != nil {
		return nil, err
	}

	return &Payment{
		ID:                PaymentID(in.PaymentDate, in.PaymentReference),
		CustomerID:        in.CustomerID,
		PaymentDate:       in.PaymentDate,
		PaymentReference:  in.PaymentReference,
		PaymentMethod:     in.PaymentMethod,
		BankAccount:       in.BankAccount,
		GrossInvoiceTotal: gross,
		TotalDiscounts:    discounts,
		TotalCharges:      charges,
		NetTotalPaid:      netPaid,
		InvoiceCount:      in.InvoiceCount,
		RemittanceNotes:   in.RemittanceNotes,
	}, nil
}

// NetAR returns the payment-level AR balance: gross invoice total less
// discounts, rounded to cents.
func (p *Payment) NetAR() decimal.Decimal {
	return valueobject.RoundCents(p.GrossInvoiceTotal.Sub(p.TotalDiscounts))
}

// RemittanceFields returns the remittance metadata echoed on a reconciliation result
func (p *Payment) RemittanceFields() RemittanceFields {
	return RemittanceFields{
		CustomerName:       p.CustomerName,
		CustomerID:         p.CustomerID,
		PaymentDate:        p.PaymentDate,
		PaymentMethod:      p.PaymentMethod,
		PaymentReference:   p.PaymentReference,
		TotalPayment:       p.NetTotalPaid,
		TotalInvoiceAmount: p.GrossInvoiceTotal,
		TotalDiscounts:     p.TotalDiscounts,
		TotalCharges:       p.TotalCharges,
		BankAccount:        p.BankAccount,
		RemittanceNotes:    p.RemittanceNotes,
	}
}
