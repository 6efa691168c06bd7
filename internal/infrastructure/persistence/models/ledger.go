package models

import (
	"time"

	"github.com/erp/remittance/internal/domain/remittance"
	"github.com/shopspring/decimal"
)

// CustomerModel is the persistence model for a customer in the AR ledger.
// Customers are master data and are never written by the reconciliation flow.
type CustomerModel struct {
	CustomerID   string    `gorm:"column:customer_id;type:varchar(64);primaryKey"`
	CustomerName string    `gorm:"column:customer_name;type:varchar(200);not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// FacilityModel is the persistence model for a billing facility.
// InternalFacilityID is the surrogate key invoices reference; FacilityID is the
// external code reported on reconciliation results.
type FacilityModel struct {
	InternalFacilityID string    `gorm:"column:internal_facility_id;type:varchar(64);primaryKey"`
	FacilityID         string    `gorm:"column:facility_id;type:varchar(64);not null;uniqueIndex"`
	FacilityName       string    `gorm:"column:facility_name;type:varchar(200)"`
	FacilityType       string    `gorm:"column:facility_type;type:varchar(100);not null;index"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM
func (FacilityModel) TableName() string {
	return "facilities"
}

// InvoiceModel is the persistence model for an AR invoice.
// Invoice numbers are unique per customer.
type InvoiceModel struct {
	InvoiceID          string          `gorm:"column:invoice_id;type:varchar(64);primaryKey"`
	CustomerID         string          `gorm:"column:customer_id;type:varchar(64);not null;uniqueIndex:idx_invoice_customer_number,priority:1"`
	InvoiceNumber      string          `gorm:"column:invoice_number;type:varchar(100);not null;uniqueIndex:idx_invoice_customer_number,priority:2"`
	InternalFacilityID string          `gorm:"column:internal_facility_id;type:varchar(64);not null;index"`
	ServiceType        string          `gorm:"column:service_type;type:varchar(100)"`
	InvoiceDate        *time.Time      `gorm:"column:invoice_date;type:date"`
	InvoiceAmount      decimal.Decimal `gorm:"column:invoice_amount;type:decimal(18,2);not null;default:0"`
	DiscountsApplied   decimal.Decimal `gorm:"column:discounts_applied;type:decimal(18,2);not null;default:0"`
	CreatedAt          time.Time       `gorm:"autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// PaymentModel is the persistence model for a recorded remittance.
// PaymentID is derived from payment date and reference, so re-recording the
// same remittance overwrites the row.
type PaymentModel struct {
	PaymentID              string          `gorm:"column:payment_id;type:varchar(200);primaryKey"`
	CustomerID             string          `gorm:"column:customer_id;type:varchar(64);not null;index"`
	PaymentDate            time.Time       `gorm:"column:payment_date;type:date;not null"`
	PaymentReference       string          `gorm:"column:payment_reference;type:varchar(100);not null;index"`
	PaymentMethod          string          `gorm:"column:payment_method;type:varchar(50)"`
	BankAccountNumber      string          `gorm:"column:bank_account_number;type:varchar(100)"`
	TotalPaymentPaid       decimal.Decimal `gorm:"column:total_payment_paid;type:decimal(18,2);not null;default:0"`
	TotalInvoiceAmount     decimal.Decimal `gorm:"column:total_invoice_amount;type:decimal(18,2);not null;default:0"`
	TotalAdditionalCharges decimal.Decimal `gorm:"column:total_additional_charges;type:decimal(18,2);not null;default:0"`
	TotalDiscountsApplied  decimal.Decimal `gorm:"column:total_discounts_applied;type:decimal(18,2);not null;default:0"`
	TotalInvoices          int             `gorm:"column:total_invoices;not null;default:0"`
	RemittanceNotes        string          `gorm:"column:remittance_notes;type:text"`
	CreatedAt              time.Time       `gorm:"autoCreateTime"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment.
// CustomerName is not stored on the payment and is left for the caller to join.
func (m *PaymentModel) ToDomain() *remittance.Payment {
	return &remittance.Payment{
		ID:                m.PaymentID,
		CustomerID:        m.CustomerID,
		PaymentDate:       m.PaymentDate,
		PaymentReference:  m.PaymentReference,
		PaymentMethod:     m.PaymentMethod,
		BankAccount:       m.BankAccountNumber,
		GrossInvoiceTotal: m.TotalInvoiceAmount,
		TotalDiscounts:    m.TotalDiscountsApplied,
		TotalCharges:      m.TotalAdditionalCharges,
		NetTotalPaid:      m.TotalPaymentPaid,
		InvoiceCount:      m.TotalInvoices,
		RemittanceNotes:   m.RemittanceNotes,
	}
}

// PaymentModelFromDomain creates a persistence model from a domain Payment.
// Amounts are rounded to the column scale.
func PaymentModelFromDomain(p *remittance.Payment) *PaymentModel {
	return &PaymentModel{
		PaymentID:              p.ID,
		CustomerID:             p.CustomerID,
		PaymentDate:            p.PaymentDate,
		PaymentReference:       p.PaymentReference,
		PaymentMethod:          p.PaymentMethod,
		BankAccountNumber:      p.BankAccount,
		TotalPaymentPaid:       p.NetTotalPaid.Round(2),
		TotalInvoiceAmount:     p.GrossInvoiceTotal.Round(2),
		TotalAdditionalCharges: p.TotalCharges.Round(2),
		TotalDiscountsApplied:  p.TotalDiscounts.Round(2),
		TotalInvoices:          p.InvoiceCount,
		RemittanceNotes:        p.RemittanceNotes,
	}
}

// PaymentAllocationModel is the persistence model for one invoice line of a payment
type PaymentAllocationModel struct {
	AllocationID      string          `gorm:"column:allocation_id;type:varchar(300);primaryKey"`
	PaymentID         string          `gorm:"column:payment_id;type:varchar(200);not null;index"`
	InvoiceID         string          `gorm:"column:invoice_id;type:varchar(64);not null;index"`
	AmountApplied     decimal.Decimal `gorm:"column:amount_applied;type:decimal(18,2);not null;default:0"`
	InvoiceAmount     decimal.Decimal `gorm:"column:invoice_amount;type:decimal(18,2);not null;default:0"`
	DiscountsApplied  decimal.Decimal `gorm:"column:discounts_applied;type:decimal(18,2);not null;default:0"`
	AdditionalCharges decimal.Decimal `gorm:"column:additional_charges;type:decimal(18,2);not null;default:0"`
	CreatedAt         time.Time       `gorm:"autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM
func (PaymentAllocationModel) TableName() string {
	return "payment_allocations"
}

// PaymentAllocationModelFromDomain creates a persistence model for an allocation
// resolved to invoiceID
func PaymentAllocationModelFromDomain(a *remittance.Allocation, invoiceID string) *PaymentAllocationModel {
	return &PaymentAllocationModel{
		AllocationID:      remittance.AllocationID(a.PaymentID, invoiceID),
		PaymentID:         a.PaymentID,
		InvoiceID:         invoiceID,
		AmountApplied:     a.Amount.Round(2),
		InvoiceAmount:     a.InvoiceAmount.Round(2),
		DiscountsApplied:  a.Discounts.Round(2),
		AdditionalCharges: a.Charges.Round(2),
	}
}

// ToRecord converts the allocation to the receipt returned to the engine
func (m *PaymentAllocationModel) ToRecord(invoiceNumber string) *remittance.AllocationRecord {
	return &remittance.AllocationRecord{
		AllocationID:  m.AllocationID,
		InvoiceID:     m.InvoiceID,
		InvoiceNumber: invoiceNumber,
		Amount:        m.AmountApplied,
		InvoiceAmount: m.InvoiceAmount,
		Discounts:     m.DiscountsApplied,
		Charges:       m.AdditionalCharges,
	}
}

// LedgerModels lists every ledger model in dependency order for AutoMigrate
func LedgerModels() []any {
	return []any{
		&CustomerModel{},
		&FacilityModel{},
		&InvoiceModel{},
		&PaymentModel{},
		&PaymentAllocationModel{},
	}
}
