package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/remittance/internal/domain/remittance"
	"github.com/erp/remittance/internal/domain/shared"
	"github.com/erp/remittance/internal/infrastructure/logger"
	"github.com/erp/remittance/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger operations, as tagged on the SQL log
const (
	OpFetchPayment     = "fetch_payment"
	OpFetchAllocations = "fetch_allocations"
	OpUpsertPayment    = "upsert_payment"
	OpUpsertAllocation = "upsert_allocation"
	OpPruneAllocations = "prune_allocations"
)

// GormLedger implements remittance.Ledger on top of GORM.
// It works against PostgreSQL in production and SQLite in tests.
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger creates a new GORM-backed ledger
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// paymentRow is a payment joined with its customer's name
type paymentRow struct {
	models.PaymentModel
	CustomerName string `gorm:"column:customer_name"`
}

// allocationRow is one allocation joined with its invoice and facility
type allocationRow struct {
	InvoiceNumber   string          `gorm:"column:invoice_number"`
	InvoiceID       string          `gorm:"column:invoice_id"`
	FacilityID      string          `gorm:"column:facility_id"`
	FacilityType    string          `gorm:"column:facility_type"`
	ServiceType     string          `gorm:"column:service_type"`
	AllocatedAmount decimal.Decimal `gorm:"column:allocated_amount"`
	ARAmount        decimal.Decimal `gorm:"column:ar_amount"`
	Discounts       decimal.Decimal `gorm:"column:discounts"`
}

// FetchPaymentByReference returns the most recent payment recorded under reference,
// or (nil, nil) when there is none
func (l *GormLedger) FetchPaymentByReference(ctx context.Context, reference string) (*remittance.Payment, error) {
	var rows []paymentRow
	err := l.db.WithContext(logger.WithLedgerOp(ctx, OpFetchPayment, "")).
		Table("payments AS p").
		Select("p.*, c.customer_name").
		Joins("JOIN customers AS c ON c.customer_id = p.customer_id").
		Where("p.payment_reference = ?", reference).
		Order("p.payment_date DESC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", reference, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	payment := rows[0].ToDomain()
	payment.CustomerName = rows[0].CustomerName
	return payment, nil
}

// FetchAllocationRows returns the payment's allocations ordered by facility type
// then invoice number. AR amount and discounts come from the invoice master.
func (l *GormLedger) FetchAllocationRows(ctx context.Context, paymentID string) ([]remittance.AllocationRow, error) {
	var rows []allocationRow
	err := l.db.WithContext(logger.WithLedgerOp(ctx, OpFetchAllocations, paymentID)).
		Table("payment_allocations AS pa").
		Select(`i.invoice_number,
			i.invoice_id,
			f.facility_id,
			f.facility_type,
			i.service_type,
			pa.amount_applied AS allocated_amount,
			i.invoice_amount AS ar_amount,
			COALESCE(i.discounts_applied, 0) AS discounts`).
		Joins("JOIN invoices AS i ON i.invoice_id = pa.invoice_id").
		Joins("JOIN facilities AS f ON f.internal_facility_id = i.internal_facility_id").
		Where("pa.payment_id = ?", paymentID).
		Order("f.facility_type, i.invoice_number").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch allocations for %s: %w", paymentID, err)
	}

	result := make([]remittance.AllocationRow, len(rows))
	for i, r := range rows {
		result[i] = remittance.AllocationRow{
			InvoiceNumber:   r.InvoiceNumber,
			InvoiceID:       r.InvoiceID,
			FacilityID:      r.FacilityID,
			FacilityType:    r.FacilityType,
			ServiceType:     r.ServiceType,
			AllocatedAmount: r.AllocatedAmount,
			ARAmount:        r.ARAmount,
			Discounts:       r.Discounts,
		}
	}
	return result, nil
}

// InTransaction runs fn inside a single database transaction
func (l *GormLedger) InTransaction(ctx context.Context, fn func(ctx context.Context, w remittance.LedgerWriter) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormLedgerWriter{tx: tx})
	})
}

// gormLedgerWriter performs the keyed upserts of one transaction
type gormLedgerWriter struct {
	tx *gorm.DB
}

// UpsertPayment inserts the payment or overwrites the row with the same id
func (w *gormLedgerWriter) UpsertPayment(ctx context.Context, p *remittance.Payment) (string, error) {
	model := models.PaymentModelFromDomain(p)
	err := w.tx.WithContext(logger.WithLedgerOp(ctx, OpUpsertPayment, p.ID)).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "payment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"customer_id",
			"payment_method",
			"bank_account_number",
			"total_payment_paid",
			"total_invoice_amount",
			"total_additional_charges",
			"total_discounts_applied",
			"total_invoices",
			"remittance_notes",
			"updated_at",
		}),
	}).Create(model).Error
	if err != nil {
		return "", fmt.Errorf("upsert payment %s: %w", p.ID, err)
	}
	return model.PaymentID, nil
}

// UpsertAllocation resolves the invoice for customerID and writes the allocation
func (w *gormLedgerWriter) UpsertAllocation(ctx context.Context, customerID string, a *remittance.Allocation) (*remittance.AllocationRecord, error) {
	ctx = logger.WithLedgerOp(ctx, OpUpsertAllocation, a.PaymentID)
	var invoice models.InvoiceModel
	err := w.tx.WithContext(ctx).
		Select("invoice_id").
		Where("customer_id = ? AND invoice_number = ?", customerID, a.InvoiceNumber).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewInvoiceNotFoundError(customerID, a.InvoiceNumber)
		}
		return nil, fmt.Errorf("resolve invoice %s: %w", a.InvoiceNumber, err)
	}

	model := models.PaymentAllocationModelFromDomain(a, invoice.InvoiceID)
	err = w.tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "allocation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"amount_applied",
			"invoice_amount",
			"discounts_applied",
			"additional_charges",
			"updated_at",
		}),
	}).Create(model).Error
	if err != nil {
		return nil, fmt.Errorf("upsert allocation %s: %w", model.AllocationID, err)
	}
	return model.ToRecord(a.InvoiceNumber), nil
}

// PruneAllocations deletes the payment's allocations that are not listed in keep
func (w *gormLedgerWriter) PruneAllocations(ctx context.Context, paymentID string, keep []string) error {
	query := w.tx.WithContext(logger.WithLedgerOp(ctx, OpPruneAllocations, paymentID)).Where("payment_id = ?", paymentID)
	if len(keep) > 0 {
		query = query.Where("allocation_id NOT IN ?", keep)
	}
	if err := query.Delete(&models.PaymentAllocationModel{}).Error; err != nil {
		return fmt.Errorf("prune allocations for %s: %w", paymentID, err)
	}
	return nil
}

var _ remittance.Ledger = (*GormLedger)(nil)
