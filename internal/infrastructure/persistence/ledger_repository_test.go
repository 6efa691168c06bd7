package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/remittance/internal/domain/remittance"
	"github.com/erp/remittance/internal/domain/shared"
	"github.com/erp/remittance/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var ledgerTestDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(models.LedgerModels()...)
	require.NoError(t, err)

	seedLedger(t, db)
	return db
}

func seedLedger(t *testing.T, db *gorm.DB) {
	require.NoError(t, db.Create(&[]models.CustomerModel{
		{CustomerID: "CUST-1", CustomerName: "Acme Health"},
		{CustomerID: "CUST-2", CustomerName: "Borealis Care"},
	}).Error)
	require.NoError(t, db.Create(&[]models.FacilityModel{
		{InternalFacilityID: "f-1", FacilityID: "FAC-H1", FacilityName: "North Hospital", FacilityType: "Hospital"},
		{InternalFacilityID: "f-2", FacilityID: "FAC-C1", FacilityName: "East Clinic", FacilityType: "Clinic"},
	}).Error)
	require.NoError(t, db.Create(&[]models.InvoiceModel{
		{InvoiceID: "inv-1", CustomerID: "CUST-1", InvoiceNumber: "INV-001", InternalFacilityID: "f-1", ServiceType: "Radiology",
			InvoiceAmount: decimal.RequireFromString("1000.00"), DiscountsApplied: decimal.RequireFromString("50.00")},
		{InvoiceID: "inv-2", CustomerID: "CUST-1", InvoiceNumber: "INV-002", InternalFacilityID: "f-1", ServiceType: "Laboratory",
			InvoiceAmount: decimal.RequireFromString("500.00")},
		{InvoiceID: "inv-3", CustomerID: "CUST-1", InvoiceNumber: "INV-003", InternalFacilityID: "f-2", ServiceType: "Therapy",
			InvoiceAmount: decimal.RequireFromString("300.25")},
		{InvoiceID: "inv-9", CustomerID: "CUST-2", InvoiceNumber: "INV-900", InternalFacilityID: "f-2", ServiceType: "Therapy",
			InvoiceAmount: decimal.RequireFromString("75.00")},
	}).Error)
}

func ledgerPayment(date time.Time, ref, net string) *remittance.Payment {
	return &remittance.Payment{
		ID:                remittance.PaymentID(date, ref),
		CustomerID:        "CUST-1",
		PaymentDate:       date,
		PaymentReference:  ref,
		PaymentMethod:     "ACH",
		BankAccount:       "****4321",
		GrossInvoiceTotal: decimal.RequireFromString("1800.25"),
		TotalDiscounts:    decimal.RequireFromString("50.00"),
		NetTotalPaid:      decimal.RequireFromString(net),
		InvoiceCount:      3,
		RemittanceNotes:   "March remittance",
	}
}

func ledgerAllocation(paymentID, invoiceNumber, amount string) *remittance.Allocation {
	return &remittance.Allocation{
		PaymentID:     paymentID,
		InvoiceNumber: invoiceNumber,
		Amount:        decimal.RequireFromString(amount),
		InvoiceAmount: decimal.RequireFromString(amount),
	}
}

func writeInTx(t *testing.T, ledger *GormLedger, fn func(ctx context.Context, w remittance.LedgerWriter) error) {
	t.Helper()
	require.NoError(t, ledger.InTransaction(context.Background(), fn))
}

func TestGormLedger_UpsertAndFetchPayment(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewGormLedger(db)
	ctx := context.Background()

	t.Run("fetch joins customer name", func(t *testing.T) {
		p := ledgerPayment(ledgerTestDate, "REF-100", "1750.25")
		writeInTx(t, ledger, func(ctx context.Context, w remittance.LedgerWriter) error {
			id, err := w.UpsertPayment(ctx, p)
			assert.Equal(t, "PMT-2024-03-15-REF-100", id)
			return err
		})

		found, err := ledger.FetchPaymentByReference(ctx, "REF-100")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "PMT-2024-03-15-REF-100", found.ID)
		assert.Equal(t, "Acme Health", found.CustomerName)
		assert.Equal(t, "ACH", found.PaymentMethod)
		assert.Equal(t, "****4321", found.BankAccount)
		assert.Equal(t, 3, found.InvoiceCount)
		assert.True(t, found.NetTotalPaid.Equal(decimal.RequireFromString("1750.25")))
		assert.True(t, found.GrossInvoiceTotal.Equal(decimal.RequireFromString("1800.25")))
		assert.True(t, found.TotalDiscounts.Equal(decimal.RequireFromString("50")))
	})

	t.Run("unknown reference returns nil without error", func(t *testing.T) {
		found, err := ledger.FetchPaymentByReference(ctx, "REF-404")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("upsert overwrites the same payment id", func(t *testing.T) {
		writeInTx(t, ledger, func(ctx context.Context, w remittance.LedgerWriter) error {
			_, err := w.UpsertPayment(ctx, ledgerPayment(ledgerTestDate, "REF-200", "10.00"))
			return err
		})
		writeInTx(t, ledger, func(ctx context.Context, w remittance.LedgerWriter) error {
			_, err := w.UpsertPayment(ctx, ledgerPayment(ledgerTestDate, "REF-200", "20.00"))
			return err
		})

		var count int64
		require.NoError(t, db.Model(&models.PaymentModel{}).Where("payment_reference = ?", "REF-200").Count(&count).Error)
		assert.Equal(t, int64(1), count)

		found, err := ledger.FetchPaymentByReference(ctx, "REF-200")
		require.NoError(t, err)
		assert.True(t, found.NetTotalPaid.Equal(decimal.RequireFromString("20.00")))
	})

	t.Run("most recent payment date wins for a shared reference", func(t *testing.T) {
		earlier := ledgerTestDate.AddDate(0, 0, -7)
		writeInTx(t, ledger, func(ctx context.Context, w remittance.LedgerWriter) error {
			if _, err := w.UpsertPayment(ctx, ledgerPayment(ledgerTestDate, "REF-300", "30.00")); err != nil {
				return err
			}
			_, err := w.UpsertPayment(ctx, ledgerPayment(earlier, "REF-300", "5.00"))
			return err
		})

		found, err := ledger.FetchPaymentByReference(ctx, "REF-300")
		require.NoError(t, err)
		assert.Equal(t, "PMT-2024-03-15-REF-300", found.ID)
	})

	t.Run("amounts are stored at cent scale", func(t *testing.T) {
		writeInTx(t, ledger, func(ctx context.Context, w remittance.LedgerWriter) error {
			_, err := w.UpsertPayment(ctx, ledgerPayment(ledgerTestDate, "REF-400", "12.345"))
			return err
		})

		found, err := ledger.FetchPaymentByReference(ctx, "REF-400")
		require.NoError(t, err)
		assert.True(t, found.NetTotalPaid.Equal(decimal.RequireFromString("12.35")))
	})
}

func TestGormLedger_UpsertAllocation(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewGormLedger(db)
	paymentID := remittance.PaymentID(ledgerTestDate, "REF-100")

	t.Run("resolves invoice for customer and returns record", func(t *testing.T) {
		writeInTx(t, ledger, func(ctx context.Context, w remittance.LedgerWriter) error {
			if _, err := w.UpsertPayment(ctx, ledgerPayment(ledgerTestDate, "REF-100", "950.00")); err != nil {
				return err
			}
			a := ledgerAllocation(paymentID, "INV-001", "950.00")
			a.Discounts = decimal.RequireFromString("50.00")
			record, err := w.UpsertAllocation(ctx, "CUST-1", a)
			require.NoError(t, err)
			assert.Equal(t, "ALLOC-PMT-2024-03-15-REF-100-inv-1", record.AllocationID)
			assert.Equal(t, "inv-1", record.InvoiceID)
			assert.Equal(t, "INV-001", record.InvoiceNumber)
			assert.True(t, record.Amount.Equal(decimal.RequireFromString("950")))
			assert.True(t, record.Discounts.Equal(decimal.RequireFromString("50")))
			return nil
		})
	})

	t.Run("re-upsert updates the allocation in place", func(t *testing.T) {
		writeInTx(t, ledger, func(ctx context.Context, w remittance.LedgerWriter) error {
			_, err := w.UpsertAllocation(ctx, "CUST-1", ledgerAllocation(paymentID, "INV-001", "900.00"))
			return err
		})

		var allocations []models.PaymentAllocationModel
		require.NoError(t, db.Where("payment_id = ?", paymentID).Find(&allocations).Error)
		require.Len(t, allocations, 1)
		assert.True(t, allocations[0].AmountApplied.Equal(decimal.RequireFromString("900")))
	})

	t.Run("unknown invoice is invoice not found", func(t *testing.T) {
		err := ledger.InTransaction(context.Background(), func(ctx context.Context, w remittance.LedgerWriter) error {
			_, err := w.UpsertAllocation(ctx, "CUST-1", ledgerAllocation(paymentID, "INV-999", "1.00"))
			return err
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvoiceNotFound))
		assert.Contains(t, err.Error(), "INV-999")
		assert.Contains(t, err.Error(), "CUST-1")
	})

	t.Run("another customer's invoice does not resolve", func(t *testing.T) {
		err := ledger.InTransaction(context.Background(), func(ctx context.Context, w remittance.LedgerWriter) error {
			_, err := w.UpsertAllocation(ctx, "CUST-1", ledgerAllocation(paymentID, "INV-900", "75.00"))
			return err
		})
		assert.True(t, errors.Is(err, shared.ErrInvoiceNotFound))
	})
}

func TestGormLedger_FetchAllocationRows(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewGormLedger(db)
	ctx := context.Background()
	paymentID := remittance.PaymentID(ledgerTestDate, "REF-100")

	writeInTx(t, ledger, func(ctx context.Context, w remittance.LedgerWriter) error {
		if _, err := w.UpsertPayment(ctx, ledgerPayment(ledgerTestDate, "REF-100", "1750.25")); err != nil {
			return err
		}
		for _, a := range []*remittance.Allocation{
			ledgerAllocation(paymentID, "INV-002", "500.00"),
			ledgerAllocation(paymentID, "INV-001", "950.00"),
			ledgerAllocation(paymentID, "INV-003", "300.25"),
		} {
			if _, err := w.UpsertAllocation(ctx, "CUST-1", a); err != nil {
				return err
			}
		}
		return nil
	})

	rows, err := ledger.FetchAllocationRows(ctx, paymentID)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "INV-003", rows[0].InvoiceNumber)
	assert.Equal(t, "Clinic", rows[0].FacilityType)
	assert.Equal(t, "FAC-C1", rows[0].FacilityID)
	assert.Equal(t, "INV-001", rows[1].InvoiceNumber)
	assert.Equal(t, "Hospital", rows[1].FacilityType)
	assert.Equal(t, "INV-002", rows[2].InvoiceNumber)

	assert.Equal(t, "Radiology", rows[1].ServiceType)
	assert.Equal(t, "inv-1", rows[1].InvoiceID)
	assert.True(t, rows[1].AllocatedAmount.Equal(decimal.RequireFromString("950")))
	assert.True(t, rows[1].ARAmount.Equal(decimal.RequireFromString("1000")))
	assert.True(t, rows[1].Discounts.Equal(decimal.RequireFromString("50")))
	assert.True(t, rows[0].ARAmount.Equal(decimal.RequireFromString("300.25")))

	t.Run("unknown payment has no rows", func(t *testing.T) {
		rows, err := ledger.FetchAllocationRows(ctx, "PMT-2024-01-01-NOPE")
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestGormLedger_InTransaction(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewGormLedger(db)
	ctx := context.Background()

	t.Run("error rolls back every write", func(t *testing.T) {
		boom := errors.New("boom")
		err := ledger.InTransaction(ctx, func(ctx context.Context, w remittance.LedgerWriter) error {
			if _, err := w.UpsertPayment(ctx, ledgerPayment(ledgerTestDate, "REF-RB", "1.00")); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		found, err := ledger.FetchPaymentByReference(ctx, "REF-RB")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestGormLedger_PruneAllocations(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewGormLedger(db)
	ctx := context.Background()
	paymentID := remittance.PaymentID(ledgerTestDate, "REF-100")

	var kept *remittance.AllocationRecord
	writeInTx(t, ledger, func(ctx context.Context, w remittance.LedgerWriter) error {
		if _, err := w.UpsertPayment(ctx, ledgerPayment(ledgerTestDate, "REF-100", "1450.00")); err != nil {
			return err
		}
		var err error
		if kept, err = w.UpsertAllocation(ctx, "CUST-1", ledgerAllocation(paymentID, "INV-001", "950.00")); err != nil {
			return err
		}
		_, err = w.UpsertAllocation(ctx, "CUST-1", ledgerAllocation(paymentID, "INV-002", "500.00"))
		return err
	})

	writeInTx(t, ledger, func(ctx context.Context, w remittance.LedgerWriter) error {
		return w.PruneAllocations(ctx, paymentID, []string{kept.AllocationID})
	})

	rows, err := ledger.FetchAllocationRows(ctx, paymentID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "INV-001", rows[0].InvoiceNumber)

	t.Run("empty keep list removes everything", func(t *testing.T) {
		writeInTx(t, ledger, func(ctx context.Context, w remittance.LedgerWriter) error {
			return w.PruneAllocations(ctx, paymentID, nil)
		})

		rows, err := ledger.FetchAllocationRows(ctx, paymentID)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestGormLedger_WithReconciliationEngine(t *testing.T) {
	db := setupLedgerTestDB(t)
	engine := remittance.NewReconciliationEngine(NewGormLedger(db))
	ctx := context.Background()

	payment := remittance.PaymentInput{
		CustomerID:         "CUST-1",
		PaymentDate:        ledgerTestDate,
		PaymentReference:   "REF-E2E",
		PaymentMethod:      "Wire",
		TotalPayment:       "$1,750.25",
		TotalInvoiceAmount: "1,800.25",
		TotalDiscounts:     50,
		InvoiceCount:       3,
	}
	allocations := []remittance.AllocationInput{
		{InvoiceNumber: "INV-001", FacilityType: "Hospital", ServiceType: "Radiology", AmountPaid: "950.00", InvoiceAmount: "1000.00", DiscountsApplied: "50.00"},
		{InvoiceNumber: "INV-002", FacilityType: "Hospital", ServiceType: "Laboratory", AmountPaid: 500, InvoiceAmount: 500},
		{InvoiceNumber: "INV-003", FacilityType: "Clinic", ServiceType: "Therapy", AmountPaid: "300.25", InvoiceAmount: "300.25"},
	}

	recorded, err := engine.RecordPayment(ctx, payment, allocations)
	require.NoError(t, err)
	assert.Len(t, recorded.Allocations, 3)
	assert.True(t, recorded.FacilityTotals["Hospital"].Equal(decimal.RequireFromString("1450")))
	assert.True(t, recorded.FacilityTotals["Clinic"].Equal(decimal.RequireFromString("300.25")))

	result, err := engine.AnalyzeReconciliation(ctx, "REF-E2E", decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.Equal(t, remittance.StatusMatched, result.Status)
	assert.Equal(t, "Acme Health", result.RemittanceFields.CustomerName)
	assert.Equal(t, 3, result.ProcessingMetrics.TotalInvoices)
	assert.Nil(t, result.DiscrepancySummary)

	t.Run("re-record with fewer invoices replaces allocations", func(t *testing.T) {
		payment.TotalPayment = "950.00"
		payment.TotalInvoiceAmount = "1000.00"
		_, err := engine.RecordPayment(ctx, payment, allocations[:1])
		require.NoError(t, err)

		rows, err := NewGormLedger(db).FetchAllocationRows(ctx, remittance.PaymentID(ledgerTestDate, "REF-E2E"))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "INV-001", rows[0].InvoiceNumber)
	})

	t.Run("unknown invoice leaves no payment row", func(t *testing.T) {
		bad := payment
		bad.PaymentReference = "REF-BAD"
		_, err := engine.RecordPayment(ctx, bad, []remittance.AllocationInput{
			{InvoiceNumber: "INV-404", FacilityType: "Hospital", AmountPaid: "1.00"},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvoiceNotFound))

		found, err := NewGormLedger(db).FetchPaymentByReference(ctx, "REF-BAD")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestGormLedger_DatabaseErrors(t *testing.T) {
	t.Run("fetch payment wraps query failure", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`FROM payments AS p`).WillReturnError(errors.New("connection reset"))

		_, err := db.Ledger().FetchPaymentByReference(context.Background(), "REF-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fetch payment REF-1")
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("fetch rows wraps query failure", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`FROM payment_allocations AS pa`).WillReturnError(errors.New("timeout"))

		_, err := db.Ledger().FetchAllocationRows(context.Background(), "PMT-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})

	t.Run("begin failure never calls fn", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		called := false
		err := db.Ledger().InTransaction(context.Background(), func(ctx context.Context, w remittance.LedgerWriter) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.False(t, called)
	})

	t.Run("engine maps ledger failure to persistence error", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`FROM payments AS p`).WillReturnError(errors.New("connection reset"))

		engine := remittance.NewReconciliationEngine(db.Ledger())
		_, err := engine.AnalyzeReconciliation(context.Background(), "REF-1", decimal.RequireFromString("0.01"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrPersistence))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

