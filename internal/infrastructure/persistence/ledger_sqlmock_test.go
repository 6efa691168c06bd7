package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/remittance/internal/domain/remittance"
	"github.com/erp/remittance/internal/domain/shared"
	"github.com/erp/remittance/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormLedger_Postgres_FetchPayment(t *testing.T) {
	t.Run("no rows is not an error", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		mockDB.Mock.ExpectQuery(`SELECT p\.\*, c\.customer_name FROM payments AS p JOIN customers AS c`).
			WillReturnRows(sqlmock.NewRows([]string{"payment_id", "customer_name"}))

		payment, err := NewGormLedger(mockDB.DB).FetchPaymentByReference(context.Background(), "REF-404")
		require.NoError(t, err)
		assert.Nil(t, payment)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("driver error is wrapped", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		mockDB.Mock.ExpectQuery(`FROM payments AS p`).
			WillReturnError(errors.New("connection reset by peer"))

		payment, err := NewGormLedger(mockDB.DB).FetchPaymentByReference(context.Background(), "REF-1")
		require.Error(t, err)
		assert.Nil(t, payment)
		assert.Contains(t, err.Error(), "fetch payment REF-1")
		assert.Contains(t, err.Error(), "connection reset by peer")
		mockDB.ExpectationsWereMet(t)
	})
}

func TestGormLedger_Postgres_FetchAllocationRowsError(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	mockDB.Mock.ExpectQuery(`FROM payment_allocations AS pa JOIN invoices AS i`).
		WillReturnError(errors.New("relation does not exist"))

	rows, err := NewGormLedger(mockDB.DB).FetchAllocationRows(context.Background(), "PMT-2024-03-15-REF-1")
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.Contains(t, err.Error(), "fetch allocations for PMT-2024-03-15-REF-1")
	mockDB.ExpectationsWereMet(t)
}

func TestGormLedger_Postgres_UnknownInvoiceRollsBack(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	mockDB.Mock.ExpectBegin()
	mockDB.Mock.ExpectQuery(`FROM "invoices"`).
		WillReturnRows(sqlmock.NewRows([]string{"invoice_id"}))
	mockDB.Mock.ExpectRollback()

	ledger := NewGormLedger(mockDB.DB)
	err := ledger.InTransaction(context.Background(), func(ctx context.Context, w remittance.LedgerWriter) error {
		_, err := w.UpsertAllocation(ctx, "CUST-1", &remittance.Allocation{
			PaymentID:     "PMT-2024-03-15-REF-1",
			InvoiceNumber: "INV-404",
			Amount:        decimal.RequireFromString("10.00"),
		})
		return err
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvoiceNotFound)
	mockDB.ExpectationsWereMet(t)
}
