package remittance

import "context"

// Ledger is the store of customers, invoices, facilities, payments and
// allocations the reconciliation engine reads from and writes to.
type Ledger interface {
	// FetchPaymentByReference returns the payment with the given reference,
	// or (nil, nil) when no such payment exists. When a reference was recorded
	// on several dates the most recent payment date wins.
	FetchPaymentByReference(ctx context.Context, reference string) (*Payment, error)

	// FetchAllocationRows returns the payment's allocations joined with their
	// invoice and facility, ordered by facility type then invoice number.
	FetchAllocationRows(ctx context.Context, paymentID string) ([]AllocationRow, error)

	// InTransaction runs fn as one atomic unit. If fn returns an error every
	// write made through w is rolled back.
	InTransaction(ctx context.Context, fn func(ctx context.Context, w LedgerWriter) error) error
}

// LedgerWriter performs keyed upserts inside a ledger transaction
type LedgerWriter interface {
	// UpsertPayment writes p keyed by p.ID, replacing any existing row
	UpsertPayment(ctx context.Context, p *Payment) (string, error)

	// UpsertAllocation resolves a.InvoiceNumber for the customer and writes
	// the allocation keyed by payment and invoice. It fails with
	// shared.ErrInvoiceNotFound when the invoice does not resolve.
	UpsertAllocation(ctx context.Context, customerID string, a *Allocation) (*AllocationRecord, error)

	// PruneAllocations deletes the payment's allocations whose id is not in keep
	PruneAllocations(ctx context.Context, paymentID string, keep []string) error
}
