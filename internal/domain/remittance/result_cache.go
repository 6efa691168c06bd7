package remittance

import (
	"context"

	"github.com/shopspring/decimal"
)

// ResultCache stores analysis results per payment reference and threshold.
// Get returns (nil, nil) on a miss. Invalidate drops every threshold cached
// for a reference.
type ResultCache interface {
	Get(ctx context.Context, reference string, threshold decimal.Decimal) (*ReconciliationResult, error)
	Set(ctx context.Context, reference string, threshold decimal.Decimal, result *ReconciliationResult) error
	Invalidate(ctx context.Context, reference string) error
	Close() error
}
