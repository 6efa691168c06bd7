// Package cache stores reconciliation results so repeated analyses of an
// unchanged payment skip the ledger.
package cache

import (
	"github.com/shopspring/decimal"
)

// thresholdField is the per-reference entry name for a threshold. String()
// drops trailing zeros, so 0.01 and 0.010 share an entry.
func thresholdField(threshold decimal.Decimal) string {
	return threshold.String()
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}
