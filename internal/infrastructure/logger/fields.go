package logger

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Amount logs a monetary value as a fixed two-decimal string
func Amount(key string, d decimal.Decimal) zap.Field {
	return zap.String(key, d.StringFixed(2))
}

// Threshold logs a reconciliation tolerance without padding
func Threshold(d decimal.Decimal) zap.Field {
	return zap.String("threshold", d.String())
}
