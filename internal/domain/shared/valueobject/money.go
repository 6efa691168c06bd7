package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/erp/remittance/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// CentPlaces is the number of fractional digits monetary amounts are rounded to
// when they are stored or compared.
const CentPlaces int32 = 2

// currencySymbols are the symbols stripped from the front of textual amounts
var currencySymbols = []string{"$", "€", "£", "¥"}

// decimalNumeral matches a plain decimal numeral once sign, symbol and
// grouping separators have been removed. Exponents are not accepted.
var decimalNumeral = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// ParseAmount normalizes a heterogeneous monetary input into an exact decimal.
//
// Accepted inputs are nil (zero), strings such as "$1,234.56" or "-$5.00",
// decimal values, Go integer and float kinds, and json.Number. No rounding is
// applied; use RoundCents at the point of storage or comparison.
func ParseAmount(value any) (decimal.Decimal, error) {
	return ParseField("", value)
}

// ParseField is ParseAmount with the name of the field being parsed attached
// to any error it returns.
func ParseField(field string, value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, nil
	case string:
		return parseText(field, v)
	case []byte:
		return parseText(field, string(v))
	case json.Number:
		return parseText(field, v.String())
	case decimal.Decimal:
		return v, nil
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero, nil
		}
		return *v, nil
	case decimal.NullDecimal:
		if !v.Valid {
			return decimal.Zero, nil
		}
		return v.Decimal, nil
	case float64:
		return fromFloat(field, v)
	case float32:
		return fromFloat(field, float64(v))
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int8:
		return decimal.NewFromInt(int64(v)), nil
	case int16:
		return decimal.NewFromInt(int64(v)), nil
	case int32:
		return decimal.NewFromInt32(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case uint:
		return fromUint(uint64(v)), nil
	case uint8:
		return fromUint(uint64(v)), nil
	case uint16:
		return fromUint(uint64(v)), nil
	case uint32:
		return fromUint(uint64(v)), nil
	case uint64:
		return fromUint(v), nil
	default:
		return decimal.Zero, shared.NewInvalidMonetaryValueError(field, value,
			fmt.Errorf("unsupported type %T", value))
	}
}

// MustParseAmount parses an amount and panics on failure. Intended for
// constants and test fixtures.
func MustParseAmount(value any) decimal.Decimal {
	d, err := ParseAmount(value)
	if err != nil {
		panic(err)
	}
	return d
}

// RoundCents rounds an amount to whole cents, half away from zero.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(CentPlaces)
}

// ExceedsThreshold reports whether the magnitude of diff is strictly greater
// than threshold. A difference exactly equal to the threshold is tolerated.
func ExceedsThreshold(diff, threshold decimal.Decimal) bool {
	return diff.Abs().GreaterThan(threshold)
}

func parseText(field, raw string) (decimal.Decimal, error) {
	cleaned := cleanAmountText(raw)
	if !decimalNumeral.MatchString(cleaned) {
		return decimal.Zero, shared.NewInvalidMonetaryValueError(field, raw,
			errors.New("not a decimal numeral"))
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, shared.NewInvalidMonetaryValueError(field, raw, err)
	}
	return d, nil
}

// cleanAmountText strips whitespace, one leading currency symbol (either side
// of a sign) and thousands separators.
func cleanAmountText(raw string) string {
	s := strings.TrimSpace(raw)

	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], strings.TrimSpace(s[1:])
	}
	for _, sym := range currencySymbols {
		if strings.HasPrefix(s, sym) {
			s = strings.TrimSpace(strings.TrimPrefix(s, sym))
			break
		}
	}
	if sign == "" && (strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+")) {
		sign, s = s[:1], s[1:]
	}

	return sign + strings.ReplaceAll(s, ",", "")
}

func fromFloat(field string, f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, shared.NewInvalidMonetaryValueError(field, f,
			errors.New("not a finite number"))
	}
	// NewFromFloat uses the shortest representation that round-trips, so
	// 1234.56 becomes exactly 1234.56 rather than its binary approximation.
	return decimal.NewFromFloat(f), nil
}

func fromUint(u uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0)
}
