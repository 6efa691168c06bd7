package valueobject

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var currencyPrinter = message.NewPrinter(language.AmericanEnglish)

// FormatCurrency renders d rounded to cents with a dollar sign and thousands
// grouping, e.g. -1234.5 -> "-$1,234.50".
func FormatCurrency(d decimal.Decimal) string {
	d = RoundCents(d)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	whole := d.Truncate(0)
	cents := d.Sub(whole).Shift(CentPlaces).IntPart()
	return currencyPrinter.Sprintf("%s$%d.%02d", sign, whole.IntPart(), cents)
}
