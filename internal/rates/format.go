package rates

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FormatFiat renders a fiat amount in major units with locale grouping,
// e.g. "1,210.00 CZK" for English.
func FormatFiat(tag language.Tag, amount decimal.Decimal, code string, scale int) string {
	p := message.NewPrinter(tag)

	return p.Sprintf("%v %s", number.Decimal(amount.InexactFloat64(), number.Scale(scale)), code)
}
