package rates

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CryptoPlaces is the number of fractional digits kept on crypto amounts.
const CryptoPlaces = 8

// Converter translates fiat amounts in minor units (exponent 2 for
// haléře/cents) to crypto amounts and back.
type Converter struct {
	Exponent int32
}

func NewConverter(exponent int32) Converter {
	return Converter{Exponent: exponent}
}

// ToCrypto returns fiatMinor priced in code, rounded to CryptoPlaces.
func (c Converter) ToCrypto(s Snapshot, fiatMinor int64, code string) (decimal.Decimal, error) {
	rate, ok := s.Rate(code)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}

	major := decimal.NewFromInt(fiatMinor).Shift(-c.Exponent)

	return major.DivRound(rate, CryptoPlaces), nil
}

// ToFiat values a crypto amount in fiat minor units.
func (c Converter) ToFiat(s Snapshot, amount decimal.Decimal, code string) (int64, error) {
	rate, ok := s.Rate(code)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}

	return amount.Mul(rate).Shift(c.Exponent).Round(0).IntPart(), nil
}
