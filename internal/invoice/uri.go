package invoice

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// Token is an ERC-20 asset. Its payment URI calls transfer on Contract.
type Token struct {
	Contract string
	Decimals int32
}

var uriSchemes = map[string]string{
	"BTC": "bitcoin",
	"LN":  "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
}

// PaymentURI renders the wallet deep link encoded in the invoice QR code.
// Ethereum links follow EIP-681 with amounts in the asset's smallest unit;
// tokens lists the ERC-20 assets by currency code. It is empty when the
// invoice has no crypto leg or no wallet address.
func (inv *Invoice) PaymentURI(tokens map[string]Token) string {
	if inv.CryptoCurrency == nil || inv.CryptoAmount == nil || inv.WalletAddress == nil {
		return ""
	}

	code := strings.ToUpper(*inv.CryptoCurrency)
	amount, wallet := *inv.CryptoAmount, *inv.WalletAddress

	if token, ok := tokens[code]; ok {
		if token.Contract == "" {
			return ""
		}

		return fmt.Sprintf("ethereum:%s/transfer?address=%s&uint256=%s",
			token.Contract, wallet, baseUnits(amount, token.Decimals))
	}

	switch scheme := uriSchemes[code]; scheme {
	case "":
		return ""
	case "ethereum":
		return fmt.Sprintf("ethereum:%s?value=%s", wallet, baseUnits(amount, etherDecimals))
	default:
		return fmt.Sprintf("%s:%s?amount=%s", scheme, wallet, amount.String())
	}
}

func baseUnits(amount decimal.Decimal, decimals int32) string {
	return amount.Shift(decimals).Truncate(0).String()
}
