// Package export produces the accountant's view of an owner's invoices: a CSV
// ledger and a plain-text summary suitable for an email body.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/MrJamesThe3rd/cryptofund/internal/invoice"
	"github.com/MrJamesThe3rd/cryptofund/internal/rates"
)

type Lister interface {
	List(ctx context.Context, ownerID uuid.UUID, filter invoice.ListFilter) ([]*invoice.Invoice, error)
}

// Filter selects invoices by creation date. Both bounds are inclusive and
// compared by calendar day in UTC.
type Filter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Status    *invoice.Status
}

type Service struct {
	invoices Lister
	exponent int32
	locale   language.Tag
}

func NewService(invoices Lister, fiatExponent int32, locale language.Tag) *Service {
	return &Service{invoices: invoices, exponent: fiatExponent, locale: locale}
}

// Export returns the matching invoices oldest first.
func (s *Service) Export(ctx context.Context, ownerID uuid.UUID, filter Filter) ([]*invoice.Invoice, error) {
	invoices, err := s.invoices.List(ctx, ownerID, invoice.ListFilter{Status: filter.Status})
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}

	result := make([]*invoice.Invoice, 0, len(invoices))

	// List is newest first.
	for i := len(invoices) - 1; i >= 0; i-- {
		inv := invoices[i]
		if !inRange(inv.CreatedAt, filter) {
			continue
		}

		result = append(result, inv)
	}

	return result, nil
}

var csvHeader = []string{
	"number", "created_at", "due_date", "status", "client", "client_email",
	"subtotal", "tax", "total", "currency",
	"crypto_currency", "crypto_amount", "wallet_address", "paid_at", "tx_hash",
}

// WriteCSV writes one row per invoice. Fiat amounts are in major units.
func (s *Service) WriteCSV(w io.Writer, invoices []*invoice.Invoice) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, inv := range invoices {
		row := []string{
			inv.Number,
			inv.CreatedAt.UTC().Format(time.DateOnly),
			inv.DueDate.UTC().Format(time.DateOnly),
			string(inv.Status),
			inv.Client.Name,
			inv.Client.Email,
			s.major(inv.Subtotal),
			s.major(inv.Tax),
			s.major(inv.Total),
			inv.Currency,
			deref(inv.CryptoCurrency),
			"",
			deref(inv.WalletAddress),
			"",
			deref(inv.TxHash),
		}

		if inv.CryptoAmount != nil {
			row[11] = inv.CryptoAmount.String()
		}

		if inv.PaidAt != nil {
			row[13] = inv.PaidAt.UTC().Format(time.RFC3339)
		}

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing invoice %s: %w", inv.Number, err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// Summary renders one line per invoice followed by the paid and outstanding
// totals.
func (s *Service) Summary(invoices []*invoice.Invoice) string {
	var (
		sb          strings.Builder
		paid, owing int64
		currency    string
	)

	for _, inv := range invoices {
		currency = inv.Currency

		ref := "-"
		if inv.TxHash != nil {
			ref = *inv.TxHash
		}

		fmt.Fprintf(&sb, "* %s | %s | %s | %s | %s | %s\n",
			inv.CreatedAt.UTC().Format(time.DateOnly),
			inv.Number,
			inv.Client.Name,
			s.format(inv.Total, inv.Currency),
			inv.Status,
			ref,
		)

		switch inv.Status {
		case invoice.StatusPaid:
			paid += inv.Total
		case invoice.StatusPending, invoice.StatusOverdue:
			owing += inv.Total
		}
	}

	if len(invoices) > 0 {
		fmt.Fprintf(&sb, "\nPaid: %s\nOutstanding: %s\n", s.format(paid, currency), s.format(owing, currency))
	}

	return sb.String()
}

func (s *Service) major(minor int64) string {
	return decimal.New(minor, -s.exponent).StringFixed(s.exponent)
}

func (s *Service) format(minor int64, currency string) string {
	return rates.FormatFiat(s.locale, decimal.New(minor, -s.exponent), currency, int(s.exponent))
}

func inRange(t time.Time, f Filter) bool {
	day := t.UTC().Format(time.DateOnly)

	if f.StartDate != nil && day < f.StartDate.UTC().Format(time.DateOnly) {
		return false
	}

	if f.EndDate != nil && day > f.EndDate.UTC().Format(time.DateOnly) {
		return false
	}

	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
