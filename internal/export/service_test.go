package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MrJamesThe3rd/cryptofund/internal/invoice"
)

type fakeLister struct {
	invoices []*invoice.Invoice
	filter   invoice.ListFilter
	err      error
}

func (f *fakeLister) List(_ context.Context, _ uuid.UUID, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	f.filter = filter
	return f.invoices, f.err
}

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 10, 0, 0, 0, time.UTC)
}

// fixtures are newest first, the order List returns.
func fixtures() []*invoice.Invoice {
	amount := decimal.RequireFromString("0.00078065")

	return []*invoice.Invoice{
		{
			Number:    "2026-0003",
			Client:    invoice.Client{Name: "Globex", Email: "ap@globex.com"},
			Subtotal:  100_00,
			Total:     100_00,
			Currency:  "CZK",
			Status:    invoice.StatusCancelled,
			CreatedAt: day(20),
			DueDate:   day(20).AddDate(0, 0, 14),
		},
		{
			Number:         "2026-0002",
			Client:         invoice.Client{Name: "Initech", Email: "pay@initech.com"},
			Subtotal:       1000_00,
			Tax:            210_00,
			Total:          1210_00,
			Currency:       "CZK",
			CryptoCurrency: new("BTC"),
			CryptoAmount:   &amount,
			WalletAddress:  new("bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"),
			Status:         invoice.StatusPaid,
			CreatedAt:      day(12),
			DueDate:        day(12).AddDate(0, 0, 14),
			PaidAt:         new(day(15)),
			TxHash:         new("f4184fc5"),
		},
		{
			Number:    "2026-0001",
			Client:    invoice.Client{Name: "Acme", Email: "billing@acme.cz"},
			Subtotal:  500_00,
			Total:     500_00,
			Currency:  "CZK",
			Status:    invoice.StatusPending,
			CreatedAt: day(1),
			DueDate:   day(1).AddDate(0, 0, 14),
		},
	}
}

func TestService_Export(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{
			name: "All",
			want: []string{"2026-0001", "2026-0002", "2026-0003"},
		},
		{
			name:   "InclusiveRange",
			filter: Filter{StartDate: new(day(12)), EndDate: new(time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC))},
			want:   []string{"2026-0002", "2026-0003"},
		},
		{
			name:   "OpenEnd",
			filter: Filter{EndDate: new(day(11))},
			want:   []string{"2026-0001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&fakeLister{invoices: fixtures()}, 2, language.English)

			got, err := svc.Export(context.Background(), uuid.New(), tt.filter)
			require.NoError(t, err)

			numbers := make([]string, len(got))
			for i, inv := range got {
				numbers[i] = inv.Number
			}

			assert.Equal(t, tt.want, numbers)
		})
	}
}

func TestService_ExportPassesStatus(t *testing.T) {
	lister := &fakeLister{}
	svc := NewService(lister, 2, language.English)

	status := invoice.StatusPaid

	_, err := svc.Export(context.Background(), uuid.New(), Filter{Status: &status})
	require.NoError(t, err)
	require.NotNil(t, lister.filter.Status)
	assert.Equal(t, invoice.StatusPaid, *lister.filter.Status)
}

func TestService_ExportListError(t *testing.T) {
	svc := NewService(&fakeLister{err: errors.New("db down")}, 2, language.English)

	_, err := svc.Export(context.Background(), uuid.New(), Filter{})
	assert.ErrorContains(t, err, "listing invoices")
}

func TestService_WriteCSV(t *testing.T) {
	svc := NewService(nil, 2, language.English)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteCSV(&buf, fixtures()[1:2]))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"2026-0002", "2026-03-12", "2026-03-26", "paid", "Initech", "pay@initech.com",
		"1000.00", "210.00", "1210.00", "CZK",
		"BTC", "0.00078065", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", "2026-03-15T10:00:00Z", "f4184fc5",
	}, rows[1])
}

func TestService_Summary(t *testing.T) {
	svc := NewService(nil, 2, language.English)

	got := svc.Summary(fixtures())
	lines := strings.Split(strings.TrimSpace(got), "\n")

	require.Len(t, lines, 6)
	assert.Equal(t, "* 2026-03-20 | 2026-0003 | Globex | 100.00 CZK | cancelled | -", lines[0])
	assert.Equal(t, "* 2026-03-12 | 2026-0002 | Initech | 1,210.00 CZK | paid | f4184fc5", lines[1])
	assert.Equal(t, "Paid: 1,210.00 CZK", lines[4])
	assert.Equal(t, "Outstanding: 500.00 CZK", lines[5])

	assert.Empty(t, svc.Summary(nil))
}
