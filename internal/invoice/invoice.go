package invoice

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of an invoice.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

var statuses = []Status{StatusPending, StatusPaid, StatusOverdue, StatusCancelled}

func (s Status) Valid() bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}

	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Party identifies who issued the invoice.
type Party struct {
	Name    string
	Company string
	Email   string
}

type Client struct {
	Name    string
	Email   string
	Address string
	TaxID   string
}

// Item is a single invoice line. UnitPrice and Total are in fiat minor units.
type Item struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   int64
	Total       int64
}

// Invoice is a billable document. Fiat amounts are minor units of Currency.
// CryptoAmount is fixed when the invoice is created.
type Invoice struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Number  string

	Issuer Party
	Client Client

	Items    []Item
	Subtotal int64
	TaxRate  decimal.Decimal
	Tax      int64
	Total    int64
	Currency string

	CryptoCurrency *string
	CryptoAmount   *decimal.Decimal
	WalletAddress  *string

	Status Status
	Note   string

	CreatedAt           time.Time
	DueDate             time.Time
	PaidAt              *time.Time
	TxHash              *string
	VerificationDetails json.RawMessage
}

// FormatNumber renders the per-owner sequence as YEAR-NNNN.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("%d-%04d", year, seq)
}
