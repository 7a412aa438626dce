package invoice

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/cryptofund/internal/invoice"
	"github.com/MrJamesThe3rd/cryptofund/internal/ledger"
	"github.com/MrJamesThe3rd/cryptofund/internal/payment"
)

type partyResponse struct {
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Email   string `json:"email,omitempty"`
}

type clientResponse struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
}

type itemResponse struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
	Total       int64           `json:"total"`
}

type invoiceResponse struct {
	ID                  uuid.UUID        `json:"id"`
	Number              string           `json:"number"`
	Issuer              partyResponse    `json:"issuer"`
	Client              clientResponse   `json:"client"`
	Items               []itemResponse   `json:"items"`
	Subtotal            int64            `json:"subtotal"`
	TaxRate             decimal.Decimal  `json:"tax_rate"`
	Tax                 int64            `json:"tax"`
	Total               int64            `json:"total"`
	Currency            string           `json:"currency"`
	CryptoCurrency      *string          `json:"crypto_currency,omitempty"`
	CryptoAmount        *decimal.Decimal `json:"crypto_amount,omitempty"`
	WalletAddress       *string          `json:"wallet_address,omitempty"`
	PaymentURI          string           `json:"payment_uri,omitempty"`
	Status              invoice.Status   `json:"status"`
	Note                string           `json:"note,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	DueDate             time.Time        `json:"due_date"`
	PaidAt              *time.Time       `json:"paid_at,omitempty"`
	TxHash              *string          `json:"tx_hash,omitempty"`
	VerificationDetails json.RawMessage  `json:"verification_details,omitempty"`
}

// paymentURI renders an invoice's wallet deep link.
type paymentURI func(*invoice.Invoice) string

func toResponse(inv *invoice.Invoice, uri paymentURI) invoiceResponse {
	items := make([]itemResponse, len(inv.Items))
	for i, it := range inv.Items {
		items[i] = itemResponse(it)
	}

	return invoiceResponse{
		ID:                  inv.ID,
		Number:              inv.Number,
		Issuer:              partyResponse(inv.Issuer),
		Client:              clientResponse(inv.Client),
		Items:               items,
		Subtotal:            inv.Subtotal,
		TaxRate:             inv.TaxRate,
		Tax:                 inv.Tax,
		Total:               inv.Total,
		Currency:            inv.Currency,
		CryptoCurrency:      inv.CryptoCurrency,
		CryptoAmount:        inv.CryptoAmount,
		WalletAddress:       inv.WalletAddress,
		PaymentURI:          uri(inv),
		Status:              inv.Status,
		Note:                inv.Note,
		CreatedAt:           inv.CreatedAt,
		DueDate:             inv.DueDate,
		PaidAt:              inv.PaidAt,
		TxHash:              inv.TxHash,
		VerificationDetails: inv.VerificationDetails,
	}
}

func toResponseList(invoices []*invoice.Invoice, uri paymentURI) []invoiceResponse {
	resp := make([]invoiceResponse, len(invoices))
	for i, inv := range invoices {
		resp[i] = toResponse(inv, uri)
	}

	return resp
}

type confirmationResponse struct {
	Verified bool            `json:"verified"`
	Invoice  invoiceResponse `json:"invoice"`
	Result   ledger.Result   `json:"result"`
}

func toConfirmationResponse(c *payment.Confirmation, uri paymentURI) confirmationResponse {
	return confirmationResponse{
		Verified: c.Verified,
		Invoice:  toResponse(c.Invoice, uri),
		Result:   c.Result,
	}
}

type monthResponse struct {
	Month   string `json:"month"`
	Revenue int64  `json:"revenue"`
	Created int    `json:"created"`
}

type statsResponse struct {
	TotalRevenue   int64             `json:"total_revenue"`
	PendingAmount  int64             `json:"pending_amount"`
	OverdueAmount  int64             `json:"overdue_amount"`
	InvoiceCount   int               `json:"invoice_count"`
	PaidCount      int               `json:"paid_count"`
	PendingCount   int               `json:"pending_count"`
	OverdueCount   int               `json:"overdue_count"`
	CancelledCount int               `json:"cancelled_count"`
	Recent         []invoiceResponse `json:"recent"`
	Monthly        []monthResponse   `json:"monthly"`
}

func toStatsResponse(st *invoice.Stats, uri paymentURI) statsResponse {
	monthly := make([]monthResponse, len(st.Monthly))
	for i, m := range st.Monthly {
		monthly[i] = monthResponse{
			Month:   time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01"),
			Revenue: m.Revenue,
			Created: m.Created,
		}
	}

	return statsResponse{
		TotalRevenue:   st.TotalRevenue,
		PendingAmount:  st.PendingAmount,
		OverdueAmount:  st.OverdueAmount,
		InvoiceCount:   st.InvoiceCount,
		PaidCount:      st.PaidCount,
		PendingCount:   st.PendingCount,
		OverdueCount:   st.OverdueCount,
		CancelledCount: st.CancelledCount,
		Recent:         toResponseList(st.Recent, uri),
		Monthly:        monthly,
	}
}
