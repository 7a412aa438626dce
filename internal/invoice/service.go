package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/cryptofund/internal/rates"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=invoice
type Repository interface {
	// CreateInvoice assigns ID and Number (from CreatedAt's year and the
	// owner's next sequence value) and persists inv.
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, ownerID, id uuid.UUID) (*Invoice, error)
	// ListInvoices returns the owner's invoices, newest first.
	ListInvoices(ctx context.Context, ownerID uuid.UUID) ([]*Invoice, error)
	FindByTxHash(ctx context.Context, txHash string) (*Invoice, error)
	// UpdateStatus applies upd only if the stored status is one of upd.From,
	// otherwise it returns ErrStatusConflict.
	UpdateStatus(ctx context.Context, upd StatusUpdate) (*Invoice, error)
	// MarkOverdue persists the derived overdue status for pending invoices
	// whose due date is before now.
	MarkOverdue(ctx context.Context, ids []uuid.UUID, now time.Time) error
	DeleteInvoice(ctx context.Context, ownerID, id uuid.UUID) error
}

// RateSource is the price cache consulted when an invoice is denominated in
// a cryptocurrency.
type RateSource interface {
	Refresh(ctx context.Context) rates.Snapshot
}

type StatusUpdate struct {
	OwnerID             uuid.UUID
	ID                  uuid.UUID
	From                []Status
	To                  Status
	PaidAt              *time.Time
	TxHash              *string
	VerificationDetails json.RawMessage
}

type Options struct {
	FiatCurrency string
	Converter    rates.Converter
	DueDays      int
	Now          func() time.Time
	Tokens       map[string]Token
}

type Service struct {
	repo     Repository
	rates    RateSource
	conv     rates.Converter
	currency string
	dueAfter time.Duration
	now      func() time.Time
	tokens   map[string]Token
}

func NewService(repo Repository, rateSource RateSource, opts Options) *Service {
	if opts.FiatCurrency == "" {
		opts.FiatCurrency = "CZK"
	}

	if opts.DueDays <= 0 {
		opts.DueDays = 14
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:     repo,
		rates:    rateSource,
		conv:     opts.Converter,
		currency: opts.FiatCurrency,
		dueAfter: time.Duration(opts.DueDays) * 24 * time.Hour,
		now:      opts.Now,
		tokens:   opts.Tokens,
	}
}

// PaymentURI is inv's wallet deep link using the configured tokens.
func (s *Service) PaymentURI(inv *Invoice) string {
	return inv.PaymentURI(s.tokens)
}

type ItemParams struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   int64
}

type CreateParams struct {
	Issuer         Party
	Client         Client
	Items          []ItemParams
	TaxRate        decimal.Decimal
	DueDate        *time.Time
	CryptoCurrency string
	WalletAddress  string
	Note           string
}

type ListFilter struct {
	Status *Status
	Search string
}

type PaidParams struct {
	TxHash              string
	VerificationDetails json.RawMessage
}

var hundred = decimal.NewFromInt(100)

// taxRatePlaces is the scale of the stored tax rate.
const taxRatePlaces = 2

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, params CreateParams) (*Invoice, error) {
	if err := validate(params); err != nil {
		return nil, err
	}

	items, subtotal := lineItems(params.Items)
	tax := decimal.NewFromInt(subtotal).Mul(params.TaxRate).Div(hundred).Round(0).IntPart()
	now := s.now()

	inv := &Invoice{
		OwnerID:  ownerID,
		Issuer:   params.Issuer,
		Client:   trimClient(params.Client),
		Items:    items,
		Subtotal: subtotal,
		TaxRate:  params.TaxRate,
		Tax:      tax,
		Total:    subtotal + tax,
		Currency: s.currency,
		Status:   StatusPending,
		Note:     strings.TrimSpace(params.Note),
		// Truncated so the stored value survives a database round trip unchanged.
		CreatedAt: now.Truncate(time.Microsecond),
		DueDate:   now.Add(s.dueAfter).Truncate(time.Microsecond),
	}

	if params.DueDate != nil {
		inv.DueDate = *params.DueDate
	}

	if addr := strings.TrimSpace(params.WalletAddress); addr != "" {
		inv.WalletAddress = &addr
	}

	if code := strings.ToUpper(strings.TrimSpace(params.CryptoCurrency)); code != "" {
		snap := s.rates.Refresh(ctx)

		amount, err := s.conv.ToCrypto(snap, inv.Total, code)
		if err != nil {
			return nil, err
		}

		if snap.Stale {
			slog.Warn("pricing invoice with stale rates", "currency", code, "refreshed_at", snap.RefreshedAt)
		}

		inv.CryptoCurrency = &code
		inv.CryptoAmount = &amount
	}

	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("creating invoice: %w", err)
	}

	return inv, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	s.deriveOverdue(ctx, []*Invoice{inv})

	return inv, nil
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID, filter ListFilter) ([]*Invoice, error) {
	invoices, err := s.repo.ListInvoices(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	s.deriveOverdue(ctx, invoices)

	query := strings.ToLower(strings.TrimSpace(filter.Search))

	result := make([]*Invoice, 0, len(invoices))

	for _, inv := range invoices {
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}

		if query != "" && !matches(inv, query) {
			continue
		}

		result = append(result, inv)
	}

	slices.SortStableFunc(result, func(a, b *Invoice) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return result, nil
}

// Transition moves an invoice to target without any payment verification.
// It is the manual path: a paid invoice may end up without a reference.
func (s *Service) Transition(ctx context.Context, ownerID, id uuid.UUID, target Status, txHash string) (*Invoice, error) {
	if !target.Valid() {
		return nil, &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", target)}
	}

	inv, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(inv.Status, target) {
		return nil, &TransitionError{From: inv.Status, To: target}
	}

	upd := StatusUpdate{
		OwnerID: ownerID,
		ID:      id,
		From:    transitions.Sources(target),
		To:      target,
	}

	if target == StatusPaid {
		upd.PaidAt = new(s.now().Truncate(time.Microsecond))

		if ref := strings.TrimSpace(txHash); ref != "" {
			upd.TxHash = &ref
		}
	}

	return s.apply(ctx, upd)
}

// MarkPaid records a verified payment. It fails with a TransitionError when
// the invoice is no longer payable, including when a concurrent call already
// marked it paid.
func (s *Service) MarkPaid(ctx context.Context, ownerID, id uuid.UUID, params PaidParams) (*Invoice, error) {
	ref := strings.TrimSpace(params.TxHash)
	if ref == "" {
		return nil, &ValidationError{Field: "txHash", Msg: "required"}
	}

	return s.apply(ctx, StatusUpdate{
		OwnerID:             ownerID,
		ID:                  id,
		From:                transitions.Sources(StatusPaid),
		To:                  StatusPaid,
		PaidAt:              new(s.now().Truncate(time.Microsecond)),
		TxHash:              &ref,
		VerificationDetails: params.VerificationDetails,
	})
}

// FindByTxHash returns the invoice holding txHash, across all owners.
func (s *Service) FindByTxHash(ctx context.Context, txHash string) (*Invoice, error) {
	return s.repo.FindByTxHash(ctx, strings.TrimSpace(txHash))
}

// Delete removes the invoice whatever its status. Deleting an unknown
// invoice is not an error.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	err := s.repo.DeleteInvoice(ctx, ownerID, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("deleting invoice: %w", err)
	}

	return nil
}

func (s *Service) apply(ctx context.Context, upd StatusUpdate) (*Invoice, error) {
	inv, err := s.repo.UpdateStatus(ctx, upd)
	if err == nil {
		return inv, nil
	}

	if !errors.Is(err, ErrStatusConflict) {
		return nil, err
	}

	current, gerr := s.Get(ctx, upd.OwnerID, upd.ID)
	if gerr != nil {
		return nil, gerr
	}

	return nil, &TransitionError{From: current.Status, To: upd.To}
}

// deriveOverdue reports pending invoices past their due date as overdue and
// writes that back. A failed write-back only costs a re-derivation on the
// next read.
func (s *Service) deriveOverdue(ctx context.Context, invoices []*Invoice) {
	now := s.now()

	var expired []uuid.UUID

	for _, inv := range invoices {
		effective := Effective(inv.Status, inv.DueDate, now)
		if effective == inv.Status {
			continue
		}

		inv.Status = effective
		expired = append(expired, inv.ID)
	}

	if len(expired) == 0 {
		return
	}

	if err := s.repo.MarkOverdue(ctx, expired, now); err != nil {
		slog.Warn("failed to persist overdue status", "count", len(expired), "error", err)
	}
}

func validate(params CreateParams) error {
	if strings.TrimSpace(params.Client.Name) == "" {
		return &ValidationError{Field: "client.name", Msg: "required"}
	}

	if strings.TrimSpace(params.Client.Email) == "" {
		return &ValidationError{Field: "client.email", Msg: "required"}
	}

	if len(params.Items) == 0 {
		return &ValidationError{Field: "items", Msg: "at least one item is required"}
	}

	for i, item := range params.Items {
		if item.Quantity.IsNegative() {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Msg: "must not be negative"}
		}

		if item.UnitPrice < 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].unitPrice", i), Msg: "must not be negative"}
		}
	}

	if params.TaxRate.IsNegative() || params.TaxRate.GreaterThan(hundred) {
		return &ValidationError{Field: "taxRate", Msg: "must be between 0 and 100"}
	}

	if !params.TaxRate.Equal(params.TaxRate.Round(taxRatePlaces)) {
		return &ValidationError{Field: "taxRate", Msg: fmt.Sprintf("at most %d decimal places", taxRatePlaces)}
	}

	return nil
}

func lineItems(params []ItemParams) ([]Item, int64) {
	items := make([]Item, len(params))

	var subtotal int64

	for i, p := range params {
		total := p.Quantity.Mul(decimal.NewFromInt(p.UnitPrice)).Round(0).IntPart()
		items[i] = Item{
			Description: strings.TrimSpace(p.Description),
			Quantity:    p.Quantity,
			UnitPrice:   p.UnitPrice,
			Total:       total,
		}
		subtotal += total
	}

	return items, subtotal
}

func trimClient(c Client) Client {
	return Client{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.TrimSpace(c.Email),
		Address: strings.TrimSpace(c.Address),
		TaxID:   strings.TrimSpace(c.TaxID),
	}
}

func matches(inv *Invoice, query string) bool {
	return strings.Contains(strings.ToLower(inv.Client.Name), query) ||
		strings.Contains(strings.ToLower(inv.Client.Email), query) ||
		strings.Contains(strings.ToLower(inv.Number), query)
}
