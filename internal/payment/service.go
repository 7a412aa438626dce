// Package payment confirms invoice payments against the chain before
// recording them.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/cryptofund/internal/invoice"
	"github.com/MrJamesThe3rd/cryptofund/internal/ledger"
	"github.com/MrJamesThe3rd/cryptofund/internal/metrics"
)

var (
	ErrAlreadyPaid         = errors.New("invoice already paid")
	ErrMissingReference    = errors.New("transaction reference required")
	ErrInvalidReference    = errors.New("transaction reference is malformed")
	ErrUnsupportedCurrency = errors.New("currency cannot be verified on chain")
	ErrReferenceInUse      = errors.New("transaction already settles another invoice")
)

//go:generate mockgen -source=service.go -destination=invoices_mock.go -package=payment
type Invoices interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (*invoice.Invoice, error)
	FindByTxHash(ctx context.Context, txHash string) (*invoice.Invoice, error)
	MarkPaid(ctx context.Context, ownerID, id uuid.UUID, params invoice.PaidParams) (*invoice.Invoice, error)
}

type Service struct {
	invoices  Invoices
	verifiers ledger.Registry
}

func NewService(invoices Invoices, verifiers ledger.Registry) *Service {
	return &Service{invoices: invoices, verifiers: verifiers}
}

// Confirmation is the outcome of a verification attempt. Invoice is the
// updated record when Verified, otherwise the untouched one.
type Confirmation struct {
	Verified bool
	Invoice  *invoice.Invoice
	Result   ledger.Result
}

// ConfirmPayment checks txHash on the invoice's chain and marks the invoice
// paid only when the transaction pays the right address the right amount.
// A negative verification is not an error: the invoice is left as it was
// and the evidence is returned.
func (s *Service) ConfirmPayment(ctx context.Context, ownerID, id uuid.UUID, txHash string) (*Confirmation, error) {
	inv, err := s.invoices.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if inv.Status == invoice.StatusPaid {
		return nil, ErrAlreadyPaid
	}

	ref := strings.TrimSpace(txHash)
	if ref == "" {
		return nil, ErrMissingReference
	}

	if inv.Status == invoice.StatusCancelled {
		return nil, &invoice.TransitionError{From: inv.Status, To: invoice.StatusPaid}
	}

	var code string
	if inv.CryptoCurrency != nil {
		code = *inv.CryptoCurrency
	}

	verifier, ok := s.verifiers.Lookup(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}

	ref, err = verifier.Canonical(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}

	holder, err := s.invoices.FindByTxHash(ctx, ref)

	switch {
	case errors.Is(err, invoice.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("checking transaction reference: %w", err)
	case holder.ID != inv.ID:
		return nil, ErrReferenceInUse
	}

	req := ledger.Request{TxHash: ref}
	if inv.WalletAddress != nil {
		req.Address = *inv.WalletAddress
	}

	if inv.CryptoAmount != nil {
		req.Amount = new(*inv.CryptoAmount)
	}

	res := verifier.Verify(ctx, req)
	record(res)

	if !res.Verified {
		slog.Info("payment not verified",
			"invoice", inv.ID, "tx", ref, "reason", res.Reason, "message", res.Message)

		return &Confirmation{Invoice: inv, Result: res}, nil
	}

	details, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encoding verification details: %w", err)
	}

	paid, err := s.invoices.MarkPaid(ctx, ownerID, id, invoice.PaidParams{
		TxHash:              ref,
		VerificationDetails: details,
	})
	if err != nil {
		var terr *invoice.TransitionError

		switch {
		case errors.As(err, &terr) && terr.From == invoice.StatusPaid:
			return nil, ErrAlreadyPaid
		case errors.Is(err, invoice.ErrDuplicateReference):
			return nil, ErrReferenceInUse
		}

		return nil, err
	}

	return &Confirmation{Verified: true, Invoice: paid, Result: res}, nil
}

func record(res ledger.Result) {
	reason := string(res.Reason)
	if res.Verified {
		reason = "verified"
	}

	metrics.Verifications.WithLabelValues(res.Chain, reason).Inc()
}
