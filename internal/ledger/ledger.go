// Package ledger defines how a claimed on-chain payment is checked against
// an invoice. Explorer-specific verifiers live in the evm and utxo
// subpackages.
package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Reason string

const (
	ReasonNotFound       Reason = "transaction_not_found"
	ReasonWrongDest      Reason = "wrong_destination"
	ReasonAmountMismatch Reason = "amount_mismatch"
	ReasonNotConfirmed   Reason = "not_yet_confirmed"
	ReasonFailed         Reason = "transaction_failed"
	ReasonExplorerError  Reason = "explorer_error"
	ReasonNotConfigured  Reason = "not_configured"
)

// DefaultTolerance is the absolute difference accepted between the observed
// and the expected crypto amount.
var DefaultTolerance = decimal.RequireFromString("0.0001")

// Request describes what the invoice expects to see on chain. An empty
// Address or a nil Amount skips that check.
type Request struct {
	TxHash  string
	Address string
	Amount  *decimal.Decimal
}

// Result is the evidence gathered for one verification. It is persisted
// verbatim as the invoice's verification details on success.
type Result struct {
	Verified      bool   `json:"verified"`
	Reason        Reason `json:"reason,omitempty"`
	Message       string `json:"message,omitempty"`
	Chain         string `json:"chain"`
	TxHash        string `json:"txHash"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	Value         string `json:"value,omitempty"`
	BlockHeight   uint64 `json:"blockHeight,omitempty"`
	Confirmations uint64 `json:"confirmations,omitempty"`
}

// ErrInvalidHash is returned by Canonical for a reference that cannot name
// a transaction on the verifier's chain.
var ErrInvalidHash = errors.New("invalid transaction hash")

//go:generate mockgen -source=ledger.go -destination=verifier_mock.go -package=ledger

// Verifier checks a transaction on one chain. Verify never returns an error:
// every failure, including explorer outages, is reported through Result.
type Verifier interface {
	// Canonical returns the one spelling of hash used for lookups and
	// storage, so aliases of a transaction cannot settle twice.
	Canonical(hash string) (string, error)
	Verify(ctx context.Context, req Request) Result
}

const hashBytes = 32

// CanonicalHex accepts a 32-byte hex hash, with or without a 0x prefix,
// and returns it lower-cased behind prefix.
func CanonicalHex(hash, prefix string) (string, error) {
	digits := strings.TrimSpace(hash)
	if len(digits) > 2 && (digits[:2] == "0x" || digits[:2] == "0X") {
		digits = digits[2:]
	}

	raw, err := hex.DecodeString(digits)
	if err != nil || len(raw) != hashBytes {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}

	return prefix + hex.EncodeToString(raw), nil
}

// Registry maps an upper-case currency code to its verifier.
type Registry map[string]Verifier

func (r Registry) Lookup(code string) (Verifier, bool) {
	v, ok := r[strings.ToUpper(strings.TrimSpace(code))]
	return v, ok && v != nil
}

// Observation is what an explorer reported about a transaction.
type Observation struct {
	From        string
	To          string
	Value       decimal.Decimal
	Confirmed   bool
	Failed      bool
	BlockHeight uint64
	TipHeight   uint64
}

// Checker applies the checks shared by every chain family, in order:
// destination, amount, settlement. Depth is recorded, never enforced.
type Checker struct {
	Chain     string
	Tolerance decimal.Decimal
}

func (c Checker) Fail(hash string, reason Reason, format string, args ...any) Result {
	return Result{
		Chain:   c.Chain,
		TxHash:  hash,
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}

func (c Checker) Evaluate(req Request, obs Observation) Result {
	res := Result{
		Chain:       c.Chain,
		TxHash:      req.TxHash,
		From:        obs.From,
		To:          obs.To,
		Value:       obs.Value.String(),
		BlockHeight: obs.BlockHeight,
	}

	if obs.Confirmed && obs.TipHeight > obs.BlockHeight {
		res.Confirmations = obs.TipHeight - obs.BlockHeight
	}

	if req.Address != "" && !strings.EqualFold(obs.To, req.Address) {
		res.Reason = ReasonWrongDest
		res.Message = fmt.Sprintf("paid to %s, expected %s", obs.To, req.Address)

		return res
	}

	if req.Amount != nil && obs.Value.Sub(*req.Amount).Abs().GreaterThan(c.Tolerance) {
		res.Reason = ReasonAmountMismatch
		res.Message = fmt.Sprintf("received %s, expected %s", obs.Value, req.Amount)

		return res
	}

	if obs.Failed {
		res.Reason = ReasonFailed
		res.Message = "transaction reverted"

		return res
	}

	if !obs.Confirmed {
		res.Reason = ReasonNotConfirmed
		res.Message = "transaction is not yet included in a block"

		return res
	}

	res.Verified = true

	return res
}
