package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/MrJamesThe3rd/cryptofund/internal/ledger"
)

const (
	Chain = "ethereum"

	// transferSelector is the first four bytes of keccak256("transfer(address,uint256)").
	transferSelector = "a9059cbb"
	wordHex          = 64
)

// Asset is a currency settled on Ethereum. An empty Contract means the
// native coin, read from the transaction value.
type Asset struct {
	Symbol   string
	Decimals int32
	Contract string
}

func Ether() Asset {
	return Asset{Symbol: "ETH", Decimals: 18}
}

func USDC(contract string) Asset {
	return Asset{Symbol: "USDC", Decimals: 6, Contract: contract}
}

type Verifier struct {
	client  *Client
	asset   Asset
	checker ledger.Checker
}

func NewVerifier(client *Client, asset Asset, tolerance decimal.Decimal) *Verifier {
	return &Verifier{
		client:  client,
		asset:   asset,
		checker: ledger.Checker{Chain: Chain, Tolerance: tolerance},
	}
}

// Canonical accepts a 32-byte hex hash and returns it 0x-prefixed and
// lower-cased.
func (v *Verifier) Canonical(hash string) (string, error) {
	return ledger.CanonicalHex(hash, "0x")
}

func (v *Verifier) Verify(ctx context.Context, req ledger.Request) ledger.Result {
	if !v.client.Configured() {
		return v.checker.Fail(req.TxHash, ledger.ReasonNotConfigured, "%s", ErrNotConfigured)
	}

	tx, err := v.client.Transaction(ctx, req.TxHash)
	if err != nil {
		return v.checker.Fail(req.TxHash, ledger.ReasonExplorerError, "%v", err)
	}

	if tx == nil {
		return v.checker.Fail(req.TxHash, ledger.ReasonNotFound, "transaction %s not found", req.TxHash)
	}

	if !strings.EqualFold(tx.Hash, req.TxHash) {
		return v.checker.Fail(req.TxHash, ledger.ReasonNotFound, "explorer returned transaction %q for %s", tx.Hash, req.TxHash)
	}

	obs, err := v.transfer(tx)
	if err != nil {
		res := v.checker.Fail(req.TxHash, ledger.ReasonWrongDest, "%v", err)
		res.From, res.To = tx.From, tx.To

		return res
	}

	var (
		receipt *Receipt
		tip     uint64
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		receipt, err = v.client.Receipt(gctx, req.TxHash)

		return err
	})

	g.Go(func() error {
		var err error
		tip, err = v.client.BlockNumber(gctx)

		return err
	})

	if err := g.Wait(); err != nil {
		return v.checker.Fail(req.TxHash, ledger.ReasonExplorerError, "%v", err)
	}

	if receipt != nil {
		height, err := parseQuantity(receipt.BlockNumber)
		if err != nil {
			return v.checker.Fail(req.TxHash, ledger.ReasonExplorerError, "parsing receipt block: %v", err)
		}

		obs.Confirmed = true
		obs.Failed = receipt.Status == "0x0"
		obs.BlockHeight = height.Uint64()
		obs.TipHeight = tip
	}

	return v.checker.Evaluate(req, obs)
}

var errNotTransfer = errors.New("not a token transfer")

// transfer extracts the recipient and amount moved by tx for this asset.
func (v *Verifier) transfer(tx *Transaction) (ledger.Observation, error) {
	if v.asset.Contract == "" {
		wei, err := parseQuantity(tx.Value)
		if err != nil {
			return ledger.Observation{}, fmt.Errorf("parsing value: %w", err)
		}

		return ledger.Observation{
			From:  tx.From,
			To:    tx.To,
			Value: decimal.NewFromBigInt(wei, -v.asset.Decimals),
		}, nil
	}

	if !strings.EqualFold(tx.To, v.asset.Contract) {
		return ledger.Observation{}, fmt.Errorf("transaction calls %s, not the %s contract", tx.To, v.asset.Symbol)
	}

	to, amount, err := decodeTransfer(tx.Input)
	if err != nil {
		return ledger.Observation{}, err
	}

	return ledger.Observation{
		From:  tx.From,
		To:    to,
		Value: decimal.NewFromBigInt(amount, -v.asset.Decimals),
	}, nil
}

// decodeTransfer reads transfer(address,uint256) call data.
func decodeTransfer(input string) (string, *big.Int, error) {
	data := strings.ToLower(strings.TrimPrefix(input, "0x"))
	if len(data) != len(transferSelector)+2*wordHex || !strings.HasPrefix(data, transferSelector) {
		return "", nil, errNotTransfer
	}

	args := data[len(transferSelector):]
	to := "0x" + args[wordHex-40:wordHex]

	amount, err := parseQuantity(args[wordHex:])
	if err != nil {
		return "", nil, fmt.Errorf("decoding transfer amount: %w", err)
	}

	return to, amount, nil
}

var _ ledger.Verifier = (*Verifier)(nil)
