// Package utxo verifies Bitcoin payments through a Blockstream Esplora API.
package utxo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/cryptofund/internal/ledger"
	"github.com/MrJamesThe3rd/cryptofund/internal/metrics"
)

const (
	Chain = "bitcoin"

	satoshiExp = -8
)

var errNotFound = errors.New("transaction not found")

type Output struct {
	Address string `json:"scriptpubkey_address"`
	Value   int64  `json:"value"`
}

type Input struct {
	Prevout *Output `json:"prevout"`
}

type Status struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint64 `json:"block_height"`
}

type Transaction struct {
	TxID   string   `json:"txid"`
	Vin    []Input  `json:"vin"`
	Vout   []Output `json:"vout"`
	Status Status   `json:"status"`
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Transaction(ctx context.Context, txid string) (*Transaction, error) {
	body, err := c.get(ctx, "tx", "/tx/"+url.PathEscape(txid))
	if err != nil {
		return nil, err
	}

	var tx Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("decoding transaction: %w", err)
	}

	return &tx, nil
}

func (c *Client) TipHeight(ctx context.Context) (uint64, error) {
	body, err := c.get(ctx, "tip_height", "/blocks/tip/height")
	if err != nil {
		return 0, err
	}

	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing tip height: %w", err)
	}

	return height, nil
}

func (c *Client) get(ctx context.Context, call, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)

	metrics.ExplorerRequestDuration.WithLabelValues("blockstream", call).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("%s: executing request: %w", call, err)
	}
	defer resp.Body.Close()

	// Esplora answers 400 for malformed ids and 404 for unknown ones.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return nil, errNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status code %d", call, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", call, err)
	}

	return body, nil
}

type Verifier struct {
	client  *Client
	checker ledger.Checker
}

func NewVerifier(client *Client, tolerance decimal.Decimal) *Verifier {
	return &Verifier{
		client:  client,
		checker: ledger.Checker{Chain: Chain, Tolerance: tolerance},
	}
}

// Canonical accepts a 64-digit hex txid and returns it lower-cased.
func (v *Verifier) Canonical(hash string) (string, error) {
	return ledger.CanonicalHex(hash, "")
}

func (v *Verifier) Verify(ctx context.Context, req ledger.Request) ledger.Result {
	tx, err := v.client.Transaction(ctx, req.TxHash)
	if errors.Is(err, errNotFound) {
		return v.checker.Fail(req.TxHash, ledger.ReasonNotFound, "transaction %s not found", req.TxHash)
	}

	if err != nil {
		return v.checker.Fail(req.TxHash, ledger.ReasonExplorerError, "%v", err)
	}

	if !strings.EqualFold(tx.TxID, req.TxHash) {
		return v.checker.Fail(req.TxHash, ledger.ReasonNotFound, "explorer returned transaction %q for %s", tx.TxID, req.TxHash)
	}

	obs := observe(tx, req.Address)

	// Without an address there is no way to tell which outputs pay us.
	if req.Address == "" {
		req.Amount = nil
	}

	if tx.Status.Confirmed {
		tip, err := v.client.TipHeight(ctx)
		if err != nil {
			return v.checker.Fail(req.TxHash, ledger.ReasonExplorerError, "%v", err)
		}

		obs.Confirmed = true
		obs.BlockHeight = tx.Status.BlockHeight
		obs.TipHeight = tip
	}

	return v.checker.Evaluate(req, obs)
}

// observe sums the outputs paying address. When none does, To reports the
// first output so the mismatch is visible.
func observe(tx *Transaction, address string) ledger.Observation {
	var obs ledger.Observation

	for _, in := range tx.Vin {
		if in.Prevout != nil && in.Prevout.Address != "" {
			obs.From = in.Prevout.Address
			break
		}
	}

	var sats int64

	for _, out := range tx.Vout {
		if address != "" && strings.EqualFold(out.Address, address) {
			obs.To = out.Address
			sats += out.Value
		}
	}

	if obs.To == "" && len(tx.Vout) > 0 {
		obs.To = tx.Vout[0].Address
	}

	if address == "" {
		for _, out := range tx.Vout {
			sats += out.Value
		}
	}

	obs.Value = decimal.New(sats, satoshiExp)

	return obs
}

var _ ledger.Verifier = (*Verifier)(nil)
