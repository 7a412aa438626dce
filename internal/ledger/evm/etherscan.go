// Package evm verifies Ethereum payments through the Etherscan proxy API.
package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrJamesThe3rd/cryptofund/internal/metrics"
)

// ErrNotConfigured is returned by every call when no API key is set.
var ErrNotConfigured = errors.New("etherscan api key not configured")

// Client talks to the Etherscan proxy module. Requests share one limiter so
// the free tier quota is respected across verifiers.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewClient(baseURL, apiKey string, timeout time.Duration, rps float64) *Client {
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type Transaction struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Input       string `json:"input"`
	BlockNumber string `json:"blockNumber"`
}

type Receipt struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
}

// Transaction returns nil without error when the hash is unknown.
func (c *Client) Transaction(ctx context.Context, hash string) (*Transaction, error) {
	var tx *Transaction
	if err := c.call(ctx, "eth_getTransactionByHash", url.Values{"txhash": {hash}}, &tx); err != nil {
		return nil, err
	}

	return tx, nil
}

// Receipt returns nil without error while the transaction is unmined.
func (c *Client) Receipt(ctx context.Context, hash string) (*Receipt, error) {
	var r *Receipt
	if err := c.call(ctx, "eth_getTransactionReceipt", url.Values{"txhash": {hash}}, &r); err != nil {
		return nil, err
	}

	return r, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var hex string
	if err := c.call(ctx, "eth_blockNumber", nil, &hex); err != nil {
		return 0, err
	}

	n, err := parseQuantity(hex)
	if err != nil {
		return 0, fmt.Errorf("parsing block number: %w", err)
	}

	return n.Uint64(), nil
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, action string, params url.Values, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}

	q.Set("module", "proxy")
	q.Set("action", action)
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)

	metrics.ExplorerRequestDuration.WithLabelValues("etherscan", action).Observe(time.Since(start).Seconds())

	if err != nil {
		return fmt.Errorf("%s: executing request: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status code %d", action, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s: decoding response: %w", action, err)
	}

	if env.Error != nil {
		return fmt.Errorf("%s: %s", action, env.Error.Message)
	}

	// Non-proxy failures (bad key, rate limit) come back as status "0" with
	// a plain string result.
	if env.Status == "0" {
		var msg string
		_ = json.Unmarshal(env.Result, &msg)

		return fmt.Errorf("%s: %s: %s", action, env.Message, msg)
	}

	if len(env.Result) == 0 {
		return nil
	}

	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%s: decoding result: %w", action, err)
	}

	return nil
}

// parseQuantity decodes a 0x-prefixed hex quantity.
func parseQuantity(s string) (*big.Int, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return new(big.Int), nil
	}

	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}

	return n, nil
}
