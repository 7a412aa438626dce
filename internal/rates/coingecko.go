package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// CoinGeckoIDs maps supported currency codes to CoinGecko coin ids.
var CoinGeckoIDs = map[string]string{
	"ETH":  "ethereum",
	"BTC":  "bitcoin",
	"USDC": "usd-coin",
	"SOL":  "solana",
}

type BreakerSettings struct {
	Failures uint32
	Cooldown time.Duration
}

// CoinGecko reads prices from the /simple/price endpoint.
type CoinGecko struct {
	baseURL string
	fiat    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewCoinGecko(baseURL, fiat string, timeout time.Duration, bs BreakerSettings) *CoinGecko {
	if bs.Failures == 0 {
		bs.Failures = 3
	}

	settings := gobreaker.Settings{
		Name:    "coingecko",
		Timeout: bs.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	}

	return &CoinGecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		fiat:    strings.ToLower(fiat),
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *CoinGecko) Fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}

	return res.(map[string]decimal.Decimal), nil
}

func (c *CoinGecko) fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	ids := make([]string, 0, len(CoinGeckoIDs))
	for _, id := range CoinGeckoIDs {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", c.fiat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(CoinGeckoIDs))

	for code, id := range CoinGeckoIDs {
		price, ok := body[id][c.fiat]
		if !ok {
			continue
		}

		prices[code] = price
	}

	return prices, nil
}
