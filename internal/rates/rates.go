package rates

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/cryptofund/internal/metrics"
)

var ErrUnknownCurrency = errors.New("unknown currency")

// Fallback holds CZK prices served until the oracle answers for the first time.
var Fallback = map[string]decimal.Decimal{
	"ETH":  decimal.NewFromInt(85000),
	"BTC":  decimal.NewFromInt(1550000),
	"USDC": decimal.NewFromInt(23),
	"SOL":  decimal.NewFromInt(3200),
	"LN":   decimal.NewFromInt(1550000),
}

// mirrors lists codes priced by another code after every refresh.
var mirrors = map[string]string{
	"LN": "BTC",
}

// Oracle fetches current fiat prices keyed by currency code. Codes absent
// from the result keep their cached price.
type Oracle interface {
	Fetch(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Snapshot is a point-in-time copy of the cached prices.
type Snapshot struct {
	Rates       map[string]decimal.Decimal
	RefreshedAt time.Time
	Stale       bool
}

func (s Snapshot) Rate(code string) (decimal.Decimal, bool) {
	r, ok := s.Rates[strings.ToUpper(code)]
	if !ok || !r.IsPositive() {
		return decimal.Zero, false
	}

	return r, true
}

type Options struct {
	RefreshInterval time.Duration
	MaxStaleness    time.Duration
	Initial         map[string]decimal.Decimal
	Now             func() time.Time
}

type state struct {
	rates       map[string]decimal.Decimal
	refreshedAt time.Time
}

// Cache keeps the latest oracle prices. Refreshes are throttled by time
// only; concurrent refreshes may both hit the oracle and the last one to
// finish wins.
type Cache struct {
	oracle   Oracle
	interval time.Duration
	maxStale time.Duration
	now      func() time.Time
	current  atomic.Pointer[state]
}

// NewCache seeds the cache with opts.Initial, or Fallback. A nil oracle
// serves the seed prices forever.
func NewCache(oracle Oracle, opts Options) *Cache {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Minute
	}

	if opts.MaxStaleness <= 0 {
		opts.MaxStaleness = 30 * time.Minute
	}

	if opts.Initial == nil {
		opts.Initial = Fallback
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Cache{
		oracle:   oracle,
		interval: opts.RefreshInterval,
		maxStale: opts.MaxStaleness,
		now:      opts.Now,
	}

	initial := make(map[string]decimal.Decimal, len(opts.Initial))
	for code, price := range opts.Initial {
		initial[strings.ToUpper(code)] = price
	}

	c.current.Store(&state{rates: initial})

	return c
}

// Refresh fetches new prices when the last successful refresh is older than
// the refresh interval and returns the resulting snapshot. Oracle failures
// are logged and the previous prices are returned unchanged.
func (c *Cache) Refresh(ctx context.Context) Snapshot {
	cur := c.current.Load()
	now := c.now()

	if c.oracle == nil {
		return c.snapshot(cur, now)
	}

	if !cur.refreshedAt.IsZero() && now.Sub(cur.refreshedAt) < c.interval {
		metrics.RateRefreshes.WithLabelValues("throttled").Inc()
		return c.snapshot(cur, now)
	}

	fetched, err := c.oracle.Fetch(ctx)
	if err != nil {
		metrics.RateRefreshes.WithLabelValues("error").Inc()
		slog.Warn("price oracle refresh failed, serving cached rates",
			"error", err, "refreshed_at", cur.refreshedAt)

		return c.snapshot(cur, now)
	}

	next := &state{
		rates:       maps.Clone(cur.rates),
		refreshedAt: now,
	}

	for code, price := range fetched {
		if !price.IsPositive() {
			continue
		}

		next.rates[strings.ToUpper(code)] = price
	}

	for code, source := range mirrors {
		if price, ok := next.rates[source]; ok {
			next.rates[code] = price
		}
	}

	c.current.Store(next)

	metrics.RateRefreshes.WithLabelValues("ok").Inc()
	metrics.RateAge.Set(float64(now.Unix()))
	slog.Debug("price oracle refreshed", "codes", len(fetched))

	return c.snapshot(next, now)
}

// Snapshot returns the cached prices without contacting the oracle.
func (c *Cache) Snapshot() Snapshot {
	return c.snapshot(c.current.Load(), c.now())
}

func (c *Cache) snapshot(s *state, now time.Time) Snapshot {
	return Snapshot{
		Rates:       maps.Clone(s.rates),
		RefreshedAt: s.refreshedAt,
		Stale:       s.refreshedAt.IsZero() || now.Sub(s.refreshedAt) > c.maxStale,
	}
}
