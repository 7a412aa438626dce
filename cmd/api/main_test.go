package main

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/cryptofund/internal/rates"
)

type oracleFunc func(ctx context.Context) (map[string]decimal.Decimal, error)

func (f oracleFunc) Fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	return f(ctx)
}

func TestWarmRates(t *testing.T) {
	calls := 0
	cache := rates.NewCache(oracleFunc(func(context.Context) (map[string]decimal.Decimal, error) {
		calls++
		return map[string]decimal.Decimal{"BTC": decimal.NewFromInt(1_600_000)}, nil
	}), rates.Options{})

	warmRates(context.Background(), cache)

	snap := cache.Snapshot()
	assert.Equal(t, 1, calls)
	assert.False(t, snap.Stale)
	assert.False(t, snap.RefreshedAt.IsZero())
	assert.True(t, snap.Rates["BTC"].Equal(decimal.NewFromInt(1_600_000)))
}

func TestWarmRates_OracleDown(t *testing.T) {
	cache := rates.NewCache(oracleFunc(func(context.Context) (map[string]decimal.Decimal, error) {
		return nil, errors.New("unreachable")
	}), rates.Options{})

	warmRates(context.Background(), cache)

	snap := cache.Snapshot()
	assert.True(t, snap.Stale)
	assert.NotEmpty(t, snap.Rates)
}
