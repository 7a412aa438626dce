package rates_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ratesHandler "github.com/MrJamesThe3rd/cryptofund/internal/http/rates"
	"github.com/MrJamesThe3rd/cryptofund/internal/rates"
)

type oracle struct {
	calls int
}

func (o *oracle) Fetch(context.Context) (map[string]decimal.Decimal, error) {
	o.calls++
	return map[string]decimal.Decimal{"BTC": decimal.NewFromInt(1600000)}, nil
}

type body struct {
	Currency string `json:"currency"`
	Rates    []struct {
		Code  string `json:"code"`
		Price string `json:"price"`
	} `json:"rates"`
	RefreshedAt *time.Time `json:"refreshed_at"`
	Stale       bool       `json:"stale"`
}

func serve(t *testing.T, h *ratesHandler.Handler, target string) body {
	t.Helper()

	r := chi.NewRouter()
	r.Route("/rates", h.Routes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got body
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))

	return got
}

func TestHandler_Snapshot(t *testing.T) {
	o := &oracle{}
	cache := rates.NewCache(o, rates.Options{})
	h := ratesHandler.NewHandler(cache, "CZK")

	got := serve(t, h, "/rates")

	assert.Equal(t, 0, o.calls)
	assert.Equal(t, "CZK", got.Currency)
	assert.True(t, got.Stale)
	assert.Nil(t, got.RefreshedAt)
	require.Len(t, got.Rates, len(rates.Fallback))
	assert.Equal(t, "BTC", got.Rates[0].Code)
	assert.Equal(t, "1550000", got.Rates[0].Price)
}

func TestHandler_Refresh(t *testing.T) {
	o := &oracle{}
	cache := rates.NewCache(o, rates.Options{})
	h := ratesHandler.NewHandler(cache, "CZK")

	got := serve(t, h, "/rates?refresh=1")

	assert.Equal(t, 1, o.calls)
	assert.False(t, got.Stale)
	assert.NotNil(t, got.RefreshedAt)

	prices := map[string]string{}
	for _, r := range got.Rates {
		prices[r.Code] = r.Price
	}

	assert.Equal(t, "1600000", prices["BTC"])
	assert.Equal(t, "1600000", prices["LN"])
	assert.Equal(t, "85000", prices["ETH"])
}
