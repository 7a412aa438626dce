package rates

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/cryptofund/internal/rates"
)

// Source is the read side of the rate cache.
type Source interface {
	Snapshot() rates.Snapshot
	Refresh(ctx context.Context) rates.Snapshot
}

type Handler struct {
	source   Source
	currency string
}

func NewHandler(source Source, currency string) *Handler {
	return &Handler{source: source, currency: currency}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.get)
}

type rateResponse struct {
	Code  string `json:"code"`
	Price string `json:"price"`
}

type snapshotResponse struct {
	Currency    string         `json:"currency"`
	Rates       []rateResponse `json:"rates"`
	RefreshedAt *time.Time     `json:"refreshed_at,omitempty"`
	Stale       bool           `json:"stale"`
}

// get serves the cached snapshot. ?refresh=1 asks the oracle first, subject
// to the cache's refresh interval.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	var snap rates.Snapshot
	if r.URL.Query().Get("refresh") == "1" {
		snap = h.source.Refresh(r.Context())
	} else {
		snap = h.source.Snapshot()
	}

	resp := snapshotResponse{
		Currency: h.currency,
		Rates:    make([]rateResponse, 0, len(snap.Rates)),
		Stale:    snap.Stale,
	}

	if !snap.RefreshedAt.IsZero() {
		resp.RefreshedAt = &snap.RefreshedAt
	}

	for _, code := range slices.Sorted(maps.Keys(snap.Rates)) {
		resp.Rates = append(resp.Rates, rateResponse{Code: code, Price: snap.Rates[code].String()})
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
