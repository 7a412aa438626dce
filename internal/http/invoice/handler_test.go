package invoice_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/cryptofund/internal/http/auth"
	invoiceHandler "github.com/MrJamesThe3rd/cryptofund/internal/http/invoice"
	"github.com/MrJamesThe3rd/cryptofund/internal/invoice"
	"github.com/MrJamesThe3rd/cryptofund/internal/invoice/memstore"
	"github.com/MrJamesThe3rd/cryptofund/internal/ledger"
	"github.com/MrJamesThe3rd/cryptofund/internal/payment"
	"github.com/MrJamesThe3rd/cryptofund/internal/rates"
)

const (
	wallet = "0x52908400098527886E0F7030069857D2E4169EE7"
	txHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
)

type stubVerifier struct {
	res ledger.Result
}

func (s *stubVerifier) Canonical(hash string) (string, error) {
	return ledger.CanonicalHex(hash, "0x")
}

func (s *stubVerifier) Verify(_ context.Context, req ledger.Request) ledger.Result {
	res := s.res
	res.TxHash = req.TxHash

	return res
}

type server struct {
	router   chi.Router
	owner    uuid.UUID
	verifier *stubVerifier
}

func newServer(t *testing.T) *server {
	t.Helper()

	invoices := invoice.NewService(memstore.New(), rates.NewCache(nil, rates.Options{}), invoice.Options{
		Converter: rates.NewConverter(2),
	})

	s := &server{
		owner:    uuid.New(),
		verifier: &stubVerifier{res: ledger.Result{Chain: "ethereum", Reason: ledger.ReasonNotFound}},
	}

	h := invoiceHandler.NewHandler(invoices, payment.NewService(invoices, ledger.Registry{"ETH": s.verifier}))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("X-Anonymous") != "" {
				next.ServeHTTP(w, req)
				return
			}

			next.ServeHTTP(w, req.WithContext(auth.WithOwner(req.Context(), s.owner)))
		})
	})
	r.Route("/invoices", h.Routes)
	r.Route("/dashboard", h.DashboardRoutes)

	s.router = r

	return s
}

func (s *server) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))

	return v
}

type invoiceBody struct {
	ID             string  `json:"id"`
	Number         string  `json:"number"`
	Subtotal       int64   `json:"subtotal"`
	Tax            int64   `json:"tax"`
	Total          int64   `json:"total"`
	Currency       string  `json:"currency"`
	CryptoCurrency *string `json:"crypto_currency"`
	CryptoAmount   *string `json:"crypto_amount"`
	PaymentURI     string  `json:"payment_uri"`
	Status         string  `json:"status"`
	TxHash         *string `json:"tx_hash"`
	PaidAt         *string `json:"paid_at"`
}

func validRequest() map[string]any {
	return map[string]any{
		"issuer": map[string]any{"name": "Jan Novak"},
		"client": map[string]any{"name": "Acme s.r.o.", "email": "billing@acme.cz"},
		"items": []map[string]any{
			{"description": "Consulting", "quantity": "2", "unit_price": 500_00},
		},
		"tax_rate":        "21",
		"crypto_currency": "ETH",
		"wallet_address":  wallet,
	}
}

func (s *server) create(t *testing.T) invoiceBody {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/invoices/", validRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	return decode[invoiceBody](t, rec)
}

func TestHandler_Create(t *testing.T) {
	s := newServer(t)

	got := s.create(t)

	assert.Equal(t, int64(1000_00), got.Subtotal)
	assert.Equal(t, int64(210_00), got.Tax)
	assert.Equal(t, int64(1210_00), got.Total)
	assert.Equal(t, "CZK", got.Currency)
	assert.Equal(t, "pending", got.Status)
	require.NotNil(t, got.CryptoCurrency)
	assert.Equal(t, "ETH", *got.CryptoCurrency)
	require.NotNil(t, got.CryptoAmount)
	assert.Equal(t, "0.01423529", *got.CryptoAmount)
	assert.Equal(t, "ethereum:"+wallet+"?value=14235290000000000", got.PaymentURI)
	assert.Nil(t, got.TxHash)
}

func TestHandler_CreateRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   int
	}{
		{
			name:   "MissingClientEmail",
			mutate: func(b map[string]any) { b["client"] = map[string]any{"name": "Acme"} },
			want:   http.StatusBadRequest,
		},
		{
			name:   "NoItems",
			mutate: func(b map[string]any) { b["items"] = []any{} },
			want:   http.StatusBadRequest,
		},
		{
			name:   "UnknownCurrency",
			mutate: func(b map[string]any) { b["crypto_currency"] = "DOGE" },
			want:   http.StatusBadRequest,
		},
		{
			name:   "TaxRateOutOfRange",
			mutate: func(b map[string]any) { b["tax_rate"] = "120" },
			want:   http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t)
			body := validRequest()
			tt.mutate(body)

			rec := s.do(t, http.MethodPost, "/invoices/", body)

			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_MalformedBody(t *testing.T) {
	s := newServer(t)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices/", bytes.NewBufferString("{")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Unauthenticated(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/invoices/", nil)
	req.Header.Set("X-Anonymous", "1")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Get(t *testing.T) {
	s := newServer(t)
	created := s.create(t)

	rec := s.do(t, http.MethodGet, "/invoices/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.Number, decode[invoiceBody](t, rec).Number)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/invoices/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/invoices/not-a-uuid", nil).Code)
}

func TestHandler_List(t *testing.T) {
	s := newServer(t)
	first := s.create(t)
	s.create(t)

	rec := s.do(t, http.MethodPatch, "/invoices/"+first.ID+"/status", map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/invoices/?status=all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]invoiceBody](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/invoices/?status=cancelled", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cancelled := decode[[]invoiceBody](t, rec)
	require.Len(t, cancelled, 1)
	assert.Equal(t, first.ID, cancelled[0].ID)

	rec = s.do(t, http.MethodGet, "/invoices/?search="+first.Number, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]invoiceBody](t, rec), 1)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/invoices/?status=bogus", nil).Code)
}

func TestHandler_UpdateStatus(t *testing.T) {
	s := newServer(t)
	created := s.create(t)
	path := "/invoices/" + created.ID + "/status"

	rec := s.do(t, http.MethodPatch, path, map[string]any{"status": "paid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	paid := decode[invoiceBody](t, rec)
	assert.Equal(t, "paid", paid.Status)
	assert.NotNil(t, paid.PaidAt)
	assert.Nil(t, paid.TxHash)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPatch, path, map[string]any{"status": "pending"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPatch, path, map[string]any{"status": "lost"}).Code)
}

type confirmationBody struct {
	Verified bool        `json:"verified"`
	Invoice  invoiceBody `json:"invoice"`
	Result   struct {
		Reason string `json:"reason"`
		TxHash string `json:"txHash"`
	} `json:"result"`
}

func TestHandler_VerifyPayment(t *testing.T) {
	s := newServer(t)
	created := s.create(t)
	path := "/invoices/" + created.ID + "/verify-payment"

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, path, map[string]any{"tx_hash": " "}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, path, map[string]any{"tx_hash": txHash + "#again"}).Code)

	rec := s.do(t, http.MethodPost, path, map[string]any{"tx_hash": txHash})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rejected := decode[confirmationBody](t, rec)
	assert.False(t, rejected.Verified)
	assert.Equal(t, string(ledger.ReasonNotFound), rejected.Result.Reason)
	assert.Equal(t, "pending", rejected.Invoice.Status)

	s.verifier.res = ledger.Result{Verified: true, Chain: "ethereum", To: wallet, Value: "0.01423529"}

	rec = s.do(t, http.MethodPost, path, map[string]any{"tx_hash": txHash})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	confirmed := decode[confirmationBody](t, rec)
	assert.True(t, confirmed.Verified)
	assert.Equal(t, "paid", confirmed.Invoice.Status)
	require.NotNil(t, confirmed.Invoice.TxHash)
	assert.Equal(t, txHash, *confirmed.Invoice.TxHash)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, path, map[string]any{"tx_hash": txHash}).Code)

	other := s.create(t)
	rec = s.do(t, http.MethodPost, "/invoices/"+other.ID+"/verify-payment", map[string]any{"tx_hash": txHash})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/invoices/"+other.ID+"/verify-payment", map[string]any{"tx_hash": strings.ToUpper(txHash)})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_Delete(t *testing.T) {
	s := newServer(t)
	created := s.create(t)
	path := "/invoices/" + created.ID

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, nil).Code)
}

func TestHandler_Stats(t *testing.T) {
	s := newServer(t)
	created := s.create(t)
	s.create(t)

	rec := s.do(t, http.MethodPatch, "/invoices/"+created.ID+"/status", map[string]any{"status": "paid"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/dashboard/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[struct {
		TotalRevenue  int64         `json:"total_revenue"`
		PendingAmount int64         `json:"pending_amount"`
		InvoiceCount  int           `json:"invoice_count"`
		PaidCount     int           `json:"paid_count"`
		Recent        []invoiceBody `json:"recent"`
		Monthly       []struct {
			Month   string `json:"month"`
			Revenue int64  `json:"revenue"`
		} `json:"monthly"`
	}](t, rec)

	assert.Equal(t, int64(1210_00), got.TotalRevenue)
	assert.Equal(t, int64(1210_00), got.PendingAmount)
	assert.Equal(t, 2, got.InvoiceCount)
	assert.Equal(t, 1, got.PaidCount)
	assert.Len(t, got.Recent, 2)
	require.Len(t, got.Monthly, 6)
	assert.Equal(t, int64(1210_00), got.Monthly[5].Revenue)
}
