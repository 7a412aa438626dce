package invoice

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/cryptofund/internal/http/auth"
	"github.com/MrJamesThe3rd/cryptofund/internal/invoice"
	"github.com/MrJamesThe3rd/cryptofund/internal/payment"
	"github.com/MrJamesThe3rd/cryptofund/internal/rates"
)

type Handler struct {
	invoices *invoice.Service
	payments *payment.Service
}

func NewHandler(invoices *invoice.Service, payments *payment.Service) *Handler {
	return &Handler{invoices: invoices, payments: payments}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
	r.Patch("/{id}/status", h.updateStatus)
	r.Post("/{id}/verify-payment", h.verifyPayment)
}

func (h *Handler) DashboardRoutes(r chi.Router) {
	r.Get("/stats", h.stats)
}

type partyRequest struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
}

type clientRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	TaxID   string `json:"tax_id"`
}

type itemRequest struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
}

type createInvoiceRequest struct {
	Issuer         partyRequest    `json:"issuer"`
	Client         clientRequest   `json:"client"`
	Items          []itemRequest   `json:"items"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	CryptoCurrency string          `json:"crypto_currency,omitempty"`
	WalletAddress  string          `json:"wallet_address,omitempty"`
	Note           string          `json:"note,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	items := make([]invoice.ItemParams, len(req.Items))
	for i, it := range req.Items {
		items[i] = invoice.ItemParams(it)
	}

	inv, err := h.invoices.Create(r.Context(), owner, invoice.CreateParams{
		Issuer:         invoice.Party(req.Issuer),
		Client:         invoice.Client(req.Client),
		Items:          items,
		TaxRate:        req.TaxRate,
		DueDate:        req.DueDate,
		CryptoCurrency: req.CryptoCurrency,
		WalletAddress:  req.WalletAddress,
		Note:           req.Note,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(inv, h.invoices.PaymentURI))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	filter := invoice.ListFilter{Search: r.URL.Query().Get("search")}

	if s := r.URL.Query().Get("status"); s != "" && s != "all" {
		status := invoice.Status(s)
		if !status.Valid() {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}

		filter.Status = &status
	}

	invoices, err := h.invoices.List(r.Context(), owner, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponseList(invoices, h.invoices.PaymentURI))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := target(w, r)
	if !ok {
		return
	}

	inv, err := h.invoices.Get(r.Context(), owner, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(inv, h.invoices.PaymentURI))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := target(w, r)
	if !ok {
		return
	}

	if err := h.invoices.Delete(r.Context(), owner, id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type updateStatusRequest struct {
	Status invoice.Status `json:"status"`
	TxHash string         `json:"tx_hash,omitempty"`
}

// updateStatus is the manual path. It records whatever the owner asserts,
// including a paid status without any transaction reference.
func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := target(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	inv, err := h.invoices.Transition(r.Context(), owner, id, req.Status, req.TxHash)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(inv, h.invoices.PaymentURI))
}

type verifyPaymentRequest struct {
	TxHash string `json:"tx_hash"`
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := target(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conf, err := h.payments.ConfirmPayment(r.Context(), owner, id, req.TxHash)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if !conf.Verified {
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, toConfirmationResponse(conf, h.invoices.PaymentURI))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	st, err := h.invoices.Stats(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStatsResponse(st, h.invoices.PaymentURI))
}

func target(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	owner, ok := auth.OwnerFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}

	return owner, id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, invoice.ErrValidation),
		errors.Is(err, rates.ErrUnknownCurrency),
		errors.Is(err, payment.ErrMissingReference),
		errors.Is(err, payment.ErrInvalidReference),
		errors.Is(err, payment.ErrUnsupportedCurrency):
		return http.StatusBadRequest
	case errors.Is(err, invoice.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, invoice.ErrInvalidTransition),
		errors.Is(err, payment.ErrAlreadyPaid),
		errors.Is(err, payment.ErrReferenceInUse):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		http.Error(w, "internal error", status)

		return
	}

	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
