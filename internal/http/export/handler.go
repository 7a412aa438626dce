package export

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/cryptofund/internal/export"
	"github.com/MrJamesThe3rd/cryptofund/internal/http/auth"
	"github.com/MrJamesThe3rd/cryptofund/internal/invoice"
)

type Handler struct {
	svc *export.Service
}

func NewHandler(svc *export.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.metadata)
	r.Post("/download", h.download)
}

type exportRequest struct {
	StartDate *time.Time      `json:"start_date,omitempty"`
	EndDate   *time.Time      `json:"end_date,omitempty"`
	Status    *invoice.Status `json:"status,omitempty"`
}

type invoiceResponse struct {
	ID       uuid.UUID      `json:"id"`
	Number   string         `json:"number"`
	Client   string         `json:"client"`
	Total    int64          `json:"total"`
	Currency string         `json:"currency"`
	Status   invoice.Status `json:"status"`
	TxHash   *string        `json:"tx_hash,omitempty"`
}

type exportMetadataResponse struct {
	Invoices  []invoiceResponse `json:"invoices"`
	EmailBody string            `json:"email_body"`
}

func toInvoiceResponse(inv *invoice.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:       inv.ID,
		Number:   inv.Number,
		Client:   inv.Client.Name,
		Total:    inv.Total,
		Currency: inv.Currency,
		Status:   inv.Status,
		TxHash:   inv.TxHash,
	}
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) ([]*invoice.Invoice, bool) {
	owner, ok := auth.OwnerFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	if req.Status != nil && !req.Status.Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return nil, false
	}

	invoices, err := h.svc.Export(r.Context(), owner, export.Filter(req))
	if err != nil {
		slog.Error("export failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return nil, false
	}

	return invoices, true
}

func (h *Handler) metadata(w http.ResponseWriter, r *http.Request) {
	invoices, ok := h.export(w, r)
	if !ok {
		return
	}

	resp := exportMetadataResponse{
		Invoices:  make([]invoiceResponse, 0, len(invoices)),
		EmailBody: h.svc.Summary(invoices),
	}

	for _, inv := range invoices {
		resp.Invoices = append(resp.Invoices, toInvoiceResponse(inv))
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// download streams a zip holding invoices.csv and email_body.txt.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	invoices, ok := h.export(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"export_%s.zip\"", time.Now().Format("20060102")))

	zipWriter := zip.NewWriter(w)
	defer zipWriter.Close()

	csvFile, err := zipWriter.Create("invoices.csv")
	if err == nil {
		err = h.svc.WriteCSV(csvFile, invoices)
	}

	if err != nil {
		slog.Error("failed to write invoices.csv", "error", err)
		return
	}

	body, err := zipWriter.Create("email_body.txt")
	if err == nil {
		_, err = body.Write([]byte(h.svc.Summary(invoices)))
	}

	if err != nil {
		slog.Error("failed to write email_body.txt", "error", err)
	}
}
