package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/render"
)

// Invoice handles invoice generation and retrieval.
type Invoice struct {
	svc       *core.InvoiceService
	generator *core.InvoiceGenerator
}

// NewInvoice creates a new Invoice handler.
func NewInvoice(svc *core.InvoiceService, generator *core.InvoiceGenerator) *Invoice {
	return &Invoice{svc: svc, generator: generator}
}

// Generate bills a customer's unbilled usage. 201 with the invoice, or 204
// when there is nothing to bill.
func (h *Invoice) Generate(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	customerID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.generator.Generate(r.Context(), tid, customerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, inv)
}

// List lists the tenant's invoices. Supports status and customer_id filters.
func (h *Invoice) List(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	params := request.ParseListParams(r)
	switch params.Status {
	case "", model.InvoiceOpen, model.InvoicePaid:
	default:
		response.WriteError(w, http.StatusBadRequest, "status must be open or paid")
		return
	}

	invoices, hasMore, err := h.svc.List(r.Context(), tid, params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WritePaginated(w, http.StatusOK, invoices, nextCursor(invoices, hasMore, func(i model.Invoice) string { return i.ID }), hasMore)
}

// Get retrieves an invoice with its line items.
func (h *Invoice) Get(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.svc.Get(r.Context(), tid, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, inv)
}

// Document streams the rendered invoice document.
func (h *Invoice) Document(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rc, info, err := h.svc.OpenDocument(r.Context(), tid, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = render.ContentTypePDF
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="invoice-`+id+`.pdf"`)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("invoice_id", id).Msg("invoice document stream interrupted")
	}
}

// MarkPaid records payment of an open invoice.
func (h *Invoice) MarkPaid(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.svc.MarkPaid(r.Context(), tid, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, inv)
}
