package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
)

// Customer handles a tenant's end-customers and their usage reports.
type Customer struct {
	svc   *core.CustomerService
	usage *core.UsageService
}

// NewCustomer creates a new Customer handler.
func NewCustomer(svc *core.CustomerService, usage *core.UsageService) *Customer {
	return &Customer{svc: svc, usage: usage}
}

// Create registers a customer. Without an id one is generated.
func (h *Customer) Create(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req request.CreateCustomer
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	customer, err := h.svc.Create(r.Context(), tid, core.CustomerInput{
		ID:    req.ID,
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, customer)
}

// List lists the tenant's customers with cursor-based pagination.
func (h *Customer) List(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	customers, hasMore, err := h.svc.List(r.Context(), tid, request.ParseListParams(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WritePaginated(w, http.StatusOK, customers, nextCursor(customers, hasMore, func(c model.Customer) string { return c.ID }), hasMore)
}

// Get retrieves a customer.
func (h *Customer) Get(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	customer, err := h.svc.Get(r.Context(), tid, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, customer)
}

// Usage returns a customer's daily aggregates. Query: from, to (YYYY-MM-DD)
// and unbilled=true.
func (h *Customer) Usage(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	uq, err := request.ParseUsageQuery(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.svc.Get(r.Context(), tid, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	aggs, err := h.usage.ListAggregates(r.Context(), tid, id, core.UsageFilter{
		From:         uq.From,
		To:           uq.To,
		UnbilledOnly: uq.UnbilledOnly,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if aggs == nil {
		aggs = []model.UsageAggregate{}
	}
	response.WriteItems(w, http.StatusOK, aggs)
}
