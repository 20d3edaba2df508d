package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
)

// Product handles the product and price catalog.
type Product struct {
	svc *core.CatalogService
}

// NewProduct creates a new Product handler.
func NewProduct(svc *core.CatalogService) *Product {
	return &Product{svc: svc}
}

// Create creates a product and its per-unit price.
func (h *Product) Create(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req request.CreateProduct
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := h.svc.CreateProduct(r.Context(), tid, core.ProductInput{
		Name:            req.Name,
		EventNameMatch:  req.EventNameMatch,
		UnitAmountCents: *req.UnitAmountCents,
		Currency:        req.Currency,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, product)
}

// List lists the tenant's products with their prices.
func (h *Product) List(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	products, err := h.svc.ListProducts(r.Context(), tid)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteItems(w, http.StatusOK, products)
}

// Get retrieves a product with its price.
func (h *Product) Get(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := h.svc.GetProduct(r.Context(), tid, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, product)
}

// SetPrice replaces a product's unit amount for future invoices.
func (h *Product) SetPrice(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.SetPrice
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	price, err := h.svc.SetPrice(r.Context(), tid, id, *req.UnitAmountCents, req.Currency)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, price)
}
