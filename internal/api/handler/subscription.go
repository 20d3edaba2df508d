package handler

import (
	"net/http"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
)

// Subscription exposes the tenant's own billing state.
type Subscription struct {
	tenants  *core.TenantService
	payments *core.PaymentService
}

// NewSubscription creates a new Subscription handler.
func NewSubscription(tenants *core.TenantService, payments *core.PaymentService) *Subscription {
	return &Subscription{tenants: tenants, payments: payments}
}

// Get returns whether billing is active and the current plan.
func (h *Subscription) Get(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	sub, err := h.tenants.Subscription(r.Context(), tid)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, sub)
}

// Checkout returns the PayFast URL that starts a monthly subscription.
func (h *Subscription) Checkout(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req request.Checkout
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	url, err := h.payments.Checkout(r.Context(), tid, core.CheckoutInput{
		PlanName:    req.PlanName,
		AmountCents: req.AmountCents,
		Email:       req.Email,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
}
