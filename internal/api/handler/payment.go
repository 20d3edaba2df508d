package handler

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
)

// maxITNBody bounds the form body PayFast posts.
const maxITNBody = 64 << 10

// Payment receives payment provider callbacks.
type Payment struct {
	svc *core.PaymentService
}

// NewPayment creates a new Payment handler.
func NewPayment(svc *core.PaymentService) *Payment {
	return &Payment{svc: svc}
}

// PayFastITN handles an instant transaction notification. The raw body is
// passed through untouched since the signature covers the received order.
func (h *Payment) PayFastITN(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxITNBody))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	outcome, err := h.svc.HandleITN(r.Context(), string(body))
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("payfast itn rejected")
		writeServiceError(w, r, err)
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("tenant_id", outcome.TenantID).
		Str("payment_status", outcome.PaymentStatus).
		Bool("applied", outcome.Applied).
		Msg("payfast itn processed")
	response.WriteJSON(w, http.StatusOK, outcome)
}
