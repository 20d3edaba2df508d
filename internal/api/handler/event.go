package handler

import (
	"net/http"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
)

// IdempotencyHeader carries the idempotency key when the body has none.
const IdempotencyHeader = "X-Idempotency-Key"

// Event handles usage event ingestion and listing.
type Event struct {
	svc *core.EventService
}

// NewEvent creates a new Event handler.
func NewEvent(svc *core.EventService) *Event {
	return &Event{svc: svc}
}

// Ingest records one usage event. New events answer 202; a repeated
// idempotency key answers 200 with the original id.
func (h *Event) Ingest(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req request.IngestEvent
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get(IdempotencyHeader)
	}
	if len(key) > 255 {
		response.WriteError(w, http.StatusBadRequest, "idempotency key must be at most 255 characters")
		return
	}

	res, err := h.svc.Ingest(r.Context(), tid, core.EventInput{
		CustomerID:     req.CustomerID,
		EventName:      req.EventName,
		Properties:     req.Properties,
		IdempotencyKey: key,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusAccepted
	if res.Duplicate {
		status = http.StatusOK
	}
	response.WriteJSON(w, status, res)
}

// List lists the tenant's recent events. Supports status and customer_id
// filters.
func (h *Event) List(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	params := request.ParseListParams(r)
	switch params.Status {
	case "", model.EventPending, model.EventCounted, model.EventUnmatched:
	default:
		response.WriteError(w, http.StatusBadRequest, "status must be pending, counted or unmatched")
		return
	}

	events, hasMore, err := h.svc.List(r.Context(), tid, params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WritePaginated(w, http.StatusOK, events, nextCursor(events, hasMore, func(e model.Event) string { return e.ID }), hasMore)
}
