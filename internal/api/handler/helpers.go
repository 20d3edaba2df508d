package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	mw "github.com/edvin/metering/internal/api/middleware"
	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
)

// writeServiceError maps a service error to its HTTP status. Internal errors
// are logged with the request logger and answered with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrBadRequest):
		response.WriteError(w, http.StatusBadRequest, clientMessage(err, core.ErrBadRequest))
	case errors.Is(err, core.ErrUnauthorized):
		response.WriteError(w, http.StatusUnauthorized, clientMessage(err, core.ErrUnauthorized))
	case errors.Is(err, core.ErrNotFound):
		response.WriteError(w, http.StatusNotFound, clientMessage(err, core.ErrNotFound))
	case errors.Is(err, core.ErrConflict):
		response.WriteError(w, http.StatusConflict, clientMessage(err, core.ErrConflict))
	case errors.Is(err, core.ErrNoContent):
		w.WriteHeader(http.StatusNoContent)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		response.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// clientMessage drops the error class prefix, leaving the detail.
func clientMessage(err, class error) string {
	msg := strings.TrimPrefix(err.Error(), class.Error()+": ")
	if msg == "" {
		return class.Error()
	}
	return msg
}

// tenantID returns the authenticated tenant or writes 401.
func tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mw.TenantID(r.Context())
	if id == "" {
		response.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return "", false
	}
	return id, true
}

// nextCursor returns the cursor for the page after items.
func nextCursor[T any](items []T, hasMore bool, id func(T) string) string {
	if !hasMore || len(items) == 0 {
		return ""
	}
	return id(items[len(items)-1])
}
