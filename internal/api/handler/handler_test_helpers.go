package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/metering/internal/api/middleware"
	"github.com/edvin/metering/internal/api/response"
)

const (
	testTenant = "tenant-1"
	validID    = "test-id-1"
)

// newRequest builds a JSON request. A nil body sends an empty one.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	return newRequestRaw(method, target, buf.String())
}

// newRequestRaw builds a request whose body is sent verbatim.
func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withChiURLParam sets a route parameter the way the chi router would.
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// withTenant authenticates the request as tenantID.
func withTenant(r *http.Request, tenantID string) *http.Request {
	return r.WithContext(mw.WithTenantID(r.Context(), tenantID))
}

// errorMessage returns the message of a JSON error response.
func errorMessage(rec *httptest.ResponseRecorder) string {
	var body response.ErrorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body.Error
}
