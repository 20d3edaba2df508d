package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edvin/metering/internal/core"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"bad request", fmt.Errorf("%w: customer not found", core.ErrBadRequest), http.StatusBadRequest, "customer not found"},
		{"unauthorized", fmt.Errorf("%w: invalid API key", core.ErrUnauthorized), http.StatusUnauthorized, "invalid API key"},
		{"not found", fmt.Errorf("%w: invoice inv-1", core.ErrNotFound), http.StatusNotFound, "invoice inv-1"},
		{"conflict", fmt.Errorf("%w: invoice inv-1 is paid", core.ErrConflict), http.StatusConflict, "invoice inv-1 is paid"},
		{"bare class", core.ErrNotFound, http.StatusNotFound, "not found"},
		{"internal", fmt.Errorf("insert event: %w", errors.New("dial tcp 10.0.0.5:5432: connection refused")), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest("GET", "/", nil), tt.err)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.msg, errorMessage(rec))
			assert.NotContains(t, rec.Body.String(), "10.0.0.5")
		})
	}
}

func TestWriteServiceError_NoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, httptest.NewRequest("POST", "/", nil), fmt.Errorf("%w: nothing to bill", core.ErrNoContent))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestTenantID_Missing(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := tenantID(rec, httptest.NewRequest("GET", "/", nil))

	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNextCursor(t *testing.T) {
	id := func(s string) string { return s }
	assert.Equal(t, "b", nextCursor([]string{"a", "b"}, true, id))
	assert.Equal(t, "", nextCursor([]string{"a", "b"}, false, id))
	assert.Equal(t, "", nextCursor([]string{}, true, id))
}
