package response

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the envelope of every non-2xx JSON response.
type ErrorBody struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// Items wraps an unpaginated list.
type Items[T any] struct {
	Items []T `json:"items"`
}

// Page wraps one page of a cursor-paginated list.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// WriteItems writes a full list. An empty list is rendered as [] rather
// than null.
func WriteItems[T any](w http.ResponseWriter, status int, items []T) {
	if items == nil {
		items = []T{}
	}
	WriteJSON(w, status, Items[T]{Items: items})
}

// WritePaginated writes one page of a list with its continuation cursor.
func WritePaginated[T any](w http.ResponseWriter, status int, items []T, nextCursor string, hasMore bool) {
	if items == nil {
		items = []T{}
	}
	WriteJSON(w, status, Page[T]{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	})
}
