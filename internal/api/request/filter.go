package request

import "net/http"

// ListParams holds the common list query parameters.
type ListParams struct {
	Limit      int
	Cursor     string
	Status     string
	CustomerID string
}

// ParseListParams extracts list parameters from the query string.
func ParseListParams(r *http.Request) ListParams {
	pg := ParsePagination(r)
	q := r.URL.Query()
	return ListParams{
		Limit:      pg.Limit,
		Cursor:     pg.Cursor,
		Status:     q.Get("status"),
		CustomerID: q.Get("customer_id"),
	}
}
