package request

import (
	"net/http"
	"strconv"
	"strings"
)

// Pagination is a keyset page request: at most Limit rows with ids after
// Cursor.
type Pagination struct {
	Limit  int
	Cursor string
}

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ParsePagination reads limit and cursor from the query string. A missing,
// malformed or non-positive limit falls back to DefaultLimit; larger values
// are clamped to MaxLimit.
func ParsePagination(r *http.Request) Pagination {
	q := r.URL.Query()
	return Pagination{
		Limit:  clampLimit(q.Get("limit")),
		Cursor: strings.TrimSpace(q.Get("cursor")),
	}
}

func clampLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil, n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}
