package request

import (
	"fmt"
	"net/http"
	"time"
)

// UsageQuery holds the query parameters of the usage report.
type UsageQuery struct {
	From         time.Time
	To           time.Time
	UnbilledOnly bool
}

// ParseUsageQuery reads from/to (YYYY-MM-DD, inclusive) and unbilled=true.
func ParseUsageQuery(r *http.Request) (UsageQuery, error) {
	var uq UsageQuery
	q := r.URL.Query()
	var err error
	if v := q.Get("from"); v != "" {
		if uq.From, err = time.Parse(time.DateOnly, v); err != nil {
			return uq, fmt.Errorf("invalid from date %q: expected YYYY-MM-DD", v)
		}
	}
	if v := q.Get("to"); v != "" {
		if uq.To, err = time.Parse(time.DateOnly, v); err != nil {
			return uq, fmt.Errorf("invalid to date %q: expected YYYY-MM-DD", v)
		}
	}
	if !uq.From.IsZero() && !uq.To.IsZero() && uq.To.Before(uq.From) {
		return uq, fmt.Errorf("to must not be before from")
	}
	uq.UnbilledOnly = q.Get("unbilled") == "true"
	return uq, nil
}
