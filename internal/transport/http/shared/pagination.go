package shared

import (
	"net/http"
	"strconv"
)

type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset from the query. Malformed values are recorded
// on v so the listing fails with 422; a limit above maxLimit is clamped.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int, v *Validator) Pagination {
	page := Pagination{Limit: defaultLimit}
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			v.Add("limit", "must be a positive integer")
		} else {
			page.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			v.Add("offset", "must be zero or a positive integer")
		} else {
			page.Offset = n
		}
	}
	if maxLimit > 0 && page.Limit > maxLimit {
		page.Limit = maxLimit
	}
	return page
}

// WriteHeaders exposes the unpaged total and the applied window.
func (p Pagination) WriteHeaders(w http.ResponseWriter, total int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	w.Header().Set("X-Limit", strconv.Itoa(p.Limit))
	w.Header().Set("X-Offset", strconv.Itoa(p.Offset))
}
