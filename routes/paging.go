package routes

import (
	"net/http"
	"strconv"
)

type page struct {
	limit  int
	offset int
}

// parsePage reads limit/offset query parameters, clamped to the
// configured maximum page size.
func parsePage(r *http.Request, maxPageSize int) page {
	p := page{limit: maxPageSize}

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.limit = n
		}
	}
	if p.limit > maxPageSize {
		p.limit = maxPageSize
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.offset = n
		}
	}
	return p
}
