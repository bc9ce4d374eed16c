package shared

import (
	"net/http"
	"strconv"

	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/transport/http/api"
)

type Pagination struct {
	Limit  int
	Offset int
}

func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	limit := defaultLimit
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return Pagination{Limit: limit, Offset: offset}
}

// ParseListQuery reads {status, search, page, limit, expiryFrom, expiryTo}.
// Bad dates and inverted ranges are added to v.
func ParseListQuery(r *http.Request, defaultLimit int, v *Validator) listquery.Query {
	q, err := listquery.FromValues(r.URL.Query())
	if err != nil {
		v.Add("expiryFrom/expiryTo", "must be valid dates in YYYY-MM-DD format")
	}
	if err := q.Validate(); err != nil {
		v.DateOrder("expiryFrom", *q.ExpiryFrom, "expiryTo", *q.ExpiryTo)
	}
	return q.Normalize(defaultLimit)
}

// WriteList writes the {items, total, pages} envelope and mirrors the total
// in X-Total-Count.
func WriteList[T any](w http.ResponseWriter, result listquery.Result[T], requestID string) {
	w.Header().Set("X-Total-Count", strconv.Itoa(result.Total))
	api.Success(w, result, requestID)
}
