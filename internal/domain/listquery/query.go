package listquery

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	dateLayout = "2006-01-02"
)

var ErrInvalidDateRange = errors.New("expiry from date must not be after expiry to date")

// Query is the single logical list request handed to a fetcher.
type Query struct {
	Status     string     `json:"status,omitempty"`
	Search     string     `json:"search,omitempty"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	ExpiryFrom *time.Time `json:"expiryFrom,omitempty"`
	ExpiryTo   *time.Time `json:"expiryTo,omitempty"`
}

// Result mirrors the {items, total, pages} list envelope.
type Result[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewResult[T any](items []T, total, limit int) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{Items: items, Total: total, Pages: PageCount(total, limit)}
}

func PageCount(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// ValidateRange rejects from > to when both bounds are set. Equal bounds are valid.
func ValidateRange(from, to *time.Time) error {
	if from == nil || to == nil {
		return nil
	}
	if from.After(*to) {
		return ErrInvalidDateRange
	}
	return nil
}

func (q Query) Validate() error {
	return ValidateRange(q.ExpiryFrom, q.ExpiryTo)
}

// Normalize clamps page and limit and trims the search text.
func (q Query) Normalize(defaultLimit int) Query {
	if defaultLimit <= 0 {
		defaultLimit = DefaultPageSize
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Status = strings.TrimSpace(q.Status)
	return q
}

func (q Query) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// Values encodes the query as URL parameters; empty fields are omitted.
func (q Query) Values() url.Values {
	values := url.Values{}
	if q.Status != "" {
		values.Set("status", q.Status)
	}
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.ExpiryFrom != nil {
		values.Set("expiryFrom", q.ExpiryFrom.Format(dateLayout))
	}
	if q.ExpiryTo != nil {
		values.Set("expiryTo", q.ExpiryTo.Format(dateLayout))
	}
	return values
}

// FromValues is the inverse of Values. Malformed numbers fall back to defaults;
// malformed dates are reported.
func FromValues(values url.Values) (Query, error) {
	q := Query{
		Status: values.Get("status"),
		Search: values.Get("search"),
	}
	if raw := values.Get("page"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			q.Page = v
		}
	}
	if raw := values.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			q.Limit = v
		}
	}
	var errs []error
	if raw := strings.TrimSpace(values.Get("expiryFrom")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			errs = append(errs, errors.New("expiryFrom must be YYYY-MM-DD"))
		} else {
			q.ExpiryFrom = &parsed
		}
	}
	if raw := strings.TrimSpace(values.Get("expiryTo")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			errs = append(errs, errors.New("expiryTo must be YYYY-MM-DD"))
		} else {
			q.ExpiryTo = &parsed
		}
	}
	return q, errors.Join(errs...)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
