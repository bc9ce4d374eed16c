package publichandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"notifycsc/internal/domain/announcements"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/policy"
	"notifycsc/internal/platform/metrics"
	"notifycsc/internal/transport/http/api"
	"notifycsc/internal/transport/http/middleware"
	"notifycsc/internal/transport/http/shared"
)

type Lookup interface {
	Lookup(ctx context.Context, kind listquery.LookupType, value string) ([]policy.Summary, error)
}

type Tickers interface {
	ActiveTickers(ctx context.Context) ([]announcements.Announcement, error)
}

// Handler serves the unauthenticated endpoints. Lookup responses carry masked
// summaries only.
type Handler struct {
	Policies        Lookup
	Announcements   Tickers
	LookupPerMinute int
	Events          shared.Counter
}

func NewHandler(policies Lookup, tickers Tickers, lookupPerMinute int) *Handler {
	return &Handler{Policies: policies, Announcements: tickers, LookupPerMinute: lookupPerMinute}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	limit := h.LookupPerMinute
	if limit <= 0 {
		limit = 20
	}
	r.Route("/public", func(r chi.Router) {
		r.With(middleware.RateLimit(limit, time.Minute, middleware.WithKeyFunc(middleware.ClientIPKey))).
			Get("/lookup", h.handleLookup)
		r.Get("/tickers", h.handleTickers)
	})
}

type lookupResponse struct {
	Type    listquery.LookupType `json:"type"`
	Results []policy.Summary     `json:"results"`
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	v := shared.NewValidator()
	kind, ok := listquery.ParseLookupType(r.URL.Query().Get("type"))
	if !ok {
		v.Add("type", "must be vehicle or mobile")
	}
	value := strings.TrimSpace(r.URL.Query().Get("value"))
	switch kind {
	case listquery.LookupMobile:
		value = v.Mobile("value", value)
	case listquery.LookupVehicle:
		v.Required("value", value, "is required")
		v.MaxLength("value", value, 20)
		if normalized := policy.NormalizeVehicleNumber(value); value != "" && len(normalized) < 4 {
			v.Add("value", "must contain at least 4 characters")
		}
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	shared.Count(h.Events, metrics.PublicLookups)
	results, err := h.Policies.Lookup(r.Context(), kind, value)
	if errors.Is(err, policy.ErrInvalidLookup) {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "value", Reason: "is not valid for the lookup type"}})
		return
	}
	if err != nil {
		slog.Warn("public lookup failed", "type", kind, "err", err)
		api.Fail(w, http.StatusInternalServerError, "lookup_failed", "lookup failed", middleware.GetRequestID(r.Context()))
		return
	}
	if results == nil {
		results = []policy.Summary{}
	}
	api.Success(w, lookupResponse{Type: kind, Results: results}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleTickers(w http.ResponseWriter, r *http.Request) {
	items, err := h.Announcements.ActiveTickers(r.Context())
	if err != nil {
		slog.Warn("ticker list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "ticker_list_failed", "failed to load tickers", middleware.GetRequestID(r.Context()))
		return
	}
	if items == nil {
		items = []announcements.Announcement{}
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}
