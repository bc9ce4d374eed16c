package announcementshandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"notifycsc/internal/domain/announcements"
	"notifycsc/internal/domain/audit"
	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/transport/http/api"
	"notifycsc/internal/transport/http/middleware"
	"notifycsc/internal/transport/http/shared"
)

type Service interface {
	Create(ctx context.Context, actorID string, in announcements.Input) (announcements.Announcement, error)
	Update(ctx context.Context, id string, in announcements.Input) (announcements.Announcement, error)
	Get(ctx context.Context, id string, includeDrafts bool) (announcements.Announcement, error)
	List(ctx context.Context, q listquery.Query, includeDrafts, tickerOnly bool) (listquery.Result[announcements.Announcement], error)
	Delete(ctx context.Context, id string) error
}

type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID string, before, after any) error
}

type Handler struct {
	Service Service
	Perms   middleware.PermissionStore
	Audit   Auditor
}

func NewHandler(service Service, perms middleware.PermissionStore, auditor Auditor) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditor}
}

type announcementRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	IsTicker  bool   `json:"isTicker"`
	Published bool   `json:"published"`
	StartsAt  string `json:"startsAt"`
	EndsAt    string `json:"endsAt"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/announcements", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAnnouncementsRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermAnnouncementsWrite, h.Perms)).Post("/", h.handleCreate)
		r.Route("/{announcementID}", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermAnnouncementsRead, h.Perms)).Get("/", h.handleGet)
			r.With(middleware.RequirePermission(auth.PermAnnouncementsWrite, h.Perms)).Put("/", h.handleUpdate)
			r.With(middleware.RequirePermission(auth.PermAnnouncementsWrite, h.Perms)).Delete("/", h.handleDelete)
		})
	})
}

// canSeeDrafts reports whether the caller may also see unpublished entries.
func (h *Handler) canSeeDrafts(r *http.Request) bool {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		return false
	}
	allowed, err := h.Perms.HasPermission(r.Context(), user.RoleID, auth.PermAnnouncementsWrite)
	if err != nil {
		slog.Warn("announcement permission check failed", "err", err)
		return false
	}
	return allowed
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	v := shared.NewValidator()
	q := shared.ParseListQuery(r, listquery.DefaultPageSize, v)
	v.MaxLength("search", q.Search, 100)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	tickerOnly, _ := strconv.ParseBool(r.URL.Query().Get("ticker"))

	result, err := h.Service.List(r.Context(), q, h.canSeeDrafts(r), tickerOnly)
	if err != nil {
		slog.Warn("announcement list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "announcement_list_failed", "failed to list announcements", middleware.GetRequestID(r.Context()))
		return
	}
	shared.WriteList(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.Service.Get(r.Context(), chi.URLParam(r, "announcementID"), h.canSeeDrafts(r))
	if err != nil {
		h.fail(w, r, err, "announcement_fetch_failed", "failed to load announcement")
		return
	}
	api.Success(w, item, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	item, err := h.Service.Create(r.Context(), user.UserID, in)
	if err != nil {
		h.fail(w, r, err, "announcement_create_failed", "failed to create announcement")
		return
	}
	h.record(r.Context(), user.UserID, audit.ActionAnnouncementCreate, item.ID, nil, item)
	api.Created(w, item, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "announcementID")
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	item, err := h.Service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err, "announcement_update_failed", "failed to update announcement")
		return
	}
	h.record(r.Context(), user.UserID, audit.ActionAnnouncementUpdate, id, nil, item)
	api.Success(w, item, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "announcementID")
	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err, "announcement_delete_failed", "failed to delete announcement")
		return
	}
	h.record(r.Context(), user.UserID, audit.ActionAnnouncementDelete, id, nil, nil)
	api.Success(w, map[string]string{"id": id, "status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func decodeInput(w http.ResponseWriter, r *http.Request) (announcements.Input, bool) {
	var payload announcementRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return announcements.Input{}, false
	}
	v := shared.NewValidator()
	v.Required("title", payload.Title, "is required")
	v.MaxLength("title", payload.Title, 200)
	v.Required("body", payload.Body, "is required")
	v.MaxLength("body", payload.Body, 20000)
	startsAt := optionalTime(v, "startsAt", payload.StartsAt)
	endsAt := optionalTime(v, "endsAt", payload.EndsAt)
	if startsAt != nil && endsAt != nil && !startsAt.Before(*endsAt) {
		v.Add("endsAt", "must be after startsAt")
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return announcements.Input{}, false
	}
	return announcements.Input{
		Title:        payload.Title,
		BodyMarkdown: payload.Body,
		IsTicker:     payload.IsTicker,
		Published:    payload.Published,
		StartsAt:     startsAt,
		EndsAt:       endsAt,
	}, true
}

func optionalTime(v *shared.Validator, field, raw string) *time.Time {
	if raw == "" {
		return nil
	}
	parsed, err := shared.ParseDate(raw)
	if err != nil {
		v.Add(field, "must be an RFC3339 timestamp or YYYY-MM-DD date")
		return nil
	}
	return &parsed
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, announcements.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "announcement not found", reqID)
	case errors.Is(err, announcements.ErrInvalidWindow):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "endsAt", Reason: "must be after startsAt"}})
	default:
		slog.Warn(code, "err", err)
		api.Fail(w, http.StatusInternalServerError, code, message, reqID)
	}
}

func (h *Handler) record(ctx context.Context, actorID, action, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(ctx, actorID, action, "announcement", entityID, before, after); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}
