package supporthandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"notifycsc/internal/domain/audit"
	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/support"
	"notifycsc/internal/platform/metrics"
	"notifycsc/internal/transport/http/api"
	"notifycsc/internal/transport/http/middleware"
	"notifycsc/internal/transport/http/shared"
)

type Service interface {
	Create(ctx context.Context, actor support.Actor, subject, description string) (support.Ticket, error)
	List(ctx context.Context, actor support.Actor, q listquery.Query) (listquery.Result[support.Ticket], error)
	Get(ctx context.Context, actor support.Actor, id string) (support.Ticket, error)
	AddComment(ctx context.Context, actor support.Actor, id, body string) (support.Comment, error)
	ChangeStatus(ctx context.Context, actor support.Actor, id string, to support.Status) (support.Ticket, error)
}

type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID string, before, after any) error
}

type Handler struct {
	Service Service
	Perms   middleware.PermissionStore
	Audit   Auditor
	Events  shared.Counter
}

func NewHandler(service Service, perms middleware.PermissionStore, auditor Auditor) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditor}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tickets", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermSupportUse, h.Perms))
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Route("/{ticketID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/comments", h.handleComment)
			r.Put("/status", h.handleStatus)
		})
	})
}

func actor(r *http.Request) support.Actor {
	user, _ := middleware.GetUser(r.Context())
	return support.Actor{UserID: user.UserID, Staff: user.IsStaff()}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	v := shared.NewValidator()
	q := shared.ParseListQuery(r, listquery.DefaultPageSize, v)
	if q.Status != "" {
		if _, ok := support.ParseStatus(q.Status); !ok {
			v.Add("status", "must be one of open, in_progress, resolved, closed")
		}
	}
	v.MaxLength("search", q.Search, 100)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	result, err := h.Service.List(r.Context(), actor(r), q)
	if err != nil {
		h.fail(w, r, err, "ticket_list_failed", "failed to list tickets")
		return
	}
	shared.WriteList(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Subject     string `json:"subject"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	v.Required("subject", payload.Subject, "is required")
	v.MaxLength("subject", payload.Subject, 200)
	v.Required("description", payload.Description, "is required")
	v.MaxLength("description", payload.Description, 5000)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	caller := actor(r)
	ticket, err := h.Service.Create(r.Context(), caller, payload.Subject, payload.Description)
	if err != nil {
		h.fail(w, r, err, "ticket_create_failed", "failed to create ticket")
		return
	}
	shared.Count(h.Events, metrics.TicketsOpened)
	h.record(r.Context(), caller.UserID, audit.ActionTicketCreate, ticket.ID, nil, ticket)
	api.Created(w, ticket, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Service.Get(r.Context(), actor(r), chi.URLParam(r, "ticketID"))
	if err != nil {
		h.fail(w, r, err, "ticket_fetch_failed", "failed to load ticket")
		return
	}
	api.Success(w, ticket, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleComment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	v.Required("body", payload.Body, "is required")
	v.MaxLength("body", payload.Body, 5000)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	comment, err := h.Service.AddComment(r.Context(), actor(r), chi.URLParam(r, "ticketID"), payload.Body)
	if err != nil {
		h.fail(w, r, err, "ticket_comment_failed", "failed to add comment")
		return
	}
	api.Created(w, comment, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	status, ok := support.ParseStatus(payload.Status)
	if !ok {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "status", Reason: "must be one of open, in_progress, resolved, closed"}})
		return
	}

	caller := actor(r)
	id := chi.URLParam(r, "ticketID")
	ticket, err := h.Service.ChangeStatus(r.Context(), caller, id, status)
	if err != nil {
		h.fail(w, r, err, "ticket_status_failed", "failed to change ticket status")
		return
	}
	h.record(r.Context(), caller.UserID, audit.ActionTicketStatus, id, nil, map[string]any{"status": ticket.Status})
	api.Success(w, ticket, middleware.GetRequestID(r.Context()))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, support.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "ticket not found", reqID)
	case errors.Is(err, support.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", support.ErrForbidden.Error(), reqID)
	case errors.Is(err, support.ErrTicketClosed):
		api.Fail(w, http.StatusConflict, "ticket_closed", support.ErrTicketClosed.Error(), reqID)
	case errors.Is(err, support.ErrInvalidTransition):
		api.Fail(w, http.StatusConflict, "invalid_transition", err.Error(), reqID)
	case errors.Is(err, support.ErrInvalidStatus):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "status", Reason: "unknown status"}})
	default:
		slog.Warn(code, "err", err)
		api.Fail(w, http.StatusInternalServerError, code, message, reqID)
	}
}

func (h *Handler) record(ctx context.Context, actorID, action, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(ctx, actorID, action, "ticket", entityID, before, after); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}
