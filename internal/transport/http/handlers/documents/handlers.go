package documentshandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"notifycsc/internal/domain/audit"
	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/documents"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/platform/metrics"
	"notifycsc/internal/platform/storage"
	"notifycsc/internal/transport/http/api"
	"notifycsc/internal/transport/http/middleware"
	"notifycsc/internal/transport/http/shared"
)

const multipartMemory = 8 << 20

type Service interface {
	ListCategories(ctx context.Context) ([]documents.Category, error)
	CreateCategory(ctx context.Context, name, description string) (documents.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	Upload(ctx context.Context, uploader documents.Viewer, in documents.UploadInput, body io.Reader) (documents.Document, error)
	Get(ctx context.Context, viewer documents.Viewer, id string) (documents.Document, error)
	List(ctx context.Context, viewer documents.Viewer, q listquery.Query, categoryID string) (listquery.Result[documents.Document], error)
	Approve(ctx context.Context, reviewerID, id string) (documents.Document, error)
	Reject(ctx context.Context, reviewerID, id, reason string) (documents.Document, error)
	Open(ctx context.Context, viewer documents.Viewer, id string) (documents.Download, error)
	Delete(ctx context.Context, viewer documents.Viewer, id string) (documents.Document, error)
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

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/document-categories", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermDocumentsRead, h.Perms)).Get("/", h.handleListCategories)
		r.With(middleware.RequirePermission(auth.PermCategoriesWrite, h.Perms)).Post("/", h.handleCreateCategory)
		r.With(middleware.RequirePermission(auth.PermCategoriesWrite, h.Perms)).Delete("/{categoryID}", h.handleDeleteCategory)
	})
	r.Route("/documents", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermDocumentsRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermDocumentsUpload, h.Perms)).Post("/", h.handleUpload)
		r.Route("/{documentID}", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermDocumentsRead, h.Perms)).Get("/", h.handleGet)
			r.With(middleware.RequirePermission(auth.PermDocumentsRead, h.Perms)).Get("/download", h.handleDownload)
			r.With(middleware.RequirePermission(auth.PermDocumentsUpload, h.Perms)).Delete("/", h.handleDelete)
			r.With(middleware.RequirePermission(auth.PermDocumentsReview, h.Perms)).Post("/approve", h.handleApprove)
			r.With(middleware.RequirePermission(auth.PermDocumentsReview, h.Perms)).Post("/reject", h.handleReject)
		})
	})
}

// viewer derives document visibility from the caller's role. Staff and admins
// review; VLE operators see approved files plus their own uploads.
func viewer(r *http.Request) (documents.Viewer, string) {
	user, _ := middleware.GetUser(r.Context())
	return documents.Viewer{UserID: user.UserID, Reviewer: user.IsStaff()}, user.UserID
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.ListCategories(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "category_list_failed", "failed to list categories", middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	v.MaxLength("name", payload.Name, 80)
	v.MaxLength("description", payload.Description, 500)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	category, err := h.Service.CreateCategory(r.Context(), payload.Name, payload.Description)
	if err != nil {
		h.fail(w, r, err, "category_create_failed", "failed to create category")
		return
	}
	h.record(r.Context(), user.UserID, audit.ActionCategoryCreate, "document_category", category.ID, nil, category)
	api.Created(w, category, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "categoryID")
	if err := h.Service.DeleteCategory(r.Context(), id); err != nil {
		h.fail(w, r, err, "category_delete_failed", "failed to delete category")
		return
	}
	api.Success(w, map[string]string{"id": id, "status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	v := shared.NewValidator()
	q := shared.ParseListQuery(r, listquery.DefaultPageSize, v)
	if q.Status != "" {
		if _, ok := documents.ParseStatus(q.Status); !ok {
			v.Add("status", "must be pending, approved or rejected")
		}
	}
	v.MaxLength("search", q.Search, 100)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	who, _ := viewer(r)
	result, err := h.Service.List(r.Context(), who, q, strings.TrimSpace(r.URL.Query().Get("categoryId")))
	if err != nil {
		h.fail(w, r, err, "document_list_failed", "failed to list documents")
		return
	}
	shared.WriteList(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	who, actorID := viewer(r)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "file exceeds the upload limit", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid multipart payload", middleware.GetRequestID(r.Context()))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("multipart cleanup failed", "err", err)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "file", Reason: "is required"}})
		return
	}
	defer file.Close()

	in := documents.UploadInput{
		CategoryID:  strings.TrimSpace(r.FormValue("categoryId")),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	v := shared.NewValidator()
	v.Required("title", in.Title, "is required")
	v.MaxLength("title", in.Title, 200)
	v.MaxLength("description", in.Description, 2000)
	if header.Size == 0 {
		v.Add("file", "must not be empty")
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	doc, err := h.Service.Upload(r.Context(), who, in, file)
	if err != nil {
		h.fail(w, r, err, "document_upload_failed", "failed to upload document")
		return
	}
	shared.Count(h.Events, metrics.DocumentsUploaded)
	h.record(r.Context(), actorID, audit.ActionDocumentUpload, "document", doc.ID, nil, doc)
	api.Created(w, doc, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	who, _ := viewer(r)
	doc, err := h.Service.Get(r.Context(), who, chi.URLParam(r, "documentID"))
	if err != nil {
		h.fail(w, r, err, "document_fetch_failed", "failed to load document")
		return
	}
	api.Success(w, doc, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	who, _ := viewer(r)
	download, err := h.Service.Open(r.Context(), who, chi.URLParam(r, "documentID"))
	if err != nil {
		h.fail(w, r, err, "document_download_failed", "failed to open document")
		return
	}
	if download.URL != "" {
		http.Redirect(w, r, download.URL, http.StatusFound)
		return
	}
	defer download.Body.Close()

	doc := download.Document
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", storage.ContentDisposition(doc.FileName))
	if doc.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, download.Body); err != nil {
		slog.Warn("document stream failed", "documentId", doc.ID, "err", err)
	}
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	_, actorID := viewer(r)
	id := chi.URLParam(r, "documentID")
	doc, err := h.Service.Approve(r.Context(), actorID, id)
	if err != nil {
		h.fail(w, r, err, "document_review_failed", "failed to approve document")
		return
	}
	shared.Count(h.Events, metrics.DocumentsReviewed)
	h.record(r.Context(), actorID, audit.ActionDocumentApprove, "document", id, nil, map[string]any{"status": doc.Status})
	api.Success(w, doc, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	_, actorID := viewer(r)
	id := chi.URLParam(r, "documentID")
	var payload rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	v.Required("reason", payload.Reason, "is required")
	v.MaxLength("reason", payload.Reason, 500)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	doc, err := h.Service.Reject(r.Context(), actorID, id, payload.Reason)
	if err != nil {
		h.fail(w, r, err, "document_review_failed", "failed to reject document")
		return
	}
	shared.Count(h.Events, metrics.DocumentsReviewed)
	h.record(r.Context(), actorID, audit.ActionDocumentReject, "document", id, nil, map[string]any{"status": doc.Status, "reason": doc.RejectionReason})
	api.Success(w, doc, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	who, actorID := viewer(r)
	id := chi.URLParam(r, "documentID")
	doc, err := h.Service.Delete(r.Context(), who, id)
	if err != nil {
		h.fail(w, r, err, "document_delete_failed", "failed to delete document")
		return
	}
	h.record(r.Context(), actorID, audit.ActionDocumentDelete, "document", id, doc, nil)
	api.Success(w, map[string]string{"id": id, "status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, documents.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "document not found", reqID)
	case errors.Is(err, documents.ErrCategoryNotFound):
		api.Fail(w, http.StatusNotFound, "category_not_found", err.Error(), reqID)
	case errors.Is(err, documents.ErrDuplicateCategory):
		api.Fail(w, http.StatusConflict, "duplicate_category", err.Error(), reqID)
	case errors.Is(err, documents.ErrAlreadyReviewed):
		api.Fail(w, http.StatusConflict, "already_reviewed", err.Error(), reqID)
	case errors.Is(err, documents.ErrReasonRequired):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "reason", Reason: "is required"}})
	case errors.Is(err, documents.ErrEmptyFile):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "file", Reason: "must not be empty"}})
	case errors.Is(err, documents.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
	default:
		slog.Warn(code, "err", err)
		api.Fail(w, http.StatusInternalServerError, code, message, reqID)
	}
}

func (h *Handler) record(ctx context.Context, actorID, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(ctx, actorID, action, entityType, entityID, before, after); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}
