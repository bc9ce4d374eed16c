package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/jonboulle/clockwork"

	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/notifications"
	"notifycsc/internal/platform/storage"
)

const keyPrefix = "documents"

type Notifier interface {
	Create(ctx context.Context, userID, ntype, title, body string) error
	Broadcast(ctx context.Context, userIDs []string, ntype, title, body string) int
}

// Directory resolves who should hear about new uploads.
type Directory interface {
	UserIDsByRole(ctx context.Context, roles ...auth.Role) ([]string, error)
}

type Service struct {
	store     StoreAPI
	objects   storage.Store
	notifier  Notifier
	directory Directory
	clock     clockwork.Clock
}

func NewService(store StoreAPI, objects storage.Store, notifier Notifier, directory Directory, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: store, objects: objects, notifier: notifier, directory: directory, clock: clock}
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, name, description string) (Category, error) {
	return s.store.CreateCategory(ctx, strings.Join(strings.Fields(name), " "), strings.TrimSpace(description))
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.store.DeleteCategory(ctx, id)
}

// Upload stores the file, then the row. Reviewer uploads are approved on the
// spot; everyone else's wait in pending and reviewers are notified.
func (s *Service) Upload(ctx context.Context, uploader Viewer, in UploadInput, body io.Reader) (Document, error) {
	if in.Size <= 0 {
		return Document{}, ErrEmptyFile
	}
	if in.CategoryID != "" {
		ok, err := s.store.CategoryExists(ctx, in.CategoryID)
		if err != nil {
			return Document{}, err
		}
		if !ok {
			return Document{}, ErrCategoryNotFound
		}
	}

	fileName := cleanFileName(in.FileName)
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := storage.NewKey(keyPrefix, fileName)
	if err := s.objects.Put(ctx, key, body, in.Size, contentType); err != nil {
		return Document{}, fmt.Errorf("store upload: %w", err)
	}

	doc := Document{
		CategoryID:  in.CategoryID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   in.Size,
		StorageKey:  key,
		Status:      StatusPending,
		UploadedBy:  uploader.UserID,
	}
	if uploader.Reviewer {
		now := s.clock.Now()
		doc.Status = StatusApproved
		doc.ReviewedBy = uploader.UserID
		doc.ReviewedAt = &now
	}

	created, err := s.store.Create(ctx, doc)
	if err != nil {
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			slog.Warn("orphaned upload cleanup failed", "key", key, "err", delErr)
		}
		return Document{}, err
	}

	if created.Status == StatusPending {
		s.notifyReviewers(ctx, created)
	}
	return created, nil
}

func (s *Service) notifyReviewers(ctx context.Context, doc Document) {
	if s.notifier == nil || s.directory == nil {
		return
	}
	reviewers, err := s.directory.UserIDsByRole(ctx, auth.RoleAdmin, auth.RoleStaff)
	if err != nil {
		slog.Warn("reviewer lookup failed", "documentId", doc.ID, "err", err)
		return
	}
	s.notifier.Broadcast(ctx, reviewers, notifications.TypeDocumentSubmitted,
		"Document awaiting review", fmt.Sprintf("%q was uploaded and needs approval.", doc.Title))
}

func (s *Service) Get(ctx context.Context, viewer Viewer, id string) (Document, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if !visible(viewer, doc) {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func visible(viewer Viewer, doc Document) bool {
	return viewer.Reviewer || doc.Status == StatusApproved || (viewer.UserID != "" && doc.UploadedBy == viewer.UserID)
}

func (s *Service) List(ctx context.Context, viewer Viewer, q listquery.Query, categoryID string) (listquery.Result[Document], error) {
	q = q.Normalize(listquery.DefaultPageSize)
	filter := Filter{
		Search:     q.Search,
		CategoryID: strings.TrimSpace(categoryID),
		Viewer:     viewer,
		Limit:      q.Limit,
		Offset:     q.Offset(),
	}
	if q.Status != "" {
		status, ok := ParseStatus(q.Status)
		if !ok {
			return listquery.Result[Document]{}, fmt.Errorf("unknown document status %q", q.Status)
		}
		filter.Status = status
	}
	docs, total, err := s.store.List(ctx, filter)
	if err != nil {
		return listquery.Result[Document]{}, err
	}
	return listquery.NewResult(docs, total, q.Limit), nil
}

func (s *Service) Approve(ctx context.Context, reviewerID, id string) (Document, error) {
	doc, err := s.store.Review(ctx, id, reviewerID, StatusApproved, "")
	if err != nil {
		return Document{}, err
	}
	s.notifyUploader(ctx, doc, notifications.TypeDocumentApproved, "Document approved",
		fmt.Sprintf("%q is now available in the library.", doc.Title))
	return doc, nil
}

func (s *Service) Reject(ctx context.Context, reviewerID, id, reason string) (Document, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Document{}, ErrReasonRequired
	}
	doc, err := s.store.Review(ctx, id, reviewerID, StatusRejected, reason)
	if err != nil {
		return Document{}, err
	}
	s.notifyUploader(ctx, doc, notifications.TypeDocumentRejected, "Document rejected",
		fmt.Sprintf("%q was rejected: %s", doc.Title, reason))
	return doc, nil
}

func (s *Service) notifyUploader(ctx context.Context, doc Document, ntype, title, body string) {
	if s.notifier == nil || doc.UploadedBy == "" || doc.UploadedBy == doc.ReviewedBy {
		return
	}
	if err := s.notifier.Create(ctx, doc.UploadedBy, ntype, title, body); err != nil {
		slog.Warn("document notification failed", "documentId", doc.ID, "err", err)
	}
}

// Open returns a presigned URL when the backend offers one, otherwise a stream.
func (s *Service) Open(ctx context.Context, viewer Viewer, id string) (Download, error) {
	doc, err := s.Get(ctx, viewer, id)
	if err != nil {
		return Download{}, err
	}
	url, err := s.objects.DownloadURL(ctx, doc.StorageKey, doc.FileName)
	if err != nil {
		return Download{}, err
	}
	if url != "" {
		return Download{Document: doc, URL: url}, nil
	}
	body, err := s.objects.Open(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return Download{}, ErrNotFound
		}
		return Download{}, err
	}
	return Download{Document: doc, Body: body}, nil
}

// Delete is open to reviewers for any document and to uploaders for their
// own pending or rejected ones.
func (s *Service) Delete(ctx context.Context, viewer Viewer, id string) (Document, error) {
	doc, err := s.Get(ctx, viewer, id)
	if err != nil {
		return Document{}, err
	}
	if !viewer.Reviewer && (doc.UploadedBy != viewer.UserID || doc.Status == StatusApproved) {
		return Document{}, ErrForbidden
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return Document{}, err
	}
	if err := s.objects.Delete(ctx, doc.StorageKey); err != nil {
		slog.Warn("document object delete failed", "documentId", id, "key", doc.StorageKey, "err", err)
	}
	return doc, nil
}

func cleanFileName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return name
}
