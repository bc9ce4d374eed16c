package documents

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/notifications"
	"notifycsc/internal/platform/storage"
)

type memStore struct {
	mu         sync.Mutex
	categories map[string]Category
	docs       map[string]Document
	seq        int
}

func newMemStore() *memStore {
	return &memStore{categories: map[string]Category{}, docs: map[string]Document{}}
}

func (m *memStore) next(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

func (m *memStore) ListCategories(context.Context) ([]Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) CreateCategory(_ context.Context, name, description string) (Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if strings.EqualFold(c.Name, name) {
			return Category{}, ErrDuplicateCategory
		}
	}
	c := Category{ID: m.next("c"), Name: name, Description: description}
	m.categories[c.ID] = c
	return c, nil
}

func (m *memStore) DeleteCategory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return ErrCategoryNotFound
	}
	delete(m.categories, id)
	return nil
}

func (m *memStore) CategoryExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.categories[id]
	return ok, nil
}

func (m *memStore) Create(_ context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.ID = m.next("d")
	doc.CreatedAt = time.Date(2026, 1, 1, 0, 0, m.seq, 0, time.UTC)
	m.docs[doc.ID] = doc
	return doc, nil
}

func (m *memStore) Get(_ context.Context, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (m *memStore) List(_ context.Context, filter Filter) ([]Document, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, doc := range m.docs {
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.CategoryID != "" && doc.CategoryID != filter.CategoryID {
			continue
		}
		if !visible(filter.Viewer, doc) {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (m *memStore) Review(_ context.Context, id, reviewerID string, status Status, reason string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	if doc.Status != StatusPending {
		return Document{}, ErrAlreadyReviewed
	}
	doc.Status = status
	doc.RejectionReason = reason
	doc.ReviewedBy = reviewerID
	m.docs[id] = doc
	return doc, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingNotifier) Create(_ context.Context, userID, ntype, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, userID+"|"+ntype)
	return nil
}

func (r *recordingNotifier) Broadcast(ctx context.Context, userIDs []string, ntype, title, body string) int {
	for _, id := range userIDs {
		_ = r.Create(ctx, id, ntype, title, body)
	}
	return len(userIDs)
}

type staticDirectory []string

func (d staticDirectory) UserIDsByRole(context.Context, ...auth.Role) ([]string, error) {
	return d, nil
}

var (
	admin    = Viewer{UserID: "admin-1", Reviewer: true}
	operator = Viewer{UserID: "vle-1"}
	other    = Viewer{UserID: "vle-2"}
)

func newTestService(t *testing.T) (*Service, *memStore, *recordingNotifier, *storage.Local) {
	t.Helper()
	objects, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	store := newMemStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, objects, notifier, staticDirectory{"admin-1"}, clockwork.NewFakeClock())
	return svc, store, notifier, objects
}

func upload(t *testing.T, svc *Service, who Viewer, title, content string) Document {
	t.Helper()
	doc, err := svc.Upload(context.Background(), who, UploadInput{
		Title:       title,
		FileName:    `C:\scans\` + strings.ToLower(title) + ".PDF",
		ContentType: "application/pdf",
		Size:        int64(len(content)),
	}, strings.NewReader(content))
	require.NoError(t, err)
	return doc
}

func TestOperatorUploadIsPendingAndNotifiesReviewers(t *testing.T) {
	t.Parallel()
	svc, _, notifier, _ := newTestService(t)

	doc := upload(t, svc, operator, "Aadhaar", "%PDF-1.4")
	assert.Equal(t, StatusPending, doc.Status)
	assert.Equal(t, "aadhaar.PDF", doc.FileName)
	assert.True(t, strings.HasPrefix(doc.StorageKey, "documents/"))
	assert.True(t, strings.HasSuffix(doc.StorageKey, ".pdf"))
	assert.Equal(t, []string{"admin-1|" + notifications.TypeDocumentSubmitted}, notifier.calls)
}

func TestReviewerUploadIsApproved(t *testing.T) {
	t.Parallel()
	svc, _, notifier, _ := newTestService(t)

	doc := upload(t, svc, admin, "Circular", "body")
	assert.Equal(t, StatusApproved, doc.Status)
	assert.Equal(t, "admin-1", doc.ReviewedBy)
	assert.NotNil(t, doc.ReviewedAt)
	assert.Empty(t, notifier.calls)
}

func TestUploadRejectsEmptyFileAndUnknownCategory(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newTestService(t)

	_, err := svc.Upload(context.Background(), operator, UploadInput{Title: "x", FileName: "x.pdf"}, strings.NewReader(""))
	require.ErrorIs(t, err, ErrEmptyFile)

	_, err = svc.Upload(context.Background(), operator, UploadInput{Title: "x", FileName: "x.pdf", Size: 1, CategoryID: "nope"}, strings.NewReader("x"))
	require.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestVisibilityAndReviewFlow(t *testing.T) {
	t.Parallel()
	svc, _, notifier, _ := newTestService(t)
	ctx := context.Background()

	doc := upload(t, svc, operator, "Form", "data")

	_, err := svc.Get(ctx, other, doc.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, operator, doc.ID)
	require.NoError(t, err)

	list, err := svc.List(ctx, other, listquery.Query{}, "")
	require.NoError(t, err)
	assert.Zero(t, list.Total)

	_, err = svc.Reject(ctx, admin.UserID, doc.ID, "   ")
	require.ErrorIs(t, err, ErrReasonRequired)

	approved, err := svc.Approve(ctx, admin.UserID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Contains(t, notifier.calls, "vle-1|"+notifications.TypeDocumentApproved)

	_, err = svc.Reject(ctx, admin.UserID, doc.ID, "blurry")
	require.ErrorIs(t, err, ErrAlreadyReviewed)

	list, err = svc.List(ctx, other, listquery.Query{Status: "APPROVED"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 1, list.Pages)
}

func TestOpenStreamsFromLocalStorage(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newTestService(t)

	doc := upload(t, svc, admin, "Guide", "hello library")
	dl, err := svc.Open(context.Background(), operator, doc.ID)
	require.NoError(t, err)
	require.Empty(t, dl.URL)
	defer dl.Body.Close()

	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello library", string(body))
}

func TestDeleteRules(t *testing.T) {
	t.Parallel()
	svc, _, _, objects := newTestService(t)
	ctx := context.Background()

	mine := upload(t, svc, operator, "Mine", "a")
	_, err := svc.Delete(ctx, other, mine.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Delete(ctx, operator, mine.ID)
	require.NoError(t, err)
	_, err = objects.Open(ctx, mine.StorageKey)
	require.ErrorIs(t, err, storage.ErrObjectNotFound)

	published := upload(t, svc, admin, "Published", "b")
	_, err = svc.Delete(ctx, operator, published.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Delete(ctx, admin, published.ID)
	require.NoError(t, err)
}

func TestCreateCategoryDuplicate(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newTestService(t)

	c, err := svc.CreateCategory(context.Background(), "  Vehicle   Forms ", "")
	require.NoError(t, err)
	assert.Equal(t, "Vehicle Forms", c.Name)

	_, err = svc.CreateCategory(context.Background(), "vehicle forms", "")
	require.ErrorIs(t, err, ErrDuplicateCategory)
}
