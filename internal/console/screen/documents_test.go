package screen

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifycsc/internal/console/apiclient"
	"notifycsc/internal/domain/documents"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/toast"
)

type fakeDocuments struct {
	mu         sync.Mutex
	items      []documents.Document
	lists      int
	categories []string
	approved   []string
	rejected   map[string]string
	deleted    []string
	listErr    error
}

func (f *fakeDocuments) ListDocuments(_ context.Context, q listquery.Query, categoryID string) (listquery.Result[documents.Document], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	f.categories = append(f.categories, categoryID)
	if f.listErr != nil {
		return listquery.Result[documents.Document]{}, f.listErr
	}
	return listquery.NewResult(f.items, 42, q.Limit), nil
}

func (f *fakeDocuments) ApproveDocument(_ context.Context, id string) (documents.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, id)
	return documents.Document{ID: id, Status: documents.StatusApproved}, nil
}

func (f *fakeDocuments) RejectDocument(_ context.Context, id, reason string) (documents.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejected == nil {
		f.rejected = map[string]string{}
	}
	f.rejected[id] = reason
	return documents.Document{ID: id, Status: documents.StatusRejected}, nil
}

func (f *fakeDocuments) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeDocuments) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func sampleDocuments() []documents.Document {
	return []documents.Document{
		{ID: "d1", Title: "Vehicle RC copy", FileName: "rc_kl07ab1234.pdf", CategoryName: "Registration", UploadedBy: "asha", Status: documents.StatusPending},
		{ID: "d2", Title: "Insurance certificate", FileName: "policy_2026.pdf", CategoryName: "Insurance", UploadedBy: "biju", Status: documents.StatusApproved},
		{ID: "d3", Title: "Pollution certificate", FileName: "puc.jpg", CategoryName: "Emission", UploadedBy: "asha", Status: documents.StatusPending},
	}
}

func newDocumentScreen(t *testing.T, api *fakeDocuments, role string) (*DocumentList, *toast.Queue) {
	t.Helper()
	toasts := toast.NewQueue()
	t.Cleanup(toasts.Close)
	d := NewDocumentList(context.Background(), api, toasts, role, nil)
	t.Cleanup(d.Close)
	d.Load()
	d.Wait()
	return d, toasts
}

func TestFilterRefinesPageLocally(t *testing.T) {
	api := &fakeDocuments{items: sampleDocuments()}
	d, _ := newDocumentScreen(t, api, "staff")

	d.SetFilter("insurance")
	state := d.State()
	require.NotEmpty(t, state.Visible)
	assert.Equal(t, "d2", state.Visible[0].ID)
	assert.Len(t, state.Items, 3)
	assert.Equal(t, 42, state.Total, "refinement keeps the server total")
	assert.Equal(t, 1, api.listCount())

	d.SetFilter("")
	assert.Len(t, d.State().Visible, 3)
}

func TestCategoryChangeRefetchesFromFirstPage(t *testing.T) {
	api := &fakeDocuments{items: sampleDocuments()}
	d, _ := newDocumentScreen(t, api, "staff")

	d.SetPage(3)
	d.Wait()
	d.SetCategory("cat-ins")
	d.Wait()
	d.SetCategory("cat-ins")
	d.Wait()

	state := d.State()
	assert.Equal(t, 1, state.Query.Page)
	assert.Equal(t, "cat-ins", state.CategoryID)
	assert.Equal(t, []string{"", "", "cat-ins"}, api.categories)
}

func TestReviewActionsDependOnRoleAndStatus(t *testing.T) {
	docs := sampleDocuments()
	staff, _ := newDocumentScreen(t, &fakeDocuments{items: docs}, "staff")
	vle, _ := newDocumentScreen(t, &fakeDocuments{items: docs}, "vle")

	assert.True(t, staff.Actions(docs[0]).Approve)
	assert.False(t, staff.Actions(docs[1]).Approve, "approved documents are not reviewable")
	assert.False(t, vle.Actions(docs[0]).Approve)
	assert.True(t, vle.Actions(docs[0]).Delete)
}

func TestVLECannotApprove(t *testing.T) {
	api := &fakeDocuments{items: sampleDocuments()}
	d, toasts := newDocumentScreen(t, api, "vle")

	assert.ErrorIs(t, d.Approve(context.Background(), "d1"), ErrUnavailable)
	assert.Empty(t, api.approved)
	assert.Equal(t, 1, toasts.Len())
}

func TestReviewRefreshesList(t *testing.T) {
	api := &fakeDocuments{items: sampleDocuments()}
	d, toasts := newDocumentScreen(t, api, "admin")

	require.NoError(t, d.Approve(context.Background(), "d1"))
	require.NoError(t, d.Reject(context.Background(), "d3", "image unreadable"))
	require.NoError(t, d.Delete(context.Background(), "d2"))
	d.Wait()

	assert.Equal(t, []string{"d1"}, api.approved)
	assert.Equal(t, "image unreadable", api.rejected["d3"])
	assert.Equal(t, []string{"d2"}, api.deleted)
	assert.Equal(t, 4, api.listCount())
	assert.Equal(t, 3, toasts.Len())
	assert.ErrorIs(t, d.Approve(context.Background(), "missing"), ErrUnknownRow)
}

func TestDocumentListFailureIsStateNotToast(t *testing.T) {
	api := &fakeDocuments{items: sampleDocuments()}
	d, toasts := newDocumentScreen(t, api, "staff")

	api.mu.Lock()
	api.listErr = &apiclient.Error{Kind: apiclient.KindTransport, Err: errors.New("connection refused")}
	api.mu.Unlock()
	d.SetCategory("insurance")
	d.Wait()

	state := d.State()
	require.Error(t, state.Err)
	assert.Equal(t, apiclient.MessageNoResponse, apiclient.Message(state.Err))
	assert.Len(t, state.Items, 3)
	assert.Zero(t, toasts.Len())
}
