package screen

import (
	"context"
	"sync"

	"notifycsc/internal/console/apiclient"
	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/documents"
	"notifycsc/internal/domain/fuzzy"
	"notifycsc/internal/domain/listquery"
)

type DocumentAPI interface {
	ListDocuments(ctx context.Context, q listquery.Query, categoryID string) (listquery.Result[documents.Document], error)
	ApproveDocument(ctx context.Context, id string) (documents.Document, error)
	RejectDocument(ctx context.Context, id, reason string) (documents.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

type DocumentState struct {
	Query      listquery.Query
	CategoryID string
	// Filter refines the fetched page locally; Total and Pages stay the server's.
	Filter  string
	Items   []documents.Document
	Visible []documents.Document
	Total   int
	Pages   int
	Loading bool
	Err     error
}

type DocumentActions struct {
	Approve  bool
	Reject   bool
	Delete   bool
	InFlight bool
}

var documentRefiner = fuzzy.NewRefiner(fuzzy.DefaultThreshold,
	fuzzy.Field[documents.Document]{Name: "title", Weight: 3, Value: func(d documents.Document) string { return d.Title }},
	fuzzy.Field[documents.Document]{Name: "fileName", Weight: 2, Value: func(d documents.Document) string { return d.FileName }},
	fuzzy.Field[documents.Document]{Name: "categoryName", Weight: 1, Value: func(d documents.Document) string { return d.CategoryName }},
	fuzzy.Field[documents.Document]{Name: "uploadedBy", Weight: 1, Value: func(d documents.Document) string { return d.UploadedBy }},
)

// DocumentList is the document review screen.
type DocumentList struct {
	ctx      context.Context
	api      DocumentAPI
	notify   Notifier
	role     auth.Role
	builder  *listquery.Builder
	listener func(DocumentState)

	acting  guard
	fetches inflight

	mu       sync.Mutex
	category string
	state    DocumentState
}

// NewDocumentList builds the screen for a user with the given role name.
func NewDocumentList(ctx context.Context, api DocumentAPI, notify Notifier, roleName string, listener func(DocumentState), opts ...Option) *DocumentList {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	role, _ := auth.ParseRole(roleName)
	d := &DocumentList{ctx: ctx, api: api, notify: notify, role: role, listener: listener}

	statuses := make([]string, 0, len(documents.Statuses))
	for _, status := range documents.Statuses {
		statuses = append(statuses, string(status))
	}
	bopts := append(builderOptions(s), listquery.WithStatuses(statuses...))
	d.builder = listquery.NewBuilder(s.pageSize, d.fetch, bopts...)
	return d
}

func (d *DocumentList) Load()                { d.builder.Refresh() }
func (d *DocumentList) SetSearch(raw string) { d.builder.SetSearch(raw) }
func (d *DocumentList) SetPage(page int)     { d.builder.SetPage(page) }
func (d *DocumentList) Wait()                { d.fetches.wait() }
func (d *DocumentList) Close()               { d.builder.Close() }

func (d *DocumentList) SetStatus(status string) error {
	return d.builder.SetStatus(status)
}

// Restore replaces every filter, including the category, and fetches once.
func (d *DocumentList) Restore(q listquery.Query, categoryID string) error {
	d.mu.Lock()
	previous := d.category
	d.category = categoryID
	d.mu.Unlock()
	if err := d.builder.Restore(q); err != nil {
		d.mu.Lock()
		d.category = previous
		d.mu.Unlock()
		return err
	}
	return nil
}

// SetCategory narrows the list to one category and returns to page 1.
func (d *DocumentList) SetCategory(id string) {
	d.mu.Lock()
	if id == d.category {
		d.mu.Unlock()
		return
	}
	d.category = id
	d.mu.Unlock()
	if d.builder.Query().Page != 1 {
		d.builder.SetPage(1)
		return
	}
	d.builder.Refresh()
}

// SetFilter re-ranks the current page without fetching.
func (d *DocumentList) SetFilter(text string) {
	d.mu.Lock()
	d.state.Filter = text
	d.state.Visible = documentRefiner.Refine(d.state.Items, text)
	d.mu.Unlock()
	d.emit()
}

func (d *DocumentList) State() DocumentState {
	d.mu.Lock()
	defer d.mu.Unlock()
	state := d.state
	state.Items = append([]documents.Document(nil), d.state.Items...)
	state.Visible = append([]documents.Document(nil), d.state.Visible...)
	return state
}

// Actions reports which row controls the current role may use. Review applies
// to pending documents only.
func (d *DocumentList) Actions(doc documents.Document) DocumentActions {
	review := d.role.Allows(auth.PermDocumentsReview) && doc.Status == documents.StatusPending
	return DocumentActions{
		Approve:  review,
		Reject:   review,
		Delete:   d.role.Allows(auth.PermDocumentsUpload),
		InFlight: d.acting.busy(doc.ID),
	}
}

func (d *DocumentList) Approve(ctx context.Context, id string) error {
	return d.act(id, func(a DocumentActions) bool { return a.Approve }, func() error {
		_, err := d.api.ApproveDocument(ctx, id)
		return err
	}, "Document approved")
}

func (d *DocumentList) Reject(ctx context.Context, id, reason string) error {
	return d.act(id, func(a DocumentActions) bool { return a.Reject }, func() error {
		_, err := d.api.RejectDocument(ctx, id, reason)
		return err
	}, "Document rejected")
}

func (d *DocumentList) Delete(ctx context.Context, id string) error {
	return d.act(id, func(a DocumentActions) bool { return a.Delete }, func() error {
		return d.api.DeleteDocument(ctx, id)
	}, "Document deleted")
}

func (d *DocumentList) act(id string, allowed func(DocumentActions) bool, call func() error, done string) error {
	doc, ok := d.row(id)
	if !ok {
		return ErrUnknownRow
	}
	if !allowed(d.Actions(doc)) {
		d.notify.Error(apiclient.MessageAccessDenied)
		return ErrUnavailable
	}
	if !d.acting.acquire(id) {
		return ErrInFlight
	}
	defer d.acting.release(id)

	if err := call(); err != nil {
		d.notify.Error(apiclient.Message(err))
		return err
	}
	d.notify.Success(done)
	d.builder.Refresh()
	return nil
}

func (d *DocumentList) fetch(seq uint64, q listquery.Query) {
	d.mu.Lock()
	category := d.category
	d.state.Query = q
	d.state.CategoryID = category
	d.state.Loading = true
	d.mu.Unlock()
	d.emit()

	d.fetches.start()
	go func() {
		defer d.fetches.done()
		result, err := d.api.ListDocuments(d.ctx, q, category)
		if !d.builder.IsCurrent(seq) {
			return
		}
		d.mu.Lock()
		d.state.Loading = false
		d.state.Err = err
		if err == nil {
			d.state.Items = result.Items
			d.state.Visible = documentRefiner.Refine(result.Items, d.state.Filter)
			d.state.Total = result.Total
			d.state.Pages = result.Pages
		}
		d.mu.Unlock()
		d.emit()
	}()
}

func (d *DocumentList) row(id string) (documents.Document, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, item := range d.state.Items {
		if item.ID == id {
			return item, true
		}
	}
	return documents.Document{}, false
}

func (d *DocumentList) emit() {
	if d.listener != nil {
		d.listener(d.State())
	}
}
