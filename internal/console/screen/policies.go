package screen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"notifycsc/internal/console/apiclient"
	"notifycsc/internal/domain/expiry"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/policy"
)

type PolicyAPI interface {
	ListPolicies(ctx context.Context, q listquery.Query) (listquery.Result[policy.View], error)
	SendReminder(ctx context.Context, policyID, idempotencyKey string) (policy.ReminderResult, error)
}

type PolicyState struct {
	Query     listquery.Query
	RawSearch string
	Items     []policy.View
	Total     int
	Pages     int
	Loading   bool
	Err       error
}

// ReminderAction describes the reminder control for one row.
type ReminderAction struct {
	Enabled  bool
	Reason   string
	InFlight bool
}

// PolicyList is the staff policy screen.
type PolicyList struct {
	ctx      context.Context
	api      PolicyAPI
	notify   Notifier
	builder  *listquery.Builder
	newKey   func() string
	listener func(PolicyState)

	sending guard
	fetches inflight

	mu    sync.Mutex
	state PolicyState
}

// NewPolicyList builds the screen. Fetches run on ctx; nothing is loaded until
// Load is called.
func NewPolicyList(ctx context.Context, api PolicyAPI, notify Notifier, listener func(PolicyState), opts ...Option) *PolicyList {
	s := settings{newKey: uuid.NewString}
	for _, opt := range opts {
		opt(&s)
	}
	p := &PolicyList{ctx: ctx, api: api, notify: notify, newKey: s.newKey, listener: listener}

	statuses := make([]string, 0, len(expiry.Statuses))
	for _, status := range expiry.Statuses {
		statuses = append(statuses, string(status))
	}
	bopts := append(builderOptions(s), listquery.WithStatuses(statuses...))
	p.builder = listquery.NewBuilder(s.pageSize, p.fetch, bopts...)
	return p
}

func (p *PolicyList) Load()                  { p.builder.Refresh() }
func (p *PolicyList) SetSearch(raw string)   { p.builder.SetSearch(raw) }
func (p *PolicyList) SetPage(page int)       { p.builder.SetPage(page) }
func (p *PolicyList) StageFrom(t *time.Time) { p.builder.StageExpiryFrom(t) }
func (p *PolicyList) StageTo(t *time.Time)   { p.builder.StageExpiryTo(t) }
func (p *PolicyList) ClearDateRange()        { p.builder.ClearDateRange() }

// SetStatus accepts the enum case-insensitively; "" clears the filter.
func (p *PolicyList) SetStatus(raw string) error {
	if raw == "" {
		return p.builder.SetStatus("")
	}
	status, ok := expiry.ParseStatus(raw)
	if !ok {
		return listquery.ErrUnknownStatus
	}
	return p.builder.SetStatus(string(status))
}

// Restore replaces every filter at once and fetches once.
func (p *PolicyList) Restore(q listquery.Query) error {
	if q.Status != "" {
		status, ok := expiry.ParseStatus(q.Status)
		if !ok {
			return listquery.ErrUnknownStatus
		}
		q.Status = string(status)
	}
	return p.builder.Restore(q)
}

// ApplyDateRange commits the staged range. An inverted range is reported to
// the user and nothing is fetched.
func (p *PolicyList) ApplyDateRange() error {
	if err := p.builder.ApplyDateRange(); err != nil {
		p.notify.Error("Expiry 'to' date must not be before 'from' date")
		return err
	}
	return nil
}

// Wait blocks until every fetch started so far has finished.
func (p *PolicyList) Wait() {
	p.fetches.wait()
}

func (p *PolicyList) Close() {
	p.builder.Close()
}

func (p *PolicyList) State() PolicyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.state
	state.Items = append([]policy.View(nil), p.state.Items...)
	state.RawSearch = p.builder.RawSearch()
	return state
}

// ReminderAction is derived from the row's days remaining, not from the
// server's eligibility flag.
func (p *PolicyList) ReminderAction(view policy.View) ReminderAction {
	action := ReminderAction{Enabled: expiry.ReminderEligible(view.DaysRemaining), InFlight: p.sending.busy(view.ID)}
	if !action.Enabled {
		action.Reason = expiry.ReminderUnavailableReason
	}
	return action
}

// SendReminder sends one reminder for a row on the current page. A second
// call for the same row while the first is running returns ErrInFlight
// without a request.
func (p *PolicyList) SendReminder(ctx context.Context, policyID string) error {
	view, ok := p.row(policyID)
	if !ok {
		return ErrUnknownRow
	}
	if !p.ReminderAction(view).Enabled {
		p.notify.Error("Reminder " + expiry.ReminderUnavailableReason)
		return ErrUnavailable
	}
	if !p.sending.acquire(policyID) {
		return ErrInFlight
	}
	defer p.sending.release(policyID)

	result, err := p.api.SendReminder(ctx, policyID, p.newKey())
	if err != nil {
		p.notify.Error(apiclient.Message(err))
		return err
	}
	p.replace(result.Policy)
	p.notify.Success(fmt.Sprintf("Reminder sent to %s (%s)", view.HolderName, view.VehicleNumber))
	p.builder.Refresh()
	return nil
}

func (p *PolicyList) fetch(seq uint64, q listquery.Query) {
	p.mu.Lock()
	p.state.Query = q
	p.state.Loading = true
	p.mu.Unlock()
	p.emit()

	p.fetches.start()
	go func() {
		defer p.fetches.done()
		result, err := p.api.ListPolicies(p.ctx, q)
		if !p.builder.IsCurrent(seq) {
			return
		}
		p.mu.Lock()
		p.state.Loading = false
		p.state.Err = err
		if err == nil {
			p.state.Items = result.Items
			p.state.Total = result.Total
			p.state.Pages = result.Pages
		}
		p.mu.Unlock()
		p.emit()
	}()
}

func (p *PolicyList) row(id string) (policy.View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range p.state.Items {
		if item.ID == id {
			return item, true
		}
	}
	return policy.View{}, false
}

func (p *PolicyList) replace(view policy.View) {
	if view.ID == "" {
		return
	}
	p.mu.Lock()
	for i := range p.state.Items {
		if p.state.Items[i].ID == view.ID {
			p.state.Items[i] = view
		}
	}
	p.mu.Unlock()
	p.emit()
}

func (p *PolicyList) emit() {
	if p.listener != nil {
		p.listener(p.State())
	}
}
