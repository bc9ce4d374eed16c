package listquery

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var ErrUnknownStatus = errors.New("unknown status filter")

// Dispatch receives every query the builder settles on. seq increases with each
// call; fetchers pass it back to IsCurrent before rendering a response.
type Dispatch func(seq uint64, q Query)

type Option func(*Builder)

func WithClock(clock clockwork.Clock) Option {
	return func(b *Builder) {
		b.clock = clock
	}
}

func WithSettleDelay(delay time.Duration) Option {
	return func(b *Builder) {
		b.delay = delay
	}
}

// WithStatuses restricts SetStatus to a closed set of values.
func WithStatuses(statuses ...string) Option {
	return func(b *Builder) {
		b.statuses = map[string]struct{}{}
		for _, status := range statuses {
			b.statuses[status] = struct{}{}
		}
	}
}

// Builder holds one screen's search and filter state. Text search applies after
// the settle delay, status and page apply immediately, and the expiry range is
// staged until ApplyDateRange. Any filter change resets the page to 1.
type Builder struct {
	clock    clockwork.Clock
	delay    time.Duration
	statuses map[string]struct{}
	dispatch Dispatch
	debounce *Debouncer

	mu         sync.Mutex
	pageSize   int
	rawSearch  string
	search     string
	status     string
	from       *time.Time
	to         *time.Time
	stagedFrom *time.Time
	stagedTo   *time.Time
	page       int
	seq        uint64
}

func NewBuilder(pageSize int, dispatch Dispatch, opts ...Option) *Builder {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	b := &Builder{
		delay:    DefaultSettleDelay,
		dispatch: dispatch,
		pageSize: pageSize,
		page:     1,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.debounce = NewDebouncer(b.clock, b.delay)
	return b
}

// Refresh re-issues the current query, e.g. on first load or after a mutation.
func (b *Builder) Refresh() {
	b.mu.Lock()
	seq, q := b.nextLocked()
	b.mu.Unlock()
	b.emit(seq, q)
}

// SetSearch records a keystroke. Only the value present when the input has been
// quiet for the settle delay reaches the query.
func (b *Builder) SetSearch(raw string) {
	b.mu.Lock()
	b.rawSearch = raw
	b.mu.Unlock()
	b.debounce.Schedule(b.settleSearch)
}

func (b *Builder) settleSearch() {
	b.mu.Lock()
	if b.rawSearch == b.search {
		b.mu.Unlock()
		return
	}
	b.search = b.rawSearch
	b.page = 1
	seq, q := b.nextLocked()
	b.mu.Unlock()
	b.emit(seq, q)
}

func (b *Builder) SetStatus(status string) error {
	if status != "" && b.statuses != nil {
		if _, ok := b.statuses[status]; !ok {
			return ErrUnknownStatus
		}
	}
	b.mu.Lock()
	if status == b.status {
		b.mu.Unlock()
		return nil
	}
	b.status = status
	b.page = 1
	seq, q := b.nextLocked()
	b.mu.Unlock()
	b.emit(seq, q)
	return nil
}

func (b *Builder) StageExpiryFrom(from *time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stagedFrom = copyTime(from)
}

func (b *Builder) StageExpiryTo(to *time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stagedTo = copyTime(to)
}

// ApplyDateRange commits the staged bounds. An inverted range is rejected and
// nothing is fetched until it is corrected.
func (b *Builder) ApplyDateRange() error {
	b.mu.Lock()
	if err := ValidateRange(b.stagedFrom, b.stagedTo); err != nil {
		b.mu.Unlock()
		return err
	}
	if sameDate(b.stagedFrom, b.from) && sameDate(b.stagedTo, b.to) {
		b.mu.Unlock()
		return nil
	}
	b.from = copyTime(b.stagedFrom)
	b.to = copyTime(b.stagedTo)
	b.page = 1
	seq, q := b.nextLocked()
	b.mu.Unlock()
	b.emit(seq, q)
	return nil
}

func (b *Builder) ClearDateRange() {
	b.mu.Lock()
	b.stagedFrom, b.stagedTo = nil, nil
	if b.from == nil && b.to == nil {
		b.mu.Unlock()
		return
	}
	b.from, b.to = nil, nil
	b.page = 1
	seq, q := b.nextLocked()
	b.mu.Unlock()
	b.emit(seq, q)
}

func (b *Builder) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	b.mu.Lock()
	if page == b.page {
		b.mu.Unlock()
		return
	}
	b.page = page
	seq, q := b.nextLocked()
	b.mu.Unlock()
	b.emit(seq, q)
}

// Restore replaces every filter at once, e.g. from saved or command-line
// state, and issues a single fetch. The search text skips the settle delay.
func (b *Builder) Restore(q Query) error {
	if q.Status != "" && b.statuses != nil {
		if _, ok := b.statuses[q.Status]; !ok {
			return ErrUnknownStatus
		}
	}
	if err := q.Validate(); err != nil {
		return err
	}
	b.debounce.Cancel()
	b.mu.Lock()
	b.status = q.Status
	b.rawSearch = q.Search
	b.search = q.Search
	b.from, b.stagedFrom = copyTime(q.ExpiryFrom), copyTime(q.ExpiryFrom)
	b.to, b.stagedTo = copyTime(q.ExpiryTo), copyTime(q.ExpiryTo)
	b.page = q.Page
	if b.page < 1 {
		b.page = 1
	}
	if q.Limit > 0 {
		b.pageSize = q.Limit
	}
	seq, next := b.nextLocked()
	b.mu.Unlock()
	b.emit(seq, next)
	return nil
}

// Query returns the active (settled, applied) query.
func (b *Builder) Query() Query {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queryLocked()
}

func (b *Builder) RawSearch() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rawSearch
}

// IsCurrent reports whether seq belongs to the most recently issued query.
func (b *Builder) IsCurrent(seq uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return seq == b.seq
}

// Close drops any pending debounced search.
func (b *Builder) Close() {
	b.debounce.Cancel()
}

func (b *Builder) nextLocked() (uint64, Query) {
	b.seq++
	return b.seq, b.queryLocked()
}

func (b *Builder) queryLocked() Query {
	return Query{
		Status:     b.status,
		Search:     b.search,
		Page:       b.page,
		Limit:      b.pageSize,
		ExpiryFrom: copyTime(b.from),
		ExpiryTo:   copyTime(b.to),
	}
}

func (b *Builder) emit(seq uint64, q Query) {
	if b.dispatch != nil {
		b.dispatch(seq, q)
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := *t
	return &value
}
