package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

const (
	DefaultDuration     = 3 * time.Second
	DefaultExitDuration = 300 * time.Millisecond
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityError:
		return true
	}
	return false
}

type Toast struct {
	ID       string        `json:"id"`
	Message  string        `json:"message"`
	Severity Severity      `json:"severity"`
	Duration time.Duration `json:"duration"`
	// Leaving is set once the display time is over and the exit transition runs.
	Leaving bool `json:"leaving"`
}

type Option func(*Queue)

func WithClock(clock clockwork.Clock) Option {
	return func(q *Queue) {
		q.clock = clock
	}
}

func WithExitDuration(d time.Duration) Option {
	return func(q *Queue) {
		q.exit = d
	}
}

// WithListener registers fn to receive a snapshot after every change. fn runs
// outside the queue lock.
func WithListener(fn func([]Toast)) Option {
	return func(q *Queue) {
		q.listener = fn
	}
}

type entry struct {
	toast Toast
	timer clockwork.Timer
}

// Queue is the process-wide list of transient messages, in insertion order.
// Duplicate messages are kept as separate toasts.
type Queue struct {
	clock    clockwork.Clock
	exit     time.Duration
	listener func([]Toast)

	mu      sync.Mutex
	entries []*entry
}

func NewQueue(opts ...Option) *Queue {
	q := &Queue{exit: DefaultExitDuration}
	for _, opt := range opts {
		opt(q)
	}
	if q.clock == nil {
		q.clock = clockwork.NewRealClock()
	}
	if q.exit < 0 {
		q.exit = 0
	}
	return q
}

// Show appends a toast and starts its timer. A non-positive duration uses
// DefaultDuration; an unknown severity is shown as info.
func (q *Queue) Show(message string, severity Severity, duration time.Duration) string {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if !severity.Valid() {
		severity = SeverityInfo
	}
	e := &entry{toast: Toast{
		ID:       uuid.NewString(),
		Message:  message,
		Severity: severity,
		Duration: duration,
	}}
	id := e.toast.ID

	q.mu.Lock()
	q.entries = append(q.entries, e)
	e.timer = q.clock.AfterFunc(duration, func() { q.expire(id) })
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snapshot)
	return id
}

func (q *Queue) Info(message string) string {
	return q.Show(message, SeverityInfo, 0)
}

func (q *Queue) Success(message string) string {
	return q.Show(message, SeveritySuccess, 0)
}

func (q *Queue) Error(message string) string {
	return q.Show(message, SeverityError, 0)
}

// Dismiss removes the toast immediately. Unknown ids, including toasts already
// removed by their timer, are ignored.
func (q *Queue) Dismiss(id string) {
	q.mu.Lock()
	idx := q.indexLocked(id)
	if idx < 0 {
		q.mu.Unlock()
		return
	}
	if timer := q.entries[idx].timer; timer != nil {
		timer.Stop()
	}
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snapshot)
}

func (q *Queue) Items() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close stops every pending timer and empties the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	q.entries = nil
	q.mu.Unlock()
}

func (q *Queue) expire(id string) {
	if q.exit == 0 {
		q.Dismiss(id)
		return
	}

	q.mu.Lock()
	idx := q.indexLocked(id)
	if idx < 0 {
		q.mu.Unlock()
		return
	}
	e := q.entries[idx]
	e.toast.Leaving = true
	e.timer = q.clock.AfterFunc(q.exit, func() { q.Dismiss(id) })
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snapshot)
}

func (q *Queue) indexLocked(id string) int {
	for i, e := range q.entries {
		if e.toast.ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) snapshotLocked() []Toast {
	out := make([]Toast, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.toast
	}
	return out
}

func (q *Queue) notify(snapshot []Toast) {
	if q.listener != nil {
		q.listener(snapshot)
	}
}
