// Package screen holds the state behind the console's list screens. A screen
// owns a listquery.Builder, fetches each query it settles on, discards
// responses that are no longer current and guards row actions against
// repeated submission.
package screen

import (
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"

	"notifycsc/internal/domain/listquery"
)

var (
	// ErrInFlight is returned when an action for the same row is already running.
	ErrInFlight    = errors.New("action already in progress")
	ErrUnavailable = errors.New("action unavailable")
	ErrUnknownRow  = errors.New("row not on the current page")
)

// Notifier receives user-facing outcomes. *toast.Queue satisfies it.
type Notifier interface {
	Success(message string) string
	Error(message string) string
}

type settings struct {
	clock    clockwork.Clock
	pageSize int
	newKey   func() string
}

type Option func(*settings)

func WithClock(clock clockwork.Clock) Option {
	return func(s *settings) { s.clock = clock }
}

func WithPageSize(size int) Option {
	return func(s *settings) { s.pageSize = size }
}

// WithKeyFunc overrides how idempotency keys are generated.
func WithKeyFunc(fn func() string) Option {
	return func(s *settings) { s.newKey = fn }
}

func builderOptions(s settings) []listquery.Option {
	var opts []listquery.Option
	if s.clock != nil {
		opts = append(opts, listquery.WithClock(s.clock))
	}
	return opts
}

// guard tracks row ids with an action running.
type guard struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func (g *guard) acquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ids == nil {
		g.ids = map[string]struct{}{}
	}
	if _, busy := g.ids[id]; busy {
		return false
	}
	g.ids[id] = struct{}{}
	return true
}

func (g *guard) release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.ids, id)
}

func (g *guard) busy(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.ids[id]
	return ok
}

// inflight counts running fetches. Unlike a WaitGroup, start may race with
// wait; wait returns once the count reaches zero.
type inflight struct {
	mu    sync.Mutex
	idle  *sync.Cond
	count int
}

func (f *inflight) start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count--
	if f.count == 0 && f.idle != nil {
		f.idle.Broadcast()
	}
}

func (f *inflight) wait() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idle == nil {
		f.idle = sync.NewCond(&f.mu)
	}
	for f.count > 0 {
		f.idle.Wait()
	}
}
