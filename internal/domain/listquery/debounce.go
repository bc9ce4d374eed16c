package listquery

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultSettleDelay = 500 * time.Millisecond

// Debouncer runs only the most recently scheduled callback, once the delay
// has passed without another Schedule call.
type Debouncer struct {
	clock clockwork.Clock
	delay time.Duration

	mu         sync.Mutex
	timer      clockwork.Timer
	generation uint64
}

func NewDebouncer(clock clockwork.Clock, delay time.Duration) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	return &Debouncer{clock: clock, delay: delay}
}

// Schedule replaces any pending callback with fn.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.generation++
	gen := d.generation
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := gen == d.generation
		if current {
			d.timer = nil
		}
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Cancel drops the pending callback, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.generation++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
