package toast

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func TestShowAppendsInOrder(t *testing.T) {
	t.Parallel()
	q := NewQueue(WithClock(clockwork.NewFakeClock()))
	t.Cleanup(q.Close)

	first := q.Show("Reminder sent", SeveritySuccess, 0)
	second := q.Show("Reminder sent", SeveritySuccess, 0)
	third := q.Show("Upload failed", SeverityError, 0)

	items := q.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []string{first, second, third}, []string{items[0].ID, items[1].ID, items[2].ID})
	assert.NotEqual(t, first, second)
	assert.Equal(t, DefaultDuration, items[0].Duration)
}

func TestUnknownSeverityFallsBackToInfo(t *testing.T) {
	t.Parallel()
	q := NewQueue(WithClock(clockwork.NewFakeClock()))
	t.Cleanup(q.Close)

	q.Show("hello", Severity("warning"), time.Second)
	assert.Equal(t, SeverityInfo, q.Items()[0].Severity)
}

func TestToastExpiresAfterDurationAndExitTransition(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	q := NewQueue(WithClock(clock))
	t.Cleanup(q.Close)

	q.Show("Saved", SeveritySuccess, 3000*time.Millisecond)
	require.Equal(t, 1, q.Len())

	clock.Advance(2999 * time.Millisecond)
	assert.False(t, q.Items()[0].Leaving)

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool {
		items := q.Items()
		return len(items) == 1 && items[0].Leaving
	}, waitFor, tick)

	clock.Advance(DefaultExitDuration)
	require.Eventually(t, func() bool { return q.Len() == 0 }, waitFor, tick)
}

func TestToastWithoutExitTransition(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	q := NewQueue(WithClock(clock), WithExitDuration(0))
	t.Cleanup(q.Close)

	q.Show("Saved", SeverityInfo, time.Second)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return q.Len() == 0 }, waitFor, tick)
}

func TestDismissBeforeTimerIsImmediateAndLateTimerIsNoop(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	q := NewQueue(WithClock(clock))
	t.Cleanup(q.Close)

	id := q.Show("Reminder failed", SeverityError, 3*time.Second)
	keep := q.Show("Still here", SeverityInfo, time.Hour)

	q.Dismiss(id)
	require.Equal(t, 1, q.Len())

	clock.Advance(5 * time.Second)
	assert.Never(t, func() bool {
		items := q.Items()
		return len(items) != 1 || items[0].ID != keep || items[0].Leaving
	}, 50*time.Millisecond, tick)
}

func TestDismissUnknownIDIsNoop(t *testing.T) {
	t.Parallel()
	q := NewQueue(WithClock(clockwork.NewFakeClock()))
	t.Cleanup(q.Close)

	q.Info("one")
	q.Dismiss("missing")
	q.Dismiss("")
	assert.Equal(t, 1, q.Len())
}

func TestConcurrentShowAndDismiss(t *testing.T) {
	t.Parallel()
	q := NewQueue(WithClock(clockwork.NewFakeClock()))
	t.Cleanup(q.Close)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := q.Error("boom")
			q.Dismiss(id)
			q.Success("ok")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, q.Len())
}

func TestListenerReceivesSnapshots(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var sizes []int
	q := NewQueue(
		WithClock(clockwork.NewFakeClock()),
		WithListener(func(items []Toast) {
			mu.Lock()
			defer mu.Unlock()
			sizes = append(sizes, len(items))
		}),
	)
	t.Cleanup(q.Close)

	id := q.Info("a")
	q.Info("b")
	q.Dismiss(id)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 1}, sizes)
}
