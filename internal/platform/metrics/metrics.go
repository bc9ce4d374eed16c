package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Event counters incremented by domain services.
const (
	RemindersSent     = "reminders_sent"
	RemindersRejected = "reminders_rejected"
	PublicLookups     = "public_lookups"
	DocumentsUploaded = "documents_uploaded"
	DocumentsReviewed = "documents_reviewed"
	TicketsOpened     = "tickets_opened"
)

type Collector struct {
	totalRequests   uint64
	clientErrors    uint64
	serverErrors    uint64
	rateLimited     uint64
	unauthorized    uint64
	totalDurationMs uint64

	mu     sync.Mutex
	routes map[string]uint64
	events map[string]uint64
}

func New() *Collector {
	return &Collector{routes: map[string]uint64{}, events: map[string]uint64{}}
}

// Record counts one finished request. route is the matched pattern, not the raw path.
func (c *Collector) Record(route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.totalRequests, 1)
	switch {
	case status == 429:
		atomic.AddUint64(&c.rateLimited, 1)
		atomic.AddUint64(&c.clientErrors, 1)
	case status == 401:
		atomic.AddUint64(&c.unauthorized, 1)
		atomic.AddUint64(&c.clientErrors, 1)
	case status >= 500:
		atomic.AddUint64(&c.serverErrors, 1)
	case status >= 400:
		atomic.AddUint64(&c.clientErrors, 1)
	}
	if duration > 0 {
		atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
	}
	if route != "" {
		c.mu.Lock()
		c.routes[route]++
		c.mu.Unlock()
	}
}

func (c *Collector) Inc(event string) {
	if c == nil || event == "" {
		return
	}
	c.mu.Lock()
	c.events[event]++
	c.mu.Unlock()
}

func (c *Collector) Event(event string) uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[event]
}

type RouteCount struct {
	Route string `json:"route"`
	Count uint64 `json:"count"`
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}

	c.mu.Lock()
	routes := make([]RouteCount, 0, len(c.routes))
	for route, count := range c.routes {
		routes = append(routes, RouteCount{Route: route, Count: count})
	}
	events := make(map[string]uint64, len(c.events))
	for name, count := range c.events {
		events[name] = count
	}
	c.mu.Unlock()

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Count == routes[j].Count {
			return routes[i].Route < routes[j].Route
		}
		return routes[i].Count > routes[j].Count
	})

	return map[string]any{
		"requestsTotal":     total,
		"clientErrorsTotal": atomic.LoadUint64(&c.clientErrors),
		"serverErrorsTotal": atomic.LoadUint64(&c.serverErrors),
		"rateLimitedTotal":  atomic.LoadUint64(&c.rateLimited),
		"unauthorizedTotal": atomic.LoadUint64(&c.unauthorized),
		"avgDurationMs":     avg,
		"totalDurationMs":   totalMs,
		"routes":            routes,
		"events":            events,
	}
}
