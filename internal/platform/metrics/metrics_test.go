package metrics

import (
	"testing"
	"time"
)

func TestCollectorSnapshot(t *testing.T) {
	c := New()
	c.Record("/api/v1/policies", 200, 10*time.Millisecond)
	c.Record("/api/v1/policies", 500, 30*time.Millisecond)
	c.Record("/api/v1/public/lookup", 429, 0)
	c.Record("/api/v1/policies/{policyID}", 401, 0)
	c.Inc(RemindersSent)
	c.Inc(RemindersSent)

	snap := c.Snapshot()
	if snap["requestsTotal"].(uint64) != 4 {
		t.Fatalf("unexpected total: %v", snap["requestsTotal"])
	}
	if snap["serverErrorsTotal"].(uint64) != 1 {
		t.Fatalf("unexpected server errors: %v", snap["serverErrorsTotal"])
	}
	if snap["clientErrorsTotal"].(uint64) != 2 {
		t.Fatalf("unexpected client errors: %v", snap["clientErrorsTotal"])
	}
	if snap["avgDurationMs"].(float64) != 10 {
		t.Fatalf("unexpected avg: %v", snap["avgDurationMs"])
	}
	routes := snap["routes"].([]RouteCount)
	if routes[0].Route != "/api/v1/policies" || routes[0].Count != 2 {
		t.Fatalf("unexpected route ordering: %+v", routes)
	}
	if c.Event(RemindersSent) != 2 {
		t.Fatalf("expected 2 reminders, got %d", c.Event(RemindersSent))
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.Record("/", 200, time.Millisecond)
	c.Inc(PublicLookups)
	if c.Event(PublicLookups) != 0 {
		t.Fatal("expected zero from nil collector")
	}
}
