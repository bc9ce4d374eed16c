package shared

// Counter receives domain event counts; *metrics.Collector satisfies it.
type Counter interface {
	Inc(event string)
}

// Count increments event on c when a counter is wired.
func Count(c Counter, event string) {
	if c != nil {
		c.Inc(event)
	}
}
