package reports

import (
	"encoding/json"
	"time"

	"notifycsc/internal/domain/expiry"
)

// BucketCount is one expiry bucket on the dashboard, in classifier order.
type BucketCount struct {
	Status expiry.Status `json:"status"`
	Label  string        `json:"label"`
	Count  int           `json:"count"`
}

type Dashboard struct {
	Date                string        `json:"date"`
	TotalPolicies       int           `json:"totalPolicies"`
	Buckets             []BucketCount `json:"buckets"`
	RemindableNow       int           `json:"remindableNow"`
	RemindersLast30Days int           `json:"remindersLast30Days"`
	PendingDocuments    int           `json:"pendingDocuments"`
	OpenTickets         int           `json:"openTickets"`
}

type JobRun struct {
	ID          string          `json:"id"`
	JobType     string          `json:"jobType"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Range is an inclusive expiry-date range; nil bounds are open.
type Range struct {
	From *time.Time
	To   *time.Time
}
