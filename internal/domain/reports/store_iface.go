package reports

import (
	"context"
	"time"

	"notifycsc/internal/domain/expiry"
)

type StoreAPI interface {
	PolicyBuckets(ctx context.Context, ranges map[expiry.Status]Range) (map[expiry.Status]int, error)
	RemindersSince(ctx context.Context, since time.Time) (int, error)
	PendingDocuments(ctx context.Context) (int, error)
	OpenTickets(ctx context.Context) (int, error)
	ListJobRuns(ctx context.Context, jobType string, limit, offset int) ([]JobRun, error)
}
