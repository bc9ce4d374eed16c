package reports

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"notifycsc/internal/domain/expiry"
)

type Service struct {
	store StoreAPI
	clock clockwork.Clock
	loc   *time.Location
}

func NewService(store StoreAPI, clock clockwork.Clock, loc *time.Location) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: store, clock: clock, loc: loc}
}

// BucketRanges maps every status to its expiry-date window for today.
func BucketRanges(today time.Time) map[expiry.Status]Range {
	out := make(map[expiry.Status]Range, len(expiry.Statuses))
	for _, status := range expiry.Statuses {
		from, to := expiry.Window(status, today)
		out[status] = Range{From: from, To: to}
	}
	return out
}

// ExpiryBuckets returns counts for all five buckets in classifier order.
func (s *Service) ExpiryBuckets(ctx context.Context) ([]BucketCount, error) {
	counts, err := s.store.PolicyBuckets(ctx, BucketRanges(s.clock.Now().In(s.loc)))
	if err != nil {
		return nil, err
	}
	out := make([]BucketCount, 0, len(expiry.Statuses))
	for _, status := range expiry.Statuses {
		out = append(out, BucketCount{Status: status, Label: status.Label(), Count: counts[status]})
	}
	return out, nil
}

func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	now := s.clock.Now().In(s.loc)
	buckets, err := s.ExpiryBuckets(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	out := Dashboard{Date: now.Format("2006-01-02"), Buckets: buckets}
	for _, b := range buckets {
		out.TotalPolicies += b.Count
		if b.Status != expiry.StatusExpired && b.Status != expiry.StatusActive {
			out.RemindableNow += b.Count
		}
	}
	if out.RemindersLast30Days, err = s.store.RemindersSince(ctx, now.AddDate(0, 0, -30)); err != nil {
		return Dashboard{}, err
	}
	if out.PendingDocuments, err = s.store.PendingDocuments(ctx); err != nil {
		return Dashboard{}, err
	}
	if out.OpenTickets, err = s.store.OpenTickets(ctx); err != nil {
		return Dashboard{}, err
	}
	return out, nil
}

func (s *Service) JobRuns(ctx context.Context, jobType string, limit, offset int) ([]JobRun, error) {
	return s.store.ListJobRuns(ctx, jobType, limit, offset)
}
