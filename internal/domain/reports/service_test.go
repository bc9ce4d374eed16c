package reports

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifycsc/internal/domain/expiry"
)

type fakeStore struct {
	ranges map[expiry.Status]Range
	since  time.Time
}

func (f *fakeStore) PolicyBuckets(_ context.Context, ranges map[expiry.Status]Range) (map[expiry.Status]int, error) {
	f.ranges = ranges
	return map[expiry.Status]int{
		expiry.StatusExpired:          4,
		expiry.StatusExpiringSoon:     3,
		expiry.StatusExpiringWarning:  2,
		expiry.StatusExpiringUpcoming: 1,
		expiry.StatusActive:           10,
	}, nil
}

func (f *fakeStore) RemindersSince(_ context.Context, since time.Time) (int, error) {
	f.since = since
	return 7, nil
}

func (f *fakeStore) PendingDocuments(context.Context) (int, error) { return 5, nil }

func (f *fakeStore) OpenTickets(context.Context) (int, error) { return 2, nil }

func (f *fakeStore) ListJobRuns(context.Context, string, int, int) ([]JobRun, error) {
	return nil, nil
}

func TestDashboardAggregatesBuckets(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	now := time.Date(2026, 6, 15, 23, 0, 0, 0, time.UTC)
	svc := NewService(store, clockwork.NewFakeClockAt(now), time.UTC)

	dash, err := svc.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2026-06-15", dash.Date)
	assert.Equal(t, 20, dash.TotalPolicies)
	assert.Equal(t, 6, dash.RemindableNow)
	assert.Equal(t, 7, dash.RemindersLast30Days)
	assert.Equal(t, 5, dash.PendingDocuments)
	assert.Equal(t, 2, dash.OpenTickets)
	require.Len(t, dash.Buckets, 5)
	assert.Equal(t, expiry.StatusExpired, dash.Buckets[0].Status)
	assert.Equal(t, "Expiring Soon", dash.Buckets[1].Label)
	assert.Equal(t, now.AddDate(0, 0, -30), store.since)
}

func TestBucketRangesAreContiguous(t *testing.T) {
	t.Parallel()
	today := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	ranges := BucketRanges(today)

	assert.Nil(t, ranges[expiry.StatusExpired].From)
	assert.Equal(t, "2026-06-14", ranges[expiry.StatusExpired].To.Format("2006-01-02"))
	assert.Equal(t, "2026-06-15", ranges[expiry.StatusExpiringSoon].From.Format("2006-01-02"))
	assert.Equal(t, "2026-07-15", ranges[expiry.StatusExpiringUpcoming].To.Format("2006-01-02"))
	assert.Equal(t, "2026-07-16", ranges[expiry.StatusActive].From.Format("2006-01-02"))
	assert.Nil(t, ranges[expiry.StatusActive].To)
}

func TestBucketColumnPlaceholders(t *testing.T) {
	t.Parallel()
	ranges := BucketRanges(time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC))
	sql, args, err := bucketColumn(ranges[expiry.StatusExpiringWarning]).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "policy_expiry_date >= ? AND policy_expiry_date <= ?")
	assert.Len(t, args, 2)
}
