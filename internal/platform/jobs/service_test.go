package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/expiry"
	"notifycsc/internal/domain/reports"
)

type memRecorder struct {
	mu       sync.Mutex
	begun    []string
	statuses map[string]string
	details  map[string][]byte
}

func newMemRecorder() *memRecorder {
	return &memRecorder{statuses: map[string]string{}, details: map[string][]byte{}}
}

func (m *memRecorder) Begin(_ context.Context, jobType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begun = append(m.begun, jobType)
	return jobType + "-run", nil
}

func (m *memRecorder) Finish(_ context.Context, runID, status string, details []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[runID] = status
	m.details[runID] = details
	return nil
}

func (m *memRecorder) status(runID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[runID]
}

func TestRunNowRecordsCompletedRun(t *testing.T) {
	t.Parallel()
	rec := newMemRecorder()
	svc := New(rec, time.UTC)

	out, err := svc.RunNow(context.Background(), JobSessionCleanup, func(context.Context) (any, error) {
		return map[string]any{"removed": 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"removed": 3}, out)
	assert.Equal(t, StatusCompleted, rec.status("session_cleanup-run"))

	var details map[string]any
	require.NoError(t, json.Unmarshal(rec.details["session_cleanup-run"], &details))
	assert.EqualValues(t, 3, details["removed"])
}

func TestRunNowRecordsFailure(t *testing.T) {
	t.Parallel()
	rec := newMemRecorder()
	svc := New(rec, time.UTC)

	_, err := svc.RunNow(context.Background(), JobExpiryDigest, func(context.Context) (any, error) {
		return nil, errors.New("db down")
	})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, rec.status("expiry_digest-run"))
	assert.Contains(t, string(rec.details["expiry_digest-run"]), "db down")
}

func TestEnqueuedJobRunsOnWorker(t *testing.T) {
	t.Parallel()
	rec := newMemRecorder()
	svc := New(rec, time.UTC)
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)

	ran := make(chan struct{})
	svc.Enqueue(JobIdempotencyPurge, func(context.Context) (any, error) {
		close(ran)
		return nil, nil
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("enqueued job did not run")
	}
	require.Eventually(t, func() bool { return rec.status("idempotency_purge-run") == StatusCompleted }, time.Second, 5*time.Millisecond)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	t.Parallel()
	svc := New(nil, time.UTC)
	require.Error(t, svc.Schedule("every morning", JobExpiryDigest, nil))
	require.NoError(t, svc.Schedule("", JobExpiryDigest, nil))
	require.NoError(t, svc.Schedule("0 7 * * *", JobExpiryDigest, func(context.Context) (any, error) { return nil, nil }))
}

type staticBuckets []reports.BucketCount

func (s staticBuckets) ExpiryBuckets(context.Context) ([]reports.BucketCount, error) { return s, nil }

type staticDirectory []string

func (d staticDirectory) UserIDsByRole(context.Context, ...auth.Role) ([]string, error) {
	return d, nil
}

type captureBroadcast struct {
	users []string
	body  string
}

func (c *captureBroadcast) Broadcast(_ context.Context, userIDs []string, _, _, body string) int {
	c.users = userIDs
	c.body = body
	return len(userIDs)
}

func TestExpiryDigestTask(t *testing.T) {
	t.Parallel()
	buckets := staticBuckets{
		{Status: expiry.StatusExpired, Label: "Expired", Count: 2},
		{Status: expiry.StatusExpiringSoon, Label: "Expiring Soon", Count: 5},
	}
	notifier := &captureBroadcast{}
	out, err := ExpiryDigest(buckets, staticDirectory{"admin-1", "staff-1"}, notifier)(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"admin-1", "staff-1"}, notifier.users)
	assert.Equal(t, "Expired: 2\nExpiring Soon: 5", notifier.body)
	details := out.(map[string]any)
	assert.Equal(t, 2, details["sent"])
}

type cutoffRecorder struct{ cutoff time.Time }

func (c *cutoffRecorder) CleanupSessions(_ context.Context, cutoff time.Time) (int64, error) {
	c.cutoff = cutoff
	return 4, nil
}

func (c *cutoffRecorder) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	c.cutoff = cutoff
	return 1, nil
}

func TestCleanupTasksUseClock(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	sessions := &cutoffRecorder{}
	_, err := SessionCleanup(sessions, clock)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now, sessions.cutoff)

	keys := &cutoffRecorder{}
	_, err = IdempotencyPurge(keys, clock, 48*time.Hour)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(-48*time.Hour), keys.cutoff)
}
