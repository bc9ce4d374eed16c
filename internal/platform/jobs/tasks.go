package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/notifications"
	"notifycsc/internal/domain/reports"
)

type BucketSource interface {
	ExpiryBuckets(ctx context.Context) ([]reports.BucketCount, error)
}

type Directory interface {
	UserIDsByRole(ctx context.Context, roles ...auth.Role) ([]string, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, userIDs []string, ntype, title, body string) int
}

// ExpiryDigest sends every staff and admin user the current bucket counts.
func ExpiryDigest(source BucketSource, directory Directory, notifier Broadcaster) Task {
	return func(ctx context.Context) (any, error) {
		buckets, err := source.ExpiryBuckets(ctx)
		if err != nil {
			return nil, fmt.Errorf("expiry buckets: %w", err)
		}
		recipients, err := directory.UserIDsByRole(ctx, auth.RoleAdmin, auth.RoleStaff)
		if err != nil {
			return nil, fmt.Errorf("digest recipients: %w", err)
		}
		sent := notifier.Broadcast(ctx, recipients, notifications.TypeExpiryDigest, "Daily expiry digest", DigestBody(buckets))

		counts := make(map[string]int, len(buckets))
		for _, b := range buckets {
			counts[string(b.Status)] = b.Count
		}
		return map[string]any{"recipients": len(recipients), "sent": sent, "buckets": counts}, nil
	}
}

// DigestBody renders one "Label: n" line per bucket.
func DigestBody(buckets []reports.BucketCount) string {
	lines := make([]string, 0, len(buckets))
	for _, b := range buckets {
		lines = append(lines, fmt.Sprintf("%s: %d", b.Label, b.Count))
	}
	return strings.Join(lines, "\n")
}

type SessionCleaner interface {
	CleanupSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionCleanup removes sessions that expired or were revoked before now.
func SessionCleanup(cleaner SessionCleaner, clock clockwork.Clock) Task {
	return func(ctx context.Context) (any, error) {
		removed, err := cleaner.CleanupSessions(ctx, clock.Now())
		return map[string]any{"removed": removed}, err
	}
}

type IdempotencyPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// IdempotencyPurge drops replay records older than retention.
func IdempotencyPurge(purger IdempotencyPurger, clock clockwork.Clock, retention time.Duration) Task {
	return func(ctx context.Context) (any, error) {
		removed, err := purger.PurgeBefore(ctx, clock.Now().Add(-retention))
		return map[string]any{"removed": removed, "retention": retention.String()}, err
	}
}
