package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"notifycsc/internal/domain/expiry"
	"notifycsc/internal/platform/db"
	"notifycsc/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(q querier.Querier) *Store {
	return &Store{DB: q}
}

func bucketColumn(r Range) squirrel.Sqlizer {
	switch {
	case r.From != nil && r.To != nil:
		return squirrel.Expr("COUNT(*) FILTER (WHERE policy_expiry_date >= ? AND policy_expiry_date <= ?)", *r.From, *r.To)
	case r.From != nil:
		return squirrel.Expr("COUNT(*) FILTER (WHERE policy_expiry_date >= ?)", *r.From)
	case r.To != nil:
		return squirrel.Expr("COUNT(*) FILTER (WHERE policy_expiry_date <= ?)", *r.To)
	}
	return squirrel.Expr("COUNT(*)")
}

// PolicyBuckets counts live policies per bucket in one scan.
func (s *Store) PolicyBuckets(ctx context.Context, ranges map[expiry.Status]Range) (map[expiry.Status]int, error) {
	builder := db.Builder().Select().From("policies").Where(squirrel.Eq{"deleted_at": nil})
	order := make([]expiry.Status, 0, len(ranges))
	for _, status := range expiry.Statuses {
		r, ok := ranges[status]
		if !ok {
			continue
		}
		builder = builder.Column(bucketColumn(r))
		order = append(order, status)
	}
	if len(order) == 0 {
		return map[expiry.Status]int{}, nil
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	counts := make([]int, len(order))
	dest := make([]any, len(order))
	for i := range counts {
		dest[i] = &counts[i]
	}
	if err := s.DB.QueryRow(ctx, query, args...).Scan(dest...); err != nil {
		return nil, fmt.Errorf("policy buckets: %w", err)
	}
	out := make(map[expiry.Status]int, len(order))
	for i, status := range order {
		out[status] = counts[i]
	}
	return out, nil
}

func (s *Store) RemindersSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM policy_reminders WHERE created_at >= $1", since).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) PendingDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM documents WHERE status = 'pending'").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) OpenTickets(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM support_tickets WHERE status IN ('open', 'in_progress')").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) ListJobRuns(ctx context.Context, jobType string, limit, offset int) ([]JobRun, error) {
	builder := db.Builder().
		Select("id", "job_type", "status", "details_json", "started_at", "completed_at").
		From("job_runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	if jobType != "" {
		builder = builder.Where(squirrel.Eq{"job_type": jobType})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []JobRun{}
	for rows.Next() {
		var run JobRun
		var details []byte
		if err := rows.Scan(&run.ID, &run.JobType, &run.Status, &details, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			run.Details = details
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
