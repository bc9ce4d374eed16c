package announcements

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"notifycsc/internal/platform/db"
	"notifycsc/internal/platform/querier"
)

var columns = []string{
	"id", "title", "body_markdown", "body_html", "is_ticker", "published",
	"starts_at", "ends_at", "COALESCE(created_by::text, '')", "created_at", "updated_at",
}

type Store struct {
	DB querier.Querier
}

func NewStore(q querier.Querier) *Store {
	return &Store{DB: q}
}

func scan(row pgx.Row) (Announcement, error) {
	var a Announcement
	err := row.Scan(&a.ID, &a.Title, &a.BodyMarkdown, &a.BodyHTML, &a.IsTicker, &a.Published,
		&a.StartsAt, &a.EndsAt, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == "announcements_window_check" {
		return ErrInvalidWindow
	}
	mapped := db.MapError(err, "announcement")
	if errors.Is(mapped, db.ErrNotFound) || errors.Is(mapped, db.ErrConstraint) {
		return ErrNotFound
	}
	return mapped
}

func (s *Store) Create(ctx context.Context, a Announcement) (Announcement, error) {
	query, args, err := db.Builder().
		Insert("announcements").
		Columns("title", "body_markdown", "body_html", "is_ticker", "published", "starts_at", "ends_at", "created_by").
		Values(a.Title, a.BodyMarkdown, a.BodyHTML, a.IsTicker, a.Published, a.StartsAt, a.EndsAt, nullIfEmpty(a.CreatedBy)).
		Suffix("RETURNING " + strings.Join(columns, ", ")).
		ToSql()
	if err != nil {
		return Announcement{}, err
	}
	created, err := scan(s.DB.QueryRow(ctx, query, args...))
	if err != nil {
		return Announcement{}, mapError(err)
	}
	return created, nil
}

func (s *Store) Update(ctx context.Context, a Announcement) (Announcement, error) {
	query, args, err := db.Builder().
		Update("announcements").
		SetMap(map[string]any{
			"title":         a.Title,
			"body_markdown": a.BodyMarkdown,
			"body_html":     a.BodyHTML,
			"is_ticker":     a.IsTicker,
			"published":     a.Published,
			"starts_at":     a.StartsAt,
			"ends_at":       a.EndsAt,
			"updated_at":    squirrel.Expr("now()"),
		}).
		Where(squirrel.Eq{"id": a.ID}).
		Suffix("RETURNING " + strings.Join(columns, ", ")).
		ToSql()
	if err != nil {
		return Announcement{}, err
	}
	updated, err := scan(s.DB.QueryRow(ctx, query, args...))
	if err != nil {
		return Announcement{}, mapError(err)
	}
	return updated, nil
}

func (s *Store) Get(ctx context.Context, id string) (Announcement, error) {
	query, args, err := db.Builder().Select(columns...).From("announcements").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return Announcement{}, err
	}
	a, err := scan(s.DB.QueryRow(ctx, query, args...))
	if err != nil {
		return Announcement{}, mapError(err)
	}
	return a, nil
}

func (s *Store) List(ctx context.Context, filter Filter) ([]Announcement, int, error) {
	where := squirrel.And{}
	if filter.PublishedOnly {
		where = append(where, squirrel.Eq{"published": true})
	}
	if filter.TickerOnly {
		where = append(where, squirrel.Eq{"is_ticker": true})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where = append(where, squirrel.ILike{"title": "%" + search + "%"})
	}

	countSQL, countArgs, err := db.Builder().Select("COUNT(1)").From("announcements").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.DB.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := db.Builder().
		Select(columns...).
		From("announcements").
		Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	out, err := s.query(ctx, query, args...)
	return out, total, err
}

func (s *Store) ActiveTickers(ctx context.Context, now time.Time) ([]Announcement, error) {
	query, args, err := db.Builder().
		Select(columns...).
		From("announcements").
		Where(squirrel.Eq{"published": true, "is_ticker": true}).
		Where(squirrel.Or{squirrel.Eq{"starts_at": nil}, squirrel.LtOrEq{"starts_at": now}}).
		Where(squirrel.Or{squirrel.Eq{"ends_at": nil}, squirrel.Gt{"ends_at": now}}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return s.query(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Announcement, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Announcement{}
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM announcements WHERE id = $1", id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
