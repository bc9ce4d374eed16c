package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"notifycsc/internal/platform/db"
	"notifycsc/internal/platform/querier"
)

var policyColumns = []string{
	"id", "policy_number", "holder_name", "vehicle_number", "vehicle_type", "insurer",
	"mobile_enc", "mobile_digest", "mobile_last4", "email",
	"policy_start_date", "policy_expiry_date", "notes",
	"reminder_count", "last_reminder_at", "COALESCE(created_by::text, '')",
	"created_at", "updated_at",
}

type Store struct {
	DB querier.TxBeginner
}

func NewStore(pool querier.TxBeginner) *Store {
	return &Store{DB: pool}
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.PolicyNumber, &rec.HolderName, &rec.VehicleNumber, &rec.VehicleType, &rec.Insurer,
		&rec.MobileEnc, &rec.MobileDigest, &rec.MobileLast4, &rec.Email,
		&rec.StartDate, &rec.ExpiryDate, &rec.Notes,
		&rec.ReminderCount, &rec.LastReminderAt, &rec.CreatedBy,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}

// mapError folds malformed ids into ErrNotFound and the date check into ErrInvalidDates.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == "policies_dates_check" {
		return ErrInvalidDates
	}
	mapped := db.MapError(err, "policy")
	if errors.Is(mapped, db.ErrNotFound) || errors.Is(mapped, db.ErrConstraint) {
		return ErrNotFound
	}
	return mapped
}

func (s *Store) Create(ctx context.Context, rec Record) (Record, error) {
	query, args, err := db.Builder().
		Insert("policies").
		Columns("policy_number", "holder_name", "vehicle_number", "vehicle_type", "insurer",
			"mobile_enc", "mobile_digest", "mobile_last4", "email",
			"policy_start_date", "policy_expiry_date", "notes", "created_by").
		Values(rec.PolicyNumber, rec.HolderName, rec.VehicleNumber, rec.VehicleType, rec.Insurer,
			rec.MobileEnc, rec.MobileDigest, rec.MobileLast4, rec.Email,
			rec.StartDate, rec.ExpiryDate, rec.Notes, nullIfEmpty(rec.CreatedBy)).
		Suffix("RETURNING " + strings.Join(policyColumns, ", ")).
		ToSql()
	if err != nil {
		return Record{}, err
	}
	created, err := scanRecord(s.DB.QueryRow(ctx, query, args...))
	if err != nil {
		return Record{}, mapError(err)
	}
	return created, nil
}

func (s *Store) Update(ctx context.Context, rec Record) (Record, error) {
	query, args, err := db.Builder().
		Update("policies").
		SetMap(map[string]any{
			"policy_number":      rec.PolicyNumber,
			"holder_name":        rec.HolderName,
			"vehicle_number":     rec.VehicleNumber,
			"vehicle_type":       rec.VehicleType,
			"insurer":            rec.Insurer,
			"mobile_enc":         rec.MobileEnc,
			"mobile_digest":      rec.MobileDigest,
			"mobile_last4":       rec.MobileLast4,
			"email":              rec.Email,
			"policy_start_date":  rec.StartDate,
			"policy_expiry_date": rec.ExpiryDate,
			"notes":              rec.Notes,
			"updated_at":         squirrel.Expr("now()"),
		}).
		Where(squirrel.Eq{"id": rec.ID, "deleted_at": nil}).
		Suffix("RETURNING " + strings.Join(policyColumns, ", ")).
		ToSql()
	if err != nil {
		return Record{}, err
	}
	updated, err := scanRecord(s.DB.QueryRow(ctx, query, args...))
	if err != nil {
		return Record{}, mapError(err)
	}
	return updated, nil
}

func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	query, args, err := db.Builder().
		Select(policyColumns...).
		From("policies").
		Where(squirrel.Eq{"id": id, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return Record{}, err
	}
	rec, err := scanRecord(s.DB.QueryRow(ctx, query, args...))
	if err != nil {
		return Record{}, mapError(err)
	}
	return rec, nil
}

func listWhere(filter Filter) squirrel.And {
	where := squirrel.And{squirrel.Eq{"deleted_at": nil}}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		or := squirrel.Or{
			squirrel.ILike{"holder_name": pattern},
			squirrel.ILike{"vehicle_number": pattern},
			squirrel.ILike{"policy_number": pattern},
			squirrel.ILike{"insurer": pattern},
		}
		if vehicle := NormalizeVehicleNumber(search); vehicle != "" && vehicle != search {
			or = append(or, squirrel.Like{"vehicle_number": "%" + escapeLike(vehicle) + "%"})
		}
		where = append(where, or)
	}
	if filter.ExpiryFrom != nil {
		where = append(where, squirrel.GtOrEq{"policy_expiry_date": *filter.ExpiryFrom})
	}
	if filter.ExpiryTo != nil {
		where = append(where, squirrel.LtOrEq{"policy_expiry_date": *filter.ExpiryTo})
	}
	return where
}

func (s *Store) List(ctx context.Context, filter Filter) ([]Record, int, error) {
	where := listWhere(filter)

	countSQL, countArgs, err := db.Builder().Select("COUNT(1)").From("policies").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.DB.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := db.Builder().
		Select(policyColumns...).
		From("policies").
		Where(where).
		OrderBy("policy_expiry_date ASC", "holder_name ASC", "id ASC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	out, err := s.queryRecords(ctx, query, args...)
	return out, total, err
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SoftDelete(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "UPDATE policies SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordReminder inserts the history row and bumps the policy counters in one transaction.
func (s *Store) RecordReminder(ctx context.Context, policyID, sentBy, channel string, daysRemaining int, at time.Time) (Reminder, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Reminder{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
    UPDATE policies
    SET reminder_count = reminder_count + 1, last_reminder_at = $2, updated_at = now()
    WHERE id = $1 AND deleted_at IS NULL
  `, policyID, at)
	if err != nil {
		return Reminder{}, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return Reminder{}, ErrNotFound
	}

	reminder := Reminder{PolicyID: policyID, SentBy: sentBy, Channel: channel, DaysRemaining: daysRemaining}
	if err := tx.QueryRow(ctx, `
    INSERT INTO policy_reminders (policy_id, sent_by, channel, days_remaining, created_at)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id, created_at
  `, policyID, nullIfEmpty(sentBy), channel, daysRemaining, at).Scan(&reminder.ID, &reminder.CreatedAt); err != nil {
		return Reminder{}, fmt.Errorf("insert reminder: %w", err)
	}
	return reminder, tx.Commit(ctx)
}

func (s *Store) Reminders(ctx context.Context, policyID string) ([]Reminder, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, policy_id, COALESCE(sent_by::text, ''), channel, days_remaining, created_at
    FROM policy_reminders
    WHERE policy_id = $1
    ORDER BY created_at DESC
  `, policyID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []Reminder{}
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.PolicyID, &r.SentBy, &r.Channel, &r.DaysRemaining, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) FindByVehicle(ctx context.Context, vehicleNumber string, limit int) ([]Record, error) {
	return s.findBy(ctx, squirrel.Eq{"vehicle_number": vehicleNumber}, limit)
}

func (s *Store) FindByMobileDigest(ctx context.Context, digest string, limit int) ([]Record, error) {
	return s.findBy(ctx, squirrel.Eq{"mobile_digest": digest}, limit)
}

func (s *Store) findBy(ctx context.Context, pred squirrel.Eq, limit int) ([]Record, error) {
	query, args, err := db.Builder().
		Select(policyColumns...).
		From("policies").
		Where(pred).
		Where(squirrel.Eq{"deleted_at": nil}).
		OrderBy("policy_expiry_date DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, query, args...)
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(value)
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
