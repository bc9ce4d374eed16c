package support

import (
	"context"
	"errors"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"notifycsc/internal/platform/db"
	"notifycsc/internal/platform/querier"
)

type Store struct {
	DB querier.TxBeginner
}

func NewStore(pool querier.TxBeginner) *Store {
	return &Store{DB: pool}
}

func mapError(err error) error {
	mapped := db.MapError(err, "ticket")
	if errors.Is(mapped, db.ErrNotFound) || errors.Is(mapped, db.ErrConstraint) {
		return ErrNotFound
	}
	return mapped
}

func selectTickets() squirrel.SelectBuilder {
	return db.Builder().
		Select("t.id", "t.subject", "t.description", "t.status", "t.created_by::text", "COALESCE(u.name, '')",
			"(SELECT COUNT(1) FROM ticket_comments c WHERE c.ticket_id = t.id)",
			"t.created_at", "t.updated_at", "t.closed_at").
		From("support_tickets t").
		LeftJoin("users u ON u.id = t.created_by")
}

func scanTicket(row pgx.Row) (Ticket, error) {
	var t Ticket
	var status string
	err := row.Scan(&t.ID, &t.Subject, &t.Description, &status, &t.CreatedBy, &t.CreatedByName,
		&t.CommentCount, &t.CreatedAt, &t.UpdatedAt, &t.ClosedAt)
	t.Status = Status(status)
	return t, err
}

func (s *Store) Create(ctx context.Context, subject, description, createdBy string) (Ticket, error) {
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO support_tickets (subject, description, created_by)
    VALUES ($1,$2,$3)
    RETURNING id
  `, subject, description, createdBy).Scan(&id); err != nil {
		return Ticket{}, mapError(err)
	}
	return s.Get(ctx, id)
}

func (s *Store) Get(ctx context.Context, id string) (Ticket, error) {
	query, args, err := selectTickets().Where(squirrel.Eq{"t.id": id}).ToSql()
	if err != nil {
		return Ticket{}, err
	}
	t, err := scanTicket(s.DB.QueryRow(ctx, query, args...))
	if err != nil {
		return Ticket{}, mapError(err)
	}
	return t, nil
}

func (s *Store) List(ctx context.Context, filter Filter) ([]Ticket, int, error) {
	where := squirrel.And{}
	if filter.Status != "" {
		where = append(where, squirrel.Eq{"t.status": string(filter.Status)})
	}
	if filter.CreatedBy != "" {
		where = append(where, squirrel.Expr("t.created_by::text = ?", filter.CreatedBy))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + search + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"t.subject": pattern},
			squirrel.ILike{"t.description": pattern},
		})
	}

	countSQL, countArgs, err := db.Builder().Select("COUNT(1)").From("support_tickets t").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.DB.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := selectTickets().
		Where(where).
		OrderBy("t.updated_at DESC", "t.id").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *Store) Comments(ctx context.Context, ticketID string) ([]Comment, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT c.id, c.ticket_id, COALESCE(c.author_id::text, ''), COALESCE(u.name, ''), c.is_staff, c.body, c.created_at
    FROM ticket_comments c
    LEFT JOIN users u ON u.id = c.author_id
    WHERE c.ticket_id = $1
    ORDER BY c.created_at ASC, c.id ASC
  `, ticketID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TicketID, &c.AuthorID, &c.AuthorName, &c.IsStaff, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddComment locks the ticket row so a concurrent close cannot slip in
// between the status check and the insert.
func (s *Store) AddComment(ctx context.Context, ticketID, authorID string, isStaff bool, body string) (Comment, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Comment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	if err := tx.QueryRow(ctx, "SELECT status FROM support_tickets WHERE id = $1 FOR UPDATE", ticketID).Scan(&status); err != nil {
		return Comment{}, mapError(err)
	}
	if Status(status) == StatusClosed {
		return Comment{}, ErrTicketClosed
	}

	c := Comment{TicketID: ticketID, AuthorID: authorID, IsStaff: isStaff, Body: body}
	if err := tx.QueryRow(ctx, `
    INSERT INTO ticket_comments (ticket_id, author_id, is_staff, body)
    VALUES ($1,$2,$3,$4)
    RETURNING id, created_at
  `, ticketID, authorID, isStaff, body).Scan(&c.ID, &c.CreatedAt); err != nil {
		return Comment{}, err
	}
	if _, err := tx.Exec(ctx, "UPDATE support_tickets SET updated_at = now() WHERE id = $1", ticketID); err != nil {
		return Comment{}, err
	}
	return c, tx.Commit(ctx)
}

// UpdateStatus applies the change only if the ticket is still in from.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to Status) (Ticket, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE support_tickets
    SET status = $3,
        updated_at = now(),
        closed_at = CASE WHEN $3 = 'closed' THEN now() ELSE NULL END
    WHERE id = $1 AND status = $2
  `, id, string(from), string(to))
	if err != nil {
		return Ticket{}, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return Ticket{}, ErrInvalidTransition
	}
	return s.Get(ctx, id)
}
