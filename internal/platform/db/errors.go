package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrConstraint    = errors.New("constraint violated")
)

// MapError translates pgx errors into the package sentinels so domain stores
// can match them with errors.Is.
func MapError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", entity, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", entity, ErrAlreadyExists)
		case "23503":
			return fmt.Errorf("%s: %w", entity, ErrNotFound)
		case "23514", "22P02":
			return fmt.Errorf("%s: %w", entity, ErrConstraint)
		}
	}
	return fmt.Errorf("%s: %w", entity, err)
}
