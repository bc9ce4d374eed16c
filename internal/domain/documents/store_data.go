package documents

import (
	"context"
	"errors"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"notifycsc/internal/platform/db"
	"notifycsc/internal/platform/querier"
)

var documentColumns = []string{
	"d.id", "COALESCE(d.category_id::text, '')", "COALESCE(c.name, '')",
	"d.title", "d.description", "d.file_name", "d.content_type", "d.size_bytes", "d.storage_key",
	"d.status", "d.rejection_reason", "COALESCE(d.uploaded_by::text, '')", "COALESCE(d.reviewed_by::text, '')",
	"d.reviewed_at", "d.created_at", "d.updated_at",
}

type Store struct {
	DB querier.Querier
}

func NewStore(q querier.Querier) *Store {
	return &Store{DB: q}
}

func mapError(err error, notFound error) error {
	mapped := db.MapError(err, "document")
	switch {
	case errors.Is(mapped, db.ErrAlreadyExists):
		return ErrDuplicateCategory
	case errors.Is(mapped, db.ErrNotFound), errors.Is(mapped, db.ErrConstraint):
		return notFound
	}
	return mapped
}

func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT c.id, c.name, c.description, COUNT(d.id), c.created_at
    FROM document_categories c
    LEFT JOIN documents d ON d.category_id = c.id
    GROUP BY c.id
    ORDER BY lower(c.name)
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.DocumentCount, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, name, description string) (Category, error) {
	c := Category{Name: name, Description: description}
	err := s.DB.QueryRow(ctx, `
    INSERT INTO document_categories (name, description)
    VALUES ($1,$2)
    RETURNING id, created_at
  `, name, description).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Category{}, mapError(err, ErrCategoryNotFound)
	}
	return c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM document_categories WHERE id = $1", id)
	if err != nil {
		return mapError(err, ErrCategoryNotFound)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

func (s *Store) CategoryExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM document_categories WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		if errors.Is(mapError(err, ErrCategoryNotFound), ErrCategoryNotFound) {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}

func (s *Store) Create(ctx context.Context, doc Document) (Document, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO documents (category_id, title, description, file_name, content_type, size_bytes, storage_key, status, uploaded_by, reviewed_by, reviewed_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    RETURNING id
  `, nullIfEmpty(doc.CategoryID), doc.Title, doc.Description, doc.FileName, doc.ContentType, doc.SizeBytes,
		doc.StorageKey, string(doc.Status), nullIfEmpty(doc.UploadedBy), nullIfEmpty(doc.ReviewedBy), doc.ReviewedAt).Scan(&id)
	if err != nil {
		return Document{}, mapError(err, ErrCategoryNotFound)
	}
	return s.Get(ctx, id)
}

func selectDocuments() squirrel.SelectBuilder {
	return db.Builder().
		Select(documentColumns...).
		From("documents d").
		LeftJoin("document_categories c ON c.id = d.category_id")
}

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	var status string
	err := row.Scan(&d.ID, &d.CategoryID, &d.CategoryName, &d.Title, &d.Description, &d.FileName, &d.ContentType,
		&d.SizeBytes, &d.StorageKey, &status, &d.RejectionReason, &d.UploadedBy, &d.ReviewedBy,
		&d.ReviewedAt, &d.CreatedAt, &d.UpdatedAt)
	d.Status = Status(status)
	return d, err
}

func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	query, args, err := selectDocuments().Where(squirrel.Eq{"d.id": id}).ToSql()
	if err != nil {
		return Document{}, err
	}
	doc, err := scanDocument(s.DB.QueryRow(ctx, query, args...))
	if err != nil {
		return Document{}, mapError(err, ErrNotFound)
	}
	return doc, nil
}

func listWhere(filter Filter) squirrel.And {
	where := squirrel.And{}
	if filter.Status != "" {
		where = append(where, squirrel.Eq{"d.status": string(filter.Status)})
	}
	if filter.CategoryID != "" {
		where = append(where, squirrel.Expr("d.category_id::text = ?", filter.CategoryID))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(search) + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"d.title": pattern},
			squirrel.ILike{"d.description": pattern},
			squirrel.ILike{"d.file_name": pattern},
		})
	}
	if !filter.Viewer.Reviewer {
		where = append(where, squirrel.Or{
			squirrel.Eq{"d.status": string(StatusApproved)},
			squirrel.Expr("d.uploaded_by::text = ?", filter.Viewer.UserID),
		})
	}
	return where
}

func (s *Store) List(ctx context.Context, filter Filter) ([]Document, int, error) {
	where := listWhere(filter)

	countSQL, countArgs, err := db.Builder().Select("COUNT(1)").From("documents d").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.DB.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := selectDocuments().
		Where(where).
		OrderBy("d.created_at DESC", "d.id").
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

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, doc)
	}
	return out, total, rows.Err()
}

// Review moves a pending document to approved or rejected. A document that is
// no longer pending yields ErrAlreadyReviewed.
func (s *Store) Review(ctx context.Context, id, reviewerID string, status Status, reason string) (Document, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE documents
    SET status = $3, rejection_reason = $4, reviewed_by = $2, reviewed_at = now(), updated_at = now()
    WHERE id = $1 AND status = 'pending'
  `, id, nullIfEmpty(reviewerID), string(status), reason)
	if err != nil {
		return Document{}, mapError(err, ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return Document{}, err
		}
		return Document{}, ErrAlreadyReviewed
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return mapError(err, ErrNotFound)
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
