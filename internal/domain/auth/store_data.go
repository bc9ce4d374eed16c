package auth

import (
	"context"
	"errors"
	"strings"
	"time"

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

const userColumns = "u.id, u.email, u.name, u.role_id, r.name, u.status, u.mfa_enabled, u.last_login, u.created_at"

func scanUser(row pgx.Row) (User, error) {
	var out User
	err := row.Scan(&out.ID, &out.Email, &out.Name, &out.RoleID, &out.Role, &out.Status, &out.MFAEnabled, &out.LastLogin, &out.CreatedAt)
	return out, err
}

func (s *Store) FindActiveUserByEmail(ctx context.Context, email string) (AuthUser, error) {
	var out AuthUser
	err := s.DB.QueryRow(ctx, `
    SELECT u.id, u.email, u.name, u.role_id, r.name, u.password_hash, u.mfa_enabled, u.mfa_secret_enc
    FROM users u
    JOIN roles r ON u.role_id = r.id
    WHERE lower(u.email) = lower($1) AND u.status = $2
  `, strings.TrimSpace(email), UserStatusActive).Scan(&out.ID, &out.Email, &out.Name, &out.RoleID, &out.RoleName, &out.Password, &out.MFAEnabled, &out.MFASecretEn)
	if errors.Is(err, pgx.ErrNoRows) {
		return AuthUser{}, ErrUserNotFound
	}
	return out, err
}

func (s *Store) GetUser(ctx context.Context, userID string) (User, error) {
	out, err := scanUser(s.DB.QueryRow(ctx, "SELECT "+userColumns+" FROM users u JOIN roles r ON u.role_id = r.id WHERE u.id = $1", userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return out, err
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET last_login = now() WHERE id = $1", userID)
	return err
}

func (s *Store) CreateSession(ctx context.Context, userID, sessionHash string, expires time.Time) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO sessions (user_id, refresh_token, expires_at)
    VALUES ($1,$2,$3)
  `, userID, sessionHash, expires)
	return err
}

func (s *Store) SessionValid(ctx context.Context, userID, sessionHash string) (bool, error) {
	var valid bool
	if err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (
      SELECT 1
      FROM sessions s
      JOIN users u ON u.id = s.user_id
      WHERE s.user_id = $1 AND s.refresh_token = $2 AND s.expires_at > now()
        AND s.revoked_at IS NULL AND u.status = $3
    )
  `, userID, sessionHash, UserStatusActive).Scan(&valid); err != nil {
		return false, err
	}
	return valid, nil
}

func (s *Store) RotateSession(ctx context.Context, userID, oldHash, newHash string, expires time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE sessions
    SET refresh_token = $1, expires_at = $2, rotated_at = now()
    WHERE user_id = $3 AND refresh_token = $4 AND revoked_at IS NULL AND expires_at > now()
  `, newHash, expires, userID, oldHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RevokeSession(ctx context.Context, userID, sessionHash string) error {
	_, err := s.DB.Exec(ctx, "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND refresh_token = $2 AND revoked_at IS NULL", userID, sessionHash)
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.DB.Exec(ctx, "DELETE FROM sessions WHERE expires_at < $1 OR revoked_at < $1", before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) UpdateMFASecret(ctx context.Context, userID string, secretEnc []byte) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET mfa_secret_enc = $1, mfa_enabled = false WHERE id = $2", secretEnc, userID)
	return err
}

func (s *Store) GetMFASecret(ctx context.Context, userID string) ([]byte, error) {
	var secretEnc []byte
	if err := s.DB.QueryRow(ctx, "SELECT mfa_secret_enc FROM users WHERE id = $1", userID).Scan(&secretEnc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return secretEnc, nil
}

func (s *Store) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET mfa_enabled = $1 WHERE id = $2", enabled, userID)
	return err
}

func (s *Store) UserIDByEmail(ctx context.Context, email string) (string, error) {
	var userID string
	err := s.DB.QueryRow(ctx, "SELECT id FROM users WHERE lower(email) = lower($1) AND status = $2", strings.TrimSpace(email), UserStatusActive).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUserNotFound
	}
	return userID, err
}

func (s *Store) CreatePasswordReset(ctx context.Context, userID, tokenHash string, expires time.Time) error {
	_, err := s.DB.Exec(ctx, "INSERT INTO password_resets (user_id, token, expires_at) VALUES ($1, $2, $3)", userID, tokenHash, expires)
	return err
}

// ConsumePasswordReset marks the token used, sets the new hash and revokes the
// user's sessions in one transaction.
func (s *Store) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string) (string, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	err = tx.QueryRow(ctx, `
    UPDATE password_resets
    SET used_at = now()
    WHERE token = $1 AND expires_at > now() AND used_at IS NULL
    RETURNING user_id
  `, tokenHash).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrInvalidResetToken
	}
	if err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", passwordHash, userID); err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx, "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL", userID); err != nil {
		return "", err
	}
	return userID, tx.Commit(ctx)
}

func (s *Store) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	var allowed bool
	err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (
      SELECT 1
      FROM role_permissions rp
      JOIN permissions p ON p.id = rp.permission_id
      WHERE rp.role_id = $1 AND p.key = $2
    )
  `, roleID, permission).Scan(&allowed)
	return allowed, err
}

func (s *Store) RoleID(ctx context.Context, role Role) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, "SELECT id FROM roles WHERE name = $1", string(role)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrInvalidRole
	}
	return id, err
}

func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash, roleID string) (User, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO users (email, name, password_hash, role_id)
    VALUES ($1,$2,$3,$4)
    RETURNING id
  `, strings.TrimSpace(email), strings.TrimSpace(name), passwordHash, roleID).Scan(&id)
	if err != nil {
		if errors.Is(db.MapError(err, "user"), db.ErrAlreadyExists) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return s.GetUser(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context, role Role, limit, offset int) ([]User, int, error) {
	filter := squirrel.And{}
	if role != "" {
		filter = append(filter, squirrel.Eq{"r.name": string(role)})
	}

	countSQL, countArgs, err := db.Builder().Select("COUNT(1)").
		From("users u").Join("roles r ON u.role_id = r.id").
		Where(filter).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.DB.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listSQL, listArgs, err := db.Builder().Select(userColumns).
		From("users u").Join("roles r ON u.role_id = r.id").
		Where(filter).
		OrderBy("u.created_at DESC").
		Limit(uint64(limit)).Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.DB.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, user)
	}
	return out, total, rows.Err()
}

func (s *Store) SetUserStatus(ctx context.Context, userID, status string) error {
	tag, err := s.DB.Exec(ctx, "UPDATE users SET status = $1 WHERE id = $2", status, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	if status != UserStatusActive {
		_, err = s.DB.Exec(ctx, "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL", userID)
	}
	return err
}

func (s *Store) UserIDsByRole(ctx context.Context, roles ...Role) ([]string, error) {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	query, args, err := db.Builder().Select("u.id").
		From("users u").Join("roles r ON u.role_id = r.id").
		Where(squirrel.Eq{"r.name": names, "u.status": UserStatusActive}).
		OrderBy("u.created_at").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
