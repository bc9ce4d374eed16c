package auth

import (
	"context"
	"time"
)

type StoreAPI interface {
	FindActiveUserByEmail(ctx context.Context, email string) (AuthUser, error)
	GetUser(ctx context.Context, userID string) (User, error)
	UpdateLastLogin(ctx context.Context, userID string) error

	CreateSession(ctx context.Context, userID, sessionHash string, expires time.Time) error
	SessionValid(ctx context.Context, userID, sessionHash string) (bool, error)
	RotateSession(ctx context.Context, userID, oldHash, newHash string, expires time.Time) (bool, error)
	RevokeSession(ctx context.Context, userID, sessionHash string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)

	UpdateMFASecret(ctx context.Context, userID string, secretEnc []byte) error
	GetMFASecret(ctx context.Context, userID string) ([]byte, error)
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error

	UserIDByEmail(ctx context.Context, email string) (string, error)
	CreatePasswordReset(ctx context.Context, userID, tokenHash string, expires time.Time) error
	ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string) (string, error)

	HasPermission(ctx context.Context, roleID, permission string) (bool, error)
	RoleID(ctx context.Context, role Role) (string, error)
	CreateUser(ctx context.Context, email, name, passwordHash, roleID string) (User, error)
	ListUsers(ctx context.Context, role Role, limit, offset int) ([]User, int, error)
	SetUserStatus(ctx context.Context, userID, status string) error
	UserIDsByRole(ctx context.Context, roles ...Role) ([]string, error)
}
