// Package seed brings roles, permissions and the first admin account in line
// with the static role table.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"notifycsc/internal/domain/auth"
	"notifycsc/internal/platform/config"
	"notifycsc/internal/platform/db"
)

// Run makes permissions, roles and their links match the static role table
// and creates the first admin user when configured. It is safe to rerun.
func Run(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if err := ensurePermissions(ctx, pool); err != nil {
		return err
	}

	roleIDs, err := ensureRoles(ctx, pool)
	if err != nil {
		return err
	}

	if err := ensureRolePermissions(ctx, pool, roleIDs); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, "INSERT INTO notification_settings (id) VALUES (true) ON CONFLICT (id) DO NOTHING"); err != nil {
		return err
	}

	return ensureAdminUser(ctx, pool, roleIDs[auth.RoleAdmin], cfg.SeedAdminEmail, cfg.SeedAdminPassword)
}

func ensurePermissions(ctx context.Context, pool *pgxpool.Pool) error {
	for _, perm := range auth.DefaultPermissions {
		query, args, err := db.Builder().Insert("permissions").Columns("key").Values(perm).
			Suffix("ON CONFLICT (key) DO NOTHING").ToSql()
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

func ensureRoles(ctx context.Context, pool *pgxpool.Pool) (map[auth.Role]string, error) {
	roleIDs := map[auth.Role]string{}
	for _, role := range auth.Roles {
		var id string
		err := pool.QueryRow(ctx, `
    INSERT INTO roles (name) VALUES ($1)
    ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
    RETURNING id
  `, string(role)).Scan(&id)
		if err != nil {
			return nil, err
		}
		roleIDs[role] = id
	}
	return roleIDs, nil
}

func ensureRolePermissions(ctx context.Context, pool *pgxpool.Pool, roleIDs map[auth.Role]string) error {
	permMap := map[string]string{}
	rows, err := pool.Query(ctx, "SELECT id, key FROM permissions")
	if err != nil {
		return err
	}
	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			rows.Close()
			return err
		}
		permMap[key] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for role, perms := range auth.RolePermissions {
		roleID := roleIDs[role]
		for _, permKey := range perms {
			permID, ok := permMap[permKey]
			if !ok {
				return fmt.Errorf("permission not found: %s", permKey)
			}
			if _, err := pool.Exec(ctx, "INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", roleID, permID); err != nil {
				return err
			}
		}
	}
	return nil
}

func ensureAdminUser(ctx context.Context, pool *pgxpool.Pool, roleID, email, password string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	var exists bool
	if err := pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))", email).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, "INSERT INTO users (email, name, password_hash, role_id) VALUES ($1, $2, $3, $4)", email, "Administrator", hash, roleID); err != nil {
		return err
	}
	slog.Info("seeded admin user", "email", email)
	return nil
}
