package seed

import (
	"context"
	"os"
	"strings"
	"testing"

	"notifycsc/internal/domain/auth"
	"notifycsc/internal/platform/config"
	"notifycsc/internal/platform/db"
)

func TestRunIsRerunnable(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if strings.TrimSpace(dbURL) == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	cfg := config.FromEnv()
	cfg.DatabaseURL = dbURL
	cfg.SeedAdminEmail = "seed-admin@test.local"
	cfg.SeedAdminPassword = "ChangeMe123!"

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool, "../../../../migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := Run(ctx, pool, cfg); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}

	var admins int
	if err := pool.QueryRow(ctx, "SELECT COUNT(1) FROM users WHERE lower(email) = lower($1)", cfg.SeedAdminEmail).Scan(&admins); err != nil {
		t.Fatalf("count admins: %v", err)
	}
	if admins != 1 {
		t.Fatalf("expected one seeded admin, got %d", admins)
	}

	var granted int
	err = pool.QueryRow(ctx, `
    SELECT COUNT(1) FROM role_permissions rp
    JOIN roles r ON r.id = rp.role_id
    WHERE r.name = $1
  `, string(auth.RoleAdmin)).Scan(&granted)
	if err != nil {
		t.Fatalf("count grants: %v", err)
	}
	if granted != len(auth.RolePermissions[auth.RoleAdmin]) {
		t.Fatalf("expected %d admin grants, got %d", len(auth.RolePermissions[auth.RoleAdmin]), granted)
	}
}
