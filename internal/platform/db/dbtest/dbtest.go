// Package dbtest runs repository tests against an embedded Postgres with the
// clinicops schema applied. Tests connect as an unprivileged role so row-level
// security is enforced.
package dbtest

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinicops/internal/platform/db"
	"github.com/clinicops/clinicops/migrations"
)

const (
	adminUser    = "postgres"
	adminPass    = "postgres"
	appUser      = "clinicops_app"
	appPass      = "clinicops_app"
	databaseName = "clinicops_test"
)

var appDSN string

// Main starts Postgres on port, migrates it and runs the tests of m. Each
// package passes its own port so packages can run in parallel. With -short the
// database is not started and Pool skips.
func Main(m *testing.M, port uint32) {
	flag.Parse()
	if testing.Short() || os.Getenv("CLINICOPS_SKIP_PG") != "" {
		os.Exit(m.Run())
	}

	dir, err := os.MkdirTemp("", "clinicops-pg-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create temp dir: %v\n", err)
		os.Exit(1)
	}

	pg := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Database(databaseName).
			Username(adminUser).
			Password(adminPass).
			Version(embeddedpostgres.V16).
			RuntimePath(filepath.Join(dir, "runtime")).
			DataPath(filepath.Join(dir, "data")).
			StartTimeout(45 * time.Second),
	)
	if err := pg.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "start embedded postgres: %v\n", err)
		os.Exit(1)
	}

	adminDSN := fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable", adminUser, adminPass, port, databaseName)
	appDSN = fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable", appUser, appPass, port, databaseName)

	code := 1
	if err := prepare(adminDSN); err != nil {
		fmt.Fprintf(os.Stderr, "prepare database: %v\n", err)
	} else {
		code = m.Run()
	}

	if err := pg.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "stop embedded postgres: %v\n", err)
	}
	os.RemoveAll(dir)
	os.Exit(code)
}

func prepare(adminDSN string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, adminDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		return err
	}
	stmts := []string{
		fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '%s'", appUser, appPass),
		fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO %s", appUser),
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}

// Pool returns a pool connected as the application role, skipping the test
// when no database was started.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if appDSN == "" {
		t.Skip("embedded postgres not started")
	}
	pool, err := db.NewPool(context.Background(), db.PoolConfig{URL: appDSN, MaxConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// ClinicID returns a clinic id unique to the test so tests sharing a database
// never see each other's rows.
func ClinicID(t *testing.T) string {
	return fmt.Sprintf("c%d", time.Now().UnixNano())
}
