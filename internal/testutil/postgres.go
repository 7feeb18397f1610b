package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Environment variables enabling integration tests against live services.
const (
	TestDatabaseEnv     = "TRIAGE_TEST_DATABASE_URL"
	TestRedisAddrEnv    = "TRIAGE_TEST_REDIS_ADDR"
	TestKafkaBrokersEnv = "TRIAGE_TEST_KAFKA_BROKERS"
)

// RequireEnv returns the trimmed value of name or skips the test.
func RequireEnv(t *testing.T, name string) string {
	t.Helper()
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		t.Skipf("%s not set", name)
	}
	return value
}

// NewPostgresTestPool connects to TRIAGE_TEST_DATABASE_URL with
// search_path set to a throwaway schema. Cleanup drops the schema, so the
// ticket and checkpoint tables never leak between test runs.
func NewPostgresTestPool(t *testing.T) (*pgxpool.Pool, string, func()) {
	t.Helper()
	dbURL := RequireEnv(t, TestDatabaseEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect admin pool: %v", err)
	}
	fail := func(format string, args ...any) {
		admin.Close()
		t.Fatalf(format, args...)
	}

	schema := fmt.Sprintf("triage_test_%d", time.Now().UnixNano())
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		fail("create schema %s: %v", schema, err)
	}

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		fail("parse %s: %v", TestDatabaseEnv, err)
	}
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err == nil {
		err = pool.Ping(ctx)
	}
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		fail("connect schema pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		_, _ = admin.Exec(dropCtx, "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	}
	return pool, cfg.ConnConfig.ConnString(), cleanup
}
