// Package testutil provides a shared, migrated Postgres test database for
// repository and API integration tests. Grounded on
// codeready-toolchain/tarsy/test/util/database.go's shared-testcontainer
// pattern (sync.Once container start, wait.ForLog occurrence 2), adapted
// from ent's per-test-schema isolation to a single shared schema truncated
// between tests, since pkg/database.NewPool applies golang-migrate
// migrations rather than ent's generated schema.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wangicheng/orange-juice/pkg/database"
)

var (
	sharedCfg     database.Config
	containerOnce sync.Once
	containerErr  error
)

// NewPool returns a pgxpool.Pool connected to a shared, migrated Postgres
// testcontainer (started once per test binary) and truncates every table
// so the caller starts from an empty database. The pool is closed
// automatically via t.Cleanup.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	containerOnce.Do(func() { startSharedContainer(ctx, t) })
	require.NoError(t, containerErr, "shared postgres testcontainer failed to start")

	pool, err := database.NewPool(ctx, sharedCfg)
	require.NoError(t, err, "connecting to shared test database")
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		TRUNCATE testcases, tasks, code_template_sets, problems, accounts RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err, "truncating shared test database")

	return pool
}

func startSharedContainer(ctx context.Context, t *testing.T) {
	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("orangejuice_test"),
		postgres.WithUsername("orangejuice"),
		postgres.WithPassword("orangejuice"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		containerErr = fmt.Errorf("testutil: starting postgres container: %w", err)
		return
	}

	host, err := container.Host(ctx)
	if err != nil {
		containerErr = fmt.Errorf("testutil: resolving container host: %w", err)
		return
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		containerErr = fmt.Errorf("testutil: resolving mapped port: %w", err)
		return
	}

	sharedCfg = database.Config{
		Host:            host,
		Port:            port.Int(),
		User:            "orangejuice",
		Password:        "orangejuice",
		Database:        "orangejuice_test",
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 15 * time.Minute,
	}
	t.Logf("shared postgres testcontainer ready: %s:%d", host, port.Int())
}
