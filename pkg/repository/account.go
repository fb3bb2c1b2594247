// Package repository is the persistence boundary: thin, transactional
// wrappers around pgx queries, one file per aggregate. Grounded on
// codeready-toolchain/tarsy/pkg/queue/worker.go's claimNextSession (the
// SELECT ... FOR UPDATE SKIP LOCKED claim pattern) translated from ent's
// generated query builder to raw SQL, since ent's code generator cannot
// be run in this environment (see DESIGN.md).
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wangicheng/orange-juice/pkg/model"
)

// AccountRepository implements accountpool.Store against Postgres.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns an AccountRepository backed by pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// LeaseCandidates atomically claims up to n ACTIVE accounts, flipping
// them to IN_USE within a single transaction so two concurrent leases can
// never claim the same row. SKIP LOCKED lets concurrent leases proceed
// past rows already locked by another in-flight lease rather than
// blocking on them.
func (r *AccountRepository) LeaseCandidates(ctx context.Context, n int) ([]model.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: begin lease tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, username, password, status, last_used, created_at AS created
		FROM accounts
		WHERE status = 'ACTIVE'
		ORDER BY last_used NULLS FIRST, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, n)
	if err != nil {
		return nil, fmt.Errorf("repository: select candidates: %w", err)
	}
	accounts, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Account])
	if err != nil {
		return nil, fmt.Errorf("repository: scan candidates: %w", err)
	}
	if len(accounts) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET status = 'IN_USE' WHERE id = ANY($1)`, ids); err != nil {
		return nil, fmt.Errorf("repository: claim candidates: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: commit lease tx: %w", err)
	}

	for i := range accounts {
		accounts[i].Status = model.AccountInUse
	}
	return accounts, nil
}

// ReleaseActive flips every listed account back to ACTIVE, skipping any
// that have since been DISABLED (a sink state nothing may leave).
func (r *AccountRepository) ReleaseActive(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET status = 'ACTIVE'
		WHERE id = ANY($1) AND status <> 'DISABLED'
	`, ids)
	if err != nil {
		return fmt.Errorf("repository: release accounts: %w", err)
	}
	return nil
}

// Disable marks an account permanently DISABLED.
func (r *AccountRepository) Disable(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET status = 'DISABLED' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: disable account %d: %w", id, err)
	}
	return nil
}

// TouchLastUsed records when an account was last handed out by the pool,
// used to round-robin toward the least-recently-used ACTIVE accounts.
func (r *AccountRepository) TouchLastUsed(ctx context.Context, id int64, when time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET last_used = $2 WHERE id = $1`, id, when)
	if err != nil {
		return fmt.Errorf("repository: touch last_used for account %d: %w", id, err)
	}
	return nil
}

// Create inserts a freshly registered account as ACTIVE, used by the
// create-accounts task after a successful OJ Client registration.
func (r *AccountRepository) Create(ctx context.Context, username, password string) (model.Account, error) {
	var acc model.Account
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (username, password, status)
		VALUES ($1, $2, 'ACTIVE')
		RETURNING id, username, password, status, last_used, created_at
	`, username, password)
	if err := row.Scan(&acc.ID, &acc.Username, &acc.Password, &acc.Status, &acc.LastUsed, &acc.Created); err != nil {
		return model.Account{}, fmt.Errorf("repository: create account %q: %w", username, err)
	}
	return acc, nil
}

// ReleaseStale flips every IN_USE account whose last_used timestamp is
// older than ttl (or has never been touched at all — a lease whose task
// crashed before issuing a single probe) back to ACTIVE, returning how
// many rows were reclaimed. The Orchestrator holds no in-memory locks, so
// a crashed worker would otherwise leave its lease's accounts IN_USE
// forever; this is the janitor that reclaims them.
func (r *AccountRepository) ReleaseStale(ctx context.Context, ttl time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET status = 'ACTIVE'
		WHERE status = 'IN_USE'
		  AND (last_used IS NULL OR last_used < now() - make_interval(secs => $1))
	`, ttl.Seconds())
	if err != nil {
		return 0, fmt.Errorf("repository: releasing stale accounts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus returns how many accounts currently hold the given
// status, used by the scheduler's account metrics refresh.
func (r *AccountRepository) CountByStatus(ctx context.Context, status model.AccountStatus) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM accounts WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository: count accounts by status %q: %w", status, err)
	}
	return n, nil
}
