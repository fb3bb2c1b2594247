package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wangicheng/orange-juice/pkg/model"
)

// TestCaseRepository implements submitter.Recorder against Postgres.
type TestCaseRepository struct {
	pool *pgxpool.Pool
}

// NewTestCaseRepository returns a TestCaseRepository backed by pool.
func NewTestCaseRepository(pool *pgxpool.Pool) *TestCaseRepository {
	return &TestCaseRepository{pool: pool}
}

// FoundTestcase records a discovered test case. Idempotent on
// (problem_id, content) via the unique constraint from the migration;
// a conflicting insert is a silent no-op.
func (r *TestCaseRepository) FoundTestcase(ctx context.Context, problemID int64, content string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO testcases (problem_id, content)
		VALUES ($1, $2)
		ON CONFLICT (problem_id, content) DO NOTHING
	`, problemID, content)
	if err != nil {
		return fmt.Errorf("repository: recording testcase for problem %d: %w", problemID, err)
	}
	return nil
}

// ListByProblem returns every test case discovered so far for problemID,
// ordered by discovery time, for the read-only listing endpoint.
func (r *TestCaseRepository) ListByProblem(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, problem_id, content, created_at
		FROM testcases
		WHERE problem_id = $1
		ORDER BY created_at, id
	`, problemID)
	if err != nil {
		return nil, fmt.Errorf("repository: listing testcases for problem %d: %w", problemID, err)
	}
	tcs, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.TestCase])
	if err != nil {
		return nil, fmt.Errorf("repository: scanning testcases for problem %d: %w", problemID, err)
	}
	return tcs, nil
}

// CountByProblem returns how many test cases have been discovered for
// problemID.
func (r *TestCaseRepository) CountByProblem(ctx context.Context, problemID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM testcases WHERE problem_id = $1`, problemID).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository: counting testcases for problem %d: %w", problemID, err)
	}
	return n, nil
}
