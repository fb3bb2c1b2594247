package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangicheng/orange-juice/pkg/database/testutil"
	"github.com/wangicheng/orange-juice/pkg/model"
	"github.com/wangicheng/orange-juice/pkg/repository"
)

func seedProblem(t *testing.T, repo *repository.ProblemRepository) model.Problem {
	t.Helper()
	p, err := repo.Upsert(context.Background(), model.Problem{
		DisplayID:        "p-" + t.Name(),
		SubmitID:         1,
		Title:            "fixture problem",
		AllowedLanguages: []string{"python3"},
	})
	require.NoError(t, err)
	return p
}

func TestTestCaseRepositoryFoundTestcaseIsIdempotent(t *testing.T) {
	pool := testutil.NewPool(t)
	problems := repository.NewProblemRepository(pool)
	repo := repository.NewTestCaseRepository(pool)
	ctx := context.Background()

	problem := seedProblem(t, problems)

	require.NoError(t, repo.FoundTestcase(ctx, problem.ID, "1 2 3"))
	require.NoError(t, repo.FoundTestcase(ctx, problem.ID, "1 2 3")) // duplicate, must be a no-op
	require.NoError(t, repo.FoundTestcase(ctx, problem.ID, "4 5 6"))

	n, err := repo.CountByProblem(ctx, problem.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tcs, err := repo.ListByProblem(ctx, problem.ID)
	require.NoError(t, err)
	require.Len(t, tcs, 2)
	assert.Equal(t, "1 2 3", tcs[0].Content)
	assert.Equal(t, "4 5 6", tcs[1].Content)
}

func TestTestCaseRepositoryCountByProblemEmpty(t *testing.T) {
	pool := testutil.NewPool(t)
	problems := repository.NewProblemRepository(pool)
	repo := repository.NewTestCaseRepository(pool)

	problem := seedProblem(t, problems)

	n, err := repo.CountByProblem(context.Background(), problem.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
