package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangicheng/orange-juice/pkg/database/testutil"
	"github.com/wangicheng/orange-juice/pkg/model"
	"github.com/wangicheng/orange-juice/pkg/repository"
)

func TestAccountRepositoryCreateAndLeaseCandidates(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := repository.NewAccountRepository(pool)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, "user"+string(rune('a'+i)), "pw")
		require.NoError(t, err)
	}

	leased, err := repo.LeaseCandidates(ctx, 2)
	require.NoError(t, err)
	require.Len(t, leased, 2)
	for _, acc := range leased {
		assert.Equal(t, model.AccountInUse, acc.Status)
	}

	activeLeft, err := repo.LeaseCandidates(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, activeLeft, 1, "only one ACTIVE account should remain")
}

func TestAccountRepositoryReleaseActiveSkipsDisabled(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := repository.NewAccountRepository(pool)
	ctx := context.Background()

	a, err := repo.Create(ctx, "keeper", "pw")
	require.NoError(t, err)
	b, err := repo.Create(ctx, "disabled-one", "pw")
	require.NoError(t, err)

	_, err = repo.LeaseCandidates(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, repo.Disable(ctx, b.ID))

	require.NoError(t, repo.ReleaseActive(ctx, []int64{a.ID, b.ID}))

	activeCount, err := repo.CountByStatus(ctx, model.AccountActive)
	require.NoError(t, err)
	assert.Equal(t, 1, activeCount)

	disabledCount, err := repo.CountByStatus(ctx, model.AccountDisabled)
	require.NoError(t, err)
	assert.Equal(t, 1, disabledCount)
}

func TestAccountRepositoryReleaseStale(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := repository.NewAccountRepository(pool)
	ctx := context.Background()

	acc, err := repo.Create(ctx, "stale-user", "pw")
	require.NoError(t, err)
	_, err = repo.LeaseCandidates(ctx, 1)
	require.NoError(t, err)

	// Never touched: ReleaseStale treats a nil last_used as stale
	// regardless of ttl.
	n, err := repo.ReleaseStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	loaded, err := repo.CountByStatus(ctx, model.AccountActive)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	_ = acc
}

func TestAccountRepositoryTouchLastUsedPreventsImmediateReclaim(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := repository.NewAccountRepository(pool)
	ctx := context.Background()

	acc, err := repo.Create(ctx, "fresh-user", "pw")
	require.NoError(t, err)
	_, err = repo.LeaseCandidates(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, repo.TouchLastUsed(ctx, acc.ID, time.Now()))

	n, err := repo.ReleaseStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "a recently touched lease is not stale")
}
