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

func TestProblemRepositoryUpsertAndGet(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := repository.NewProblemRepository(pool)
	ctx := context.Background()

	created, err := repo.Upsert(ctx, model.Problem{
		DisplayID:        "abc123",
		SubmitID:         42,
		Title:            "Two Sum",
		AllowedLanguages: []string{"python3", "cpp"},
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	byID, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, byID)

	byDisplay, err := repo.GetByDisplayID(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, created, byDisplay)

	// Re-upserting the same display_id updates in place rather than
	// creating a second row.
	updated, err := repo.Upsert(ctx, model.Problem{
		DisplayID:        "abc123",
		SubmitID:         42,
		Title:            "Two Sum (renamed)",
		AllowedLanguages: []string{"python3"},
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Two Sum (renamed)", updated.Title)
	assert.Equal(t, []string{"python3"}, updated.AllowedLanguages)
}

func TestProblemRepositoryGetNotFound(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := repository.NewProblemRepository(pool)

	_, err := repo.Get(context.Background(), 99999)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetByDisplayID(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCodeTemplateSetRepositoryGet(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := repository.NewCodeTemplateSetRepository(pool)
	ctx := context.Background()

	var id int64
	err := pool.QueryRow(ctx, `
		INSERT INTO code_template_sets (name, language, description, templates)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, "python3-default", "python3", "default python3 probe templates", map[string]string{
		"get_next_char":             "print(ord(s[{position}]) >= {number})",
		"get_prefix_length_length":  "print(len(str(len(s))) >= {number})",
		"get_prefix_length":         "print(len(s) >= {number})",
		"calibration":               "print('x' * {number})",
	}).Scan(&id)
	require.NoError(t, err)

	set, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "python3-default", set.Name)
	assert.Equal(t, "python3", set.Language)
	assert.Len(t, set.Templates, 4)
	assert.Contains(t, set.Templates[model.TemplateGetNextChar], "{position}")

	_, err = repo.Get(ctx, 99999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
