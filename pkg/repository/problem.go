package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wangicheng/orange-juice/pkg/model"
)

// ErrNotFound is returned by Get-style repository methods when the
// requested row does not exist.
var ErrNotFound = errors.New("repository: not found")

// ProblemRepository implements persistence for model.Problem.
type ProblemRepository struct {
	pool *pgxpool.Pool
}

// NewProblemRepository returns a ProblemRepository backed by pool.
func NewProblemRepository(pool *pgxpool.Pool) *ProblemRepository {
	return &ProblemRepository{pool: pool}
}

// Get loads a Problem by its internal ID.
func (r *ProblemRepository) Get(ctx context.Context, id int64) (model.Problem, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, display_id, submit_id, title, allowed_languages
		FROM problems WHERE id = $1
	`, id)
	var p model.Problem
	if err := row.Scan(&p.ID, &p.DisplayID, &p.SubmitID, &p.Title, &p.AllowedLanguages); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Problem{}, ErrNotFound
		}
		return model.Problem{}, fmt.Errorf("repository: get problem %d: %w", id, err)
	}
	return p, nil
}

// List returns every known Problem, ordered by internal ID, for the
// read-only problem listing surface.
func (r *ProblemRepository) List(ctx context.Context) ([]model.Problem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, display_id, submit_id, title, allowed_languages
		FROM problems ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: list problems: %w", err)
	}
	defer rows.Close()

	var out []model.Problem
	for rows.Next() {
		var p model.Problem
		if err := rows.Scan(&p.ID, &p.DisplayID, &p.SubmitID, &p.Title, &p.AllowedLanguages); err != nil {
			return nil, fmt.Errorf("repository: list problems: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: list problems: %w", err)
	}
	return out, nil
}

// GetByDisplayID loads a Problem by its URL-friendly human identifier,
// used when a crawl task is created from the OJ problem ID given in the
// Task API request body.
func (r *ProblemRepository) GetByDisplayID(ctx context.Context, displayID string) (model.Problem, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, display_id, submit_id, title, allowed_languages
		FROM problems WHERE display_id = $1
	`, displayID)
	var p model.Problem
	if err := row.Scan(&p.ID, &p.DisplayID, &p.SubmitID, &p.Title, &p.AllowedLanguages); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Problem{}, ErrNotFound
		}
		return model.Problem{}, fmt.Errorf("repository: get problem %q: %w", displayID, err)
	}
	return p, nil
}

// Upsert inserts or updates a Problem, keyed by display_id. The Task API
// surface does not call it: a crawl request for an unknown display ID is
// rejected.
func (r *ProblemRepository) Upsert(ctx context.Context, p model.Problem) (model.Problem, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO problems (display_id, submit_id, title, allowed_languages)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (display_id) DO UPDATE SET
			submit_id = EXCLUDED.submit_id,
			title = EXCLUDED.title,
			allowed_languages = EXCLUDED.allowed_languages
		RETURNING id, display_id, submit_id, title, allowed_languages
	`, p.DisplayID, p.SubmitID, p.Title, p.AllowedLanguages)
	var out model.Problem
	if err := row.Scan(&out.ID, &out.DisplayID, &out.SubmitID, &out.Title, &out.AllowedLanguages); err != nil {
		return model.Problem{}, fmt.Errorf("repository: upsert problem %q: %w", p.DisplayID, err)
	}
	return out, nil
}

// CodeTemplateSetRepository implements persistence for
// model.CodeTemplateSet.
type CodeTemplateSetRepository struct {
	pool *pgxpool.Pool
}

// NewCodeTemplateSetRepository returns a CodeTemplateSetRepository backed
// by pool.
func NewCodeTemplateSetRepository(pool *pgxpool.Pool) *CodeTemplateSetRepository {
	return &CodeTemplateSetRepository{pool: pool}
}

// Get loads a CodeTemplateSet by ID.
func (r *CodeTemplateSetRepository) Get(ctx context.Context, id int64) (model.CodeTemplateSet, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, language, description, templates
		FROM code_template_sets WHERE id = $1
	`, id)
	var (
		s         model.CodeTemplateSet
		templates map[string]string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Language, &s.Description, &templates); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CodeTemplateSet{}, ErrNotFound
		}
		return model.CodeTemplateSet{}, fmt.Errorf("repository: get code template set %d: %w", id, err)
	}
	s.Templates = make(map[model.TemplateKind]string, len(templates))
	for k, v := range templates {
		s.Templates[model.TemplateKind(k)] = v
	}
	return s, nil
}
