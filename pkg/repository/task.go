package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wangicheng/orange-juice/pkg/model"
)

// inFlightStatuses are the statuses that make a CrawlTask eligible for
// reuse by the "reuse an in-flight task for the same problem" rule —
// load-bearing under at-least-once job delivery, where a duplicate
// creation request for an already-running crawl must not dispatch a
// second worker.
var inFlightStatuses = []string{string(model.TaskPending), string(model.TaskInProgress), string(model.TaskPaused)}

// TaskRepository implements persistence for model.Task (both CrawlTask
// and CreateAccountsTask subtypes, distinguished by Kind).
type TaskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository returns a TaskRepository backed by pool.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// CreateCrawlTask inserts a fresh PENDING CrawlTask.
func (r *TaskRepository) CreateCrawlTask(ctx context.Context, problemID, templateSetID int64, headerCode, footerCode string) (model.Task, error) {
	id := uuid.NewString()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, kind, status, progress, problem_id, template_set_id, header_code, footer_code)
		VALUES ($1, $2, 'PENDING', 0, $3, $4, $5, $6)
		RETURNING id, kind, status, progress, created_at, updated_at, problem_id, template_set_id, header_code, footer_code
	`, id, model.KindCrawlTestCases, problemID, templateSetID, headerCode, footerCode)

	var t model.Task
	var pID, tsID int64
	var header, footer string
	if err := row.Scan(&t.ID, &t.Kind, &t.Status, &t.Progress, &t.CreatedAt, &t.UpdatedAt, &pID, &tsID, &header, &footer); err != nil {
		return model.Task{}, fmt.Errorf("repository: create crawl task: %w", err)
	}
	t.ProblemID, t.TemplateSetID, t.HeaderCode, t.FooterCode = pID, tsID, header, footer
	return t, nil
}

// CreateAccountsTask inserts a fresh PENDING CreateAccountsTask.
func (r *TaskRepository) CreateAccountsTask(ctx context.Context, quantity int) (model.Task, error) {
	id := uuid.NewString()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, kind, status, progress, quantity)
		VALUES ($1, $2, 'PENDING', 0, $3)
		RETURNING id, kind, status, progress, created_at, updated_at, quantity
	`, id, model.KindCreateAccounts, quantity)

	var t model.Task
	if err := row.Scan(&t.ID, &t.Kind, &t.Status, &t.Progress, &t.CreatedAt, &t.UpdatedAt, &t.Quantity); err != nil {
		return model.Task{}, fmt.Errorf("repository: create accounts task: %w", err)
	}
	return t, nil
}

// FindInFlightCrawl returns a PENDING/IN_PROGRESS/PAUSED CrawlTask already
// outstanding for problemID, if one exists — backs the in-flight reuse
// check on crawl task creation.
func (r *TaskRepository) FindInFlightCrawl(ctx context.Context, problemID int64) (*model.Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, kind, status, progress, created_at, updated_at,
		       problem_id, template_set_id, header_code, footer_code, checkpoint
		FROM tasks
		WHERE kind = $1 AND problem_id = $2 AND status = ANY($3)
		ORDER BY created_at DESC
		LIMIT 1
	`, model.KindCrawlTestCases, problemID, inFlightStatuses)
	task, err := scanTaskWithCheckpoint(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Get loads a full Task, including its checkpoint and result, by ID.
func (r *TaskRepository) Get(ctx context.Context, id string) (model.Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, kind, status, progress, created_at, updated_at,
		       problem_id, template_set_id, header_code, footer_code, checkpoint,
		       quantity, result
		FROM tasks WHERE id = $1
	`, id)
	var (
		t              model.Task
		problemID      *int64
		templateSetID  *int64
		headerCode     *string
		footerCode     *string
		checkpointJSON []byte
		quantity       *int
		resultJSON     []byte
	)
	err := row.Scan(&t.ID, &t.Kind, &t.Status, &t.Progress, &t.CreatedAt, &t.UpdatedAt,
		&problemID, &templateSetID, &headerCode, &footerCode, &checkpointJSON,
		&quantity, &resultJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("repository: get task %s: %w", id, err)
	}
	if problemID != nil {
		t.ProblemID = *problemID
	}
	if templateSetID != nil {
		t.TemplateSetID = *templateSetID
	}
	if headerCode != nil {
		t.HeaderCode = *headerCode
	}
	if footerCode != nil {
		t.FooterCode = *footerCode
	}
	if quantity != nil {
		t.Quantity = *quantity
	}
	if len(checkpointJSON) > 0 {
		var cp model.Checkpoint
		if err := json.Unmarshal(checkpointJSON, &cp); err != nil {
			return model.Task{}, fmt.Errorf("repository: decoding checkpoint for task %s: %w", id, err)
		}
		t.Checkpoint = &cp
	}
	if len(resultJSON) > 0 {
		var res model.TaskResult
		if err := json.Unmarshal(resultJSON, &res); err != nil {
			return model.Task{}, fmt.Errorf("repository: decoding result for task %s: %w", id, err)
		}
		t.Result = &res
	}
	return t, nil
}

// SetInProgress marks the task IN_PROGRESS with the given progress.
func (r *TaskRepository) SetInProgress(ctx context.Context, id string, progress int) error {
	return r.updateStatusProgress(ctx, id, model.TaskInProgress, progress)
}

// SetProgress updates only the progress counter, leaving status alone.
func (r *TaskRepository) SetProgress(ctx context.Context, id string, progress int) error {
	_, err := r.pool.Exec(ctx, `UPDATE tasks SET progress = $2, updated_at = now() WHERE id = $1`, id, progress)
	if err != nil {
		return fmt.Errorf("repository: set progress for task %s: %w", id, err)
	}
	return nil
}

func (r *TaskRepository) updateStatusProgress(ctx context.Context, id string, status model.TaskStatus, progress int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = $2, progress = $3, updated_at = now() WHERE id = $1
	`, id, status, progress)
	if err != nil {
		return fmt.Errorf("repository: update status/progress for task %s: %w", id, err)
	}
	return nil
}

// Succeed marks the task SUCCESS, progress 100, clears the checkpoint,
// and records the success message.
func (r *TaskRepository) Succeed(ctx context.Context, id string, message string) error {
	result := model.TaskResult{Message: message}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("repository: marshal success result for task %s: %w", id, err)
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE tasks SET status = 'SUCCESS', progress = 100, checkpoint = NULL, result = $2, updated_at = now()
		WHERE id = $1
	`, id, payload)
	if err != nil {
		return fmt.Errorf("repository: mark task %s succeeded: %w", id, err)
	}
	return nil
}

// Pause marks the task PAUSED and persists the given checkpoint, so that
// the in-memory state at the moment pause was observed becomes the
// resumable on-disk state. Called by the running worker itself once it
// reaches a safe point after observing the pause request, never directly
// by the API handler.
func (r *TaskRepository) Pause(ctx context.Context, id string, cp model.Checkpoint) error {
	return r.saveWithCheckpoint(ctx, id, model.TaskPaused, cp, nil)
}

// RequestPause flips a PENDING/IN_PROGRESS task's status to PAUSED
// without touching its checkpoint — the signal the API's pause endpoint
// sends; the worker observes it via ShouldPause and persists its own
// checkpoint with Pause once it reaches a safe point. Returns
// ErrNotFound if the task doesn't exist or has already left a pausable
// state.
func (r *TaskRepository) RequestPause(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = 'PAUSED', updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'IN_PROGRESS')
	`, id)
	if err != nil {
		return fmt.Errorf("repository: request pause for task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Fail marks the task FAILURE, persists the checkpoint (if any — the
// checkpoint may be nil if failure occurred before NEEDS_PREDICT produced
// any state) and the error message. The checkpoint is always saved before
// the failure itself is persisted, so a later resume has the most recent
// recoverable state to work from.
func (r *TaskRepository) Fail(ctx context.Context, id string, cp *model.Checkpoint, errMsg string) error {
	result := &model.TaskResult{Error: errMsg, LastState: cp}
	if cp == nil {
		_, err := r.pool.Exec(ctx, `
			UPDATE tasks SET status = 'FAILURE', result = $2, updated_at = now() WHERE id = $1
		`, id, mustMarshal(result))
		if err != nil {
			return fmt.Errorf("repository: mark task %s failed: %w", id, err)
		}
		return nil
	}
	return r.saveWithCheckpoint(ctx, id, model.TaskFailure, *cp, result)
}

func (r *TaskRepository) saveWithCheckpoint(ctx context.Context, id string, status model.TaskStatus, cp model.Checkpoint, result *model.TaskResult) error {
	cpJSON, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("repository: marshal checkpoint for task %s: %w", id, err)
	}
	var resultJSON []byte
	if result != nil {
		resultJSON = mustMarshal(result)
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE tasks SET status = $2, checkpoint = $3, result = COALESCE($4, result), updated_at = now()
		WHERE id = $1
	`, id, status, cpJSON, resultJSON)
	if err != nil {
		return fmt.Errorf("repository: save checkpoint for task %s: %w", id, err)
	}
	return nil
}

// Requeue resets a FAILURE/PAUSED task back to PENDING with progress 0,
// optionally overwriting its checkpoint with an operator-supplied one.
func (r *TaskRepository) Requeue(ctx context.Context, id string, overrideCheckpoint *model.Checkpoint) error {
	if overrideCheckpoint == nil {
		_, err := r.pool.Exec(ctx, `
			UPDATE tasks SET status = 'PENDING', progress = 0, updated_at = now() WHERE id = $1
		`, id)
		if err != nil {
			return fmt.Errorf("repository: requeue task %s: %w", id, err)
		}
		return nil
	}
	cpJSON, err := json.Marshal(overrideCheckpoint)
	if err != nil {
		return fmt.Errorf("repository: marshal override checkpoint for task %s: %w", id, err)
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE tasks SET status = 'PENDING', progress = 0, checkpoint = $2, updated_at = now() WHERE id = $1
	`, id, cpJSON)
	if err != nil {
		return fmt.Errorf("repository: requeue task %s with override checkpoint: %w", id, err)
	}
	return nil
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// TaskResult/Checkpoint are plain structs of primitives; this can
		// only happen from a programming error.
		panic(fmt.Sprintf("repository: marshal invariant violated: %v", err))
	}
	return b
}

func scanTaskWithCheckpoint(row pgx.Row) (model.Task, error) {
	var (
		t              model.Task
		problemID      *int64
		templateSetID  *int64
		headerCode     *string
		footerCode     *string
		checkpointJSON []byte
	)
	err := row.Scan(&t.ID, &t.Kind, &t.Status, &t.Progress, &t.CreatedAt, &t.UpdatedAt,
		&problemID, &templateSetID, &headerCode, &footerCode, &checkpointJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("repository: scan task with checkpoint: %w", err)
	}
	if problemID != nil {
		t.ProblemID = *problemID
	}
	if templateSetID != nil {
		t.TemplateSetID = *templateSetID
	}
	if headerCode != nil {
		t.HeaderCode = *headerCode
	}
	if footerCode != nil {
		t.FooterCode = *footerCode
	}
	if len(checkpointJSON) > 0 {
		var cp model.Checkpoint
		if err := json.Unmarshal(checkpointJSON, &cp); err != nil {
			return model.Task{}, fmt.Errorf("repository: decoding in-flight checkpoint: %w", err)
		}
		t.Checkpoint = &cp
	}
	return t, nil
}
