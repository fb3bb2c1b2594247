// Package orchestrator implements the two task entry points,
// crawl-testcases and create-accounts, each invoked once per task id by
// an external background job runner. That runner is an out-of-scope
// collaborator whose contract is "start a unit of work asynchronously,
// given a task id".
//
// Grounded on
// original_source/orange-juice-backend/crawler/tasks.py's
// crawl_test_cases_task and execute_create_accounts_task, translated from
// Celery's @shared_task + Django ORM idiom into explicit Go entry points
// with interfaces standing in for the persistence and transport
// collaborators, and on
// codeready-toolchain/tarsy/pkg/queue/executor.go's pattern of wrapping an
// entire task lifecycle in one function with deferred cleanup and
// structured slog logging at each transition.
package orchestrator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/wangicheng/orange-juice/pkg/accountpool"
	"github.com/wangicheng/orange-juice/pkg/crawler"
	"github.com/wangicheng/orange-juice/pkg/metrics"
	"github.com/wangicheng/orange-juice/pkg/model"
	"github.com/wangicheng/orange-juice/pkg/ojclient"
	"github.com/wangicheng/orange-juice/pkg/submitter"
)

// AccountsPerCrawlTask is the default number of working accounts a crawl
// task leases, copied from the original's
// settings.ACCOUNTS_PER_CRAWL_TASK.
const AccountsPerCrawlTask = 3

// usernamePrefix and emailDomain mirror
// execute_create_accounts_task's generate_random_username('orju', 28)
// call and its username+"@orange.juice.com" email construction.
const (
	usernamePrefix     = "orju"
	usernameRandomLen  = 24 // prefix (4) + this = 28 total, matching the original
	emailDomain        = "@orange.juice.com"
	usernameAlphabet   = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// CrawlTaskStore is the persistence boundary RunCrawl depends on,
// implemented by pkg/repository.TaskRepository.
type CrawlTaskStore interface {
	Get(ctx context.Context, id string) (model.Task, error)
	SetInProgress(ctx context.Context, id string, progress int) error
	SetProgress(ctx context.Context, id string, progress int) error
	Succeed(ctx context.Context, id string, message string) error
	Pause(ctx context.Context, id string, cp model.Checkpoint) error
	Fail(ctx context.Context, id string, cp *model.Checkpoint, errMsg string) error
}

// ProblemStore loads the immutable Problem a CrawlTask targets.
type ProblemStore interface {
	Get(ctx context.Context, id int64) (model.Problem, error)
}

// TemplateStore loads the CodeTemplateSet a CrawlTask was created with.
type TemplateStore interface {
	Get(ctx context.Context, id int64) (model.CodeTemplateSet, error)
}

// CrawlConfig bundles everything RunCrawl needs to drive one crawl task
// to completion, pause, or failure.
type CrawlConfig struct {
	TaskID    string
	Tasks     CrawlTaskStore
	Problems  ProblemStore
	Templates TemplateStore
	Accounts  accountpool.Store
	NewAuth   accountpool.NewAuthenticatorFunc
	Recorder  submitter.Recorder

	// AccountPassword is the single shared password every crawler-owned
	// account logs in with (settings.DEFAULT_OJ_PASSWORD in the
	// original).
	AccountPassword string

	// AccountsNeeded overrides AccountsPerCrawlTask when positive; zero
	// uses the default.
	AccountsNeeded int
}

// RunCrawl drives CrawlConfig.TaskID through the full crawl lifecycle:
// lease+validate accounts, submitter/core construction, checkpoint
// resume, run to completion/pause/error, account release on every exit
// path.
func RunCrawl(ctx context.Context, cfg CrawlConfig) error {
	task, err := cfg.Tasks.Get(ctx, cfg.TaskID)
	if err != nil {
		return fmt.Errorf("orchestrator: loading crawl task %s: %w", cfg.TaskID, err)
	}

	needed := cfg.AccountsNeeded
	if needed <= 0 {
		needed = AccountsPerCrawlTask
	}

	if err := cfg.Tasks.SetInProgress(ctx, cfg.TaskID, 5); err != nil {
		return fmt.Errorf("orchestrator: marking crawl task %s in progress: %w", cfg.TaskID, err)
	}

	lease, err := accountpool.LeaseAndValidate(ctx, cfg.Accounts, cfg.NewAuth, needed, cfg.AccountPassword)
	if err != nil {
		msg := fmt.Sprintf("preparing account pool: %v", err)
		if failErr := cfg.Tasks.Fail(ctx, cfg.TaskID, task.Checkpoint, msg); failErr != nil {
			slog.Error("failed to record account-pool preparation failure", "task_id", cfg.TaskID, "error", failErr)
		}
		return fmt.Errorf("orchestrator: %s", msg)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Error("failed to release account lease", "task_id", cfg.TaskID, "error", err)
		}
	}()
	metrics.ActiveCrawls.Inc()
	defer metrics.ActiveCrawls.Dec()

	if err := cfg.Tasks.SetProgress(ctx, cfg.TaskID, 10); err != nil {
		return fmt.Errorf("orchestrator: updating progress for crawl task %s: %w", cfg.TaskID, err)
	}

	problem, err := cfg.Problems.Get(ctx, task.ProblemID)
	if err != nil {
		msg := fmt.Sprintf("loading problem %d: %v", task.ProblemID, err)
		_ = cfg.Tasks.Fail(ctx, cfg.TaskID, task.Checkpoint, msg)
		return fmt.Errorf("orchestrator: %s", msg)
	}
	templates, err := cfg.Templates.Get(ctx, task.TemplateSetID)
	if err != nil {
		msg := fmt.Sprintf("loading code template set %d: %v", task.TemplateSetID, err)
		_ = cfg.Tasks.Fail(ctx, cfg.TaskID, task.Checkpoint, msg)
		return fmt.Errorf("orchestrator: %s", msg)
	}

	sub := submitter.NewLive(problem, templates.Language, templates, task.HeaderCode, task.FooterCode, lease, cfg.Recorder)

	pause := func() bool {
		t, err := cfg.Tasks.Get(ctx, cfg.TaskID)
		if err != nil {
			slog.Warn("pause predicate failed to read task status, assuming no pause requested", "task_id", cfg.TaskID, "error", err)
			return false
		}
		return t.Status == model.TaskPaused
	}

	var core *crawler.Core
	if task.Checkpoint != nil {
		core, err = crawler.Resume(sub, pause, *task.Checkpoint)
		if err != nil {
			msg := fmt.Sprintf("resuming from checkpoint: %v", err)
			_ = cfg.Tasks.Fail(ctx, cfg.TaskID, task.Checkpoint, msg)
			return fmt.Errorf("orchestrator: %s", msg)
		}
	} else {
		core = crawler.New(sub, pause)
	}

	runErr := core.Run(ctx)
	cp := core.Checkpoint()

	switch {
	case runErr == nil:
		if err := cfg.Tasks.Succeed(ctx, cfg.TaskID, fmt.Sprintf("crawl of problem %q complete", problem.DisplayID)); err != nil {
			return fmt.Errorf("orchestrator: recording success for crawl task %s: %w", cfg.TaskID, err)
		}
		return nil
	case errors.Is(runErr, crawler.ErrPaused):
		if err := cfg.Tasks.Pause(ctx, cfg.TaskID, cp); err != nil {
			return fmt.Errorf("orchestrator: recording pause for crawl task %s: %w", cfg.TaskID, err)
		}
		return nil
	default:
		// Checkpoint is saved before the failure is persisted, so a
		// resume always has the most recent recoverable state to work
		// from.
		if err := cfg.Tasks.Fail(ctx, cfg.TaskID, &cp, runErr.Error()); err != nil {
			slog.Error("failed to persist crawl failure", "task_id", cfg.TaskID, "error", err)
		}
		return runErr
	}
}

// AccountCreator persists a freshly registered account as ACTIVE,
// implemented by pkg/repository.AccountRepository.
type AccountCreator interface {
	Create(ctx context.Context, username, password string) (model.Account, error)
}

// CreateAccountsTaskStore is the persistence boundary RunCreateAccounts
// depends on.
type CreateAccountsTaskStore interface {
	Get(ctx context.Context, id string) (model.Task, error)
	SetInProgress(ctx context.Context, id string, progress int) error
	SetProgress(ctx context.Context, id string, progress int) error
	Succeed(ctx context.Context, id string, message string) error
	Fail(ctx context.Context, id string, cp *model.Checkpoint, errMsg string) error
}

// Registrar registers a fresh account against the judge. Implemented by a
// freshly constructed *pkg/ojclient.Client per attempt, matching the
// original's `client = OJClient()` per-iteration instantiation.
type Registrar interface {
	Register(ctx context.Context, username, password, email string) error
}

// CreateAccountsConfig bundles everything RunCreateAccounts needs.
type CreateAccountsConfig struct {
	TaskID          string
	Tasks           CreateAccountsTaskStore
	Accounts        AccountCreator
	NewRegistrar    func() Registrar
	AccountPassword string
}

// RunCreateAccounts drives CreateAccountsConfig.TaskID through the
// create-accounts lifecycle: register fresh accounts until quantity
// successes accumulate, counting AccountExistsError/CaptchaError as
// non-fatal failures, aborting once the failure budget (2*quantity) is
// exceeded.
func RunCreateAccounts(ctx context.Context, cfg CreateAccountsConfig) error {
	task, err := cfg.Tasks.Get(ctx, cfg.TaskID)
	if err != nil {
		return fmt.Errorf("orchestrator: loading create-accounts task %s: %w", cfg.TaskID, err)
	}
	if err := cfg.Tasks.SetInProgress(ctx, cfg.TaskID, 0); err != nil {
		return fmt.Errorf("orchestrator: marking create-accounts task %s in progress: %w", cfg.TaskID, err)
	}

	quantity := task.Quantity
	if quantity <= 0 {
		msg := fmt.Sprintf("invalid quantity %d", quantity)
		_ = cfg.Tasks.Fail(ctx, cfg.TaskID, nil, msg)
		return fmt.Errorf("orchestrator: %s", msg)
	}
	maxFailures := 2 * quantity

	success, failure := 0, 0
	for success < quantity {
		if failure > maxFailures {
			msg := fmt.Sprintf("exceeded maximum failure limit (%d)", maxFailures)
			_ = cfg.Tasks.Fail(ctx, cfg.TaskID, nil, msg)
			return fmt.Errorf("orchestrator: %s", msg)
		}

		username, err := randomUsername()
		if err != nil {
			return fmt.Errorf("orchestrator: generating username: %w", err)
		}
		email := username + emailDomain

		regErr := cfg.NewRegistrar().Register(ctx, username, cfg.AccountPassword, email)
		var (
			exists  *ojclient.AccountExistsError
			captcha *ojclient.CaptchaError
		)
		switch {
		case regErr == nil:
			if _, err := cfg.Accounts.Create(ctx, username, cfg.AccountPassword); err != nil {
				return fmt.Errorf("orchestrator: persisting created account %q: %w", username, err)
			}
			success++
			if err := cfg.Tasks.SetProgress(ctx, cfg.TaskID, success*100/quantity); err != nil {
				slog.Warn("failed to update create-accounts progress", "task_id", cfg.TaskID, "error", err)
			}
		case errors.As(regErr, &exists):
			slog.Info("account already exists, trying next username", "username", username)
			failure++
		case errors.As(regErr, &captcha):
			slog.Warn("captcha rejected, retrying", "username", username)
			failure++
		default:
			msg := fmt.Sprintf("registration failed unexpectedly: %v", regErr)
			_ = cfg.Tasks.Fail(ctx, cfg.TaskID, nil, msg)
			return fmt.Errorf("orchestrator: %s", msg)
		}
	}

	if err := cfg.Tasks.Succeed(ctx, cfg.TaskID, fmt.Sprintf("successfully created %d accounts", quantity)); err != nil {
		return fmt.Errorf("orchestrator: recording success for create-accounts task %s: %w", cfg.TaskID, err)
	}
	return nil
}

// randomUsername builds a prefix+random-alphanumeric-suffix username
// matching generate_random_username('orju', 28): 4-character prefix plus
// 24 random lowercase-alphanumeric characters.
func randomUsername() (string, error) {
	suffix := make([]byte, usernameRandomLen)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(usernameAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generating random suffix: %w", err)
		}
		suffix[i] = usernameAlphabet[n.Int64()]
	}
	return usernamePrefix + string(suffix), nil
}
