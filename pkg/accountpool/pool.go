// Package accountpool implements the Account Pool Manager: leasing,
// login validation, round-robin rotation, and release of judge accounts
// under transactional row-level locking. Grounded on
// original_source/orange-juice-backend/crawler/tasks.py's account
// preparation block and
// codeready-toolchain/tarsy/pkg/queue/worker.go's claimNextSession
// (SELECT ... FOR UPDATE pattern, translated from ent to raw pgx SQL since
// ent is dropped — see DESIGN.md).
package accountpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wangicheng/orange-juice/pkg/model"
)

// OversubscriptionFactor is the tunable candidate-batch multiplier used by
// Lease: up to OversubscriptionFactor*n ACTIVE accounts are claimed so that
// login failures can be absorbed without re-querying. Copied from the
// original's `num_accounts_needed * 3`.
const OversubscriptionFactor = 3

// ErrInsufficientAccounts is returned by Validate when fewer than the
// requested number of candidates can be confirmed usable.
var ErrInsufficientAccounts = errors.New("accountpool: could not validate enough accounts")

// Store is the transactional persistence boundary the pool depends on.
// Implemented by pkg/repository.AccountRepository.
type Store interface {
	// LeaseCandidates atomically selects up to n ACTIVE accounts FOR
	// UPDATE and flips them to IN_USE in one transaction, returning the
	// leased rows.
	LeaseCandidates(ctx context.Context, n int) ([]model.Account, error)
	// ReleaseActive flips every listed account ID from IN_USE back to
	// ACTIVE, skipping any that are DISABLED.
	ReleaseActive(ctx context.Context, ids []int64) error
	// Disable marks an account DISABLED permanently (a sink transition).
	Disable(ctx context.Context, id int64) error
	// TouchLastUsed updates an account's last-used timestamp.
	TouchLastUsed(ctx context.Context, id int64, when time.Time) error
}

// Authenticator is the judge-session capability the pool depends on: it
// logs an account in and, once validated, submits code and awaits judged
// memory on its behalf. Implemented by *pkg/ojclient.Client, abstracted
// here so this package never needs to import the transport directly,
// keeping it independently testable via the same capability-interface
// pattern the Submitter uses.
type Authenticator interface {
	Login(ctx context.Context, username, password string) error
	SubmitAndAwaitMemory(ctx context.Context, code, language string, problemID int) (int, error)
}

// NewAuthenticatorFunc builds a fresh Authenticator for login validation,
// one per candidate account — mirroring the original's `client =
// OJClient()` per-candidate instantiation.
type NewAuthenticatorFunc func() Authenticator

// Lease holds the working pool of validated, logged-in accounts for one
// task. Rotation and release happen through this handle.
type Lease struct {
	store   Store
	mu      sync.Mutex
	working []leased
	next    int
}

type leased struct {
	account model.Account
	client  Authenticator
}

// LeaseAndValidate leases up to OversubscriptionFactor*n candidates,
// validates them by login in order, and returns a Lease holding exactly n
// working (account, authenticated-client) pairs.
//
// The validation pass stops as soon as either the working pool reaches n,
// or the remaining unvalidated candidates can no longer possibly reach n
// (the early-exit invariant: admitted + remaining >= n at every step).
// Unvalidated and login-failed candidates are released back to ACTIVE
// immediately — login failure is treated as transient, never grounds for
// DISABLED.
func LeaseAndValidate(ctx context.Context, store Store, newAuth NewAuthenticatorFunc, n int, password string) (*Lease, error) {
	if n <= 0 {
		return nil, fmt.Errorf("accountpool: n must be positive, got %d", n)
	}

	candidates, err := store.LeaseCandidates(ctx, n*OversubscriptionFactor)
	if err != nil {
		return nil, fmt.Errorf("accountpool: leasing candidates: %w", err)
	}

	var (
		working []leased
		unused  []int64
	)

	for i, acc := range candidates {
		remaining := len(candidates) - i
		if len(working)+remaining < n {
			// Cannot possibly reach n anymore; abort validating the rest.
			unused = append(unused, candidateIDs(candidates[i:])...)
			break
		}
		if len(working) >= n {
			unused = append(unused, acc.ID)
			continue
		}

		client := newAuth()
		if err := client.Login(ctx, acc.Username, password); err != nil {
			slog.Warn("account login failed during validation, skipping for this task",
				"username", acc.Username, "error", err)
			unused = append(unused, acc.ID)
			continue
		}
		working = append(working, leased{account: acc, client: client})
	}

	if len(unused) > 0 {
		if err := store.ReleaseActive(ctx, unused); err != nil {
			slog.Error("failed to release unused leased accounts", "error", err)
		}
	}

	if len(working) < n {
		// Release the ones we did validate too — the task cannot proceed.
		if err := store.ReleaseActive(ctx, candidateIDs(accountsOf(working))); err != nil {
			slog.Error("failed to release accounts after insufficient validation", "error", err)
		}
		return nil, fmt.Errorf("%w: got %d, needed %d", ErrInsufficientAccounts, len(working), n)
	}

	return &Lease{store: store, working: working}, nil
}

func candidateIDs(accs []model.Account) []int64 {
	ids := make([]int64, len(accs))
	for i, a := range accs {
		ids[i] = a.ID
	}
	return ids
}

func accountsOf(ls []leased) []model.Account {
	accs := make([]model.Account, len(ls))
	for i, l := range ls {
		accs[i] = l.account
	}
	return accs
}

// Next returns the next (account, client) pair in round-robin order,
// updating the account's last-used timestamp.
func (l *Lease) Next(ctx context.Context) (model.Account, Authenticator, error) {
	l.mu.Lock()
	if len(l.working) == 0 {
		l.mu.Unlock()
		return model.Account{}, nil, fmt.Errorf("accountpool: lease has no working accounts")
	}
	idx := l.next
	l.next = (l.next + 1) % len(l.working)
	entry := l.working[idx]
	l.mu.Unlock()

	now := time.Now()
	if err := l.store.TouchLastUsed(ctx, entry.account.ID, now); err != nil {
		slog.Warn("failed to update account last_used", "account_id", entry.account.ID, "error", err)
	}
	return entry.account, entry.client, nil
}

// Size returns the number of working accounts in the lease.
func (l *Lease) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.working)
}

// Disable marks one of the lease's accounts permanently DISABLED; it will
// not be returned to ACTIVE on Release.
func (l *Lease) Disable(ctx context.Context, accountID int64) error {
	return l.store.Disable(ctx, accountID)
}

// Release returns every account in the lease to ACTIVE, unless it was
// explicitly Disabled. Safe to call multiple times; the Orchestrator
// guarantees this runs on every exit path including panics and
// cancellations.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	ids := candidateIDs(accountsOf(l.working))
	l.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	return l.store.ReleaseActive(ctx, ids)
}
