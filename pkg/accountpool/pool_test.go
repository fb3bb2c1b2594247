package accountpool

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangicheng/orange-juice/pkg/model"
)

// fakeStore is an in-memory Store double standing in for
// pkg/repository.AccountRepository in unit tests, grounded on the teacher's
// in-memory test doubles for its queue repository.
type fakeStore struct {
	accounts   map[int64]*model.Account
	leaseOrder []int64
	disabled   map[int64]bool
}

func newFakeStore(n int) *fakeStore {
	fs := &fakeStore{accounts: map[int64]*model.Account{}, disabled: map[int64]bool{}}
	for i := int64(1); i <= int64(n); i++ {
		fs.accounts[i] = &model.Account{
			ID:       i,
			Username: fmt.Sprintf("user%d", i),
			Password: "pw",
			Status:   model.AccountActive,
		}
		fs.leaseOrder = append(fs.leaseOrder, i)
	}
	return fs
}

func (fs *fakeStore) LeaseCandidates(ctx context.Context, n int) ([]model.Account, error) {
	var out []model.Account
	for _, id := range fs.leaseOrder {
		if len(out) >= n {
			break
		}
		acc := fs.accounts[id]
		if acc.Status != model.AccountActive {
			continue
		}
		acc.Status = model.AccountInUse
		out = append(out, *acc)
	}
	return out, nil
}

func (fs *fakeStore) ReleaseActive(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		acc := fs.accounts[id]
		if acc.Status != model.AccountDisabled {
			acc.Status = model.AccountActive
		}
	}
	return nil
}

func (fs *fakeStore) Disable(ctx context.Context, id int64) error {
	fs.accounts[id].Status = model.AccountDisabled
	fs.disabled[id] = true
	return nil
}

func (fs *fakeStore) TouchLastUsed(ctx context.Context, id int64, when time.Time) error {
	fs.accounts[id].LastUsed = &when
	return nil
}

// fakeAuth lets tests script which usernames fail to log in.
type fakeAuth struct {
	failUsernames map[string]bool
}

func (a *fakeAuth) Login(ctx context.Context, username, password string) error {
	if a.failUsernames[username] {
		return fmt.Errorf("login refused for %s", username)
	}
	return nil
}

func (a *fakeAuth) SubmitAndAwaitMemory(ctx context.Context, code, language string, problemID int) (int, error) {
	return 0, nil
}

func TestLeaseAndValidateAllSucceed(t *testing.T) {
	store := newFakeStore(10)
	auth := &fakeAuth{failUsernames: map[string]bool{}}
	lease, err := LeaseAndValidate(context.Background(), store, func() Authenticator { return auth }, 3, "pw")
	require.NoError(t, err)
	assert.Equal(t, 3, lease.Size())

	// Oversubscription claimed 9 (3*3); the other 6 should have been
	// released back to ACTIVE rather than left IN_USE.
	activeCount := 0
	for _, acc := range store.accounts {
		if acc.Status == model.AccountActive {
			activeCount++
		}
	}
	assert.Equal(t, 7, activeCount)
}

func TestLeaseAndValidateAbsorbsLoginFailures(t *testing.T) {
	store := newFakeStore(9)
	auth := &fakeAuth{failUsernames: map[string]bool{"user1": true, "user2": true}}
	lease, err := LeaseAndValidate(context.Background(), store, func() Authenticator { return auth }, 3, "pw")
	require.NoError(t, err)
	assert.Equal(t, 3, lease.Size())
}

func TestLeaseAndValidateEarlyExitWhenImpossible(t *testing.T) {
	// Only 5 ACTIVE accounts but we need 3 with oversubscription asking
	// for 9; every candidate after the point where remaining can no
	// longer reach 3 should be released unvalidated.
	store := newFakeStore(5)
	attempts := 0
	auth := &fakeAuth{failUsernames: map[string]bool{"user1": true, "user2": true, "user3": true, "user4": true, "user5": true}}
	_ = attempts
	_, err := LeaseAndValidate(context.Background(), store, func() Authenticator { return auth }, 3, "pw")
	require.ErrorIs(t, err, ErrInsufficientAccounts)

	for _, acc := range store.accounts {
		assert.Equal(t, model.AccountActive, acc.Status)
	}
}

func TestLeaseReleaseRespectsDisabled(t *testing.T) {
	store := newFakeStore(3)
	auth := &fakeAuth{failUsernames: map[string]bool{}}
	lease, err := LeaseAndValidate(context.Background(), store, func() Authenticator { return auth }, 3, "pw")
	require.NoError(t, err)

	require.NoError(t, lease.Disable(context.Background(), 1))
	require.NoError(t, lease.Release(context.Background()))

	assert.Equal(t, model.AccountDisabled, store.accounts[1].Status)
	assert.Equal(t, model.AccountActive, store.accounts[2].Status)
	assert.Equal(t, model.AccountActive, store.accounts[3].Status)
}

func TestLeaseNextRoundRobinsAndTouchesLastUsed(t *testing.T) {
	store := newFakeStore(2)
	auth := &fakeAuth{failUsernames: map[string]bool{}}
	lease, err := LeaseAndValidate(context.Background(), store, func() Authenticator { return auth }, 2, "pw")
	require.NoError(t, err)

	seen := map[int64]int{}
	for i := 0; i < 4; i++ {
		acc, client, err := lease.Next(context.Background())
		require.NoError(t, err)
		require.NotNil(t, client)
		seen[acc.ID]++
	}
	assert.Equal(t, 2, seen[1])
	assert.Equal(t, 2, seen[2])
	assert.NotNil(t, store.accounts[1].LastUsed)
	assert.NotNil(t, store.accounts[2].LastUsed)
}
