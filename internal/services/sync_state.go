package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// ErrSyncInProgress is not a failure: the caller's request is already being
// served by the sync that holds the lock.
var ErrSyncInProgress = errors.New("sync already in progress for account")

// SyncStateTracker owns the sync lock lifecycle and the queryable per-account
// sync status. Locks are storage-backed with a TTL, so a crashed worker can
// wedge an account for at most one TTL.
type SyncStateTracker struct {
	locks    LockStore
	accounts AccountStore
}

func NewSyncStateTracker(locks LockStore, accounts AccountStore) *SyncStateTracker {
	return &SyncStateTracker{locks: locks, accounts: accounts}
}

// Acquire takes the account's sync lock, reclaiming an expired one first.
// Returns the holder token the caller must present on Release.
func (t *SyncStateTracker) Acquire(ctx context.Context, accountID string, ttl time.Duration) (string, error) {
	reclaimed, err := t.locks.ReclaimExpired(ctx, accountID)
	if err != nil {
		return "", err
	}
	if reclaimed {
		log.Printf("reclaimed stale sync lock for account %s", accountID)
	}
	holder := uuid.NewString()
	acquired, err := t.locks.TryAcquire(ctx, accountID, holder, ttl)
	if err != nil {
		return "", err
	}
	if !acquired {
		return "", ErrSyncInProgress
	}
	return holder, nil
}

// Release is called on every sync exit path, including panics and timeouts.
// It never uses the sync's own context: a cancelled sync must still unlock.
func (t *SyncStateTracker) Release(accountID, holder string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.locks.Release(ctx, accountID, holder); err != nil {
		log.Printf("failed to release sync lock for account %s: %v", accountID, err)
	}
}

type SyncStatus struct {
	AccountID   string     `json:"account_id"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
	SyncError   *string    `json:"sync_error,omitempty"`
	SyncEnabled bool       `json:"sync_enabled"`
	Locked      bool       `json:"locked"`
	Status      string     `json:"status"`
}

func (t *SyncStateTracker) Status(ctx context.Context, accountID string) (SyncStatus, error) {
	account, err := t.accounts.GetByID(ctx, accountID)
	if err != nil {
		return SyncStatus{}, err
	}
	locked, err := t.locks.IsLocked(ctx, accountID)
	if err != nil {
		return SyncStatus{}, err
	}
	return SyncStatus{
		AccountID:   account.ID,
		LastSyncAt:  account.LastSyncAt,
		SyncError:   account.SyncError,
		SyncEnabled: account.SyncEnabled,
		Locked:      locked,
		Status:      account.Status,
	}, nil
}
