package store

import (
	"context"
	"time"
)

// SyncLockStore persists per-account sync locks. Locks live in the database,
// not in process memory, so at-most-one-concurrent-sync-per-account holds
// across worker processes. Every lock carries a TTL: a crashed worker's lock
// simply expires.
type SyncLockStore struct {
	db DB
}

func NewSyncLockStore(db DB) *SyncLockStore {
	return &SyncLockStore{db: db}
}

// TryAcquire attempts to take the lock for an account. The ON CONFLICT
// branch only fires when the existing lock has expired, which makes this a
// storage-level compare-and-set.
func (s *SyncLockStore) TryAcquire(ctx context.Context, accountID, holder string, ttl time.Duration) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_locks (account_id, holder, acquired_at, expires_at)
		VALUES ($1, $2, NOW(), NOW() + ($3 * interval '1 second'))
		ON CONFLICT (account_id) DO UPDATE
		SET holder = EXCLUDED.holder, acquired_at = NOW(), expires_at = EXCLUDED.expires_at
		WHERE sync_locks.expires_at < NOW()
	`, accountID, holder, int64(ttl.Seconds()))
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ReclaimExpired removes an expired lock row if one exists, reporting whether
// a stale lock was actually reclaimed so the caller can log it.
func (s *SyncLockStore) ReclaimExpired(ctx context.Context, accountID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_locks WHERE account_id = $1 AND expires_at < NOW()
	`, accountID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// Release drops the lock only if the caller still holds it; a lock that
// expired and was reclaimed by another worker is left alone.
func (s *SyncLockStore) Release(ctx context.Context, accountID, holder string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_locks WHERE account_id = $1 AND holder = $2
	`, accountID, holder)
	return err
}

func (s *SyncLockStore) IsLocked(ctx context.Context, accountID string) (bool, error) {
	var locked bool
	err := s.db.GetContext(ctx, &locked, `
		SELECT EXISTS (
			SELECT 1 FROM sync_locks WHERE account_id = $1 AND expires_at > NOW()
		)
	`, accountID)
	return locked, err
}
