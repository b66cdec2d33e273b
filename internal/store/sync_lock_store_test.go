package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"
)

func TestTryAcquireWinsFreeLock(t *testing.T) {
	var gotArgs []any
	db := stubDB{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			gotArgs = args
			if !strings.Contains(query, "ON CONFLICT (account_id) DO UPDATE") {
				t.Fatalf("acquire must be a single compare-and-set statement:\n%s", query)
			}
			if !strings.Contains(query, "sync_locks.expires_at < NOW()") {
				t.Fatalf("the conflict branch may only steal expired locks:\n%s", query)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewSyncLockStore(db)

	acquired, err := store.TryAcquire(context.Background(), "acc-1", "holder-1", 2*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Fatalf("expected the lock")
	}
	if gotArgs[2] != int64(120) {
		t.Fatalf("ttl must be passed in seconds, got %v", gotArgs[2])
	}
}

func TestTryAcquireLosesHeldLock(t *testing.T) {
	db := stubDB{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			return stubResult{rows: 0}, nil
		},
	}
	store := NewSyncLockStore(db)

	acquired, err := store.TryAcquire(context.Background(), "acc-1", "holder-2", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Fatalf("a live lock must not be stolen")
	}
}

func TestReclaimExpiredReportsReclaim(t *testing.T) {
	db := stubDB{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "expires_at < NOW()") {
				t.Fatalf("reclaim must only delete expired locks:\n%s", query)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewSyncLockStore(db)

	reclaimed, err := store.ReclaimExpired(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reclaimed {
		t.Fatalf("expected a reclaimed lock")
	}
}

func TestReleaseRequiresHolder(t *testing.T) {
	var gotArgs []any
	db := stubDB{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			gotArgs = args
			if !strings.Contains(query, "holder = $2") {
				t.Fatalf("release must match on holder:\n%s", query)
			}
			return stubResult{}, nil
		},
	}
	store := NewSyncLockStore(db)

	if err := store.Release(context.Background(), "acc-1", "holder-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotArgs[1] != "holder-1" {
		t.Fatalf("unexpected holder arg: %v", gotArgs[1])
	}
}

func TestIsLocked(t *testing.T) {
	db := stubDB{
		getFn: func(ctx context.Context, dest any, query string, args ...any) error {
			*dest.(*bool) = true
			return nil
		},
	}
	store := NewSyncLockStore(db)

	locked, err := store.IsLocked(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !locked {
		t.Fatalf("expected locked")
	}
}
