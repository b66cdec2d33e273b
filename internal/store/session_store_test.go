package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"finsync/internal/models"
)

func TestSessionCreateValidatesOwner(t *testing.T) {
	store := NewSessionStore(stubDB{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			t.Fatalf("invalid owner must not reach the database")
			return nil, nil
		},
	})
	session := models.LinkSession{Token: "tok-1", ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.Create(context.Background(), session); !errors.Is(err, models.ErrOwnerConflict) {
		t.Fatalf("expected ErrOwnerConflict, got %v", err)
	}
}

func TestConsumeGuardsSingleUse(t *testing.T) {
	var gotQuery string
	db := stubDB{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			gotQuery = query
			return stubResult{rows: 1}, nil
		},
	}
	store := NewSessionStore(db)

	connID := "conn-1"
	consumed, err := store.Consume(context.Background(), "tok-1", models.SessionSucceeded, &connID, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !consumed {
		t.Fatalf("expected the session to be consumed")
	}
	for _, fragment := range []string{"state = 'pending'", "expires_at >"} {
		if !strings.Contains(gotQuery, fragment) {
			t.Fatalf("consume must guard on pending and unexpired, missing %q:\n%s", fragment, gotQuery)
		}
	}
}

func TestConsumeLosesToEarlierCallback(t *testing.T) {
	db := stubDB{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			return stubResult{rows: 0}, nil
		},
	}
	store := NewSessionStore(db)

	consumed, err := store.Consume(context.Background(), "tok-1", models.SessionSucceeded, nil, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed {
		t.Fatalf("zero matched rows means another callback won")
	}
}

func TestExpireStaleReportsCount(t *testing.T) {
	db := stubDB{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "state = 'pending'") {
				t.Fatalf("only pending sessions expire:\n%s", query)
			}
			return stubResult{rows: 3}, nil
		},
	}
	store := NewSessionStore(db)

	count, err := store.ExpireStale(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}
}
