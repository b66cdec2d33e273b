package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventStore records sync and link lifecycle events. The notification
// subsystem (external to this service) reads these to surface problems like
// stale connections to the user.
type EventStore struct {
	db DB
}

type SyncEvent struct {
	ID           string    `db:"id"`
	AccountID    *string   `db:"account_id"`
	ConnectionID *string   `db:"connection_id"`
	Kind         string    `db:"kind"`
	Detail       string    `db:"detail"`
	CreatedAt    time.Time `db:"created_at"`
}

func NewEventStore(db DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Log(ctx context.Context, kind string, accountID, connectionID *string, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_events (id, account_id, connection_id, kind, detail)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), accountID, connectionID, kind, detail)
	return err
}

func (s *EventStore) ListRecent(ctx context.Context, limit int) ([]SyncEvent, error) {
	var rows []SyncEvent
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, connection_id, kind, detail, created_at
		FROM sync_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
