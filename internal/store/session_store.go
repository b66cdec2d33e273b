package store

import (
	"context"
	"time"

	"finsync/internal/models"
)

type SessionStore struct {
	db DB
}

func NewSessionStore(db DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session models.LinkSession) error {
	owner := models.Owner{UserID: session.UserID, FamilyID: session.FamilyID}
	if err := owner.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO link_sessions (token, user_id, family_id, state, expires_at)
		VALUES ($1, $2, $3, 'pending', $4)
	`, session.Token, session.UserID, session.FamilyID, session.ExpiresAt)
	return err
}

func (s *SessionStore) Get(ctx context.Context, token string) (models.LinkSession, error) {
	var row models.LinkSession
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM link_sessions WHERE token = $1
	`, token)
	return row, err
}

// Consume atomically moves a pending, unexpired session to a terminal state.
// The WHERE clause is the single-use guard: a second callback for the same
// token matches zero rows.
func (s *SessionStore) Consume(ctx context.Context, token, state string, connectionID, failureReason *string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE link_sessions
		SET state = $2, connection_id = $3, failure_reason = $4, consumed_at = $5
		WHERE token = $1 AND state = 'pending' AND expires_at > $5
	`, token, state, connectionID, failureReason, now)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ExpireStale marks overdue pending sessions expired. Run by the
// reconciliation sweep as housekeeping.
func (s *SessionStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE link_sessions
		SET state = 'expired'
		WHERE state = 'pending' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
