package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"finsync/internal/models"
	"finsync/internal/provider"
)

var (
	ErrSessionNotFound     = errors.New("link session not found")
	ErrSessionExpired      = errors.New("link session expired")
	ErrSessionConsumed     = errors.New("link session already consumed")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// OAuthSessionManager drives the provider authorization handshake: it opens
// a session, hands the redirect URL to the caller, and correlates the
// eventual callback back to the owner who started the flow.
type OAuthSessionManager struct {
	provider   ProviderAPI
	sessions   SessionStore
	events     EventStore
	sessionTTL time.Duration
	now        func() time.Time
}

func NewOAuthSessionManager(providerAPI ProviderAPI, sessions SessionStore, events EventStore, sessionTTL time.Duration) *OAuthSessionManager {
	return &OAuthSessionManager{
		provider:   providerAPI,
		sessions:   sessions,
		events:     events,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

type LinkStart struct {
	RedirectURL  string `json:"redirect_url"`
	SessionToken string `json:"session_token"`
}

type LinkResult struct {
	Owner         models.Owner
	ConnectionID  string
	Succeeded     bool
	FailureReason string
}

func (m *OAuthSessionManager) Initiate(ctx context.Context, owner models.Owner) (LinkStart, error) {
	if err := owner.Validate(); err != nil {
		return LinkStart{}, err
	}
	raw, err := m.provider.CreateAuthSession(ctx, owner.Ref())
	if err != nil {
		return LinkStart{}, fmt.Errorf("create auth session: %w", err)
	}
	var payload provider.AuthSessionResponse
	outcome := provider.Classify(raw, &payload)
	if !outcome.IsSuccess() {
		return LinkStart{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, outcome.Message)
	}
	if payload.SessionToken == "" || payload.RedirectURL == "" {
		return LinkStart{}, fmt.Errorf("%w: auth session response missing fields", ErrProviderUnavailable)
	}
	session := models.LinkSession{
		Token:     payload.SessionToken,
		UserID:    owner.UserID,
		FamilyID:  owner.FamilyID,
		State:     models.SessionPending,
		ExpiresAt: m.now().Add(m.sessionTTL),
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return LinkStart{}, fmt.Errorf("persist link session: %w", err)
	}
	_ = m.events.Log(ctx, "link_initiated", nil, nil, owner.Ref())
	return LinkStart{RedirectURL: payload.RedirectURL, SessionToken: payload.SessionToken}, nil
}

// CompleteCallback consumes a pending session exactly once. Late, duplicate
// or forged callbacks surface as typed errors to the link-initiating caller
// and touch nothing else.
func (m *OAuthSessionManager) CompleteCallback(ctx context.Context, token, providerStatus, connectionID string) (LinkResult, error) {
	session, err := m.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LinkResult{}, ErrSessionNotFound
		}
		return LinkResult{}, fmt.Errorf("load link session: %w", err)
	}
	// A session the housekeeping sweep already expired is late, not replayed.
	if session.State == models.SessionExpired {
		return LinkResult{}, ErrSessionExpired
	}
	if session.State != models.SessionPending {
		return LinkResult{}, ErrSessionConsumed
	}
	now := m.now()
	if !session.ExpiresAt.After(now) {
		return LinkResult{}, ErrSessionExpired
	}

	owner := models.Owner{UserID: session.UserID, FamilyID: session.FamilyID}
	succeeded := providerStatus == "success" && connectionID != ""
	state := models.SessionSucceeded
	var connID, reason *string
	result := LinkResult{Owner: owner, Succeeded: succeeded}
	if succeeded {
		connID = &connectionID
		result.ConnectionID = connectionID
	} else {
		state = models.SessionFailed
		result.FailureReason = providerStatus
		if providerStatus == "success" {
			result.FailureReason = "missing connection id"
		}
		reason = &result.FailureReason
	}

	consumed, err := m.sessions.Consume(ctx, token, state, connID, reason, now)
	if err != nil {
		return LinkResult{}, fmt.Errorf("consume link session: %w", err)
	}
	if !consumed {
		// Lost the race against a concurrent callback for the same token.
		return LinkResult{}, ErrSessionConsumed
	}
	_ = m.events.Log(ctx, "link_callback", nil, connID, fmt.Sprintf("owner=%s status=%s", owner.Ref(), providerStatus))
	return result, nil
}
