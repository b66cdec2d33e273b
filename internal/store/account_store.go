package store

import (
	"context"
	"time"

	"finsync/internal/models"

	"github.com/shopspring/decimal"
)

type AccountStore struct {
	db DB
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, account models.Account) error {
	owner := models.Owner{UserID: account.UserID, FamilyID: account.FamilyID}
	if err := owner.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO accounts (id, user_id, family_id, name, account_type, status,
		                      current_balance, available_balance, credit_limit, currency,
		                      connection_id, provider_account_id, provider_token, sync_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := tx.ExecContext(ctx, query,
		account.ID, account.UserID, account.FamilyID, account.Name, account.AccountType,
		account.Status, account.CurrentBalance, account.AvailableBalance, account.CreditLimit,
		account.Currency, account.ConnectionID, account.ProviderAccountID, account.ProviderToken,
		account.SyncEnabled,
	)
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM accounts WHERE id = $1
	`, accountID)
	return row, err
}

func (s *AccountStore) GetByProviderAccountID(ctx context.Context, providerAccountID string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM accounts WHERE provider_account_id = $1
	`, providerAccountID)
	return row, err
}

func (s *AccountStore) ListByOwner(ctx context.Context, owner models.Owner) ([]models.Account, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	var rows []models.Account
	var err error
	if owner.UserID != nil {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT * FROM accounts WHERE user_id = $1 ORDER BY created_at
		`, *owner.UserID)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT * FROM accounts WHERE family_id = $1 ORDER BY created_at
		`, *owner.FamilyID)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) ListByConnection(ctx context.Context, connectionID string) ([]models.Account, error) {
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM accounts WHERE connection_id = $1 ORDER BY created_at
	`, connectionID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListSyncCandidates returns sync-enabled linked accounts whose last sync is
// missing or older than the cutoff.
func (s *AccountStore) ListSyncCandidates(ctx context.Context, cutoff time.Time) ([]models.Account, error) {
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM accounts
		WHERE sync_enabled = TRUE
		  AND provider_account_id IS NOT NULL
		  AND status NOT IN ('reauth_required', 'disabled')
		  AND (last_sync_at IS NULL OR last_sync_at < $1)
		ORDER BY last_sync_at NULLS FIRST
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListNeedingAttention returns accounts stuck in a user-visible failure state
// longer than the grace period, for the notification sweep.
func (s *AccountStore) ListNeedingAttention(ctx context.Context, cutoff time.Time) ([]models.Account, error) {
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM accounts
		WHERE (status = 'reauth_required' OR (sync_enabled = FALSE AND sync_error IS NOT NULL))
		  AND updated_at < $1
		ORDER BY updated_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateLinkFields refreshes provider metadata on an already-known account
// when the owner re-links its connection.
func (s *AccountStore) UpdateLinkFields(ctx context.Context, tx Execer, accountID, connectionID string, providerToken *string, name, accountType string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET connection_id = $1, provider_token = $2, name = $3, account_type = $4,
		    status = 'active', sync_enabled = TRUE, updated_at = NOW()
		WHERE id = $5
	`, connectionID, providerToken, name, accountType, accountID)
	return err
}

// ApplySyncSuccess commits the balance snapshot and bookkeeping for a
// completed sync. It runs in the same transaction as the upsert batch.
func (s *AccountStore) ApplySyncSuccess(ctx context.Context, tx Execer, accountID string, balance decimal.Decimal, available decimal.NullDecimal, syncedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET current_balance = $1, available_balance = $2, last_sync_at = $3,
		    sync_error = NULL, sync_failures = 0, status = 'active', updated_at = NOW()
		WHERE id = $4
	`, balance, available, syncedAt, accountID)
	return err
}

func (s *AccountStore) SetSyncError(ctx context.Context, accountID, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET sync_error = $1, status = 'error', updated_at = NOW()
		WHERE id = $2
	`, message, accountID)
	return err
}

// IncrementSyncFailures bumps the consecutive-failure counter and returns the
// new count, so transient errors stay silent until the retry budget runs out.
func (s *AccountStore) IncrementSyncFailures(ctx context.Context, accountID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		UPDATE accounts
		SET sync_failures = sync_failures + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING sync_failures
	`, accountID)
	return count, err
}

func (s *AccountStore) MarkReauthRequired(ctx context.Context, accountID, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET status = 'reauth_required', sync_error = $1, updated_at = NOW()
		WHERE id = $2
	`, message, accountID)
	return err
}

// EnableSync lifts a stale-connection shutoff once the provider reports the
// connection healthy again. The old sync_error stays visible until the next
// successful sync clears it.
func (s *AccountStore) EnableSync(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET sync_enabled = TRUE, status = 'active', updated_at = NOW()
		WHERE id = $1
	`, accountID)
	return err
}

// DisableSync turns syncing off for a stale connection. The account and its
// transactions stay; only explicit user action deletes them.
func (s *AccountStore) DisableSync(ctx context.Context, accountID, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET sync_enabled = FALSE, sync_error = $1, status = 'error', updated_at = NOW()
		WHERE id = $2
	`, message, accountID)
	return err
}
