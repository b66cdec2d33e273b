package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"finsync/internal/db"
	"finsync/internal/models"
	"finsync/internal/provider"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AccountLinkService turns a completed provider authorization into local
// accounts: one upsert per provider account, each in its own transaction so
// a failure partway leaves earlier accounts linked.
type AccountLinkService struct {
	provider        ProviderAPI
	accounts        AccountStore
	txRunner        db.TxRunner
	engine          SyncRunner
	events          EventStore
	initialSyncWait time.Duration
}

func NewAccountLinkService(providerAPI ProviderAPI, accounts AccountStore, txRunner db.TxRunner, engine SyncRunner, events EventStore, initialSyncWait time.Duration) *AccountLinkService {
	return &AccountLinkService{
		provider:        providerAPI,
		accounts:        accounts,
		txRunner:        txRunner,
		engine:          engine,
		events:          events,
		initialSyncWait: initialSyncWait,
	}
}

func (s *AccountLinkService) LinkAccounts(ctx context.Context, owner models.Owner, connectionID string) ([]models.Account, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	raw, err := s.provider.ListAccounts(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("list provider accounts: %w", err)
	}
	var payload provider.AccountsResponse
	outcome := provider.Classify(raw, &payload)
	if !outcome.IsSuccess() {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, outcome.Message)
	}

	linked := make([]models.Account, 0, len(payload.Accounts))
	for _, providerAccount := range payload.Accounts {
		account, isNew, err := s.upsertAccount(ctx, owner, connectionID, providerAccount)
		if err != nil {
			// Accounts linked before the failure stay linked.
			return linked, fmt.Errorf("link provider account %s: %w", providerAccount.ID, err)
		}
		if isNew {
			s.runInitialSync(ctx, account.ID)
			// Re-read so the caller sees the first sync's bookkeeping.
			if refreshed, err := s.accounts.GetByID(ctx, account.ID); err == nil {
				account = refreshed
			}
		}
		linked = append(linked, account)
	}
	_ = s.events.Log(ctx, "accounts_linked", nil, &connectionID,
		fmt.Sprintf("owner=%s count=%d", owner.Ref(), len(linked)))
	return linked, nil
}

func (s *AccountLinkService) upsertAccount(ctx context.Context, owner models.Owner, connectionID string, providerAccount provider.Account) (models.Account, bool, error) {
	existing, err := s.accounts.GetByProviderAccountID(ctx, providerAccount.ID)
	switch {
	case err == nil:
		err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			return s.accounts.UpdateLinkFields(ctx, tx, existing.ID, connectionID,
				tokenPtr(providerAccount.Token), providerAccount.Name, accountType(providerAccount))
		})
		if err != nil {
			return models.Account{}, false, err
		}
		refreshed, err := s.accounts.GetByID(ctx, existing.ID)
		if err != nil {
			return models.Account{}, false, err
		}
		return refreshed, false, nil
	case errors.Is(err, sql.ErrNoRows):
		account := models.Account{
			ID:                uuid.NewString(),
			UserID:            owner.UserID,
			FamilyID:          owner.FamilyID,
			Name:              accountName(providerAccount),
			AccountType:       accountType(providerAccount),
			Status:            models.AccountStatusActive,
			CurrentBalance:    providerAccount.Balance,
			AvailableBalance:  decimalNullFromPtr(providerAccount.AvailableBalance),
			CreditLimit:       decimalNullFromPtr(providerAccount.CreditLimit),
			Currency:          providerAccount.Currency,
			ConnectionID:      &connectionID,
			ProviderAccountID: stringPtr(providerAccount.ID),
			ProviderToken:     tokenPtr(providerAccount.Token),
			SyncEnabled:       true,
		}
		err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			return s.accounts.Create(ctx, tx, account)
		})
		if err != nil {
			return models.Account{}, false, err
		}
		return account, true, nil
	default:
		return models.Account{}, false, err
	}
}

// runInitialSync gives a newly linked account its first transaction history,
// synchronously but bounded. The account stays visible either way, but a
// failed first sync is recorded on it immediately: the silent-retry budget
// only applies to re-syncs of accounts that have synced before.
func (s *AccountLinkService) runInitialSync(ctx context.Context, accountID string) {
	syncCtx, cancel := context.WithTimeout(ctx, s.initialSyncWait)
	defer cancel()
	result, err := s.engine.Sync(syncCtx, accountID)
	if err != nil {
		log.Printf("initial sync failed for account %s: %v", accountID, err)
		s.recordInitialSyncError(ctx, accountID, "initial sync failed: "+err.Error())
		return
	}
	if result.Outcome != provider.Success {
		log.Printf("initial sync for account %s ended with %s: %s", accountID, result.Outcome, result.Message)
		message := result.Message
		if message == "" {
			message = fmt.Sprintf("initial sync ended with %s", result.Outcome)
		}
		s.recordInitialSyncError(ctx, accountID, message)
	}
}

func (s *AccountLinkService) recordInitialSyncError(ctx context.Context, accountID, message string) {
	if err := s.accounts.SetSyncError(ctx, accountID, message); err != nil {
		log.Printf("failed to record initial sync error for account %s: %v", accountID, err)
	}
}

func accountName(providerAccount provider.Account) string {
	if providerAccount.Name != "" {
		return providerAccount.Name
	}
	return "Linked account"
}

func accountType(providerAccount provider.Account) string {
	if providerAccount.Type != "" {
		return providerAccount.Type
	}
	return "checking"
}

func tokenPtr(token string) *string {
	if token == "" {
		return nil
	}
	return &token
}
