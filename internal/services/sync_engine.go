package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"finsync/internal/db"
	"finsync/internal/models"
	"finsync/internal/money"
	"finsync/internal/provider"
	"finsync/internal/store"
	"finsync/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrSyncDisabled = errors.New("sync disabled for account")
	ErrNotLinked    = errors.New("account has no provider link")
)

// SyncResult reports what a sync attempt did. Provider-classified failures
// are results, not Go errors: the error return is reserved for lock
// contention and infrastructure faults.
type SyncResult struct {
	AccountID  string
	Outcome    provider.Kind
	Inserted   int
	Updated    int
	RetryAfter time.Duration
	Message    string
}

type SyncEngineConfig struct {
	LockTTL          time.Duration
	HardCeiling      time.Duration
	MaxSilentRetries int
}

// SyncEngine imports provider transactions for one account at a time:
// acquire the lock, fetch, classify, upsert, commit balances with the batch,
// release the lock.
type SyncEngine struct {
	txRunner     db.TxRunner
	tracker      *SyncStateTracker
	accounts     AccountStore
	transactions TransactionStore
	provider     ProviderAPI
	events       EventStore
	hub          SyncHub
	cfg          SyncEngineConfig
	now          func() time.Time
}

func NewSyncEngine(txRunner db.TxRunner, tracker *SyncStateTracker, accounts AccountStore, transactions TransactionStore, providerAPI ProviderAPI, events EventStore, hub SyncHub, cfg SyncEngineConfig) *SyncEngine {
	return &SyncEngine{
		txRunner:     txRunner,
		tracker:      tracker,
		accounts:     accounts,
		transactions: transactions,
		provider:     providerAPI,
		events:       events,
		hub:          hub,
		cfg:          cfg,
		now:          time.Now,
	}
}

func (e *SyncEngine) Sync(ctx context.Context, accountID string) (SyncResult, error) {
	holder, err := e.tracker.Acquire(ctx, accountID, e.cfg.LockTTL)
	if err != nil {
		return SyncResult{AccountID: accountID}, err
	}
	defer e.tracker.Release(accountID, holder)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.HardCeiling)
	defer cancel()

	result, err := e.run(ctx, accountID)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// The job hit the hard ceiling. The lock release above still runs;
		// the account is flagged and retried on the next reconciliation pass.
		message := fmt.Sprintf("sync timed out after %s", e.cfg.HardCeiling)
		e.setVisibleError(accountID, message)
		return SyncResult{AccountID: accountID, Outcome: provider.UnknownError, Message: message}, nil
	}
	return result, err
}

func (e *SyncEngine) run(ctx context.Context, accountID string) (SyncResult, error) {
	result := SyncResult{AccountID: accountID}
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return result, fmt.Errorf("load account: %w", err)
	}
	if !account.SyncEnabled {
		return result, ErrSyncDisabled
	}
	if account.ConnectionID == nil || account.ProviderAccountID == nil {
		return result, ErrNotLinked
	}

	raw, err := e.provider.ListTransactions(ctx, *account.ConnectionID, *account.ProviderAccountID, account.LastSyncAt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return e.transientFailure(ctx, account, provider.UnknownError, "provider request failed: "+err.Error())
	}

	var payload provider.TransactionsResponse
	outcome := provider.Classify(raw, &payload)
	switch outcome.Kind {
	case provider.Success:
		return e.apply(ctx, account, payload)
	case provider.AuthExpired:
		if err := e.accounts.MarkReauthRequired(ctx, account.ID, outcome.Message); err != nil {
			return result, err
		}
		_ = e.events.Log(ctx, "auth_expired", &account.ID, account.ConnectionID, outcome.Message)
		result.Outcome = outcome.Kind
		result.Message = outcome.Message
		return result, nil
	case provider.StaleConnection:
		if err := e.accounts.DisableSync(ctx, account.ID, outcome.Message); err != nil {
			return result, err
		}
		_ = e.events.Log(ctx, "connection_stale", &account.ID, account.ConnectionID, outcome.Message)
		result.Outcome = outcome.Kind
		result.Message = outcome.Message
		return result, nil
	case provider.RateLimited:
		// No account or transaction mutation: the retry is the reconciler's
		// job and the account is not in an error state.
		result.Outcome = outcome.Kind
		result.Message = outcome.Message
		result.RetryAfter = outcome.RetryAfter
		return result, nil
	case provider.MalformedResponse:
		log.Printf("malformed provider response for account %s: %s body=%q", account.ID, outcome.Message, outcome.BodySample)
		return e.transientFailure(ctx, account, outcome.Kind, outcome.Message)
	default:
		return e.transientFailure(ctx, account, provider.UnknownError, outcome.Message)
	}
}

// apply commits the upsert batch and the balance snapshot in one serializable
// transaction, then updates bookkeeping and notifies the owner's sockets.
func (e *SyncEngine) apply(ctx context.Context, account models.Account, payload provider.TransactionsResponse) (SyncResult, error) {
	result := SyncResult{AccountID: account.ID, Outcome: provider.Success}
	upserts, err := buildUpserts(payload.Transactions)
	if err != nil {
		// Schema was valid JSON but the content is unusable; treated like any
		// other malformed reply.
		return e.transientFailure(ctx, account, provider.MalformedResponse, err.Error())
	}

	syncedAt := e.now()
	available := decimalNullFromPtr(payload.Account.AvailableBalance)
	err = e.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		inserted, updated, err := e.transactions.UpsertBatch(ctx, tx, account.ID, upserts)
		if err != nil {
			return err
		}
		result.Inserted = inserted
		result.Updated = updated
		return e.accounts.ApplySyncSuccess(ctx, tx, account.ID, payload.Account.Balance, available, syncedAt)
	})
	if err != nil {
		return result, fmt.Errorf("commit sync for account %s: %w", account.ID, err)
	}

	owner := models.Owner{UserID: account.UserID, FamilyID: account.FamilyID}
	e.hub.BroadcastSync(owner.Ref(), websocket.SyncUpdate{
		AccountID: account.ID,
		Status:    models.AccountStatusActive,
		Balance:   money.Format(payload.Account.Balance),
		Currency:  account.Currency,
		SyncedAt:  syncedAt.UTC().Format(time.RFC3339),
	})
	_ = e.events.Log(ctx, "sync_succeeded", &account.ID, account.ConnectionID,
		fmt.Sprintf("inserted=%d updated=%d", result.Inserted, result.Updated))
	log.Printf("synced account %s: %d inserted, %d updated", account.ID, result.Inserted, result.Updated)
	return result, nil
}

// transientFailure counts a silent retry and only surfaces a user-visible
// error once the budget is spent. Balances and transactions are untouched.
func (e *SyncEngine) transientFailure(ctx context.Context, account models.Account, kind provider.Kind, message string) (SyncResult, error) {
	result := SyncResult{AccountID: account.ID, Outcome: kind, Message: message}
	failures, err := e.accounts.IncrementSyncFailures(ctx, account.ID)
	if err != nil {
		return result, err
	}
	if failures >= e.cfg.MaxSilentRetries {
		e.setVisibleError(account.ID, message)
		_ = e.events.Log(ctx, "sync_failed", &account.ID, account.ConnectionID, message)
	}
	log.Printf("sync attempt failed for account %s (%s, attempt %d): %s", account.ID, kind, failures, message)
	return result, nil
}

func (e *SyncEngine) setVisibleError(accountID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.accounts.SetSyncError(ctx, accountID, message); err != nil {
		log.Printf("failed to record sync error for account %s: %v", accountID, err)
	}
}

func buildUpserts(transactions []provider.Transaction) ([]store.TransactionUpsert, error) {
	upserts := make([]store.TransactionUpsert, 0, len(transactions))
	for _, tx := range transactions {
		if tx.ID == "" {
			return nil, errors.New("provider transaction missing id")
		}
		amount, err := money.Parse(tx.Amount)
		if err != nil {
			return nil, fmt.Errorf("provider transaction %s has invalid amount %q: %w", tx.ID, tx.Amount, err)
		}
		postedAt, err := time.Parse("2006-01-02", tx.PostedAt)
		if err != nil {
			return nil, fmt.Errorf("provider transaction %s has invalid posted date %q", tx.ID, tx.PostedAt)
		}
		upserts = append(upserts, store.TransactionUpsert{
			ID:          uuid.NewString(),
			ExternalID:  tx.ID,
			Amount:      amount,
			Direction:   money.Direction(amount),
			PostedAt:    postedAt,
			Description: tx.Description,
		})
	}
	return upserts, nil
}
