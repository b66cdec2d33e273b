package services

import (
	"context"
	"time"

	"finsync/internal/models"
	"finsync/internal/provider"
	"finsync/internal/store"
	"finsync/internal/websocket"

	"github.com/shopspring/decimal"
)

// ProviderAPI is the outbound surface of the aggregation provider. Every
// method returns the raw reply; interpretation happens in provider.Classify.
type ProviderAPI interface {
	CreateAuthSession(ctx context.Context, ownerRef string) (provider.RawResponse, error)
	ListAccounts(ctx context.Context, connectionID string) (provider.RawResponse, error)
	ListTransactions(ctx context.Context, connectionID, providerAccountID string, since *time.Time) (provider.RawResponse, error)
	GetConnectionStatus(ctx context.Context, connectionID string) (provider.RawResponse, error)
}

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, account models.Account) error
	GetByID(ctx context.Context, accountID string) (models.Account, error)
	GetByProviderAccountID(ctx context.Context, providerAccountID string) (models.Account, error)
	ListByConnection(ctx context.Context, connectionID string) ([]models.Account, error)
	ListSyncCandidates(ctx context.Context, cutoff time.Time) ([]models.Account, error)
	ListNeedingAttention(ctx context.Context, cutoff time.Time) ([]models.Account, error)
	UpdateLinkFields(ctx context.Context, tx store.Execer, accountID, connectionID string, providerToken *string, name, accountType string) error
	ApplySyncSuccess(ctx context.Context, tx store.Execer, accountID string, balance decimal.Decimal, available decimal.NullDecimal, syncedAt time.Time) error
	SetSyncError(ctx context.Context, accountID, message string) error
	IncrementSyncFailures(ctx context.Context, accountID string) (int, error)
	MarkReauthRequired(ctx context.Context, accountID, message string) error
	EnableSync(ctx context.Context, accountID string) error
	DisableSync(ctx context.Context, accountID, message string) error
}

type TransactionStore interface {
	UpsertBatch(ctx context.Context, tx store.Tx, accountID string, inputs []store.TransactionUpsert) (int, int, error)
}

type SessionStore interface {
	Create(ctx context.Context, session models.LinkSession) error
	Get(ctx context.Context, token string) (models.LinkSession, error)
	Consume(ctx context.Context, token, state string, connectionID, failureReason *string, now time.Time) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type LockStore interface {
	TryAcquire(ctx context.Context, accountID, holder string, ttl time.Duration) (bool, error)
	ReclaimExpired(ctx context.Context, accountID string) (bool, error)
	Release(ctx context.Context, accountID, holder string) error
	IsLocked(ctx context.Context, accountID string) (bool, error)
}

type EventStore interface {
	Log(ctx context.Context, kind string, accountID, connectionID *string, detail string) error
}

type SyncHub interface {
	BroadcastSync(ownerRef string, update websocket.SyncUpdate)
}

// SyncRunner is the engine as seen by the link service and the reconciler.
type SyncRunner interface {
	Sync(ctx context.Context, accountID string) (SyncResult, error)
}

func stringPtr(value string) *string {
	return &value
}

func decimalNullFromPtr(value *decimal.Decimal) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *value, Valid: true}
}
