package services

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"finsync/internal/models"
	"finsync/internal/provider"
	"finsync/internal/store"
	"finsync/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubProviderAPI struct {
	createAuthSessionFn   func(ctx context.Context, ownerRef string) (provider.RawResponse, error)
	listAccountsFn        func(ctx context.Context, connectionID string) (provider.RawResponse, error)
	listTransactionsFn    func(ctx context.Context, connectionID, providerAccountID string, since *time.Time) (provider.RawResponse, error)
	getConnectionStatusFn func(ctx context.Context, connectionID string) (provider.RawResponse, error)
}

func (s *stubProviderAPI) CreateAuthSession(ctx context.Context, ownerRef string) (provider.RawResponse, error) {
	return s.createAuthSessionFn(ctx, ownerRef)
}

func (s *stubProviderAPI) ListAccounts(ctx context.Context, connectionID string) (provider.RawResponse, error) {
	return s.listAccountsFn(ctx, connectionID)
}

func (s *stubProviderAPI) ListTransactions(ctx context.Context, connectionID, providerAccountID string, since *time.Time) (provider.RawResponse, error) {
	return s.listTransactionsFn(ctx, connectionID, providerAccountID, since)
}

func (s *stubProviderAPI) GetConnectionStatus(ctx context.Context, connectionID string) (provider.RawResponse, error) {
	return s.getConnectionStatusFn(ctx, connectionID)
}

type stubAccountStore struct {
	createFn            func(ctx context.Context, tx store.Execer, account models.Account) error
	getByIDFn           func(ctx context.Context, accountID string) (models.Account, error)
	getByProviderFn     func(ctx context.Context, providerAccountID string) (models.Account, error)
	listByConnectionFn  func(ctx context.Context, connectionID string) ([]models.Account, error)
	listCandidatesFn    func(ctx context.Context, cutoff time.Time) ([]models.Account, error)
	listAttentionFn     func(ctx context.Context, cutoff time.Time) ([]models.Account, error)
	updateLinkFieldsFn  func(ctx context.Context, tx store.Execer, accountID, connectionID string, providerToken *string, name, accountType string) error
	applySyncSuccessFn  func(ctx context.Context, tx store.Execer, accountID string, balance decimal.Decimal, available decimal.NullDecimal, syncedAt time.Time) error
	setSyncErrorFn      func(ctx context.Context, accountID, message string) error
	incrementFailuresFn func(ctx context.Context, accountID string) (int, error)
	markReauthFn        func(ctx context.Context, accountID, message string) error
	enableSyncFn        func(ctx context.Context, accountID string) error
	disableSyncFn       func(ctx context.Context, accountID, message string) error
}

func (s *stubAccountStore) Create(ctx context.Context, tx store.Execer, account models.Account) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, account)
}

func (s *stubAccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	return s.getByIDFn(ctx, accountID)
}

func (s *stubAccountStore) GetByProviderAccountID(ctx context.Context, providerAccountID string) (models.Account, error) {
	if s.getByProviderFn == nil {
		return models.Account{}, sql.ErrNoRows
	}
	return s.getByProviderFn(ctx, providerAccountID)
}

func (s *stubAccountStore) ListByConnection(ctx context.Context, connectionID string) ([]models.Account, error) {
	return s.listByConnectionFn(ctx, connectionID)
}

func (s *stubAccountStore) ListSyncCandidates(ctx context.Context, cutoff time.Time) ([]models.Account, error) {
	if s.listCandidatesFn == nil {
		return nil, nil
	}
	return s.listCandidatesFn(ctx, cutoff)
}

func (s *stubAccountStore) ListNeedingAttention(ctx context.Context, cutoff time.Time) ([]models.Account, error) {
	if s.listAttentionFn == nil {
		return nil, nil
	}
	return s.listAttentionFn(ctx, cutoff)
}

func (s *stubAccountStore) UpdateLinkFields(ctx context.Context, tx store.Execer, accountID, connectionID string, providerToken *string, name, accountType string) error {
	if s.updateLinkFieldsFn == nil {
		return nil
	}
	return s.updateLinkFieldsFn(ctx, tx, accountID, connectionID, providerToken, name, accountType)
}

func (s *stubAccountStore) ApplySyncSuccess(ctx context.Context, tx store.Execer, accountID string, balance decimal.Decimal, available decimal.NullDecimal, syncedAt time.Time) error {
	if s.applySyncSuccessFn == nil {
		return nil
	}
	return s.applySyncSuccessFn(ctx, tx, accountID, balance, available, syncedAt)
}

func (s *stubAccountStore) SetSyncError(ctx context.Context, accountID, message string) error {
	if s.setSyncErrorFn == nil {
		return nil
	}
	return s.setSyncErrorFn(ctx, accountID, message)
}

func (s *stubAccountStore) IncrementSyncFailures(ctx context.Context, accountID string) (int, error) {
	if s.incrementFailuresFn == nil {
		return 1, nil
	}
	return s.incrementFailuresFn(ctx, accountID)
}

func (s *stubAccountStore) MarkReauthRequired(ctx context.Context, accountID, message string) error {
	if s.markReauthFn == nil {
		return nil
	}
	return s.markReauthFn(ctx, accountID, message)
}

func (s *stubAccountStore) EnableSync(ctx context.Context, accountID string) error {
	if s.enableSyncFn == nil {
		return nil
	}
	return s.enableSyncFn(ctx, accountID)
}

func (s *stubAccountStore) DisableSync(ctx context.Context, accountID, message string) error {
	if s.disableSyncFn == nil {
		return nil
	}
	return s.disableSyncFn(ctx, accountID, message)
}

type stubTransactionStore struct {
	upsertBatchFn func(ctx context.Context, tx store.Tx, accountID string, inputs []store.TransactionUpsert) (int, int, error)
}

func (s *stubTransactionStore) UpsertBatch(ctx context.Context, tx store.Tx, accountID string, inputs []store.TransactionUpsert) (int, int, error) {
	if s.upsertBatchFn == nil {
		return 0, 0, nil
	}
	return s.upsertBatchFn(ctx, tx, accountID, inputs)
}

type stubSessionStore struct {
	createFn      func(ctx context.Context, session models.LinkSession) error
	getFn         func(ctx context.Context, token string) (models.LinkSession, error)
	consumeFn     func(ctx context.Context, token, state string, connectionID, failureReason *string, now time.Time) (bool, error)
	expireStaleFn func(ctx context.Context, now time.Time) (int64, error)
}

func (s *stubSessionStore) Create(ctx context.Context, session models.LinkSession) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, session)
}

func (s *stubSessionStore) Get(ctx context.Context, token string) (models.LinkSession, error) {
	return s.getFn(ctx, token)
}

func (s *stubSessionStore) Consume(ctx context.Context, token, state string, connectionID, failureReason *string, now time.Time) (bool, error) {
	if s.consumeFn == nil {
		return true, nil
	}
	return s.consumeFn(ctx, token, state, connectionID, failureReason, now)
}

func (s *stubSessionStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	if s.expireStaleFn == nil {
		return 0, nil
	}
	return s.expireStaleFn(ctx, now)
}

type stubLockStore struct {
	tryAcquireFn     func(ctx context.Context, accountID, holder string, ttl time.Duration) (bool, error)
	reclaimExpiredFn func(ctx context.Context, accountID string) (bool, error)
	releaseFn        func(ctx context.Context, accountID, holder string) error
	isLockedFn       func(ctx context.Context, accountID string) (bool, error)
}

func (s *stubLockStore) TryAcquire(ctx context.Context, accountID, holder string, ttl time.Duration) (bool, error) {
	if s.tryAcquireFn == nil {
		return true, nil
	}
	return s.tryAcquireFn(ctx, accountID, holder, ttl)
}

func (s *stubLockStore) ReclaimExpired(ctx context.Context, accountID string) (bool, error) {
	if s.reclaimExpiredFn == nil {
		return false, nil
	}
	return s.reclaimExpiredFn(ctx, accountID)
}

func (s *stubLockStore) Release(ctx context.Context, accountID, holder string) error {
	if s.releaseFn == nil {
		return nil
	}
	return s.releaseFn(ctx, accountID, holder)
}

func (s *stubLockStore) IsLocked(ctx context.Context, accountID string) (bool, error) {
	if s.isLockedFn == nil {
		return false, nil
	}
	return s.isLockedFn(ctx, accountID)
}

// recordingEvents remembers the kinds of events logged; reconciler tests log
// from multiple goroutines, so access is guarded.
type recordingEvents struct {
	mu    sync.Mutex
	kinds []string
}

func (e *recordingEvents) Log(ctx context.Context, kind string, accountID, connectionID *string, detail string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kinds = append(e.kinds, kind)
	return nil
}

func (e *recordingEvents) has(kind string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range e.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type recordingHub struct {
	mu      sync.Mutex
	updates []websocket.SyncUpdate
	refs    []string
}

func (h *recordingHub) BroadcastSync(ownerRef string, update websocket.SyncUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs = append(h.refs, ownerRef)
	h.updates = append(h.updates, update)
}

type stubSyncRunner struct {
	syncFn func(ctx context.Context, accountID string) (SyncResult, error)
}

func (s *stubSyncRunner) Sync(ctx context.Context, accountID string) (SyncResult, error) {
	return s.syncFn(ctx, accountID)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNotifier) NotifyAttentionNeeded(ctx context.Context, accountID, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, accountID)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

func jsonRaw(status int, body string) provider.RawResponse {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return provider.RawResponse{StatusCode: status, Header: header, Body: []byte(body)}
}

func linkedAccount(id string) models.Account {
	connID := "conn-1"
	providerID := "pa-" + id
	userID := "user-1"
	return models.Account{
		ID:                id,
		UserID:            &userID,
		Name:              "Checking",
		AccountType:       "checking",
		Status:            models.AccountStatusActive,
		Currency:          "EUR",
		ConnectionID:      &connID,
		ProviderAccountID: &providerID,
		SyncEnabled:       true,
	}
}
