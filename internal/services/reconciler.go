package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"finsync/internal/provider"

	"github.com/google/uuid"
)

// Notifier hands user-facing connection problems to the notification
// subsystem, which lives outside this service.
type Notifier interface {
	NotifyAttentionNeeded(ctx context.Context, accountID, reason string)
}

// EventNotifier records notifications as sync events; the notification
// service tails that table.
type EventNotifier struct {
	events EventStore
}

func NewEventNotifier(events EventStore) *EventNotifier {
	return &EventNotifier{events: events}
}

func (n *EventNotifier) NotifyAttentionNeeded(ctx context.Context, accountID, reason string) {
	if err := n.events.Log(ctx, "attention_needed", &accountID, nil, reason); err != nil {
		log.Printf("failed to record notification for account %s: %v", accountID, err)
	}
	log.Printf("account %s needs attention: %s", accountID, reason)
}

type ReconcilerConfig struct {
	Interval         time.Duration
	StalenessWindow  time.Duration
	ReauthGrace      time.Duration
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration
	Workers          int
	QueueDepth       int
}

type syncJob struct {
	id        string
	accountID string
	trigger   string
}

// Reconciler is the single scheduler for sync work. Periodic staleness
// sweeps, provider webhooks and manual "sync now" requests all converge on
// one queue, so per-account locking and the global provider budget apply
// uniformly no matter what triggered the sync.
type Reconciler struct {
	accounts AccountStore
	sessions SessionStore
	engine   SyncRunner
	provider ProviderAPI
	notifier Notifier
	cfg      ReconcilerConfig

	jobs chan syncJob
	wg   sync.WaitGroup
	now  func() time.Time

	mu      sync.Mutex
	backoff map[string]*backoffState
}

type backoffState struct {
	failures    int
	nextAttempt time.Time
}

func NewReconciler(accounts AccountStore, sessions SessionStore, engine SyncRunner, providerAPI ProviderAPI, notifier Notifier, cfg ReconcilerConfig) *Reconciler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 64
	}
	return &Reconciler{
		accounts: accounts,
		sessions: sessions,
		engine:   engine,
		provider: providerAPI,
		notifier: notifier,
		cfg:      cfg,
		jobs:     make(chan syncJob, cfg.QueueDepth),
		now:      time.Now,
		backoff:  make(map[string]*backoffState),
	}
}

// Start launches the worker pool and the periodic sweep. Both stop when ctx
// is cancelled; Wait blocks until in-flight jobs drain.
func (r *Reconciler) Start(ctx context.Context) {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	r.wg.Add(1)
	go r.sweepLoop(ctx)
}

func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// EnqueueAccount submits a sync job and returns an acceptance token. The
// caller gets the token immediately; the sync itself is asynchronous.
func (r *Reconciler) EnqueueAccount(accountID, trigger string) (string, bool) {
	job := syncJob{id: uuid.NewString(), accountID: accountID, trigger: trigger}
	select {
	case r.jobs <- job:
		return job.id, true
	default:
		log.Printf("sync queue full, dropping %s job for account %s", trigger, accountID)
		return "", false
	}
}

// TriggerConnection fans a provider webhook out to every sync-enabled
// account sharing the connection.
func (r *Reconciler) TriggerConnection(ctx context.Context, connectionID, eventType string) error {
	accounts, err := r.accounts.ListByConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		switch eventType {
		case "connection_expired", "connection_revoked":
			if err := r.accounts.MarkReauthRequired(ctx, account.ID, "provider reported the connection as "+eventType); err != nil {
				log.Printf("failed to flag account %s after %s webhook: %v", account.ID, eventType, err)
			}
		default:
			if account.SyncEnabled {
				r.EnqueueAccount(account.ID, "webhook")
			}
		}
	}
	return nil
}

func (r *Reconciler) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.jobs:
			r.process(ctx, job)
		}
	}
}

func (r *Reconciler) process(ctx context.Context, job syncJob) {
	if delay := r.backoffDelay(job.accountID); delay > 0 {
		r.requeueAfter(ctx, job, delay)
		return
	}
	result, err := r.engine.Sync(ctx, job.accountID)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		// Another worker or process already has this account; nothing to do.
		return
	case errors.Is(err, ErrSyncDisabled), errors.Is(err, ErrNotLinked):
		return
	case err != nil:
		log.Printf("sync job %s for account %s failed: %v", job.id, job.accountID, err)
		r.recordFailure(job.accountID)
		return
	}

	switch result.Outcome {
	case provider.Success:
		r.clearBackoff(job.accountID)
	case provider.RateLimited:
		delay := result.RetryAfter
		if delay <= 0 {
			delay = r.cfg.RetryBackoffBase
		}
		r.requeueAfter(ctx, job, delay)
	case provider.AuthExpired, provider.StaleConnection:
		// Terminal until the user acts; the attention sweep notifies them.
		r.clearBackoff(job.accountID)
	default:
		r.recordFailure(job.accountID)
	}
}

func (r *Reconciler) requeueAfter(ctx context.Context, job syncJob, delay time.Duration) {
	timer := time.AfterFunc(delay, func() {
		select {
		case r.jobs <- job:
		default:
			log.Printf("sync queue full, dropping retry for account %s", job.accountID)
		}
	})
	go func() {
		<-ctx.Done()
		timer.Stop()
	}()
}

func (r *Reconciler) backoffDelay(accountID string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.backoff[accountID]
	if state == nil {
		return 0
	}
	if remaining := state.nextAttempt.Sub(r.now()); remaining > 0 {
		return remaining
	}
	return 0
}

// recordFailure doubles the per-account retry delay up to the cap, so a
// persistently failing connection is not hammered.
func (r *Reconciler) recordFailure(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.backoff[accountID]
	if state == nil {
		state = &backoffState{}
		r.backoff[accountID] = state
	}
	state.failures++
	delay := r.cfg.RetryBackoffBase << (state.failures - 1)
	if delay > r.cfg.RetryBackoffCap || delay <= 0 {
		delay = r.cfg.RetryBackoffCap
	}
	state.nextAttempt = r.now().Add(delay)
}

func (r *Reconciler) clearBackoff(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backoff, accountID)
}

func (r *Reconciler) sweepLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep re-schedules stale accounts, expires abandoned link sessions and
// notifies owners of connections that have needed attention past the grace
// period.
func (r *Reconciler) sweep(ctx context.Context) {
	now := r.now()

	if expired, err := r.sessions.ExpireStale(ctx, now); err != nil {
		log.Printf("failed to expire stale link sessions: %v", err)
	} else if expired > 0 {
		log.Printf("expired %d stale link sessions", expired)
	}

	candidates, err := r.accounts.ListSyncCandidates(ctx, now.Add(-r.cfg.StalenessWindow))
	if err != nil {
		log.Printf("staleness sweep failed: %v", err)
	} else {
		for _, account := range candidates {
			r.EnqueueAccount(account.ID, "reconcile")
		}
	}

	attention, err := r.accounts.ListNeedingAttention(ctx, now.Add(-r.cfg.ReauthGrace))
	if err != nil {
		log.Printf("attention sweep failed: %v", err)
		return
	}
	for _, account := range attention {
		reason := "connection needs re-authorization"
		if account.SyncError != nil {
			reason = *account.SyncError
		}
		if r.connectionRecovered(ctx, account.ConnectionID) {
			// The provider reports the connection healthy again; let the
			// normal sync path clear the error instead of notifying. A
			// stale-disabled account must have sync turned back on first or
			// the engine refuses the recovery job.
			if !account.SyncEnabled {
				if err := r.accounts.EnableSync(ctx, account.ID); err != nil {
					log.Printf("failed to re-enable sync for account %s: %v", account.ID, err)
					continue
				}
			}
			r.EnqueueAccount(account.ID, "recovery")
			continue
		}
		r.notifier.NotifyAttentionNeeded(ctx, account.ID, reason)
	}
}

// connectionRecovered re-verifies connection health with the provider before
// bothering the user about it.
func (r *Reconciler) connectionRecovered(ctx context.Context, connectionID *string) bool {
	if connectionID == nil {
		return false
	}
	raw, err := r.provider.GetConnectionStatus(ctx, *connectionID)
	if err != nil {
		return false
	}
	var payload provider.ConnectionStatusResponse
	outcome := provider.Classify(raw, &payload)
	return outcome.IsSuccess() && payload.Status == "active"
}
