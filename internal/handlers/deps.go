package handlers

import (
	"context"

	"finsync/internal/models"
	"finsync/internal/services"
)

type AccountStore interface {
	GetByID(ctx context.Context, accountID string) (models.Account, error)
	ListByOwner(ctx context.Context, owner models.Owner) ([]models.Account, error)
}

type TransactionStore interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error)
}

type SessionManager interface {
	Initiate(ctx context.Context, owner models.Owner) (services.LinkStart, error)
	CompleteCallback(ctx context.Context, token, providerStatus, connectionID string) (services.LinkResult, error)
}

type LinkService interface {
	LinkAccounts(ctx context.Context, owner models.Owner, connectionID string) ([]models.Account, error)
}

type SyncScheduler interface {
	EnqueueAccount(accountID, trigger string) (string, bool)
	TriggerConnection(ctx context.Context, connectionID, eventType string) error
}

type StateTracker interface {
	Status(ctx context.Context, accountID string) (services.SyncStatus, error)
}
