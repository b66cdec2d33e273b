package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Account statuses. A reauth_required account stays visible but needs the
// owner to re-run the provider link flow before syncing resumes.
const (
	AccountStatusActive       = "active"
	AccountStatusDisabled     = "disabled"
	AccountStatusError        = "error"
	AccountStatusReauthNeeded = "reauth_required"
)

const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)

var ErrOwnerConflict = errors.New("account must have exactly one owner")

type Account struct {
	ID                string              `db:"id" json:"id"`
	UserID            *string             `db:"user_id" json:"user_id,omitempty"`
	FamilyID          *string             `db:"family_id" json:"family_id,omitempty"`
	Name              string              `db:"name" json:"name"`
	AccountType       string              `db:"account_type" json:"account_type"`
	Status            string              `db:"status" json:"status"`
	CurrentBalance    decimal.Decimal     `db:"current_balance" json:"current_balance"`
	AvailableBalance  decimal.NullDecimal `db:"available_balance" json:"available_balance,omitempty"`
	CreditLimit       decimal.NullDecimal `db:"credit_limit" json:"credit_limit,omitempty"`
	Currency          string              `db:"currency" json:"currency"`
	ConnectionID      *string             `db:"connection_id" json:"connection_id,omitempty"`
	ProviderAccountID *string             `db:"provider_account_id" json:"provider_account_id,omitempty"`
	ProviderToken     *string             `db:"provider_token" json:"-"`
	LastSyncAt        *time.Time          `db:"last_sync_at" json:"last_sync_at,omitempty"`
	SyncError         *string             `db:"sync_error" json:"sync_error,omitempty"`
	SyncFailures      int                 `db:"sync_failures" json:"-"`
	SyncEnabled       bool                `db:"sync_enabled" json:"sync_enabled"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updated_at"`
}

type Transaction struct {
	ID          string          `db:"id" json:"id"`
	AccountID   string          `db:"account_id" json:"account_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Direction   string          `db:"direction" json:"direction"`
	PostedAt    time.Time       `db:"posted_at" json:"posted_at"`
	Description string          `db:"description" json:"description"`
	ExternalID  *string         `db:"external_id" json:"external_id,omitempty"`
	CategoryID  *string         `db:"category_id" json:"category_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Link session states.
const (
	SessionPending   = "pending"
	SessionSucceeded = "succeeded"
	SessionFailed    = "failed"
	SessionExpired   = "expired"
)

type LinkSession struct {
	Token         string     `db:"token" json:"token"`
	UserID        *string    `db:"user_id" json:"user_id,omitempty"`
	FamilyID      *string    `db:"family_id" json:"family_id,omitempty"`
	State         string     `db:"state" json:"state"`
	ConnectionID  *string    `db:"connection_id" json:"connection_id,omitempty"`
	FailureReason *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time  `db:"expires_at" json:"expires_at"`
	ConsumedAt    *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
}

// Owner identifies who a linked account belongs to: exactly one of UserID or
// FamilyID is set.
type Owner struct {
	UserID   *string
	FamilyID *string
}

func UserOwner(userID string) Owner {
	return Owner{UserID: &userID}
}

func FamilyOwner(familyID string) Owner {
	return Owner{FamilyID: &familyID}
}

// Validate enforces the one-owner invariant. Account create and update paths
// go through this instead of re-checking the two pointers ad hoc.
func (o Owner) Validate() error {
	if (o.UserID == nil) == (o.FamilyID == nil) {
		return ErrOwnerConflict
	}
	return nil
}

// Ref is a stable string form of the owner, used for provider session
// correlation and websocket routing.
func (o Owner) Ref() string {
	if o.UserID != nil {
		return "user:" + *o.UserID
	}
	if o.FamilyID != nil {
		return "family:" + *o.FamilyID
	}
	return ""
}
