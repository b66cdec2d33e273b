package store

import (
	"context"
	"time"

	"finsync/internal/models"

	"github.com/shopspring/decimal"
)

type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// TransactionUpsert is one provider transaction ready to be written. It
// deliberately has no category field: category assignment belongs to the
// user and a re-sync must never touch it.
type TransactionUpsert struct {
	ID          string
	ExternalID  string
	Amount      decimal.Decimal
	Direction   string
	PostedAt    time.Time
	Description string
}

// UpsertBatch inserts or updates provider transactions keyed by
// (account_id, external_id). Existing rows get amount, direction, posted_at
// and description refreshed; category_id is never written. Returns how many
// rows were inserted versus updated.
func (s *TransactionStore) UpsertBatch(ctx context.Context, tx Tx, accountID string, inputs []TransactionUpsert) (int, int, error) {
	query := `
		INSERT INTO transactions (id, account_id, amount, direction, posted_at, description, external_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id, external_id) WHERE external_id IS NOT NULL
		DO UPDATE SET amount = EXCLUDED.amount,
		              direction = EXCLUDED.direction,
		              posted_at = EXCLUDED.posted_at,
		              description = EXCLUDED.description,
		              updated_at = NOW()
		RETURNING (xmax = 0) AS inserted
	`
	var inserted, updated int
	for _, input := range inputs {
		var isInsert bool
		err := tx.GetContext(ctx, &isInsert, query,
			input.ID, accountID, input.Amount, input.Direction,
			input.PostedAt, input.Description, input.ExternalID,
		)
		if err != nil {
			return inserted, updated, err
		}
		if isInsert {
			inserted++
		} else {
			updated++
		}
	}
	return inserted, updated, nil
}

func (s *TransactionStore) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM transactions
		WHERE account_id = $1
		ORDER BY posted_at DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM transactions WHERE account_id = $1
	`, accountID)
	return count, err
}
