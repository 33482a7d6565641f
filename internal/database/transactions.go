package database

import (
	"context"
	"fmt"
	"time"

	"speed-ledger-go/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func (t *ledgerTx) TransactionExists(ctx context.Context, sourceId string) (bool, error) {
	var count int
	if err := sqlx.GetContext(ctx, t.q, &count, t.q.Rebind(queryTransactionExists), sourceId); err != nil {
		return false, fmt.Errorf("failed to check for duplicate transaction: %w", translateError(err))
	}
	return count > 0, nil
}

// InsertTransaction appends a ledger entry. A second entry with the same
// source id fails with store.ErrDuplicateTransaction from the unique index.
func (t *ledgerTx) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.Id == "" {
		txn.Id = uuid.New().String()
	}
	txn.CreatedAt = time.Now().UTC()

	_, err := t.exec(ctx, queryInsertTransaction,
		txn.Id, txn.UserId, txn.Amount, txn.Currency, txn.ClosingBalance,
		txn.SourceId, txn.Type, txn.Code, txn.EventId, txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", txn.SourceId, err)
	}
	return nil
}
