package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"speed-ledger-go/internal/store"

	"github.com/jmoiron/sqlx"
)

// Compile-time check: *ledgerTx must satisfy store.LedgerTx.
var _ store.LedgerTx = (*ledgerTx)(nil)

// ledgerTx runs queries against either the pool or an open transaction.
type ledgerTx struct {
	q sqlx.ExtContext
}

// get scans one row into dest and reports notFound when there is none.
func (t *ledgerTx) get(ctx context.Context, dest interface{}, notFound error, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, t.q, dest, t.q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return translateError(err)
}

func (t *ledgerTx) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := t.q.ExecContext(ctx, t.q.Rebind(query), args...)
	if err != nil {
		return 0, translateError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected, nil
}
