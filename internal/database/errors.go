package database

import (
	"errors"
	"fmt"
	"strings"

	"speed-ledger-go/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Postgres SQLSTATE codes
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// translateError maps driver errors onto the store sentinels so callers
// never need to know which backend is in use.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return uniqueViolation(sqliteConstraintTable(sqliteErr.Error()), err)
		case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", store.ErrWriteConflict, err)
		}
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return uniqueViolation(pgErr.TableName, err)
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %v", store.ErrWriteConflict, err)
		}
	}
	return err
}

// Tables whose unique source_id is an event idempotency key.
var idempotencyTables = map[string]bool{
	"transactions": true,
	"deposits":     true,
}

// uniqueViolation reports a redelivered event as store.ErrDuplicateTransaction.
// Any other unique conflict is store.ErrUniqueViolation.
func uniqueViolation(table string, err error) error {
	if idempotencyTables[table] {
		return fmt.Errorf("%w: %v", store.ErrDuplicateTransaction, err)
	}
	return fmt.Errorf("%w: %v", store.ErrUniqueViolation, err)
}

// sqliteConstraintTable extracts the table from messages such as
// "UNIQUE constraint failed: transactions.source_id".
func sqliteConstraintTable(msg string) string {
	_, columns, ok := strings.Cut(msg, "constraint failed: ")
	if !ok {
		return ""
	}
	table, _, _ := strings.Cut(columns, ".")
	return table
}
