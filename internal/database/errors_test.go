package database

import (
	"context"
	"errors"
	"testing"

	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

func TestTranslateError_PostgresUniqueByTable(t *testing.T) {
	tests := []struct {
		table string
		want  error
	}{
		{"transactions", store.ErrDuplicateTransaction},
		{"deposits", store.ErrDuplicateTransaction},
		{"withdrawals", store.ErrUniqueViolation},
		{"balances", store.ErrUniqueViolation},
	}

	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			err := translateError(&pgconn.PgError{Code: pgUniqueViolation, TableName: tt.table})
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if err := translateError(&pgconn.PgError{Code: pgSerializationFailure}); !errors.Is(err, store.ErrWriteConflict) {
		t.Errorf("Expected ErrWriteConflict, got %v", err)
	}
}

func TestSqliteConstraintTable(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"UNIQUE constraint failed: transactions.source_id", "transactions"},
		{"UNIQUE constraint failed: balances.user_id, balances.currency", "balances"},
		{"database is locked", ""},
	}

	for _, tt := range tests {
		if got := sqliteConstraintTable(tt.msg); got != tt.want {
			t.Errorf("sqliteConstraintTable(%q) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}

func TestInsertWithdrawal_DuplicateSourceIdIsNotARedelivery(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	insert := func() error {
		return service.WithTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
			return tx.InsertWithdrawal(ctx, &models.Withdrawal{
				UserId: "user1", Amount: decimal.NewFromInt(10), Currency: "USD", TargetCurrency: "SATS",
				SourceId: "wi_1", Status: models.WithdrawalPending, WithdrawMethod: models.RailLightning,
				WithdrawRequest: "lnbc1qpayoutinvoice",
			})
		})
	}

	if err := insert(); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	err := insert()
	if !errors.Is(err, store.ErrUniqueViolation) {
		t.Fatalf("Expected ErrUniqueViolation, got %v", err)
	}
	if errors.Is(err, store.ErrDuplicateTransaction) {
		t.Errorf("Withdrawal conflict must not map to ErrDuplicateTransaction: %v", err)
	}
}
