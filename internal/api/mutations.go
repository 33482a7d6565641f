package api

import (
	"context"
	"fmt"
	"time"

	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry describes the ledger row written alongside a balance change.
type Entry struct {
	SourceId string
	Code     models.TransactionCode
	EventId  string
}

// Credit adds amount to the (userId, currency) balance and appends a
// credited Transaction. It runs inside tx; the caller owns retries.
func Credit(ctx context.Context, tx store.LedgerTx, userId, currency string, amount decimal.Decimal, entry Entry) (*models.Balance, *models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, nil, validationError("credit amount must be positive")
	}
	bal, err := tx.GetBalance(ctx, userId, currency)
	if err != nil {
		return nil, nil, err
	}
	withdrawable := amount
	if entry.Code == models.CodeFreebet {
		withdrawable = decimal.Zero
	}
	t, err := applyDelta(ctx, tx, bal, amount, withdrawable, models.TransactionCredited, entry)
	if err != nil {
		return nil, nil, err
	}
	return bal, t, nil
}

// Debit subtracts amount from the balance and appends a debited
// Transaction. Available may go negative; withdrawable is floored at zero.
func Debit(ctx context.Context, tx store.LedgerTx, userId, currency string, amount decimal.Decimal, entry Entry) (*models.Balance, *models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, nil, validationError("debit amount must be positive")
	}
	bal, err := tx.GetBalance(ctx, userId, currency)
	if err != nil {
		return nil, nil, err
	}
	withdrawable := amount.Neg()
	if bal.WithdrawableBalance.LessThan(amount) {
		withdrawable = bal.WithdrawableBalance.Neg()
	}
	t, err := applyDelta(ctx, tx, bal, amount.Neg(), withdrawable, models.TransactionDebited, entry)
	if err != nil {
		return nil, nil, err
	}
	return bal, t, nil
}

// PreDebitForWithdrawalRequest reserves amount before the payout call. The
// matching debit entry is written by recordWithdrawalDebit once the
// provider has assigned the payout id, in the same tx.
func PreDebitForWithdrawalRequest(ctx context.Context, tx store.LedgerTx, userId, currency string, amount decimal.Decimal) (*models.Balance, error) {
	if !amount.IsPositive() {
		return nil, validationError("withdrawal amount must be positive")
	}
	bal, err := tx.GetBalance(ctx, userId, currency)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(bal.AvailableBalance) || amount.GreaterThan(bal.WithdrawableBalance) {
		return nil, fmt.Errorf("requested %s, available %s: %w", amount, bal.WithdrawableBalance, store.ErrInsufficientBalance)
	}
	bal.AvailableBalance = bal.AvailableBalance.Sub(amount)
	bal.WithdrawableBalance = bal.WithdrawableBalance.Sub(amount)
	bal.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateBalance(ctx, bal); err != nil {
		return nil, err
	}
	return bal, nil
}

// recordWithdrawalDebit appends the debited/withdrawal entry for a balance
// already reduced by PreDebitForWithdrawalRequest. It closes at the
// post-debit balance and moves no funds itself.
func recordWithdrawalDebit(ctx context.Context, tx store.LedgerTx, bal *models.Balance, amount decimal.Decimal, sourceId string) (*models.Transaction, error) {
	now := time.Now().UTC()
	t := &models.Transaction{
		Id:             uuid.New().String(),
		UserId:         bal.UserId,
		Amount:         amount,
		Currency:       bal.Currency,
		ClosingBalance: bal.AvailableBalance,
		SourceId:       sourceId,
		Type:           models.TransactionDebited,
		Code:           models.CodeWithdrawal,
		CreatedAt:      now,
	}
	if err := tx.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}

	bal.LastTransactionId = &t.Id
	bal.UpdatedAt = now
	if err := tx.UpdateBalance(ctx, bal); err != nil {
		return nil, err
	}
	return t, nil
}

// applyDelta is the single write path for ledger-visible balance changes:
// the Transaction carries the post-change available balance as its closing
// balance and both rows land in the same tx.
func applyDelta(ctx context.Context, tx store.LedgerTx, bal *models.Balance, delta, withdrawableDelta decimal.Decimal, txType models.TransactionType, entry Entry) (*models.Transaction, error) {
	exists, err := tx.TransactionExists(ctx, entry.SourceId)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("source id %s: %w", entry.SourceId, store.ErrDuplicateTransaction)
	}

	now := time.Now().UTC()
	bal.AvailableBalance = bal.AvailableBalance.Add(delta)
	bal.WithdrawableBalance = bal.WithdrawableBalance.Add(withdrawableDelta)

	t := &models.Transaction{
		Id:             uuid.New().String(),
		UserId:         bal.UserId,
		Amount:         delta.Abs(),
		Currency:       bal.Currency,
		ClosingBalance: bal.AvailableBalance,
		SourceId:       entry.SourceId,
		Type:           txType,
		Code:           entry.Code,
		EventId:        optionalString(entry.EventId),
		CreatedAt:      now,
	}
	if err := tx.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}

	bal.LastTransactionId = &t.Id
	bal.UpdatedAt = now
	if err := tx.UpdateBalance(ctx, bal); err != nil {
		return nil, err
	}
	return t, nil
}
