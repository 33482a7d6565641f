/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package store

import (
	"context"
	"errors"
	"time"

	"speed-ledger-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrUniqueViolation        = errors.New("unique constraint violation")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrWriteConflict          = errors.New("write conflict")
	ErrBalanceNotFound        = errors.New("balance record not found")
	ErrBalanceExists          = errors.New("balance record already exists")
	ErrDepositNotFound        = errors.New("deposit record not found")
	ErrPendingDepositNotFound = errors.New("pending deposit record not found")
	ErrDepositAddressNotFound = errors.New("deposit address record not found")
	ErrWithdrawalNotFound     = errors.New("withdraw record not found")
	ErrAlreadyFinalized       = errors.New("record already in a terminal state")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrWithdrawalCooldown     = errors.New("withdrawal cooldown active")
	ErrDepositCooldown        = errors.New("deposit cooldown active")
)

// IsTransient reports whether err belongs to the small set of conflicts
// that can succeed when the whole unit of work is re-run.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrWriteConflict) ||
		errors.Is(err, ErrPendingDepositNotFound) ||
		errors.Is(err, context.DeadlineExceeded)
}

// LedgerTx is the set of reads and writes available inside one atomic
// unit of work. Nothing is visible to other units until the enclosing
// WithTx returns nil.
type LedgerTx interface {
	// --- Balances ---
	GetBalance(ctx context.Context, userId, currency string) (*models.Balance, error)
	InsertBalance(ctx context.Context, b *models.Balance) error
	// UpdateBalance writes b if its Version still matches the stored row
	// and bumps b.Version on success.
	UpdateBalance(ctx context.Context, b *models.Balance) error

	// --- Transactions ---
	TransactionExists(ctx context.Context, sourceId string) (bool, error)
	InsertTransaction(ctx context.Context, t *models.Transaction) error

	// --- Deposits ---
	GetDeposit(ctx context.Context, id string) (*models.Deposit, error)
	GetDepositBySourceId(ctx context.Context, sourceId string) (*models.Deposit, error)
	InsertDeposit(ctx context.Context, d *models.Deposit) error
	// TransitionDeposit persists d if the stored status still equals from.
	TransitionDeposit(ctx context.Context, d *models.Deposit, from models.DepositStatus) error
	LastPaidDepositAt(ctx context.Context, userId string) (time.Time, bool, error)

	// --- Deposit addresses ---
	GetDepositAddress(ctx context.Context, id string) (*models.DepositAddress, error)
	FindDepositAddress(ctx context.Context, rail models.Rail, address string) (*models.DepositAddress, error)
	InsertDepositAddress(ctx context.Context, a *models.DepositAddress) error
	UpdateDepositAddress(ctx context.Context, a *models.DepositAddress) error

	// --- Withdrawals ---
	GetWithdrawalBySourceId(ctx context.Context, sourceId string) (*models.Withdrawal, error)
	InsertWithdrawal(ctx context.Context, w *models.Withdrawal) error
	TransitionWithdrawal(ctx context.Context, w *models.Withdrawal, from models.WithdrawalStatus) error
	LastPaidWithdrawalAt(ctx context.Context, userId string) (time.Time, bool, error)
}

// LedgerStore defines the contract that every backend (SQLite, Postgres, ...) must satisfy.
type LedgerStore interface {
	// WithTx runs fn inside a fresh transaction, committing when fn
	// returns nil and rolling back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	// --- Reads ---
	GetBalance(ctx context.Context, userId, currency string) (*models.Balance, error)
	ListBalances(ctx context.Context, userId string) ([]models.Balance, error)
	GetTransactionHistory(ctx context.Context, userId, currency string, limit, offset int) ([]models.Transaction, error)
	GetDeposit(ctx context.Context, id string) (*models.Deposit, error)
	GetWithdrawalBySourceId(ctx context.Context, sourceId string) (*models.Withdrawal, error)
	ListStaleDeposits(ctx context.Context, before time.Time, limit int) ([]models.Deposit, error)
	ListStaleWithdrawals(ctx context.Context, before time.Time, limit int) ([]models.Withdrawal, error)

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
