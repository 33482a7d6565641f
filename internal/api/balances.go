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

package api

import (
	"context"
	"errors"
	"time"

	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// CreateInitialBalance zero-initializes the (userId, currency) balance.
// Calling it again returns the existing row.
func (s *LedgerService) CreateInitialBalance(ctx context.Context, userId, currency string) (*models.Balance, error) {
	if userId == "" {
		return nil, validationError("user id is required")
	}
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	now := s.now().UTC()
	bal := &models.Balance{
		Id:                  uuid.New().String(),
		UserId:              userId,
		Currency:            currency,
		AvailableBalance:    decimal.Zero,
		WithdrawableBalance: decimal.Zero,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	err := s.db.WithTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		return tx.InsertBalance(ctx, bal)
	})
	if errors.Is(err, store.ErrBalanceExists) {
		return s.db.GetBalance(ctx, userId, currency)
	}
	if err != nil {
		return nil, classify(err)
	}

	zap.L().Info("Balance created", zap.String("user_id", userId), zap.String("currency", currency))
	s.emitBalance(userId, currency, bal.AvailableBalance)
	return bal, nil
}

// OnAccountCreated is the account-creation hook. A failure here is logged
// and never fails the account creation itself; CreateInitialBalance can be
// re-run out of band.
func (s *LedgerService) OnAccountCreated(ctx context.Context, userId string) {
	if _, err := s.CreateInitialBalance(ctx, userId, s.cfg.DefaultCurrency); err != nil {
		zap.L().Error("Failed to create initial balance",
			zap.String("user_id", userId),
			zap.String("currency", s.cfg.DefaultCurrency),
			zap.Error(err))
	}
}

// ApplyAdjustment credits or debits a balance for an internal reason such
// as a bet or a win. SourceId is the idempotency key.
func (s *LedgerService) ApplyAdjustment(ctx context.Context, req models.AdjustmentRequest) (*models.ReconcileResult, error) {
	if req.UserId == "" || req.Currency == "" || req.SourceId == "" {
		return nil, validationError("user id, currency and source id are required")
	}
	if !req.Amount.IsPositive() {
		return nil, validationError("amount must be positive")
	}
	if _, err := models.ParseTransactionCode(string(req.Code)); err != nil {
		return nil, validationError("%v", err)
	}

	mutate := Credit
	switch req.Type {
	case models.TransactionCredited:
	case models.TransactionDebited:
		mutate = Debit
	default:
		return nil, validationError("unknown transaction type %q", req.Type)
	}

	var bal *models.Balance
	attempts, err := s.runWithRetry(ctx, "adjustment", func(ctx context.Context, tx store.LedgerTx) error {
		var err error
		bal, _, err = mutate(ctx, tx, req.UserId, req.Currency, req.Amount, Entry{SourceId: req.SourceId, Code: req.Code})
		return err
	})
	if IsAlreadyProcessed(err) {
		return &models.ReconcileResult{
			Outcome:  models.OutcomeAlreadyProcessed,
			SourceId: req.SourceId,
			UserId:   req.UserId,
			Currency: req.Currency,
			Attempts: attempts,
		}, nil
	}
	if err != nil {
		zap.L().Error("Balance adjustment failed",
			zap.String("user_id", req.UserId),
			zap.String("source_id", req.SourceId),
			zap.Error(err))
		return nil, classify(err)
	}

	zap.L().Info("Balance adjusted",
		zap.String("user_id", req.UserId),
		zap.String("source_id", req.SourceId),
		zap.String("type", string(req.Type)),
		zap.String("code", string(req.Code)),
		zap.String("amount", req.Amount.String()))
	s.emitBalance(req.UserId, req.Currency, bal.AvailableBalance)
	return &models.ReconcileResult{
		Outcome:    models.OutcomeApplied,
		SourceId:   req.SourceId,
		UserId:     req.UserId,
		Currency:   req.Currency,
		Amount:     req.Amount,
		NewBalance: bal.AvailableBalance,
		Attempts:   attempts,
	}, nil
}

func (s *LedgerService) GetBalance(ctx context.Context, userId, currency string) (*models.Balance, error) {
	bal, err := s.db.GetBalance(ctx, userId, currency)
	if err != nil {
		return nil, classify(err)
	}
	return bal, nil
}

func (s *LedgerService) ListBalances(ctx context.Context, userId string) ([]models.Balance, error) {
	balances, err := s.db.ListBalances(ctx, userId)
	if err != nil {
		return nil, classify(err)
	}
	return balances, nil
}

// GetTransactionHistory returns the newest entries first.
func (s *LedgerService) GetTransactionHistory(ctx context.Context, userId, currency string, limit, offset int) ([]models.TransactionRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	txns, err := s.db.GetTransactionHistory(ctx, userId, currency, limit, offset)
	if err != nil {
		return nil, classify(err)
	}

	records := make([]models.TransactionRecord, 0, len(txns))
	for _, t := range txns {
		records = append(records, models.TransactionRecord{
			Id:             t.Id,
			Type:           string(t.Type),
			Code:           string(t.Code),
			Currency:       t.Currency,
			Amount:         t.Amount,
			ClosingBalance: t.ClosingBalance,
			SourceId:       t.SourceId,
			CreatedAt:      t.CreatedAt,
		})
	}
	return records, nil
}

func (s *LedgerService) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	d, err := s.db.GetDeposit(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	return d, nil
}

// ListStalePending returns deposits and withdrawals stuck in pending for
// longer than age.
func (s *LedgerService) ListStalePending(ctx context.Context, age time.Duration, limit int) ([]models.Deposit, []models.Withdrawal, error) {
	before := s.now().UTC().Add(-age)
	deposits, err := s.db.ListStaleDeposits(ctx, before, limit)
	if err != nil {
		return nil, nil, err
	}
	withdrawals, err := s.db.ListStaleWithdrawals(ctx, before, limit)
	if err != nil {
		return nil, nil, err
	}
	return deposits, withdrawals, nil
}
