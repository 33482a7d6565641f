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
	"fmt"

	"speed-ledger-go/internal/mirror"
	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/speed"
	"speed-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	kindWithdrawal = "withdrawal"
	refundSuffix   = "-refund"
)

var (
	minWithdrawal = decimal.NewFromInt(1)
	maxWithdrawal = decimal.NewFromInt(1000)
)

// ReconcileWithdrawal finalizes a payout reported by the provider. A paid
// payout only settles the record; a failed one refunds the pre-debit with a
// compensating credit.
func (s *LedgerService) ReconcileWithdrawal(ctx context.Context, ev models.PaymentEvent) (*models.ReconcileResult, error) {
	start := s.now()
	fields := eventFields(ctx, ev)

	if ev.SourceId == "" {
		return nil, validationError("event is missing the withdrawal id")
	}
	if ev.Kind != models.EventPaid && ev.Kind != models.EventFailed {
		return nil, validationError("unsupported withdrawal event %q", ev.Kind)
	}

	var result *models.ReconcileResult
	attempts, err := s.runWithRetry(ctx, kindWithdrawal, func(ctx context.Context, tx store.LedgerTx) error {
		var err error
		result, err = s.applyWithdrawal(ctx, tx, ev)
		return err
	})
	elapsed := s.now().Sub(start)

	if IsAlreadyProcessed(err) {
		zap.L().Info("Withdrawal event already processed", append(fields, zap.Error(err))...)
		s.metrics.ObserveReconcile(kindWithdrawal, string(models.OutcomeAlreadyProcessed), elapsed)
		return &models.ReconcileResult{
			Outcome:  models.OutcomeAlreadyProcessed,
			SourceId: ev.SourceId,
			Attempts: attempts,
		}, nil
	}
	if err != nil {
		ledgerErr := classify(err)
		zap.L().Error("Withdrawal reconciliation failed",
			append(fields, zap.String("failure", string(ledgerErr.Kind)), zap.Int("attempts", attempts), zap.Error(err))...)
		s.metrics.ObserveReconcile(kindWithdrawal, string(ledgerErr.Kind), elapsed)
		return nil, ledgerErr
	}

	result.Attempts = attempts
	s.metrics.ObserveReconcile(kindWithdrawal, string(result.Outcome), elapsed)
	zap.L().Info("Withdrawal event reconciled",
		append(fields,
			zap.String("outcome", string(result.Outcome)),
			zap.String("user_id", result.UserId),
			zap.String("amount", result.Amount.String()),
			zap.Int("attempts", attempts))...)
	s.emitWithdrawal(result.Withdrawal)
	if result.Outcome == models.OutcomeRefunded {
		s.emitBalance(result.UserId, result.Currency, result.NewBalance)
	}
	return result, nil
}

func (s *LedgerService) applyWithdrawal(ctx context.Context, tx store.LedgerTx, ev models.PaymentEvent) (*models.ReconcileResult, error) {
	w, err := tx.GetWithdrawalBySourceId(ctx, ev.SourceId)
	if err != nil {
		return nil, err
	}
	if w.Status.IsTerminal() {
		return nil, fmt.Errorf("withdrawal %s is %s: %w", w.SourceId, w.Status, store.ErrAlreadyFinalized)
	}
	if !ev.Amount.IsZero() && !ev.Amount.Equal(w.Amount) {
		zap.L().Warn("Withdrawal event amount differs from request",
			zap.String("source_id", w.SourceId),
			zap.String("event_amount", ev.Amount.String()),
			zap.String("withdrawal_amount", w.Amount.String()))
	}

	if ev.Kind == models.EventFailed {
		return s.refundWithdrawal(ctx, tx, w, ev)
	}

	// The debit entry and the balance change were both written at request
	// time; settling only finalizes the record.
	bal, err := tx.GetBalance(ctx, w.UserId, w.Currency)
	if err != nil {
		return nil, err
	}

	from := w.Status
	w.Status = models.WithdrawalPaid
	if err := tx.TransitionWithdrawal(ctx, w, from); err != nil {
		return nil, err
	}

	return &models.ReconcileResult{
		Outcome:    models.OutcomeApplied,
		SourceId:   w.SourceId,
		UserId:     w.UserId,
		Currency:   w.Currency,
		Amount:     w.Amount,
		NewBalance: bal.AvailableBalance,
		Withdrawal: w,
	}, nil
}

// refundWithdrawal restores exactly the pre-debited amount and records a
// compensating credit keyed by the withdrawal's source id.
func (s *LedgerService) refundWithdrawal(ctx context.Context, tx store.LedgerTx, w *models.Withdrawal, ev models.PaymentEvent) (*models.ReconcileResult, error) {
	bal, err := tx.GetBalance(ctx, w.UserId, w.Currency)
	if err != nil {
		return nil, err
	}
	if _, err := applyDelta(ctx, tx, bal, w.Amount, w.Amount, models.TransactionCredited, Entry{
		SourceId: w.SourceId + refundSuffix,
		Code:     models.CodeRefund,
		EventId:  ev.EventId,
	}); err != nil {
		return nil, err
	}

	from := w.Status
	w.Status = models.WithdrawalFailed
	if err := tx.TransitionWithdrawal(ctx, w, from); err != nil {
		return nil, err
	}

	return &models.ReconcileResult{
		Outcome:    models.OutcomeRefunded,
		SourceId:   w.SourceId,
		UserId:     w.UserId,
		Currency:   w.Currency,
		Amount:     w.Amount,
		NewBalance: bal.AvailableBalance,
		Withdrawal: w,
	}, nil
}

// RequestWithdrawal pre-debits the balance, asks the provider for the
// payout and records the pending Withdrawal with its debit entry, all in
// one transaction. A provider failure rolls the pre-debit back.
func (s *LedgerService) RequestWithdrawal(ctx context.Context, req models.WithdrawalRequest) (*models.Withdrawal, error) {
	if err := s.validateWithdrawalRequest(&req); err != nil {
		s.metrics.WithdrawalRequest(string(KindValidation))
		return nil, err
	}
	rail, err := models.ParseRail(req.Method)
	if err != nil {
		s.metrics.WithdrawalRequest(string(KindValidation))
		return nil, validationError("%v", err)
	}

	fields := []zap.Field{
		zap.String("user_id", req.UserId),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", req.Currency),
		zap.String("withdraw_method", string(rail)),
	}

	var payout *speed.Withdrawal
	var withdrawal *models.Withdrawal
	var balance *models.Balance
	err = s.db.WithTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		if err := s.checkCooldowns(ctx, tx, req.UserId); err != nil {
			return err
		}

		bal, err := PreDebitForWithdrawalRequest(ctx, tx, req.UserId, req.Currency, req.Amount)
		if err != nil {
			return err
		}

		payout, err = s.provider.CreateWithdrawal(ctx, speed.CreateWithdrawalParams{
			Amount:          req.Amount,
			Currency:        req.Currency,
			TargetCurrency:  req.TargetCurrency,
			WithdrawMethod:  string(rail),
			WithdrawRequest: req.Destination,
		})
		if err != nil {
			return fmt.Errorf("failed to create withdrawal: %w", err)
		}

		w := &models.Withdrawal{
			UserId:          req.UserId,
			Amount:          req.Amount,
			Currency:        req.Currency,
			TargetAmount:    payout.TargetAmount,
			TargetCurrency:  req.TargetCurrency,
			SourceId:        payout.Id,
			Status:          models.WithdrawalPending,
			WithdrawMethod:  rail,
			WithdrawRequest: req.Destination,
			ClosingBalance:  bal.AvailableBalance,
		}
		if err := tx.InsertWithdrawal(ctx, w); err != nil {
			return err
		}
		if _, err := recordWithdrawalDebit(ctx, tx, bal, req.Amount, payout.Id); err != nil {
			return err
		}
		withdrawal = w
		balance = bal
		return nil
	})
	if err != nil {
		if payout != nil {
			// The provider accepted the payout but the ledger did not record it.
			zap.L().Error("Withdrawal created at provider but not recorded",
				append(fields, zap.String("source_id", payout.Id), zap.Error(err))...)
		} else {
			zap.L().Warn("Withdrawal request rejected", append(fields, zap.Error(err))...)
		}
		ledgerErr := classify(err)
		if payout != nil && ledgerErr.Kind == KindDuplicate {
			// a reused payout id is a provider desync, not a redelivery
			ledgerErr = &LedgerError{Kind: KindFatal, Message: "withdrawal already recorded", Cause: err}
		}
		s.metrics.WithdrawalRequest(string(ledgerErr.Kind))
		return nil, ledgerErr
	}

	s.metrics.WithdrawalRequest("created")
	zap.L().Info("Withdrawal requested", append(fields, zap.String("source_id", withdrawal.SourceId))...)
	s.emitWithdrawal(withdrawal)
	s.emitBalance(balance.UserId, balance.Currency, balance.AvailableBalance)
	return withdrawal, nil
}

func (s *LedgerService) validateWithdrawalRequest(req *models.WithdrawalRequest) error {
	if req.UserId == "" {
		return validationError("user id is required")
	}
	if req.Currency == "" {
		req.Currency = s.cfg.DefaultCurrency
	}
	if req.TargetCurrency == "" {
		req.TargetCurrency = s.cfg.DefaultTarget
	}
	if req.Method == "" {
		req.Method = string(models.RailLightning)
	}
	if req.Amount.LessThan(minWithdrawal) || req.Amount.GreaterThan(maxWithdrawal) {
		return validationError("amount must be between %s and %s", minWithdrawal, maxWithdrawal)
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return validationError("amount must have at most 2 decimal places")
	}
	if n := len(req.Destination); n < 10 || n > 200 {
		return validationError("withdraw request must be between 10 and 200 characters")
	}
	return nil
}

func (s *LedgerService) checkCooldowns(ctx context.Context, tx store.LedgerTx, userId string) error {
	now := s.now()
	if s.cfg.WithdrawalCooldown > 0 {
		last, ok, err := tx.LastPaidWithdrawalAt(ctx, userId)
		if err != nil {
			return err
		}
		if ok && now.Sub(last) < s.cfg.WithdrawalCooldown {
			return store.ErrWithdrawalCooldown
		}
	}
	if s.cfg.DepositCooldown > 0 {
		last, ok, err := tx.LastPaidDepositAt(ctx, userId)
		if err != nil {
			return err
		}
		if ok && now.Sub(last) < s.cfg.DepositCooldown {
			return store.ErrDepositCooldown
		}
	}
	return nil
}

// GetWithdrawal returns the withdrawal recorded for a provider id.
func (s *LedgerService) GetWithdrawal(ctx context.Context, sourceId string) (*models.Withdrawal, error) {
	w, err := s.db.GetWithdrawalBySourceId(ctx, sourceId)
	if err != nil {
		return nil, classify(err)
	}
	return w, nil
}

func (s *LedgerService) emitWithdrawal(w *models.Withdrawal) {
	if w == nil {
		return
	}
	s.mirror.Emit(mirror.Record{
		AccountId:  w.UserId,
		Collection: mirror.CollectionWithdraw,
		RecordId:   w.Id,
		Fields: map[string]interface{}{
			"status":          string(w.Status),
			"amount":          w.Amount.String(),
			"currency":        w.Currency,
			"target_amount":   w.TargetAmount.String(),
			"target_currency": w.TargetCurrency,
			"withdraw_method": string(w.WithdrawMethod),
			"source_id":       w.SourceId,
		},
	})
}
