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
	"fmt"

	"speed-ledger-go/internal/mirror"
	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const kindDeposit = "deposit"

// ReconcileDeposit applies a normalized deposit event exactly once.
// Redeliveries of an applied event return OutcomeAlreadyProcessed.
func (s *LedgerService) ReconcileDeposit(ctx context.Context, ev models.PaymentEvent) (*models.ReconcileResult, error) {
	start := s.now()
	fields := eventFields(ctx, ev)

	if err := s.validateDepositEvent(ev); err != nil {
		s.metrics.ObserveReconcile(kindDeposit, string(KindValidation), s.now().Sub(start))
		zap.L().Warn("Rejected deposit event", append(fields, zap.Error(err))...)
		return nil, err
	}

	var result *models.ReconcileResult
	attempts, err := s.runWithRetry(ctx, kindDeposit, func(ctx context.Context, tx store.LedgerTx) error {
		var err error
		result, err = s.applyDeposit(ctx, tx, ev)
		return err
	})
	elapsed := s.now().Sub(start)

	if IsAlreadyProcessed(err) {
		zap.L().Info("Deposit event already processed", append(fields, zap.Error(err))...)
		s.metrics.ObserveReconcile(kindDeposit, string(models.OutcomeAlreadyProcessed), elapsed)
		return &models.ReconcileResult{
			Outcome:  models.OutcomeAlreadyProcessed,
			SourceId: ev.SourceId,
			Currency: ev.Currency,
			Attempts: attempts,
		}, nil
	}
	if err != nil {
		ledgerErr := classify(err)
		zap.L().Error("Deposit reconciliation failed",
			append(fields, zap.String("failure", string(ledgerErr.Kind)), zap.Int("attempts", attempts), zap.Error(err))...)
		s.metrics.ObserveReconcile(kindDeposit, string(ledgerErr.Kind), elapsed)
		return nil, ledgerErr
	}

	result.Attempts = attempts
	s.metrics.ObserveReconcile(kindDeposit, string(result.Outcome), elapsed)
	zap.L().Info("Deposit event reconciled",
		append(fields,
			zap.String("outcome", string(result.Outcome)),
			zap.String("user_id", result.UserId),
			zap.String("amount", result.Amount.String()),
			zap.Int("attempts", attempts))...)
	s.emitDeposit(result)
	return result, nil
}

func (s *LedgerService) validateDepositEvent(ev models.PaymentEvent) error {
	if ev.SourceId == "" {
		return validationError("event is missing the payment id")
	}
	if ev.Currency == "" {
		return validationError("event is missing the currency")
	}
	if !s.rails.Supports(ev.Rail) {
		return validationError("unsupported payment method %q", ev.Rail)
	}
	switch ev.Kind {
	case models.EventPaid, models.EventConfirmed, models.EventExpired, models.EventCancelled:
	default:
		return validationError("unsupported deposit event %q", ev.Kind)
	}
	if ev.Target.Mode != s.cfg.DepositMode {
		return validationError("event metadata is for %s mode, deployment runs %s", ev.Target.Mode, s.cfg.DepositMode)
	}
	switch s.cfg.DepositMode {
	case models.ModeDirect:
		if ev.Target.DepositId == "" {
			return validationError("event metadata is missing the deposit id")
		}
	case models.ModeAddressMatch:
		if ev.Target.DepositAddressId == "" && ev.Address == "" {
			return validationError("event is missing the deposit address")
		}
	}
	return nil
}

// settles reports whether ev moves money. Delayed rails settle only on
// confirmed; lightning settles on paid in direct mode and on confirmed in
// address match mode.
func (s *LedgerService) settles(ev models.PaymentEvent) bool {
	if s.rails.IsDelayed(ev.Rail) {
		return ev.Kind == models.EventConfirmed
	}
	if s.cfg.DepositMode == models.ModeDirect {
		return ev.Kind == models.EventPaid || ev.Kind == models.EventConfirmed
	}
	return ev.Kind == models.EventConfirmed
}

func (s *LedgerService) applyDeposit(ctx context.Context, tx store.LedgerTx, ev models.PaymentEvent) (*models.ReconcileResult, error) {
	if ev.Kind == models.EventExpired || ev.Kind == models.EventCancelled {
		return s.closeDeposit(ctx, tx, ev)
	}

	if !s.rails.IsDelayed(ev.Rail) && !s.settles(ev) {
		return &models.ReconcileResult{
			Outcome:  models.OutcomeIgnored,
			SourceId: ev.SourceId,
			UserId:   ev.Target.UserId,
			Currency: ev.Currency,
		}, nil
	}

	deposit, userId, err := s.resolveDeposit(ctx, tx, ev)
	if err != nil {
		return nil, err
	}

	if !s.settles(ev) {
		return s.markDepositPending(ctx, tx, ev, deposit, userId)
	}

	amount := ev.PaidAmount()
	if !amount.IsPositive() {
		return nil, validationError("paid amount must be positive, got %s", amount)
	}
	if deposit.Status.IsTerminal() {
		return nil, fmt.Errorf("deposit %s is %s: %w", deposit.Id, deposit.Status, store.ErrAlreadyFinalized)
	}

	bal, _, err := Credit(ctx, tx, userId, ev.Currency, amount, Entry{
		SourceId: ev.SourceId,
		Code:     models.CodeDeposit,
		EventId:  ev.EventId,
	})
	if err != nil {
		return nil, err
	}

	from := deposit.Status
	fillDeposit(deposit, ev)
	deposit.Amount = amount
	deposit.Status = models.DepositPaid
	if deposit.Id == "" {
		err = tx.InsertDeposit(ctx, deposit)
	} else {
		err = tx.TransitionDeposit(ctx, deposit, from)
	}
	if err != nil {
		return nil, err
	}

	return &models.ReconcileResult{
		Outcome:    models.OutcomeApplied,
		SourceId:   ev.SourceId,
		UserId:     userId,
		Currency:   ev.Currency,
		Amount:     amount,
		NewBalance: bal.AvailableBalance,
		Deposit:    deposit,
	}, nil
}

// resolveDeposit finds the Deposit the event belongs to. In address match
// mode a lightning settlement has no prior row, so an unsaved Deposit is
// returned for the caller to insert.
func (s *LedgerService) resolveDeposit(ctx context.Context, tx store.LedgerTx, ev models.PaymentEvent) (*models.Deposit, string, error) {
	confirming := s.rails.IsDelayed(ev.Rail) && ev.Kind == models.EventConfirmed

	if s.cfg.DepositMode == models.ModeDirect {
		deposit, err := tx.GetDeposit(ctx, ev.Target.DepositId)
		if err != nil {
			return nil, "", err
		}
		// The paid handler has not committed yet.
		if confirming && deposit.Status == models.DepositUnpaid {
			return nil, "", fmt.Errorf("deposit %s: %w", deposit.Id, store.ErrPendingDepositNotFound)
		}
		return deposit, deposit.UserId, nil
	}

	addr, err := s.resolveAddress(ctx, tx, ev)
	if err != nil {
		return nil, "", err
	}

	existing, err := tx.GetDepositBySourceId(ctx, ev.SourceId)
	switch {
	case err == nil:
		if existing.UserId != addr.UserId {
			return nil, "", fmt.Errorf("deposit %s belongs to another user: %w", existing.Id, store.ErrDepositNotFound)
		}
		return existing, addr.UserId, nil
	case !errors.Is(err, store.ErrDepositNotFound):
		return nil, "", err
	case confirming:
		return nil, "", fmt.Errorf("source_id %s: %w", ev.SourceId, store.ErrPendingDepositNotFound)
	}

	return &models.Deposit{
		UserId:           addr.UserId,
		RequestedAmount:  addr.RequestedAmount,
		Currency:         ev.Currency,
		TargetCurrency:   addr.TargetCurrency,
		DepositAddressId: &addr.Id,
	}, addr.UserId, nil
}

// resolveAddress matches the paid rail's address string and cross-checks
// it against the address id carried in metadata.
func (s *LedgerService) resolveAddress(ctx context.Context, tx store.LedgerTx, ev models.PaymentEvent) (*models.DepositAddress, error) {
	if ev.Address == "" {
		return tx.GetDepositAddress(ctx, ev.Target.DepositAddressId)
	}
	addr, err := tx.FindDepositAddress(ctx, ev.Rail, ev.Address)
	if err != nil {
		return nil, err
	}
	if ev.Target.DepositAddressId != "" && addr.Id != ev.Target.DepositAddressId {
		return nil, fmt.Errorf("%s address matches %s, metadata names %s: %w",
			ev.Rail, addr.Id, ev.Target.DepositAddressId, store.ErrDepositAddressNotFound)
	}
	return addr, nil
}

// markDepositPending records a delayed-rail paid event without touching
// the balance.
func (s *LedgerService) markDepositPending(ctx context.Context, tx store.LedgerTx, ev models.PaymentEvent, deposit *models.Deposit, userId string) (*models.ReconcileResult, error) {
	bal, err := tx.GetBalance(ctx, userId, ev.Currency)
	if err != nil {
		return nil, err
	}

	switch {
	case deposit.Status.IsTerminal():
		return nil, fmt.Errorf("deposit %s is %s: %w", deposit.Id, deposit.Status, store.ErrAlreadyFinalized)
	case deposit.Status == models.DepositPending:
		return nil, fmt.Errorf("deposit %s already pending: %w", deposit.Id, store.ErrDuplicateTransaction)
	}

	from := deposit.Status
	fillDeposit(deposit, ev)
	deposit.Amount = ev.PaidAmount()
	deposit.Status = models.DepositPending
	if deposit.Id == "" {
		err = tx.InsertDeposit(ctx, deposit)
	} else {
		err = tx.TransitionDeposit(ctx, deposit, from)
	}
	if err != nil {
		return nil, err
	}

	return &models.ReconcileResult{
		Outcome:    models.OutcomePending,
		SourceId:   ev.SourceId,
		UserId:     userId,
		Currency:   ev.Currency,
		Amount:     deposit.Amount,
		NewBalance: bal.AvailableBalance,
		Deposit:    deposit,
	}, nil
}

// closeDeposit handles expired and cancelled events. Address match mode
// has nothing to close unless a delayed-rail payment is pending.
func (s *LedgerService) closeDeposit(ctx context.Context, tx store.LedgerTx, ev models.PaymentEvent) (*models.ReconcileResult, error) {
	status := models.DepositExpired
	if ev.Kind == models.EventCancelled {
		status = models.DepositCancelled
	}

	var deposit *models.Deposit
	var err error
	if s.cfg.DepositMode == models.ModeDirect {
		deposit, err = tx.GetDeposit(ctx, ev.Target.DepositId)
	} else {
		deposit, err = tx.GetDepositBySourceId(ctx, ev.SourceId)
		if errors.Is(err, store.ErrDepositNotFound) {
			return &models.ReconcileResult{
				Outcome:  models.OutcomeStatusUpdated,
				SourceId: ev.SourceId,
				UserId:   ev.Target.UserId,
				Currency: ev.Currency,
			}, nil
		}
	}
	if err != nil {
		return nil, err
	}

	from := deposit.Status
	if from.IsTerminal() {
		return nil, fmt.Errorf("deposit %s is %s: %w", deposit.Id, from, store.ErrAlreadyFinalized)
	}
	deposit.Status = status
	if deposit.SourceId == nil {
		deposit.SourceId = optionalString(ev.SourceId)
	}
	if err := tx.TransitionDeposit(ctx, deposit, from); err != nil {
		return nil, err
	}

	return &models.ReconcileResult{
		Outcome:  models.OutcomeStatusUpdated,
		SourceId: ev.SourceId,
		UserId:   deposit.UserId,
		Currency: ev.Currency,
		Deposit:  deposit,
	}, nil
}

func fillDeposit(d *models.Deposit, ev models.PaymentEvent) {
	d.SourceId = optionalString(ev.SourceId)
	d.DepositMethod = ev.Rail
	if ev.Address != "" {
		d.DepositRequest = ev.Address
	}
	if ev.TargetCurrency != "" {
		d.TargetCurrency = ev.TargetCurrency
	}
	if !ev.TargetAmountPaid.IsZero() {
		d.TargetAmount = ev.TargetAmountPaid
	}
}

// emitDeposit pushes the committed outcome to the mirror.
func (s *LedgerService) emitDeposit(result *models.ReconcileResult) {
	if result.UserId == "" {
		return
	}
	if d := result.Deposit; d != nil {
		s.mirror.Emit(mirror.Record{
			AccountId:  d.UserId,
			Collection: mirror.CollectionDeposit,
			RecordId:   d.Id,
			Fields: map[string]interface{}{
				"status":          string(d.Status),
				"amount":          d.Amount.String(),
				"currency":        d.Currency,
				"target_amount":   d.TargetAmount.String(),
				"target_currency": d.TargetCurrency,
				"deposit_method":  string(d.DepositMethod),
				"source_id":       result.SourceId,
			},
		})
	} else if result.Outcome == models.OutcomeStatusUpdated {
		s.mirror.Emit(mirror.Record{
			AccountId:  result.UserId,
			Collection: mirror.CollectionDeposit,
			RecordId:   result.SourceId,
			Fields: map[string]interface{}{
				"status":   string(result.Outcome),
				"currency": result.Currency,
			},
		})
	}
	if result.Outcome == models.OutcomeApplied {
		s.emitBalance(result.UserId, result.Currency, result.NewBalance)
	}
}

func (s *LedgerService) emitBalance(userId, currency string, available decimal.Decimal) {
	s.mirror.Emit(mirror.Record{
		AccountId:  userId,
		Collection: mirror.CollectionBalance,
		RecordId:   currency,
		Fields: map[string]interface{}{
			"available_balance": available.String(),
			"currency":          currency,
		},
	})
}
