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

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/store"

	"github.com/google/uuid"
)

func (t *ledgerTx) GetWithdrawalBySourceId(ctx context.Context, sourceId string) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := t.get(ctx, &withdrawal, store.ErrWithdrawalNotFound, queryGetWithdrawalBySourceId, sourceId); err != nil {
		if errors.Is(err, store.ErrWithdrawalNotFound) {
			return nil, fmt.Errorf("%w: source_id %s", store.ErrWithdrawalNotFound, sourceId)
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return &withdrawal, nil
}

func (t *ledgerTx) InsertWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	now := time.Now().UTC()
	if w.Id == "" {
		w.Id = uuid.New().String()
	}
	w.CreatedAt = now
	w.UpdatedAt = now

	_, err := t.exec(ctx, queryInsertWithdrawal,
		w.Id, w.UserId, w.Amount, w.Currency, w.TargetAmount, w.TargetCurrency, w.SourceId, w.Status,
		w.WithdrawMethod, w.WithdrawRequest, w.ClosingBalance, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return nil
}

// TransitionWithdrawal moves w from the status the caller read to w.Status.
func (t *ledgerTx) TransitionWithdrawal(ctx context.Context, w *models.Withdrawal, from models.WithdrawalStatus) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: withdrawal %s is %s", store.ErrAlreadyFinalized, w.SourceId, from)
	}

	now := time.Now().UTC()
	rowsAffected, err := t.exec(ctx, queryTransitionWithdrawal, w.Status, now, w.Id, from)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("withdrawal %s no longer %s - %w", w.SourceId, from, store.ErrConcurrentModification)
	}
	w.UpdatedAt = now
	return nil
}

func (t *ledgerTx) LastPaidWithdrawalAt(ctx context.Context, userId string) (time.Time, bool, error) {
	var at time.Time
	if err := t.get(ctx, &at, errNoRows, queryLastPaidWithdrawal, userId); err != nil {
		if errors.Is(err, errNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get last paid withdrawal: %w", err)
	}
	return at, true, nil
}
