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

var errNoRows = errors.New("no rows")

func (t *ledgerTx) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	var deposit models.Deposit
	if err := t.get(ctx, &deposit, store.ErrDepositNotFound, queryGetDeposit, id); err != nil {
		if errors.Is(err, store.ErrDepositNotFound) {
			return nil, fmt.Errorf("%w: id %s", store.ErrDepositNotFound, id)
		}
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return &deposit, nil
}

func (t *ledgerTx) GetDepositBySourceId(ctx context.Context, sourceId string) (*models.Deposit, error) {
	var deposit models.Deposit
	if err := t.get(ctx, &deposit, store.ErrDepositNotFound, queryGetDepositBySourceId, sourceId); err != nil {
		if errors.Is(err, store.ErrDepositNotFound) {
			return nil, fmt.Errorf("%w: source_id %s", store.ErrDepositNotFound, sourceId)
		}
		return nil, fmt.Errorf("failed to get deposit by source id: %w", err)
	}
	return &deposit, nil
}

func (t *ledgerTx) InsertDeposit(ctx context.Context, d *models.Deposit) error {
	now := time.Now().UTC()
	if d.Id == "" {
		d.Id = uuid.New().String()
	}
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := t.exec(ctx, queryInsertDeposit,
		d.Id, d.UserId, d.RequestedAmount, d.Amount, d.Currency, d.TargetCurrency, d.TargetAmount,
		d.SourceId, d.Status, d.DepositMethod, d.DepositRequest, d.DepositAddressId, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert deposit: %w", err)
	}
	return nil
}

// TransitionDeposit writes the mutable fields of d guarded by the status
// the caller read. A concurrent finalization leaves zero rows affected.
func (t *ledgerTx) TransitionDeposit(ctx context.Context, d *models.Deposit, from models.DepositStatus) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: deposit %s is %s", store.ErrAlreadyFinalized, d.Id, from)
	}

	now := time.Now().UTC()
	rowsAffected, err := t.exec(ctx, queryTransitionDeposit,
		d.Amount, d.TargetAmount, d.SourceId, d.Status, d.DepositMethod, d.DepositRequest, now,
		d.Id, from)
	if err != nil {
		return fmt.Errorf("failed to update deposit: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("deposit %s no longer %s - %w", d.Id, from, store.ErrConcurrentModification)
	}

	d.UpdatedAt = now
	return nil
}

func (t *ledgerTx) LastPaidDepositAt(ctx context.Context, userId string) (time.Time, bool, error) {
	var at time.Time
	if err := t.get(ctx, &at, errNoRows, queryLastPaidDeposit, userId); err != nil {
		if errors.Is(err, errNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get last paid deposit: %w", err)
	}
	return at, true, nil
}
