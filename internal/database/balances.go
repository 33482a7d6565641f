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

func (t *ledgerTx) GetBalance(ctx context.Context, userId, currency string) (*models.Balance, error) {
	var balance models.Balance
	if err := t.get(ctx, &balance, store.ErrBalanceNotFound, queryGetBalance, userId, currency); err != nil {
		if errors.Is(err, store.ErrBalanceNotFound) {
			return nil, fmt.Errorf("%w: user %s currency %s", store.ErrBalanceNotFound, userId, currency)
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &balance, nil
}

func (t *ledgerTx) InsertBalance(ctx context.Context, b *models.Balance) error {
	now := time.Now().UTC()
	if b.Id == "" {
		b.Id = uuid.New().String()
	}
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := t.exec(ctx, queryInsertBalance,
		b.Id, b.UserId, b.Currency, b.AvailableBalance, b.WithdrawableBalance,
		b.LastTransactionId, b.Version, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return fmt.Errorf("%w: user %s currency %s", store.ErrBalanceExists, b.UserId, b.Currency)
		}
		return fmt.Errorf("failed to insert balance: %w", err)
	}
	return nil
}

func (t *ledgerTx) UpdateBalance(ctx context.Context, b *models.Balance) error {
	now := time.Now().UTC()
	rowsAffected, err := t.exec(ctx, queryUpdateBalance,
		b.AvailableBalance, b.WithdrawableBalance, b.LastTransactionId, now, b.Id, b.Version)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	b.Version++
	b.UpdatedAt = now
	return nil
}
