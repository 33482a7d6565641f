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

func (t *ledgerTx) GetDepositAddress(ctx context.Context, id string) (*models.DepositAddress, error) {
	var address models.DepositAddress
	if err := t.get(ctx, &address, store.ErrDepositAddressNotFound, queryGetDepositAddress, id); err != nil {
		if errors.Is(err, store.ErrDepositAddressNotFound) {
			return nil, fmt.Errorf("%w: id %s", store.ErrDepositAddressNotFound, id)
		}
		return nil, fmt.Errorf("failed to get deposit address: %w", err)
	}
	return &address, nil
}

// FindDepositAddress matches the payment request or address the provider
// reports as paid against the column of that rail.
func (t *ledgerTx) FindDepositAddress(ctx context.Context, rail models.Rail, address string) (*models.DepositAddress, error) {
	column, ok := addressColumnByRail[string(rail)]
	if !ok {
		return nil, fmt.Errorf("unsupported rail %q", rail)
	}
	if address == "" {
		return nil, fmt.Errorf("%w: empty %s address", store.ErrDepositAddressNotFound, rail)
	}

	query := `SELECT ` + depositAddressColumns + ` FROM deposit_addresses WHERE ` + column + ` = ? ORDER BY created_at DESC LIMIT 1`

	var found models.DepositAddress
	if err := t.get(ctx, &found, store.ErrDepositAddressNotFound, query, address); err != nil {
		if errors.Is(err, store.ErrDepositAddressNotFound) {
			return nil, fmt.Errorf("%w: %s address %s", store.ErrDepositAddressNotFound, rail, address)
		}
		return nil, fmt.Errorf("failed to find deposit address: %w", err)
	}
	return &found, nil
}

func (t *ledgerTx) InsertDepositAddress(ctx context.Context, a *models.DepositAddress) error {
	now := time.Now().UTC()
	if a.Id == "" {
		a.Id = uuid.New().String()
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := t.exec(ctx, queryInsertDepositAddress,
		a.Id, a.UserId, a.RequestedAmount, a.Currency, a.TargetCurrency, a.PaymentId,
		a.LightningAddress, a.OnchainAddress, a.EthereumAddress, a.TronAddress,
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert deposit address: %w", err)
	}
	return nil
}

func (t *ledgerTx) UpdateDepositAddress(ctx context.Context, a *models.DepositAddress) error {
	now := time.Now().UTC()
	rowsAffected, err := t.exec(ctx, queryUpdateDepositAddress,
		a.PaymentId, a.TargetCurrency, a.LightningAddress, a.OnchainAddress, a.EthereumAddress, a.TronAddress,
		now, a.Id)
	if err != nil {
		return fmt.Errorf("failed to update deposit address: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: id %s", store.ErrDepositAddressNotFound, a.Id)
	}
	a.UpdatedAt = now
	return nil
}
