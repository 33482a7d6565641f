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
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/store"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	sqliteOptions = "_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=5000&_txlock=immediate"
)

type Service struct {
	db        *sqlx.DB
	txTimeout time.Duration
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn cannot be empty")
	}
	if cfg.Driver != DriverSQLite && cfg.Driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	dsn := cfg.DSN
	if cfg.Driver == DriverSQLite {
		zap.L().Info("Opening SQLite database", zap.String("file", cfg.DSN))
		dsn = withSQLiteOptions(cfg.DSN)
	} else {
		zap.L().Info("Opening Postgres database")
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if err := InitSchema(ctx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after schema failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully",
		zap.String("driver", cfg.Driver),
		zap.Duration("tx_timeout", cfg.TxTimeout))
	return NewServiceFromDB(db, cfg.TxTimeout), nil
}

// NewServiceFromDB wraps an already opened and migrated database.
func NewServiceFromDB(db *sqlx.DB, txTimeout time.Duration) *Service {
	return &Service{db: db, txTimeout: txTimeout}
}

func withSQLiteOptions(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + sqliteOptions
	}
	return path + "?" + sqliteOptions
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx opens a fresh transaction bounded by the configured timeout. A
// timeout surfaces as context.DeadlineExceeded, which callers treat as
// transient.
func (s *Service) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", translateError(err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Warn("Failed to roll back transaction", zap.Error(err))
		}
	}()

	if err := fn(ctx, &ledgerTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translateError(err))
	}
	return nil
}

// Reads outside a transaction

func (s *Service) GetBalance(ctx context.Context, userId, currency string) (*models.Balance, error) {
	return s.reader().GetBalance(ctx, userId, currency)
}

func (s *Service) ListBalances(ctx context.Context, userId string) ([]models.Balance, error) {
	var balances []models.Balance
	if err := sqlx.SelectContext(ctx, s.db, &balances, s.db.Rebind(queryListBalances), userId); err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	return balances, nil
}

func (s *Service) GetTransactionHistory(ctx context.Context, userId, currency string, limit, offset int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := sqlx.SelectContext(ctx, s.db, &txs, s.db.Rebind(queryGetTransactionHistory), userId, currency, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction history: %w", err)
	}
	return txs, nil
}

func (s *Service) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	return s.reader().GetDeposit(ctx, id)
}

func (s *Service) GetWithdrawalBySourceId(ctx context.Context, sourceId string) (*models.Withdrawal, error) {
	return s.reader().GetWithdrawalBySourceId(ctx, sourceId)
}

// ListStaleDeposits returns pending deposits not touched since before.
func (s *Service) ListStaleDeposits(ctx context.Context, before time.Time, limit int) ([]models.Deposit, error) {
	var deposits []models.Deposit
	if err := sqlx.SelectContext(ctx, s.db, &deposits, s.db.Rebind(queryListStaleDeposits), before, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale deposits: %w", err)
	}
	return deposits, nil
}

// ListStaleWithdrawals returns pending withdrawals created before before.
func (s *Service) ListStaleWithdrawals(ctx context.Context, before time.Time, limit int) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	if err := sqlx.SelectContext(ctx, s.db, &withdrawals, s.db.Rebind(queryListStaleWithdrawals), before, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale withdrawals: %w", err)
	}
	return withdrawals, nil
}

func (s *Service) reader() *ledgerTx {
	return &ledgerTx{q: s.db}
}
