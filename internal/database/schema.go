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
	"fmt"

	"github.com/jmoiron/sqlx"
)

// The schema only uses types and statements shared by SQLite and Postgres.
// Amounts are stored as decimal strings.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS balances (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		available_balance TEXT NOT NULL DEFAULT '0',
		withdrawable_balance TEXT NOT NULL DEFAULT '0',
		last_transaction_id TEXT,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(user_id, currency)
	)`,

	// Append-only ledger
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		closing_balance TEXT NOT NULL,
		source_id TEXT NOT NULL,
		type TEXT NOT NULL,
		code TEXT NOT NULL,
		event_id TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_source_id ON transactions(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_currency ON transactions(user_id, currency, created_at)`,

	`CREATE TABLE IF NOT EXISTS deposits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		requested_amount TEXT NOT NULL DEFAULT '0',
		amount TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL,
		target_currency TEXT NOT NULL,
		target_amount TEXT NOT NULL DEFAULT '0',
		source_id TEXT,
		status TEXT NOT NULL,
		deposit_method TEXT NOT NULL DEFAULT '',
		deposit_request TEXT NOT NULL DEFAULT '',
		deposit_address_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_deposits_source_id ON deposits(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_deposits_user_status ON deposits(user_id, status)`,

	`CREATE TABLE IF NOT EXISTS deposit_addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		requested_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		target_currency TEXT NOT NULL,
		payment_id TEXT,
		lightning_address TEXT NOT NULL DEFAULT '',
		onchain_address TEXT NOT NULL DEFAULT '',
		ethereum_address TEXT NOT NULL DEFAULT '',
		tron_address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deposit_addresses_lightning ON deposit_addresses(lightning_address)`,
	`CREATE INDEX IF NOT EXISTS idx_deposit_addresses_onchain ON deposit_addresses(onchain_address)`,
	`CREATE INDEX IF NOT EXISTS idx_deposit_addresses_ethereum ON deposit_addresses(ethereum_address)`,
	`CREATE INDEX IF NOT EXISTS idx_deposit_addresses_tron ON deposit_addresses(tron_address)`,

	`CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		target_amount TEXT NOT NULL DEFAULT '0',
		target_currency TEXT NOT NULL,
		source_id TEXT NOT NULL,
		status TEXT NOT NULL,
		withdraw_method TEXT NOT NULL,
		withdraw_request TEXT NOT NULL,
		closing_balance TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_withdrawals_source_id ON withdrawals(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawals_user_status ON withdrawals(user_id, status)`,
}

// InitSchema creates all ledger tables and indexes. It is safe to run on
// every start.
func InitSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
