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

// Queries use ? placeholders and are rebound to the driver's bind style
// before execution.
const (
	// Balance queries
	balanceColumns = `
		id, user_id, currency, available_balance, withdrawable_balance,
		last_transaction_id, version, created_at, updated_at`

	queryGetBalance = `
		SELECT ` + balanceColumns + `
		FROM balances
		WHERE user_id = ? AND currency = ?`

	queryListBalances = `
		SELECT ` + balanceColumns + `
		FROM balances
		WHERE user_id = ?
		ORDER BY currency`

	queryInsertBalance = `
		INSERT INTO balances (id, user_id, currency, available_balance, withdrawable_balance,
		                      last_transaction_id, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateBalance = `
		UPDATE balances
		SET available_balance = ?,
		    withdrawable_balance = ?,
		    last_transaction_id = ?,
		    version = version + 1,
		    updated_at = ?
		WHERE id = ? AND version = ?`

	// Transaction queries
	transactionColumns = `
		id, user_id, amount, currency, closing_balance, source_id, type, code, event_id, created_at`

	queryTransactionExists = `
		SELECT COUNT(1) FROM transactions WHERE source_id = ?`

	queryInsertTransaction = `
		INSERT INTO transactions (id, user_id, amount, currency, closing_balance, source_id, type, code, event_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = ? AND currency = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	// Deposit queries
	depositColumns = `
		id, user_id, requested_amount, amount, currency, target_currency, target_amount,
		source_id, status, deposit_method, deposit_request, deposit_address_id, created_at, updated_at`

	queryGetDeposit = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE id = ?`

	queryGetDepositBySourceId = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE source_id = ?`

	queryInsertDeposit = `
		INSERT INTO deposits (id, user_id, requested_amount, amount, currency, target_currency, target_amount,
		                      source_id, status, deposit_method, deposit_request, deposit_address_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryTransitionDeposit = `
		UPDATE deposits
		SET amount = ?,
		    target_amount = ?,
		    source_id = ?,
		    status = ?,
		    deposit_method = ?,
		    deposit_request = ?,
		    updated_at = ?
		WHERE id = ? AND status = ?`

	queryLastPaidDeposit = `
		SELECT updated_at
		FROM deposits
		WHERE user_id = ? AND status = 'paid'
		ORDER BY updated_at DESC
		LIMIT 1`

	queryListStaleDeposits = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE status = 'pending' AND updated_at < ?
		ORDER BY updated_at ASC
		LIMIT ?`

	// Deposit address queries
	depositAddressColumns = `
		id, user_id, requested_amount, currency, target_currency, payment_id,
		lightning_address, onchain_address, ethereum_address, tron_address, created_at, updated_at`

	queryGetDepositAddress = `
		SELECT ` + depositAddressColumns + `
		FROM deposit_addresses
		WHERE id = ?`

	queryInsertDepositAddress = `
		INSERT INTO deposit_addresses (id, user_id, requested_amount, currency, target_currency, payment_id,
		                               lightning_address, onchain_address, ethereum_address, tron_address,
		                               created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateDepositAddress = `
		UPDATE deposit_addresses
		SET payment_id = ?,
		    target_currency = ?,
		    lightning_address = ?,
		    onchain_address = ?,
		    ethereum_address = ?,
		    tron_address = ?,
		    updated_at = ?
		WHERE id = ?`

	// Withdrawal queries
	withdrawalColumns = `
		id, user_id, amount, currency, target_amount, target_currency, source_id, status,
		withdraw_method, withdraw_request, closing_balance, created_at, updated_at`

	queryGetWithdrawalBySourceId = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE source_id = ?`

	queryInsertWithdrawal = `
		INSERT INTO withdrawals (id, user_id, amount, currency, target_amount, target_currency, source_id, status,
		                         withdraw_method, withdraw_request, closing_balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryTransitionWithdrawal = `
		UPDATE withdrawals
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	queryLastPaidWithdrawal = `
		SELECT created_at
		FROM withdrawals
		WHERE user_id = ? AND status = 'paid'
		ORDER BY created_at DESC
		LIMIT 1`

	queryListStaleWithdrawals = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE status = 'pending' AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?`
)

// addressColumnByRail maps a rail to its deposit_addresses column. Only
// these fixed names are ever interpolated into SQL.
var addressColumnByRail = map[string]string{
	"lightning": "lightning_address",
	"onchain":   "onchain_address",
	"ethereum":  "ethereum_address",
	"tron":      "tron_address",
}
