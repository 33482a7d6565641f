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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the hot per-(user, currency) balance row. Only the balance
// mutation functions in the api package write to it.
type Balance struct {
	Id                  string          `db:"id" json:"id"`
	UserId              string          `db:"user_id" json:"user_id"`
	Currency            string          `db:"currency" json:"currency"`
	AvailableBalance    decimal.Decimal `db:"available_balance" json:"available_balance"`
	WithdrawableBalance decimal.Decimal `db:"withdrawable_balance" json:"withdrawable_balance"`
	LastTransactionId   *string         `db:"last_transaction_id" json:"last_transaction_id,omitempty"`
	Version             int64           `db:"version" json:"version"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// Deposit is one inbound payment intent
type Deposit struct {
	Id               string          `db:"id" json:"id"`
	UserId           string          `db:"user_id" json:"user_id"`
	RequestedAmount  decimal.Decimal `db:"requested_amount" json:"requested_amount"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Currency         string          `db:"currency" json:"currency"`
	TargetCurrency   string          `db:"target_currency" json:"target_currency"`
	TargetAmount     decimal.Decimal `db:"target_amount" json:"target_amount"`
	SourceId         *string         `db:"source_id" json:"source_id,omitempty"`
	Status           DepositStatus   `db:"status" json:"status"`
	DepositMethod    Rail            `db:"deposit_method" json:"deposit_method"`
	DepositRequest   string          `db:"deposit_request" json:"deposit_request"`
	DepositAddressId *string         `db:"deposit_address_id" json:"deposit_address_id,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// DepositAddress is one multi-rail payment request issued by the provider.
// The per-rail strings are empty for rails the provider did not offer.
type DepositAddress struct {
	Id               string          `db:"id" json:"id"`
	UserId           string          `db:"user_id" json:"user_id"`
	RequestedAmount  decimal.Decimal `db:"requested_amount" json:"requested_amount"`
	Currency         string          `db:"currency" json:"currency"`
	TargetCurrency   string          `db:"target_currency" json:"target_currency"`
	PaymentId        *string         `db:"payment_id" json:"payment_id,omitempty"`
	LightningAddress string          `db:"lightning_address" json:"lightning_address,omitempty"`
	OnchainAddress   string          `db:"onchain_address" json:"onchain_address,omitempty"`
	EthereumAddress  string          `db:"ethereum_address" json:"ethereum_address,omitempty"`
	TronAddress      string          `db:"tron_address" json:"tron_address,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// AddressFor returns the payment request or address issued for rail.
func (a *DepositAddress) AddressFor(rail Rail) string {
	switch rail {
	case RailLightning:
		return a.LightningAddress
	case RailOnchain:
		return a.OnchainAddress
	case RailEthereum:
		return a.EthereumAddress
	case RailTron:
		return a.TronAddress
	}
	return ""
}

// SetAddress records the provider-issued address for rail.
func (a *DepositAddress) SetAddress(rail Rail, address string) {
	switch rail {
	case RailLightning:
		a.LightningAddress = address
	case RailOnchain:
		a.OnchainAddress = address
	case RailEthereum:
		a.EthereumAddress = address
	case RailTron:
		a.TronAddress = address
	}
}

// Withdrawal is one payout request. ClosingBalance is the available balance
// right after the pre-debit and becomes the closing balance of the debit
// ledger entry once the provider reports the payout as paid.
type Withdrawal struct {
	Id              string           `db:"id" json:"id"`
	UserId          string           `db:"user_id" json:"user_id"`
	Amount          decimal.Decimal  `db:"amount" json:"amount"`
	Currency        string           `db:"currency" json:"currency"`
	TargetAmount    decimal.Decimal  `db:"target_amount" json:"target_amount"`
	TargetCurrency  string           `db:"target_currency" json:"target_currency"`
	SourceId        string           `db:"source_id" json:"source_id"`
	Status          WithdrawalStatus `db:"status" json:"status"`
	WithdrawMethod  Rail             `db:"withdraw_method" json:"withdraw_method"`
	WithdrawRequest string           `db:"withdraw_request" json:"withdraw_request"`
	ClosingBalance  decimal.Decimal  `db:"closing_balance" json:"closing_balance"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// Transaction is an append-only ledger entry. SourceId is unique across the
// whole table and is the idempotency key for every external event.
type Transaction struct {
	Id             string          `db:"id" json:"id"`
	UserId         string          `db:"user_id" json:"user_id"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Currency       string          `db:"currency" json:"currency"`
	ClosingBalance decimal.Decimal `db:"closing_balance" json:"closing_balance"`
	SourceId       string          `db:"source_id" json:"source_id"`
	Type           TransactionType `db:"type" json:"type"`
	Code           TransactionCode `db:"code" json:"code"`
	EventId        *string         `db:"event_id" json:"event_id,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}
