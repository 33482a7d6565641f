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

// Outcome describes what a reconciliation did to the ledger
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomePending          Outcome = "pending"
	OutcomeRefunded         Outcome = "refunded"
	OutcomeStatusUpdated    Outcome = "status_updated"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeAlreadyProcessed Outcome = "already_processed"
)

// ReconcileResult is returned for every successfully handled event,
// including redeliveries of events that were already applied.
type ReconcileResult struct {
	Outcome    Outcome         `json:"outcome"`
	SourceId   string          `json:"source_id"`
	UserId     string          `json:"user_id,omitempty"`
	Currency   string          `json:"currency,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Deposit    *Deposit        `json:"deposit,omitempty"`
	Withdrawal *Withdrawal     `json:"withdrawal,omitempty"`
	Attempts   int             `json:"attempts"`
}

// DepositIntentRequest asks the provider for a payment request the user can pay.
type DepositIntentRequest struct {
	UserId         string          `json:"user_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	TargetCurrency string          `json:"target_currency" validate:"omitempty,oneof=SATS USDT USDC"`
	Methods        []string        `json:"payment_methods" validate:"omitempty,dive,oneof=lightning onchain ethereum tron"`
}

// DepositIntent is what the caller needs to show the user how to pay.
type DepositIntent struct {
	PaymentId      string          `json:"payment_id"`
	DepositId      string          `json:"deposit_id,omitempty"`
	AddressId      string          `json:"deposit_address_id,omitempty"`
	TargetAmount   decimal.Decimal `json:"target_amount"`
	TargetCurrency string          `json:"target_currency"`
	Addresses      map[Rail]string `json:"addresses"`
}

// WithdrawalRequest is a user payout request.
type WithdrawalRequest struct {
	UserId         string          `json:"user_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	TargetCurrency string          `json:"target_currency" validate:"omitempty,oneof=SATS USDT USDC"`
	Method         string          `json:"withdraw_method" validate:"omitempty,oneof=lightning onchain ethereum tron"`
	Destination    string          `json:"target_address" validate:"required,min=10,max=200"`
}

// AdjustmentRequest credits or debits a balance outside the payment flows
// (game wins, bets, manual corrections). SourceId makes it idempotent.
type AdjustmentRequest struct {
	UserId   string          `json:"user_id" validate:"required"`
	Currency string          `json:"currency" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Type     TransactionType `json:"type" validate:"required,oneof=credited debited"`
	Code     TransactionCode `json:"code" validate:"required"`
	SourceId string          `json:"source_id" validate:"required"`
}

// TransactionRecord represents a ledger entry in the user's history
type TransactionRecord struct {
	Id             string          `json:"id"`
	Type           string          `json:"type"`
	Code           string          `json:"code"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	SourceId       string          `json:"source_id"`
	CreatedAt      time.Time       `json:"created_at"`
}
