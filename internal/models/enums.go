package models

import (
	"fmt"
	"strings"
)

// Rail is a payment settlement method
type Rail string

const (
	RailLightning Rail = "lightning"
	RailOnchain   Rail = "onchain"
	RailEthereum  Rail = "ethereum"
	RailTron      Rail = "tron"
)

// ParseRail normalizes a provider payment method name.
func ParseRail(s string) (Rail, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lightning":
		return RailLightning, nil
	case "onchain", "on_chain":
		return RailOnchain, nil
	case "ethereum":
		return RailEthereum, nil
	case "tron":
		return RailTron, nil
	}
	return "", fmt.Errorf("unsupported payment method: %q", s)
}

type DepositStatus string

const (
	DepositUnpaid    DepositStatus = "unpaid"
	DepositPending   DepositStatus = "pending"
	DepositPaid      DepositStatus = "paid"
	DepositExpired   DepositStatus = "expired"
	DepositCancelled DepositStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s DepositStatus) IsTerminal() bool {
	return s == DepositPaid || s == DepositExpired || s == DepositCancelled
}

type WithdrawalStatus string

const (
	WithdrawalPending WithdrawalStatus = "pending"
	WithdrawalPaid    WithdrawalStatus = "paid"
	WithdrawalFailed  WithdrawalStatus = "failed"
)

func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalPaid || s == WithdrawalFailed
}

type TransactionType string

const (
	TransactionCredited TransactionType = "credited"
	TransactionDebited  TransactionType = "debited"
)

// TransactionCode classifies why a ledger entry exists
type TransactionCode string

const (
	CodeDeposit    TransactionCode = "deposit"
	CodeWithdrawal TransactionCode = "withdrawal"
	CodeWin        TransactionCode = "win"
	CodeBet        TransactionCode = "bet"
	CodeDebit      TransactionCode = "debit"
	CodeRefund     TransactionCode = "refund"
	CodeFreebet    TransactionCode = "freebet"
	CodeWinFreebet TransactionCode = "win_freebet"
)

// ParseTransactionCode accepts the code names used in ledger entries.
func ParseTransactionCode(s string) (TransactionCode, error) {
	switch c := TransactionCode(strings.ToLower(s)); c {
	case CodeDeposit, CodeWithdrawal, CodeWin, CodeBet, CodeDebit, CodeRefund, CodeFreebet, CodeWinFreebet:
		return c, nil
	}
	return "", fmt.Errorf("unknown transaction code: %q", s)
}

// DepositMode selects how a deposit event is matched to a user. A deployment
// runs exactly one mode.
type DepositMode string

const (
	// ModeDirect events carry the deposit id in metadata; a lightning
	// paid event already means settled.
	ModeDirect DepositMode = "direct"
	// ModeAddressMatch events are matched through the DepositAddress of
	// the paid rail; lightning settles on confirmed.
	ModeAddressMatch DepositMode = "address_match"
)

func ParseDepositMode(s string) (DepositMode, error) {
	switch DepositMode(strings.ToLower(s)) {
	case ModeDirect:
		return ModeDirect, nil
	case ModeAddressMatch, "":
		return ModeAddressMatch, nil
	}
	return "", fmt.Errorf("unknown deposit mode: %q", s)
}
