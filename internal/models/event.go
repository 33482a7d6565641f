package models

import (
	"github.com/shopspring/decimal"
)

// EventKind is the normalized payment event type
type EventKind string

const (
	EventPaid      EventKind = "paid"
	EventConfirmed EventKind = "confirmed"
	EventExpired   EventKind = "expired"
	EventCancelled EventKind = "cancelled"
	EventFailed    EventKind = "failed"
)

// DepositTarget identifies the intent a deposit event settles. Mode says
// which of the two identifiers is meaningful.
type DepositTarget struct {
	Mode             DepositMode
	DepositId        string
	DepositAddressId string
	// UserId from metadata is only used to address mirror notifications.
	UserId string
}

// PaymentEvent is a provider webhook resolved into one concrete shape
// at the HTTP boundary.
type PaymentEvent struct {
	EventId          string
	SourceId         string
	Kind             EventKind
	Rail             Rail
	Currency         string
	ExchangeRate     decimal.Decimal
	TargetCurrency   string
	TargetAmount     decimal.Decimal
	TargetAmountPaid decimal.Decimal
	Amount           decimal.Decimal
	Address          string
	Target           DepositTarget
}

// PaidAmount converts the settled target amount back into the balance
// currency. Events without an exchange rate carry the amount directly.
func (e PaymentEvent) PaidAmount() decimal.Decimal {
	if e.ExchangeRate.IsPositive() && !e.TargetAmountPaid.IsZero() {
		return e.TargetAmountPaid.DivRound(e.ExchangeRate, 8)
	}
	return e.Amount
}
