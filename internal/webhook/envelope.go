package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/speed"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// Envelope is the provider's webhook body.
type Envelope struct {
	Id        string `json:"id" validate:"required"`
	EventType string `json:"event_type" validate:"required"`
	Data      struct {
		Object PaymentObject `json:"object"`
	} `json:"data"`
}

type PaymentObject struct {
	Id                   string                               `json:"id" validate:"required"`
	Status               string                               `json:"status" validate:"required"`
	Currency             string                               `json:"currency" validate:"required"`
	Amount               decimal.Decimal                      `json:"amount"`
	ExchangeRate         decimal.Decimal                      `json:"exchange_rate"`
	TargetCurrency       string                               `json:"target_currency"`
	TargetAmount         decimal.Decimal                      `json:"target_amount"`
	TargetAmountPaid     decimal.Decimal                      `json:"target_amount_paid"`
	PaymentMethodPaidBy  string                               `json:"payment_method_paid_by"`
	PaymentMethodOptions map[string]speed.PaymentMethodOption `json:"payment_method_options"`
	Metadata             Metadata                             `json:"metadata"`
}

type Metadata struct {
	UserId           string `json:"userId"`
	DepositId        string `json:"depositId"`
	DepositAddressId string `json:"depositAddressId"`
	WithdrawId       string `json:"withdrawId"`
	Type             string `json:"type"`
}

// ValidationError marks a body that can never be processed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid webhook payload: " + e.Reason
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func parseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, invalid("%v", err)
	}
	if err := validate.Struct(&env); err != nil {
		return nil, invalid("%v", err)
	}
	return &env, nil
}

// depositKind maps "payment.paid" style event types.
func depositKind(eventType string) (models.EventKind, error) {
	switch strings.TrimPrefix(eventType, "payment.") {
	case "paid":
		return models.EventPaid, nil
	case "confirmed":
		return models.EventConfirmed, nil
	case "expired":
		return models.EventExpired, nil
	case "cancelled":
		return models.EventCancelled, nil
	}
	return "", invalid("unsupported event type %q", eventType)
}

// NormalizeDeposit resolves a deposit webhook into a PaymentEvent. The
// metadata decides the target: a depositId means direct mode, anything
// else is matched by address.
func NormalizeDeposit(body []byte, rails models.RailSet) (models.PaymentEvent, error) {
	env, err := parseEnvelope(body)
	if err != nil {
		return models.PaymentEvent{}, err
	}
	obj := env.Data.Object

	kind, err := depositKind(env.EventType)
	if err != nil {
		return models.PaymentEvent{}, err
	}

	ev := models.PaymentEvent{
		EventId:          env.Id,
		SourceId:         obj.Id,
		Kind:             kind,
		Currency:         strings.ToUpper(obj.Currency),
		ExchangeRate:     obj.ExchangeRate,
		TargetCurrency:   strings.ToUpper(obj.TargetCurrency),
		TargetAmount:     obj.TargetAmount,
		TargetAmountPaid: obj.TargetAmountPaid,
		Amount:           obj.Amount,
		Target: models.DepositTarget{
			Mode:             models.ModeAddressMatch,
			DepositAddressId: obj.Metadata.DepositAddressId,
			UserId:           obj.Metadata.UserId,
		},
	}
	if obj.Metadata.DepositId != "" {
		ev.Target.Mode = models.ModeDirect
		ev.Target.DepositId = obj.Metadata.DepositId
	}

	// Expired and cancelled payments were never paid by any rail.
	if kind == models.EventExpired || kind == models.EventCancelled {
		ev.Rail = models.RailLightning
		if obj.PaymentMethodPaidBy == "" {
			return ev, nil
		}
	}

	rail, err := models.ParseRail(obj.PaymentMethodPaidBy)
	if err != nil {
		return models.PaymentEvent{}, invalid("%v", err)
	}
	ev.Rail = rail

	rc, ok := rails[rail]
	if !ok {
		return models.PaymentEvent{}, invalid("payment method %q is not enabled", rail)
	}
	if option, ok := obj.PaymentMethodOptions[rc.OptionKey]; ok {
		ev.Address = option.Field(rc.AddressField)
	}
	return ev, nil
}

// NormalizeWithdrawal resolves a payout webhook. Only the terminal
// statuses are actionable.
func NormalizeWithdrawal(body []byte) (models.PaymentEvent, error) {
	env, err := parseEnvelope(body)
	if err != nil {
		return models.PaymentEvent{}, err
	}
	obj := env.Data.Object

	var kind models.EventKind
	switch obj.Status {
	case "paid":
		kind = models.EventPaid
	case "failed":
		kind = models.EventFailed
	default:
		return models.PaymentEvent{}, invalid("unsupported withdrawal status %q", obj.Status)
	}

	return models.PaymentEvent{
		EventId:        env.Id,
		SourceId:       obj.Id,
		Kind:           kind,
		Currency:       strings.ToUpper(obj.Currency),
		Amount:         obj.Amount,
		TargetCurrency: strings.ToUpper(obj.TargetCurrency),
		TargetAmount:   obj.TargetAmount,
	}, nil
}
