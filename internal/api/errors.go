package api

import (
	"errors"
	"fmt"

	"speed-ledger-go/internal/retry"
	"speed-ledger-go/internal/speed"
	"speed-ledger-go/internal/store"
)

// FailureKind groups failures by how a caller should react to them.
type FailureKind string

const (
	KindValidation FailureKind = "validation"
	KindDuplicate  FailureKind = "duplicate"
	KindTransient  FailureKind = "transient"
	KindFatal      FailureKind = "fatal"
	KindExternal   FailureKind = "external"
)

// LedgerError carries a stable, caller-safe Message and the underlying
// Cause for logging.
type LedgerError struct {
	Kind    FailureKind
	Message string
	Cause   error
}

func (e *LedgerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error {
	return e.Cause
}

func validationError(format string, args ...interface{}) *LedgerError {
	return &LedgerError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// IsAlreadyProcessed reports errors meaning the event was applied before.
func IsAlreadyProcessed(err error) bool {
	return errors.Is(err, store.ErrDuplicateTransaction) || errors.Is(err, store.ErrAlreadyFinalized)
}

// classify wraps err into a *LedgerError.
func classify(err error) *LedgerError {
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr
	}

	var apiErr *speed.APIError
	switch {
	case IsAlreadyProcessed(err):
		return &LedgerError{Kind: KindDuplicate, Message: "event already processed", Cause: err}
	case errors.Is(err, retry.ErrExhausted) && errors.Is(err, store.ErrPendingDepositNotFound):
		return &LedgerError{Kind: KindFatal, Message: "pending deposit record not found", Cause: err}
	case errors.Is(err, retry.ErrExhausted), store.IsTransient(err):
		return &LedgerError{Kind: KindTransient, Message: "temporarily unable to process event", Cause: err}
	case errors.Is(err, store.ErrWithdrawalNotFound):
		return &LedgerError{Kind: KindFatal, Message: "withdraw record not found", Cause: err}
	case errors.Is(err, store.ErrDepositNotFound):
		return &LedgerError{Kind: KindFatal, Message: "deposit record not found", Cause: err}
	case errors.Is(err, store.ErrDepositAddressNotFound):
		return &LedgerError{Kind: KindFatal, Message: "deposit address record not found", Cause: err}
	case errors.Is(err, store.ErrBalanceNotFound):
		return &LedgerError{Kind: KindFatal, Message: "balance record not found", Cause: err}
	case errors.Is(err, store.ErrUniqueViolation):
		return &LedgerError{Kind: KindFatal, Message: "record already exists", Cause: err}
	case errors.Is(err, store.ErrInsufficientBalance):
		return &LedgerError{Kind: KindValidation, Message: "insufficient balance", Cause: err}
	case errors.Is(err, store.ErrWithdrawalCooldown):
		return &LedgerError{Kind: KindValidation, Message: "you can withdraw 5 minutes after your last withdrawal", Cause: err}
	case errors.Is(err, store.ErrDepositCooldown):
		return &LedgerError{Kind: KindValidation, Message: "you can withdraw 5 minutes after your last deposit", Cause: err}
	case errors.As(err, &apiErr):
		return &LedgerError{Kind: KindExternal, Message: apiErr.UserMessage(), Cause: err}
	}
	return &LedgerError{Kind: KindFatal, Message: "internal error", Cause: err}
}
