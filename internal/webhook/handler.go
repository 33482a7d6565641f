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

package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"

	"speed-ledger-go/internal/api"
	"speed-ledger-go/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const HeaderAPIKey = "X-Api-Key"

// Ledger is the part of api.LedgerService the HTTP layer drives.
type Ledger interface {
	ReconcileDeposit(ctx context.Context, ev models.PaymentEvent) (*models.ReconcileResult, error)
	ReconcileWithdrawal(ctx context.Context, ev models.PaymentEvent) (*models.ReconcileResult, error)
	CreateDepositIntent(ctx context.Context, req models.DepositIntentRequest) (*models.DepositIntent, error)
	RequestWithdrawal(ctx context.Context, req models.WithdrawalRequest) (*models.Withdrawal, error)
	ListBalances(ctx context.Context, userId string) ([]models.Balance, error)
	GetTransactionHistory(ctx context.Context, userId, currency string, limit, offset int) ([]models.TransactionRecord, error)
	HealthCheck(ctx context.Context) error
}

type HandlerConfig struct {
	Ledger             Ledger
	Rails              models.RailSet
	DepositVerifier    *SpeedVerifier
	WithdrawalVerifier *SpeedVerifier
	// Hookdeck is optional; when set, relayed requests must carry its signature too.
	Hookdeck *HookdeckVerifier
}

type Handler struct {
	ledger             Ledger
	rails              models.RailSet
	depositVerifier    *SpeedVerifier
	withdrawalVerifier *SpeedVerifier
	hookdeck           *HookdeckVerifier
}

func NewHandler(cfg HandlerConfig) *Handler {
	rails := cfg.Rails
	if len(rails) == 0 {
		rails = models.DefaultRailSet()
	}
	return &Handler{
		ledger:             cfg.Ledger,
		rails:              rails,
		depositVerifier:    cfg.DepositVerifier,
		withdrawalVerifier: cfg.WithdrawalVerifier,
		hookdeck:           cfg.Hookdeck,
	}
}

type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeSuccess(c *fiber.Ctx, code int, message string, data interface{}) error {
	return c.Status(code).JSON(response{Success: true, Message: message, Data: data})
}

func writeError(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(response{Success: false, Message: message})
}

// statusFor maps a failure onto the code the provider's retry logic and
// API callers act on.
func statusFor(err error) (int, string) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return fiber.StatusBadRequest, validationErr.Error()
	}
	var ledgerErr *api.LedgerError
	if !errors.As(err, &ledgerErr) {
		return fiber.StatusInternalServerError, "internal error"
	}
	switch ledgerErr.Kind {
	case api.KindValidation:
		return fiber.StatusBadRequest, ledgerErr.Message
	case api.KindDuplicate:
		return fiber.StatusOK, ledgerErr.Message
	case api.KindExternal:
		return fiber.StatusBadGateway, ledgerErr.Message
	}
	return fiber.StatusInternalServerError, ledgerErr.Message
}

// verify checks the provider signature and, if configured, the relay's.
// Signatures cover the bytes as sent, before any Content-Encoding is undone.
func (h *Handler) verify(c *fiber.Ctx, v *SpeedVerifier) error {
	body := c.Request().Body()
	if v != nil {
		if err := v.Verify(c.Get(HeaderWebhookId), c.Get(HeaderWebhookTimestamp), c.Get(HeaderWebhookSignature), body); err != nil {
			return err
		}
	}
	if h.hookdeck != nil {
		if err := h.hookdeck.Verify(c.Get(HeaderHookdeck), c.Get(HeaderHookdeck2), body); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) eventContext(c *fiber.Ctx, ev models.PaymentEvent) context.Context {
	return models.WithEventContext(c.UserContext(), &models.EventContext{
		EventId:  ev.EventId,
		SourceId: ev.SourceId,
		Endpoint: c.Path(),
	})
}

// DepositWebhook handles POST /deposit-webhook.
func (h *Handler) DepositWebhook(c *fiber.Ctx) error {
	if err := h.verify(c, h.depositVerifier); err != nil {
		zap.L().Warn("Rejected deposit webhook signature", zap.String("webhook_id", c.Get(HeaderWebhookId)), zap.Error(err))
		return writeError(c, fiber.StatusUnauthorized, err.Error())
	}

	ev, err := NormalizeDeposit(c.Body(), h.rails)
	if err != nil {
		zap.L().Warn("Rejected deposit webhook payload", zap.Error(err))
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.ledger.ReconcileDeposit(h.eventContext(c, ev), ev)
	if err != nil {
		code, message := statusFor(err)
		return writeError(c, code, message)
	}
	return writeSuccess(c, fiber.StatusOK, depositMessage(result.Outcome), result)
}

// WithdrawWebhook handles POST /withdraw-webhook.
func (h *Handler) WithdrawWebhook(c *fiber.Ctx) error {
	if err := h.verify(c, h.withdrawalVerifier); err != nil {
		zap.L().Warn("Rejected withdrawal webhook signature", zap.String("webhook_id", c.Get(HeaderWebhookId)), zap.Error(err))
		return writeError(c, fiber.StatusUnauthorized, err.Error())
	}

	ev, err := NormalizeWithdrawal(c.Body())
	if err != nil {
		zap.L().Warn("Rejected withdrawal webhook payload", zap.Error(err))
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.ledger.ReconcileWithdrawal(h.eventContext(c, ev), ev)
	if err != nil {
		code, message := statusFor(err)
		return writeError(c, code, message)
	}
	return writeSuccess(c, fiber.StatusOK, "Withdrawal status updated", result)
}

func depositMessage(outcome models.Outcome) string {
	switch outcome {
	case models.OutcomeApplied:
		return "Deposit credited"
	case models.OutcomePending:
		return "Deposit pending confirmation"
	case models.OutcomeIgnored:
		return "Lightning payment is pending confirmation"
	case models.OutcomeAlreadyProcessed:
		return "Event already processed"
	}
	return "Payment status updated"
}

// CreateDeposit handles POST /v1/deposits.
func (h *Handler) CreateDeposit(c *fiber.Ctx) error {
	var req models.DepositIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	intent, err := h.ledger.CreateDepositIntent(c.UserContext(), req)
	if err != nil {
		code, message := statusFor(err)
		return writeError(c, code, message)
	}
	return writeSuccess(c, fiber.StatusCreated, "Deposit intent created", intent)
}

// CreateWithdrawal handles POST /v1/withdrawals.
func (h *Handler) CreateWithdrawal(c *fiber.Ctx) error {
	var req models.WithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	w, err := h.ledger.RequestWithdrawal(c.UserContext(), req)
	if err != nil {
		code, message := statusFor(err)
		return writeError(c, code, message)
	}
	return writeSuccess(c, fiber.StatusCreated, "Withdrawal requested", w)
}

// GetBalances handles GET /v1/accounts/:userId/balances.
func (h *Handler) GetBalances(c *fiber.Ctx) error {
	balances, err := h.ledger.ListBalances(c.UserContext(), c.Params("userId"))
	if err != nil {
		code, message := statusFor(err)
		return writeError(c, code, message)
	}
	return writeSuccess(c, fiber.StatusOK, "Balances", balances)
}

// GetTransactions handles GET /v1/accounts/:userId/transactions?currency=&limit=&offset=.
func (h *Handler) GetTransactions(c *fiber.Ctx) error {
	currency := c.Query("currency")
	if currency == "" {
		return writeError(c, fiber.StatusBadRequest, "currency is required")
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	records, err := h.ledger.GetTransactionHistory(c.UserContext(), c.Params("userId"), currency, limit, offset)
	if err != nil {
		code, message := statusFor(err)
		return writeError(c, code, message)
	}
	return writeSuccess(c, fiber.StatusOK, "Transactions", records)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.ledger.HealthCheck(c.UserContext()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		return writeError(c, fiber.StatusServiceUnavailable, "unhealthy")
	}
	return writeSuccess(c, fiber.StatusOK, "ok", nil)
}

// APIKey guards the /v1 routes. An empty key disables them entirely.
func APIKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return writeError(c, fiber.StatusForbidden, "api disabled")
		}
		if subtle.ConstantTimeCompare([]byte(c.Get(HeaderAPIKey)), []byte(key)) != 1 {
			return writeError(c, fiber.StatusUnauthorized, "unauthorized")
		}
		return c.Next()
	}
}
