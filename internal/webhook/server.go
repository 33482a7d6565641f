package webhook

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type ServerConfig struct {
	APIKey string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// AccessLog enables the request logger middleware.
	AccessLog bool
}

// NewApp wires every route onto a fresh fiber app.
func NewApp(h *Handler, cfg ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return writeError(c, code, err.Error())
		},
	})

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}

	app.Get("/health", h.Health)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	app.Post("/deposit-webhook", h.DepositWebhook)
	app.Post("/withdraw-webhook", h.WithdrawWebhook)

	v1 := app.Group("/v1", APIKey(cfg.APIKey))
	v1.Post("/deposits", h.CreateDeposit)
	v1.Post("/withdrawals", h.CreateWithdrawal)
	v1.Get("/accounts/:userId/balances", h.GetBalances)
	v1.Get("/accounts/:userId/transactions", h.GetTransactions)

	return app
}
