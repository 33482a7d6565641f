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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"speed-ledger-go/internal/common"
	"speed-ledger-go/internal/config"
	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/monitor"
	"speed-ledger-go/internal/webhook"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	accessLog := flag.Bool("access-log", false, "Log every HTTP request")
	flag.Parse()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting ledger daemon", zap.String("addr", cfg.Server.Addr))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	handlerCfg := webhook.HandlerConfig{
		Ledger: services.Ledger,
		Rails:  services.Rails,
	}
	handlerCfg.DepositVerifier = speedVerifier("deposit", cfg.Webhook.DepositSecret, cfg.Webhook)
	handlerCfg.WithdrawalVerifier = speedVerifier("withdrawal", cfg.Webhook.WithdrawalSecret, cfg.Webhook)
	if cfg.Webhook.HookdeckSecret != "" {
		handlerCfg.Hookdeck = webhook.NewHookdeckVerifier(cfg.Webhook.HookdeckSecret)
	}
	if cfg.Server.APIKey == "" {
		zap.L().Warn("LEDGER_API_KEY not set, /v1 routes are disabled")
	}

	app := webhook.NewApp(webhook.NewHandler(handlerCfg), webhook.ServerConfig{
		APIKey:    cfg.Server.APIKey,
		Metrics:   promhttp.HandlerFor(services.Registry, promhttp.HandlerOpts{}),
		AccessLog: *accessLog,
	})

	var mon *monitor.Monitor
	if cfg.Monitor.Enabled {
		mon = monitor.New(monitor.Config{
			Source:          services.Ledger,
			Metrics:         services.Metrics,
			StaleAfter:      cfg.Monitor.StaleAfter,
			PollingInterval: cfg.Monitor.PollingInterval,
			CleanupInterval: cfg.Monitor.CleanupInterval,
			BatchSize:       cfg.Monitor.BatchSize,
		})
		mon.Start(ctx)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.Listen(cfg.Server.Addr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, draining requests...")
	case err := <-serverErr:
		zap.L().Error("HTTP server stopped unexpectedly", zap.Error(err))
	}

	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		zap.L().Warn("Forced shutdown after timeout", zap.Error(err))
	}
	if mon != nil {
		mon.Stop()
	}
	zap.L().Info("Ledger daemon stopped")
}

// speedVerifier returns nil, and so disables verification, when no
// secret is configured.
func speedVerifier(endpoint, secret string, cfg models.WebhookConfig) *webhook.SpeedVerifier {
	if secret == "" {
		zap.L().Warn("Webhook signing secret not set, signatures will not be checked", zap.String("endpoint", endpoint))
		return nil
	}
	v, err := webhook.NewSpeedVerifier(secret, cfg.Tolerance)
	if err != nil {
		zap.L().Fatal("Invalid webhook signing secret", zap.String("endpoint", endpoint), zap.Error(err))
	}
	return v
}
