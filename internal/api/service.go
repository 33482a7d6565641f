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

package api

import (
	"context"
	"fmt"
	"time"

	"speed-ledger-go/internal/metrics"
	"speed-ledger-go/internal/mirror"
	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/retry"
	"speed-ledger-go/internal/speed"
	"speed-ledger-go/internal/store"

	"go.uber.org/zap"
)

const (
	DefaultCurrency       = "USD"
	DefaultTargetCurrency = "SATS"
)

// PaymentProvider is the outbound payment API.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, params speed.CreatePaymentParams) (*speed.Payment, error)
	CreateWithdrawal(ctx context.Context, params speed.CreateWithdrawalParams) (*speed.Withdrawal, error)
}

// MirrorEmitter receives records after a successful commit. Emit must not block.
type MirrorEmitter interface {
	Emit(r mirror.Record)
}

type LedgerServiceConfig struct {
	Store    store.LedgerStore
	Provider PaymentProvider
	Mirror   MirrorEmitter
	Metrics  *metrics.Metrics
	Rails    models.RailSet
	Ledger   models.LedgerConfig
}

// LedgerService owns every path that changes ledger state.
type LedgerService struct {
	db       store.LedgerStore
	provider PaymentProvider
	mirror   MirrorEmitter
	metrics  *metrics.Metrics
	rails    models.RailSet
	cfg      models.LedgerConfig
	retry    retry.Policy
	now      func() time.Time
}

type nopEmitter struct{}

func (nopEmitter) Emit(mirror.Record) {}

func NewLedgerService(cfg LedgerServiceConfig) *LedgerService {
	ledgerCfg := cfg.Ledger
	if ledgerCfg.DepositMode == "" {
		ledgerCfg.DepositMode = models.ModeAddressMatch
	}
	if ledgerCfg.DefaultCurrency == "" {
		ledgerCfg.DefaultCurrency = DefaultCurrency
	}
	if ledgerCfg.DefaultTarget == "" {
		ledgerCfg.DefaultTarget = DefaultTargetCurrency
	}

	policy := retry.DefaultPolicy()
	if ledgerCfg.MaxAttempts > 0 {
		policy.MaxAttempts = ledgerCfg.MaxAttempts
	}
	if ledgerCfg.RetryBaseDelay > 0 {
		policy.BaseDelay = ledgerCfg.RetryBaseDelay
	}

	rails := cfg.Rails
	if len(rails) == 0 {
		rails = models.DefaultRailSet()
	}

	var emitter MirrorEmitter = nopEmitter{}
	if cfg.Mirror != nil {
		emitter = cfg.Mirror
	}

	return &LedgerService{
		db:       cfg.Store,
		provider: cfg.Provider,
		mirror:   emitter,
		metrics:  cfg.Metrics,
		rails:    rails,
		cfg:      ledgerCfg,
		retry:    policy,
		now:      time.Now,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// DepositMode is the deposit resolution policy of this deployment.
func (s *LedgerService) DepositMode() models.DepositMode {
	return s.cfg.DepositMode
}

// runWithRetry executes fn in a fresh transaction per attempt.
func (s *LedgerService) runWithRetry(ctx context.Context, kind string, fn func(ctx context.Context, tx store.LedgerTx) error) (int, error) {
	policy := s.retry
	policy.OnRetry = func(int, time.Duration, error) {
		s.metrics.RetryAttempt(kind)
	}
	return retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		return s.db.WithTx(ctx, fn)
	})
}

// eventFields returns log fields identifying the webhook being handled.
func eventFields(ctx context.Context, ev models.PaymentEvent) []zap.Field {
	fields := []zap.Field{
		zap.String("source_id", ev.SourceId),
		zap.String("event_kind", string(ev.Kind)),
		zap.String("rail", string(ev.Rail)),
	}
	if ec := models.GetEventContext(ctx); ec != nil {
		fields = append(fields, zap.String("event_id", ec.EventId), zap.String("endpoint", ec.Endpoint))
	}
	return fields
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
