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

package monitor

import (
	"context"
	"sync"
	"time"

	"speed-ledger-go/internal/metrics"
	"speed-ledger-go/internal/models"

	"go.uber.org/zap"
)

// StaleSource lists records that have sat in pending for too long.
type StaleSource interface {
	ListStalePending(ctx context.Context, age time.Duration, limit int) ([]models.Deposit, []models.Withdrawal, error)
}

// Config contains configuration for Monitor
type Config struct {
	Source          StaleSource
	Metrics         *metrics.Metrics
	StaleAfter      time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
	BatchSize       int
}

// Monitor polls for pending deposits and withdrawals the provider never
// settled. It only reports; it never changes ledger state.
type Monitor struct {
	source  StaleSource
	metrics *metrics.Metrics

	// ids already warned about, with the last poll that saw them stale
	alerted map[string]time.Time
	mutex   sync.Mutex

	staleAfter      time.Duration
	pollingInterval time.Duration
	cleanupInterval time.Duration
	batchSize       int
	now             func() time.Time

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) *Monitor {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 6 * time.Hour
	}
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Monitor{
		source:          cfg.Source,
		metrics:         cfg.Metrics,
		alerted:         make(map[string]time.Time),
		staleAfter:      cfg.StaleAfter,
		pollingInterval: cfg.PollingInterval,
		cleanupInterval: cfg.CleanupInterval,
		batchSize:       cfg.BatchSize,
		now:             time.Now,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start launches the poll and cleanup loops.
func (m *Monitor) Start(ctx context.Context) {
	go m.pollLoop(ctx)
	go m.cleanupLoop(ctx)

	zap.L().Info("Stale pending monitor started",
		zap.Duration("stale_after", m.staleAfter),
		zap.Duration("polling_interval", m.pollingInterval))
}

// Stop waits for the poll loop to exit. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		zap.L().Info("Stopping stale pending monitor")
		close(m.stopChan)
		<-m.doneChan
		zap.L().Info("Stale pending monitor stopped")
	})
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer close(m.doneChan)

	ticker := time.NewTicker(m.pollingInterval)
	defer ticker.Stop()

	m.Poll(ctx)

	for {
		select {
		case <-ticker.C:
			m.Poll(ctx)
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Poll runs one check and returns how many stale records it found.
func (m *Monitor) Poll(ctx context.Context) int {
	deposits, withdrawals, err := m.source.ListStalePending(ctx, m.staleAfter, m.batchSize)
	if err != nil {
		zap.L().Error("Failed to list stale pending records", zap.Error(err))
		return 0
	}

	m.metrics.SetStalePending("deposit", len(deposits))
	m.metrics.SetStalePending("withdrawal", len(withdrawals))

	for _, d := range deposits {
		if m.markAlerted("deposit:" + d.Id) {
			sourceId := ""
			if d.SourceId != nil {
				sourceId = *d.SourceId
			}
			zap.L().Warn("Deposit stuck in pending",
				zap.String("deposit_id", d.Id),
				zap.String("source_id", sourceId),
				zap.String("user_id", d.UserId),
				zap.String("method", string(d.DepositMethod)),
				zap.Time("updated_at", d.UpdatedAt))
		}
	}
	for _, w := range withdrawals {
		if m.markAlerted("withdrawal:" + w.Id) {
			zap.L().Warn("Withdrawal stuck in pending",
				zap.String("withdrawal_id", w.Id),
				zap.String("source_id", w.SourceId),
				zap.String("user_id", w.UserId),
				zap.String("amount", w.Amount.String()),
				zap.Time("created_at", w.CreatedAt))
		}
	}

	return len(deposits) + len(withdrawals)
}

// markAlerted records key as seen now and reports whether it is new.
func (m *Monitor) markAlerted(key string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	_, seen := m.alerted[key]
	m.alerted[key] = m.now()
	return !seen
}

func (m *Monitor) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupAlerted()
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupAlerted forgets ids that have not been reported stale for a
// full cleanup interval, so a record that settles and is later reopened
// would be reported again.
func (m *Monitor) cleanupAlerted() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	cutoff := m.now().Add(-m.cleanupInterval)
	cleaned := 0
	for key, lastSeen := range m.alerted {
		if lastSeen.Before(cutoff) {
			delete(m.alerted, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up stale pending alerts",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(m.alerted)))
	}
}
