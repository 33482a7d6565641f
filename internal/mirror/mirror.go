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

package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"speed-ledger-go/internal/metrics"

	"go.uber.org/zap"
)

const (
	CollectionDeposit  = "deposit"
	CollectionWithdraw = "withdraw"
	CollectionBalance  = "balance"
)

// Record is one non-authoritative document pushed to the mirror after a
// ledger commit.
type Record struct {
	AccountId  string
	Collection string
	RecordId   string
	Fields     map[string]interface{}
}

// Key is the document path: account/{accountId}/{collection}/{recordId}.
func (r Record) Key() string {
	return fmt.Sprintf("account/%s/%s/%s", r.AccountId, r.Collection, r.RecordId)
}

// Sink writes a record to the mirror store.
type Sink interface {
	Upsert(ctx context.Context, r Record) error
	Close() error
}

// NopSink discards everything. Used when the mirror is disabled.
type NopSink struct{}

func (NopSink) Upsert(context.Context, Record) error { return nil }
func (NopSink) Close() error                         { return nil }

type PublisherConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
	Metrics      *metrics.Metrics
}

// Publisher hands records to a single background worker. Emit never
// blocks the caller and sink failures are only logged.
type Publisher struct {
	sink         Sink
	queue        chan Record
	doneChan     chan struct{}
	writeTimeout time.Duration
	metrics      *metrics.Metrics

	mu     sync.RWMutex
	closed bool
}

func NewPublisher(sink Sink, cfg PublisherConfig) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}

	p := &Publisher{
		sink:         sink,
		queue:        make(chan Record, cfg.QueueSize),
		doneChan:     make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
		metrics:      cfg.Metrics,
	}
	go p.run()
	return p
}

// Emit queues r for delivery. A full queue drops the record.
func (p *Publisher) Emit(r Record) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		zap.L().Warn("Mirror publisher closed, dropping record", zap.String("key", r.Key()))
		p.metrics.MirrorEvent("dropped")
		return
	}

	select {
	case p.queue <- r:
	default:
		zap.L().Warn("Mirror queue full, dropping record", zap.String("key", r.Key()))
		p.metrics.MirrorEvent("dropped")
	}
}

// Close stops accepting records, drains the queue and closes the sink.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.doneChan
	if err := p.sink.Close(); err != nil {
		zap.L().Warn("Failed to close mirror sink", zap.Error(err))
	}
}

func (p *Publisher) run() {
	defer close(p.doneChan)

	for r := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		err := p.sink.Upsert(ctx, r)
		cancel()

		if err != nil {
			zap.L().Error("Failed to sync record to mirror",
				zap.String("key", r.Key()),
				zap.Error(err))
			p.metrics.MirrorEvent("failed")
			continue
		}
		p.metrics.MirrorEvent("ok")
	}
}
