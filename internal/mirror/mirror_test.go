package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"speed-ledger-go/internal/metrics"

	"github.com/shopspring/decimal"
)

type recordingSink struct {
	mu      sync.Mutex
	records []Record
	fail    bool
	block   chan struct{}
	closed  bool
}

func (s *recordingSink) Upsert(ctx context.Context, r Record) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("mirror unavailable")
	}
	s.records = append(s.records, r)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestRecordKey(t *testing.T) {
	r := Record{AccountId: "user1", Collection: CollectionDeposit, RecordId: "tx1"}
	if got := r.Key(); got != "account/user1/deposit/tx1" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestPublisher_DeliversAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink, PublisherConfig{QueueSize: 8, Metrics: metrics.New(nil)})

	for _, id := range []string{"a", "b", "c"} {
		p.Emit(Record{AccountId: "user1", Collection: CollectionBalance, RecordId: id})
	}
	p.Close()

	if len(sink.records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(sink.records))
	}
	if !sink.closed {
		t.Error("expected sink to be closed")
	}

	// Emit after close must not panic.
	p.Emit(Record{AccountId: "user1", Collection: CollectionBalance, RecordId: "late"})
	p.Close()
}

func TestPublisher_SinkFailureDoesNotPropagate(t *testing.T) {
	sink := &recordingSink{fail: true}
	p := NewPublisher(sink, PublisherConfig{QueueSize: 1})

	p.Emit(Record{AccountId: "user1", Collection: CollectionWithdraw, RecordId: "wd1"})
	p.Close()

	if len(sink.records) != 0 {
		t.Errorf("expected no stored records, got %d", len(sink.records))
	}
}

func TestPublisher_EmitNeverBlocks(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	p := NewPublisher(sink, PublisherConfig{QueueSize: 1, WriteTimeout: time.Second})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			p.Emit(Record{AccountId: "user1", Collection: CollectionDeposit, RecordId: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full queue")
	}

	close(sink.block)
	p.Close()
}

func TestHashValues(t *testing.T) {
	values, err := hashValues(Record{
		AccountId:  "user1",
		Collection: CollectionBalance,
		RecordId:   "USD",
		Fields: map[string]interface{}{
			"status":            "paid",
			"available_balance": decimal.RequireFromString("10.5"),
			"attempts":          2,
			"methods":           []string{"lightning"},
		},
	})
	if err != nil {
		t.Fatalf("hashValues failed: %v", err)
	}

	if values["available_balance"] != "10.5" {
		t.Errorf("expected decimal as string, got %v", values["available_balance"])
	}
	if values["attempts"] != "2" {
		t.Errorf("expected int as string, got %v", values["attempts"])
	}
	if values["methods"] != `["lightning"]` {
		t.Errorf("expected JSON slice, got %v", values["methods"])
	}
	if _, ok := values["updated_at"]; !ok {
		t.Error("expected updated_at to be set")
	}
}
