package api

import (
	"context"
	"errors"
	"sync"
	"testing"

	"speed-ledger-go/internal/mirror"
	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestReconcileDeposit_LightningConfirmedCredits(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	ctx := context.Background()
	l.seedBalance(t, "user-1", 0, 0)
	addr := l.seedAddress(t, "user-1", models.RailLightning, "lnbc1qqq")

	result, err := l.svc.ReconcileDeposit(ctx, addressEvent("tx1", models.EventConfirmed, models.RailLightning, addr, "10.50"))
	if err != nil {
		t.Fatalf("ReconcileDeposit failed: %v", err)
	}
	if result.Outcome != models.OutcomeApplied {
		t.Fatalf("Expected applied, got %s", result.Outcome)
	}
	want := decimal.RequireFromString("10.50")
	if !result.NewBalance.Equal(want) {
		t.Errorf("Expected new balance %s, got %s", want, result.NewBalance)
	}

	txns := l.history(t, "user-1")
	if len(txns) != 1 {
		t.Fatalf("Expected 1 transaction, got %d", len(txns))
	}
	if txns[0].Type != models.TransactionCredited || txns[0].Code != models.CodeDeposit {
		t.Errorf("Unexpected transaction %s/%s", txns[0].Type, txns[0].Code)
	}
	if !txns[0].Amount.Equal(want) || !txns[0].ClosingBalance.Equal(want) {
		t.Errorf("Expected amount and closing balance %s, got %s/%s", want, txns[0].Amount, txns[0].ClosingBalance)
	}

	bal := l.balance(t, "user-1")
	if !bal.AvailableBalance.Equal(want) || !bal.WithdrawableBalance.Equal(want) {
		t.Errorf("Expected balance %s, got %s/%s", want, bal.AvailableBalance, bal.WithdrawableBalance)
	}
	if bal.LastTransactionId == nil || *bal.LastTransactionId != txns[0].Id {
		t.Error("Expected balance to reference the new transaction")
	}

	deposit, err := l.db.GetDeposit(ctx, result.Deposit.Id)
	if err != nil {
		t.Fatalf("GetDeposit failed: %v", err)
	}
	if deposit.Status != models.DepositPaid || deposit.DepositRequest != "lnbc1qqq" {
		t.Errorf("Unexpected deposit %s/%s", deposit.Status, deposit.DepositRequest)
	}

	if got := l.mirror.collection(mirror.CollectionDeposit); len(got) != 1 || got[0].Fields["status"] != "paid" {
		t.Errorf("Expected one paid deposit mirror record, got %+v", got)
	}
	if got := l.mirror.collection(mirror.CollectionBalance); len(got) != 1 || got[0].AccountId != "user-1" {
		t.Errorf("Expected one balance mirror record, got %+v", got)
	}
}

func TestReconcileDeposit_RedeliveryIsAlreadyProcessed(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	ctx := context.Background()
	l.seedBalance(t, "user-1", 0, 0)
	addr := l.seedAddress(t, "user-1", models.RailLightning, "lnbc1qqq")
	ev := addressEvent("tx1", models.EventConfirmed, models.RailLightning, addr, "10.50")

	if _, err := l.svc.ReconcileDeposit(ctx, ev); err != nil {
		t.Fatalf("First delivery failed: %v", err)
	}
	result, err := l.svc.ReconcileDeposit(ctx, ev)
	if err != nil {
		t.Fatalf("Redelivery should not fail: %v", err)
	}
	if result.Outcome != models.OutcomeAlreadyProcessed {
		t.Errorf("Expected already_processed, got %s", result.Outcome)
	}
	if result.Attempts != 1 {
		t.Errorf("Duplicate must not be retried, got %d attempts", result.Attempts)
	}

	if txns := l.history(t, "user-1"); len(txns) != 1 {
		t.Errorf("Expected 1 transaction after redelivery, got %d", len(txns))
	}
	if bal := l.balance(t, "user-1"); !bal.AvailableBalance.Equal(decimal.RequireFromString("10.50")) {
		t.Errorf("Balance changed on redelivery: %s", bal.AvailableBalance)
	}
}

func TestReconcileDeposit_LightningPaidIgnoredInAddressMode(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	l.seedBalance(t, "user-1", 0, 0)
	addr := l.seedAddress(t, "user-1", models.RailLightning, "lnbc1qqq")

	result, err := l.svc.ReconcileDeposit(context.Background(), addressEvent("tx1", models.EventPaid, models.RailLightning, addr, "10"))
	if err != nil {
		t.Fatalf("ReconcileDeposit failed: %v", err)
	}
	if result.Outcome != models.OutcomeIgnored {
		t.Errorf("Expected ignored, got %s", result.Outcome)
	}
	if txns := l.history(t, "user-1"); len(txns) != 0 {
		t.Errorf("Expected no transactions, got %d", len(txns))
	}
	if got := l.mirror.collection(mirror.CollectionDeposit); len(got) != 0 {
		t.Errorf("Ignored events must not reach the mirror, got %+v", got)
	}
}

func TestReconcileDeposit_OnchainPendingThenConfirmed(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	ctx := context.Background()
	l.seedBalance(t, "user-1", 0, 0)
	addr := l.seedAddress(t, "user-1", models.RailOnchain, "bc1qdepositaddr")

	paid, err := l.svc.ReconcileDeposit(ctx, addressEvent("tx2", models.EventPaid, models.RailOnchain, addr, "25"))
	if err != nil {
		t.Fatalf("Paid event failed: %v", err)
	}
	if paid.Outcome != models.OutcomePending || paid.Deposit.Status != models.DepositPending {
		t.Fatalf("Expected pending deposit, got %s/%s", paid.Outcome, paid.Deposit.Status)
	}
	if bal := l.balance(t, "user-1"); !bal.AvailableBalance.IsZero() {
		t.Errorf("Balance must not change on paid, got %s", bal.AvailableBalance)
	}

	// a redelivered paid event leaves the pending row alone
	again, err := l.svc.ReconcileDeposit(ctx, addressEvent("tx2", models.EventPaid, models.RailOnchain, addr, "25"))
	if err != nil || again.Outcome != models.OutcomeAlreadyProcessed {
		t.Fatalf("Expected already_processed for repeated paid, got %v, %v", again, err)
	}

	confirmed, err := l.svc.ReconcileDeposit(ctx, addressEvent("tx2", models.EventConfirmed, models.RailOnchain, addr, "25"))
	if err != nil {
		t.Fatalf("Confirmed event failed: %v", err)
	}
	if confirmed.Outcome != models.OutcomeApplied {
		t.Fatalf("Expected applied, got %s", confirmed.Outcome)
	}
	if confirmed.Deposit.Id != paid.Deposit.Id {
		t.Errorf("Confirmed event finalized a different deposit: %s vs %s", confirmed.Deposit.Id, paid.Deposit.Id)
	}

	deposit, err := l.db.GetDeposit(ctx, paid.Deposit.Id)
	if err != nil {
		t.Fatalf("GetDeposit failed: %v", err)
	}
	if deposit.Status != models.DepositPaid {
		t.Errorf("Expected paid, got %s", deposit.Status)
	}
	if txns := l.history(t, "user-1"); len(txns) != 1 {
		t.Errorf("Expected exactly 1 transaction, got %d", len(txns))
	}
	if bal := l.balance(t, "user-1"); !bal.AvailableBalance.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Expected balance 25, got %s", bal.AvailableBalance)
	}
}

// racingStore commits a competing write after the first attempt so the
// retry sees a different state.
type racingStore struct {
	store.LedgerStore
	mu         sync.Mutex
	calls      int
	afterFirst func()
}

func (r *racingStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	err := r.LedgerStore.WithTx(ctx, fn)
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	if first && r.afterFirst != nil {
		r.afterFirst()
	}
	return err
}

func TestReconcileDeposit_ConfirmedRetriesUntilPendingVisible(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	ctx := context.Background()
	l.seedBalance(t, "user-1", 0, 0)
	addr := l.seedAddress(t, "user-1", models.RailEthereum, "0xabc")

	racing := &racingStore{LedgerStore: l.db}
	racing.afterFirst = func() {
		if _, err := l.svc.ReconcileDeposit(ctx, addressEvent("tx3", models.EventPaid, models.RailEthereum, addr, "5")); err != nil {
			t.Errorf("Paid event failed: %v", err)
		}
	}
	confirming := NewLedgerService(LedgerServiceConfig{Store: racing, Provider: l.provider, Ledger: l.svc.cfg})

	result, err := confirming.ReconcileDeposit(ctx, addressEvent("tx3", models.EventConfirmed, models.RailEthereum, addr, "5"))
	if err != nil {
		t.Fatalf("Confirmed event failed: %v", err)
	}
	if result.Outcome != models.OutcomeApplied || result.Attempts != 2 {
		t.Errorf("Expected applied on attempt 2, got %s on attempt %d", result.Outcome, result.Attempts)
	}
	if bal := l.balance(t, "user-1"); !bal.AvailableBalance.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected balance 5, got %s", bal.AvailableBalance)
	}
}

func TestReconcileDeposit_ConfirmedWithoutPendingIsFatal(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	l.seedBalance(t, "user-1", 0, 0)
	addr := l.seedAddress(t, "user-1", models.RailTron, "Tabc")

	_, err := l.svc.ReconcileDeposit(context.Background(), addressEvent("tx4", models.EventConfirmed, models.RailTron, addr, "5"))
	requireKind(t, err, KindFatal)
	if !errors.Is(err, store.ErrPendingDepositNotFound) {
		t.Errorf("Expected pending-not-found cause, got %v", err)
	}
	if txns := l.history(t, "user-1"); len(txns) != 0 {
		t.Errorf("Expected no transactions, got %d", len(txns))
	}
}

func TestReconcileDeposit_UnknownAddressIsFatal(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	l.seedBalance(t, "user-1", 0, 0)
	addr := l.seedAddress(t, "user-1", models.RailLightning, "lnbc1known")

	ev := addressEvent("tx5", models.EventConfirmed, models.RailLightning, addr, "5")
	ev.Address = "lnbc1unknown"
	_, err := l.svc.ReconcileDeposit(context.Background(), ev)
	requireKind(t, err, KindFatal)
}

func TestReconcileDeposit_MissingBalanceIsFatal(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	addr := l.seedAddress(t, "user-1", models.RailLightning, "lnbc1qqq")

	_, err := l.svc.ReconcileDeposit(context.Background(), addressEvent("tx6", models.EventConfirmed, models.RailLightning, addr, "5"))
	requireKind(t, err, KindFatal)
	if !errors.Is(err, store.ErrBalanceNotFound) {
		t.Errorf("Expected balance-not-found cause, got %v", err)
	}
}

func TestReconcileDeposit_Validation(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	addr := &models.DepositAddress{Id: "addr-1", LightningAddress: "lnbc1qqq"}

	tests := []struct {
		name   string
		mutate func(ev *models.PaymentEvent)
	}{
		{"missing source id", func(ev *models.PaymentEvent) { ev.SourceId = "" }},
		{"missing currency", func(ev *models.PaymentEvent) { ev.Currency = "" }},
		{"unknown rail", func(ev *models.PaymentEvent) { ev.Rail = "paypal" }},
		{"failed kind", func(ev *models.PaymentEvent) { ev.Kind = models.EventFailed }},
		{"mode mismatch", func(ev *models.PaymentEvent) { ev.Target.Mode = models.ModeDirect }},
		{"no address", func(ev *models.PaymentEvent) { ev.Address = ""; ev.Target.DepositAddressId = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := addressEvent("tx-v", models.EventConfirmed, models.RailLightning, addr, "5")
			tt.mutate(&ev)
			_, err := l.svc.ReconcileDeposit(context.Background(), ev)
			requireKind(t, err, KindValidation)
		})
	}
}

func TestReconcileDeposit_ZeroAmountRejected(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	l.seedBalance(t, "user-1", 0, 0)
	addr := l.seedAddress(t, "user-1", models.RailLightning, "lnbc1qqq")

	_, err := l.svc.ReconcileDeposit(context.Background(), addressEvent("tx-z", models.EventConfirmed, models.RailLightning, addr, "0"))
	requireKind(t, err, KindValidation)
	if txns := l.history(t, "user-1"); len(txns) != 0 {
		t.Errorf("Expected no transactions, got %d", len(txns))
	}
}

func TestReconcileDeposit_ExchangeRateConversion(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	l.seedBalance(t, "user-1", 0, 0)
	addr := l.seedAddress(t, "user-1", models.RailLightning, "lnbc1qqq")

	ev := addressEvent("tx7", models.EventConfirmed, models.RailLightning, addr, "0")
	ev.ExchangeRate = decimal.NewFromInt(1000)
	ev.TargetCurrency = "SATS"
	ev.TargetAmountPaid = decimal.NewFromInt(10500)

	result, err := l.svc.ReconcileDeposit(context.Background(), ev)
	if err != nil {
		t.Fatalf("ReconcileDeposit failed: %v", err)
	}
	if !result.Amount.Equal(decimal.RequireFromString("10.5")) {
		t.Errorf("Expected converted amount 10.5, got %s", result.Amount)
	}
	if !result.Deposit.TargetAmount.Equal(decimal.NewFromInt(10500)) || result.Deposit.TargetCurrency != "SATS" {
		t.Errorf("Unexpected target amount %s %s", result.Deposit.TargetAmount, result.Deposit.TargetCurrency)
	}
}

func TestReconcileDeposit_ConcurrentCreditsOnSameBalance(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	ctx := context.Background()
	l.seedBalance(t, "user-1", 0, 0)
	first := l.seedAddress(t, "user-1", models.RailLightning, "lnbc1first")
	second := l.seedAddress(t, "user-1", models.RailLightning, "lnbc1second")

	events := []models.PaymentEvent{
		addressEvent("tx-a", models.EventConfirmed, models.RailLightning, first, "7"),
		addressEvent("tx-b", models.EventConfirmed, models.RailLightning, second, "3"),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(events))
	for i, ev := range events {
		wg.Add(1)
		go func(i int, ev models.PaymentEvent) {
			defer wg.Done()
			_, errs[i] = l.svc.ReconcileDeposit(ctx, ev)
		}(i, ev)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Event %d failed: %v", i, err)
		}
	}

	bal := l.balance(t, "user-1")
	if !bal.AvailableBalance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected balance 10, got %s", bal.AvailableBalance)
	}
	txns := l.history(t, "user-1")
	if len(txns) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(txns))
	}
	closings := map[string]bool{}
	for _, txn := range txns {
		closings[txn.ClosingBalance.String()] = true
	}
	if !closings["10"] || !(closings["7"] || closings["3"]) {
		t.Errorf("Closing balances do not form a running sum: %v", closings)
	}
}

func TestReconcileDeposit_DirectModeLightningPaidSettles(t *testing.T) {
	l := setupLedger(t, models.ModeDirect)
	ctx := context.Background()
	l.seedBalance(t, "user-1", 0, 0)

	intent, err := l.svc.CreateDepositIntent(ctx, models.DepositIntentRequest{UserId: "user-1", Amount: decimal.NewFromInt(20)})
	if err != nil {
		t.Fatalf("CreateDepositIntent failed: %v", err)
	}

	ev := models.PaymentEvent{
		SourceId: intent.PaymentId,
		Kind:     models.EventPaid,
		Rail:     models.RailLightning,
		Currency: "USD",
		Amount:   decimal.NewFromInt(20),
		Target:   models.DepositTarget{Mode: models.ModeDirect, DepositId: intent.DepositId},
	}
	result, err := l.svc.ReconcileDeposit(ctx, ev)
	if err != nil {
		t.Fatalf("ReconcileDeposit failed: %v", err)
	}
	if result.Outcome != models.OutcomeApplied || result.Deposit.Status != models.DepositPaid {
		t.Fatalf("Expected applied/paid, got %s/%s", result.Outcome, result.Deposit.Status)
	}

	// the confirmed event that follows is a no-op
	ev.Kind = models.EventConfirmed
	again, err := l.svc.ReconcileDeposit(ctx, ev)
	if err != nil || again.Outcome != models.OutcomeAlreadyProcessed {
		t.Fatalf("Expected already_processed, got %v, %v", again, err)
	}
	if bal := l.balance(t, "user-1"); !bal.AvailableBalance.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected balance 20, got %s", bal.AvailableBalance)
	}
}

func TestReconcileDeposit_DirectModeDelayedRail(t *testing.T) {
	l := setupLedger(t, models.ModeDirect)
	ctx := context.Background()
	l.seedBalance(t, "user-1", 0, 0)

	intent, err := l.svc.CreateDepositIntent(ctx, models.DepositIntentRequest{
		UserId:  "user-1",
		Amount:  decimal.NewFromInt(40),
		Methods: []string{"onchain"},
	})
	if err != nil {
		t.Fatalf("CreateDepositIntent failed: %v", err)
	}

	ev := models.PaymentEvent{
		SourceId: intent.PaymentId,
		Kind:     models.EventPaid,
		Rail:     models.RailOnchain,
		Currency: "USD",
		Amount:   decimal.NewFromInt(40),
		Address:  intent.Addresses[models.RailOnchain],
		Target:   models.DepositTarget{Mode: models.ModeDirect, DepositId: intent.DepositId},
	}
	paid, err := l.svc.ReconcileDeposit(ctx, ev)
	if err != nil || paid.Outcome != models.OutcomePending {
		t.Fatalf("Expected pending, got %v, %v", paid, err)
	}

	ev.Kind = models.EventConfirmed
	confirmed, err := l.svc.ReconcileDeposit(ctx, ev)
	if err != nil || confirmed.Outcome != models.OutcomeApplied {
		t.Fatalf("Expected applied, got %v, %v", confirmed, err)
	}
	if bal := l.balance(t, "user-1"); !bal.AvailableBalance.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected balance 40, got %s", bal.AvailableBalance)
	}
}

func TestReconcileDeposit_ExpiredIsTerminal(t *testing.T) {
	l := setupLedger(t, models.ModeDirect)
	ctx := context.Background()
	l.seedBalance(t, "user-1", 0, 0)

	intent, err := l.svc.CreateDepositIntent(ctx, models.DepositIntentRequest{UserId: "user-1", Amount: decimal.NewFromInt(20)})
	if err != nil {
		t.Fatalf("CreateDepositIntent failed: %v", err)
	}

	ev := models.PaymentEvent{
		SourceId: intent.PaymentId,
		Kind:     models.EventExpired,
		Rail:     models.RailLightning,
		Currency: "USD",
		Target:   models.DepositTarget{Mode: models.ModeDirect, DepositId: intent.DepositId},
	}
	result, err := l.svc.ReconcileDeposit(ctx, ev)
	if err != nil {
		t.Fatalf("ReconcileDeposit failed: %v", err)
	}
	if result.Outcome != models.OutcomeStatusUpdated || result.Deposit.Status != models.DepositExpired {
		t.Fatalf("Expected status_updated/expired, got %s/%s", result.Outcome, result.Deposit.Status)
	}

	ev.Kind = models.EventPaid
	ev.Amount = decimal.NewFromInt(20)
	late, err := l.svc.ReconcileDeposit(ctx, ev)
	if err != nil || late.Outcome != models.OutcomeAlreadyProcessed {
		t.Fatalf("Expected already_processed for a paid event after expiry, got %v, %v", late, err)
	}
	if bal := l.balance(t, "user-1"); !bal.AvailableBalance.IsZero() {
		t.Errorf("Expired deposit must not credit, got %s", bal.AvailableBalance)
	}
}

func TestReconcileDeposit_CancelledWithoutRowInAddressMode(t *testing.T) {
	l := setupLedger(t, models.ModeAddressMatch)
	addr := &models.DepositAddress{Id: "addr-1", UserId: "user-1", LightningAddress: "lnbc1qqq"}

	result, err := l.svc.ReconcileDeposit(context.Background(), addressEvent("tx8", models.EventCancelled, models.RailLightning, addr, "0"))
	if err != nil {
		t.Fatalf("ReconcileDeposit failed: %v", err)
	}
	if result.Outcome != models.OutcomeStatusUpdated {
		t.Errorf("Expected status_updated, got %s", result.Outcome)
	}
	if got := l.mirror.collection(mirror.CollectionDeposit); len(got) != 1 || got[0].AccountId != "user-1" {
		t.Errorf("Expected one mirror update for user-1, got %+v", got)
	}
}
