package webhook

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"speed-ledger-go/internal/api"
	"speed-ledger-go/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type fakeLedger struct {
	depositResult *models.ReconcileResult
	err           error
	healthErr     error
	lastEvent     models.PaymentEvent
	lastCtx       context.Context
	withdrawReq   models.WithdrawalRequest
}

func (f *fakeLedger) ReconcileDeposit(ctx context.Context, ev models.PaymentEvent) (*models.ReconcileResult, error) {
	f.lastEvent, f.lastCtx = ev, ctx
	if f.err != nil {
		return nil, f.err
	}
	if f.depositResult != nil {
		return f.depositResult, nil
	}
	return &models.ReconcileResult{Outcome: models.OutcomeApplied, SourceId: ev.SourceId}, nil
}

func (f *fakeLedger) ReconcileWithdrawal(ctx context.Context, ev models.PaymentEvent) (*models.ReconcileResult, error) {
	f.lastEvent, f.lastCtx = ev, ctx
	if f.err != nil {
		return nil, f.err
	}
	return &models.ReconcileResult{Outcome: models.OutcomeStatusUpdated, SourceId: ev.SourceId}, nil
}

func (f *fakeLedger) CreateDepositIntent(ctx context.Context, req models.DepositIntentRequest) (*models.DepositIntent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.DepositIntent{PaymentId: "pi_1", TargetCurrency: "SATS"}, nil
}

func (f *fakeLedger) RequestWithdrawal(ctx context.Context, req models.WithdrawalRequest) (*models.Withdrawal, error) {
	f.withdrawReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Withdrawal{Id: "w_1", SourceId: "wi_1", UserId: req.UserId, Amount: req.Amount}, nil
}

func (f *fakeLedger) ListBalances(ctx context.Context, userId string) ([]models.Balance, error) {
	return []models.Balance{{UserId: userId, Currency: "USD", AvailableBalance: decimal.NewFromInt(5)}}, nil
}

func (f *fakeLedger) GetTransactionHistory(ctx context.Context, userId, currency string, limit, offset int) ([]models.TransactionRecord, error) {
	return []models.TransactionRecord{{Id: "t_1", Currency: currency}}, nil
}

func (f *fakeLedger) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

type testServer struct {
	app      *fiber.App
	ledger   *fakeLedger
	verifier *SpeedVerifier
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	ledger := &fakeLedger{}
	v, err := NewSpeedVerifier(testSecret, 0)
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}
	h := NewHandler(HandlerConfig{
		Ledger:             ledger,
		DepositVerifier:    v,
		WithdrawalVerifier: v,
	})
	app := NewApp(h, ServerConfig{APIKey: "k3y"})
	return &testServer{app: app, ledger: ledger, verifier: v}
}

func (s *testServer) signedRequest(path, body string) *http.Request {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderWebhookId, "msg_1")
	req.Header.Set(HeaderWebhookTimestamp, ts)
	req.Header.Set(HeaderWebhookSignature, s.verifier.Sign("msg_1", ts, []byte(body)))
	return req
}

func (s *testServer) do(t *testing.T, req *http.Request) (int, response) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", raw, err)
	}
	return resp.StatusCode, out
}

func TestDepositWebhook_Applied(t *testing.T) {
	s := setupServer(t)

	code, out := s.do(t, s.signedRequest("/deposit-webhook", onchainPaid))
	if code != http.StatusOK || !out.Success {
		t.Fatalf("Expected 200 success, got %d %+v", code, out)
	}
	if s.ledger.lastEvent.SourceId != "pi_1" {
		t.Errorf("Expected normalized event to reach the ledger, got %+v", s.ledger.lastEvent)
	}
	ec := models.GetEventContext(s.ledger.lastCtx)
	if ec == nil || ec.EventId != "evt_1" || ec.Endpoint != "/deposit-webhook" {
		t.Errorf("Expected event context on request, got %+v", ec)
	}
}

func TestDepositWebhook_BadSignature(t *testing.T) {
	s := setupServer(t)
	req := s.signedRequest("/deposit-webhook", onchainPaid)
	req.Header.Set(HeaderWebhookSignature, "v1,aW52YWxpZA==")

	code, out := s.do(t, req)
	if code != http.StatusUnauthorized || out.Success {
		t.Errorf("Expected 401, got %d %+v", code, out)
	}
	if s.ledger.lastCtx != nil {
		t.Error("Expected ledger not to be called")
	}
}

func gzipBody(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(body)); err != nil {
		t.Fatalf("Failed to compress body: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to compress body: %v", err)
	}
	return buf.Bytes()
}

func TestDepositWebhook_SignatureCoversEncodedBody(t *testing.T) {
	tests := []struct {
		name     string
		signOver func(raw []byte) []byte
		want     int
	}{
		{"signed as sent", func(raw []byte) []byte { return raw }, http.StatusOK},
		{"signed after decoding", func([]byte) []byte { return []byte(onchainPaid) }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupServer(t)
			raw := gzipBody(t, onchainPaid)
			ts := strconv.FormatInt(time.Now().Unix(), 10)

			req := httptest.NewRequest(http.MethodPost, "/deposit-webhook", bytes.NewReader(raw))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Content-Encoding", "gzip")
			req.Header.Set(HeaderWebhookId, "msg_1")
			req.Header.Set(HeaderWebhookTimestamp, ts)
			req.Header.Set(HeaderWebhookSignature, s.verifier.Sign("msg_1", ts, tt.signOver(raw)))

			code, out := s.do(t, req)
			if code != tt.want {
				t.Fatalf("Expected %d, got %d %+v", tt.want, code, out)
			}
			if tt.want == http.StatusOK && s.ledger.lastEvent.SourceId != "pi_1" {
				t.Errorf("Expected the decoded payload to reach the ledger, got %+v", s.ledger.lastEvent)
			}
		})
	}
}

func TestDepositWebhook_InvalidPayload(t *testing.T) {
	s := setupServer(t)

	code, _ := s.do(t, s.signedRequest("/deposit-webhook", `{"id":"evt"}`))
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}
}

func TestDepositWebhook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &api.LedgerError{Kind: api.KindValidation, Message: "bad"}, http.StatusBadRequest},
		{"duplicate", &api.LedgerError{Kind: api.KindDuplicate, Message: "already processed"}, http.StatusOK},
		{"transient", &api.LedgerError{Kind: api.KindTransient, Message: "busy"}, http.StatusInternalServerError},
		{"fatal", &api.LedgerError{Kind: api.KindFatal, Message: "pending deposit record not found"}, http.StatusInternalServerError},
		{"external", &api.LedgerError{Kind: api.KindExternal, Message: "provider down"}, http.StatusBadGateway},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupServer(t)
			s.ledger.err = tt.err

			code, out := s.do(t, s.signedRequest("/deposit-webhook", onchainPaid))
			if code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, code)
			}
			if out.Message == "" {
				t.Error("Expected an error message")
			}
		})
	}
}

func TestWithdrawWebhook(t *testing.T) {
	s := setupServer(t)
	body := `{"id":"evt_w","event_type":"payout.updated","data":{"object":{"id":"wi_1","status":"paid","currency":"USD","amount":"30"}}}`

	code, out := s.do(t, s.signedRequest("/withdraw-webhook", body))
	if code != http.StatusOK || !out.Success {
		t.Fatalf("Expected 200 success, got %d %+v", code, out)
	}
	if s.ledger.lastEvent.Kind != models.EventPaid {
		t.Errorf("Expected paid event, got %s", s.ledger.lastEvent.Kind)
	}
}

func TestHookdeckRequired(t *testing.T) {
	s := setupServer(t)
	relay := NewHookdeckVerifier("relay")
	h := NewHandler(HandlerConfig{Ledger: s.ledger, DepositVerifier: s.verifier, Hookdeck: relay})
	s.app = NewApp(h, ServerConfig{})

	req := s.signedRequest("/deposit-webhook", onchainPaid)
	if code, _ := s.do(t, req); code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without relay signature, got %d", code)
	}

	req = s.signedRequest("/deposit-webhook", onchainPaid)
	req.Header.Set(HeaderHookdeck, relay.Sign([]byte(onchainPaid)))
	if code, _ := s.do(t, req); code != http.StatusOK {
		t.Errorf("Expected 200 with relay signature, got %d", code)
	}
}

func TestV1_RequiresAPIKey(t *testing.T) {
	s := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/u1/balances", nil)
	if code, _ := s.do(t, req); code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/accounts/u1/balances", nil)
	req.Header.Set(HeaderAPIKey, "k3y")
	code, out := s.do(t, req)
	if code != http.StatusOK || !out.Success {
		t.Errorf("Expected 200 with key, got %d %+v", code, out)
	}
}

func TestV1_Disabled(t *testing.T) {
	s := setupServer(t)
	h := NewHandler(HandlerConfig{Ledger: s.ledger})
	s.app = NewApp(h, ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/u1/balances", nil)
	req.Header.Set(HeaderAPIKey, "")
	if code, _ := s.do(t, req); code != http.StatusForbidden {
		t.Errorf("Expected 403 when no key configured, got %d", code)
	}
}

func TestCreateWithdrawal(t *testing.T) {
	s := setupServer(t)
	post := func(body string) (int, response) {
		req := httptest.NewRequest(http.MethodPost, "/v1/withdrawals", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderAPIKey, "k3y")
		return s.do(t, req)
	}

	code, out := post(`{"user_id":"u1","amount":"25.5","currency":"USD","withdraw_method":"lightning","target_address":"lnbc1qdepositaddrinvoice"}`)
	if code != http.StatusCreated || !out.Success {
		t.Fatalf("Expected 201, got %d %+v", code, out)
	}
	if !s.ledger.withdrawReq.Amount.Equal(decimal.RequireFromString("25.5")) {
		t.Errorf("Expected amount 25.5 to be decoded, got %s", s.ledger.withdrawReq.Amount)
	}

	if code, _ := post(`{"user_id":"u1","amount":"5","target_address":"short"}`); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for short destination, got %d", code)
	}
	if code, _ := post(`{"user_id":"u1","amount":"5","withdraw_method":"paypal","target_address":"lnbc1qdepositaddrinvoice"}`); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown method, got %d", code)
	}

	s.ledger.err = &api.LedgerError{Kind: api.KindValidation, Message: "insufficient balance"}
	if code, out := post(`{"user_id":"u1","amount":"5","target_address":"lnbc1qdepositaddrinvoice"}`); code != http.StatusBadRequest || out.Message != "insufficient balance" {
		t.Errorf("Expected 400 insufficient balance, got %d %+v", code, out)
	}
}

func TestCreateDeposit(t *testing.T) {
	s := setupServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/deposits", bytes.NewBufferString(`{"user_id":"u1","amount":"10","currency":"USD"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, "k3y")

	code, out := s.do(t, req)
	if code != http.StatusCreated || !out.Success {
		t.Errorf("Expected 201, got %d %+v", code, out)
	}
}

func TestGetTransactions_RequiresCurrency(t *testing.T) {
	s := setupServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/u1/transactions", nil)
	req.Header.Set(HeaderAPIKey, "k3y")
	if code, _ := s.do(t, req); code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/accounts/u1/transactions?currency=USD&limit=5", nil)
	req.Header.Set(HeaderAPIKey, "k3y")
	if code, _ := s.do(t, req); code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}
}

func TestHealth(t *testing.T) {
	s := setupServer(t)
	if code, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil)); code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}

	s.ledger.healthErr = errors.New("db down")
	if code, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil)); code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", code)
	}
}
