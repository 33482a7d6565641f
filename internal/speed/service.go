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

package speed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"speed-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const DefaultAPIVersion = "2022-10-15"

// insufficientFundsMessage is shown instead of the provider's own wording,
// which refers to the merchant account rather than the user's balance.
const insufficientFundsMessage = "Withdrawals are temporarily unavailable, please try again later"

// APIError preserves the provider's structured error detail.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("speed api error (status %d, %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("speed api error (status %d): %s", e.StatusCode, e.Message)
}

// UserMessage is safe to return to API callers.
func (e *APIError) UserMessage() string {
	if strings.Contains(strings.ToLower(e.Message), "insufficient funds") {
		return insufficientFundsMessage
	}
	return "payment provider rejected the request"
}

// IsInsufficientFunds reports whether the merchant account cannot fund a payout.
func IsInsufficientFunds(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "insufficient funds")
}

type CreatePaymentParams struct {
	Amount         decimal.Decimal
	Currency       string
	TargetCurrency string
	PaymentMethods []string
	Metadata       map[string]string
}

// PaymentMethodOption is one rail's payment instructions.
type PaymentMethodOption struct {
	Id             string `json:"id,omitempty"`
	Address        string `json:"address,omitempty"`
	PaymentRequest string `json:"payment_request,omitempty"`
}

// Field returns the named field of the option ("address" or "payment_request").
func (o PaymentMethodOption) Field(name string) string {
	if name == "payment_request" {
		return o.PaymentRequest
	}
	return o.Address
}

type Payment struct {
	Id                   string                         `json:"id"`
	Status               string                         `json:"status"`
	Currency             string                         `json:"currency"`
	Amount               decimal.Decimal                `json:"amount"`
	ExchangeRate         decimal.Decimal                `json:"exchange_rate"`
	TargetCurrency       string                         `json:"target_currency"`
	TargetAmount         decimal.Decimal                `json:"target_amount"`
	PaymentMethodOptions map[string]PaymentMethodOption `json:"payment_method_options"`
}

type CreateWithdrawalParams struct {
	Amount          decimal.Decimal
	Currency        string
	TargetCurrency  string
	WithdrawMethod  string
	WithdrawRequest string
}

type Withdrawal struct {
	Id             string          `json:"id"`
	Status         string          `json:"status"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	TargetCurrency string          `json:"target_currency"`
	TargetAmount   decimal.Decimal `json:"target_amount"`
}

type Service struct {
	client        http.Client
	depositURL    string
	withdrawalURL string
	authHeader    string
	apiVersion    string
}

func NewService(cfg models.SpeedConfig) (*Service, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("missing required Speed API credentials: SPEED_SECRET_KEY")
	}
	if cfg.DepositURL == "" || cfg.WithdrawalURL == "" {
		return nil, fmt.Errorf("missing required Speed API endpoints: SPEED_DEPOSIT_URL, SPEED_WITHDRAWAL_URL")
	}

	httpClient, err := createCustomHttpClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return newService(httpClient, cfg), nil
}

func newService(httpClient http.Client, cfg models.SpeedConfig) *Service {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return &Service{
		client:        httpClient,
		depositURL:    cfg.DepositURL,
		withdrawalURL: cfg.WithdrawalURL,
		authHeader:    "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey+":")),
		apiVersion:    apiVersion,
	}
}

func createCustomHttpClient(timeout time.Duration) (http.Client, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// CreatePayment issues a deposit intent. The returned payment id comes
// back as the source id of the deposit webhooks.
func (s *Service) CreatePayment(ctx context.Context, params CreatePaymentParams) (*Payment, error) {
	body := map[string]interface{}{
		"amount":          json.Number(params.Amount.String()),
		"currency":        strings.ToUpper(params.Currency),
		"target_currency": strings.ToUpper(params.TargetCurrency),
		"payment_methods": params.PaymentMethods,
		"metadata":        params.Metadata,
	}

	var payment Payment
	if err := s.post(ctx, s.depositURL, body, &payment); err != nil {
		return nil, fmt.Errorf("deposit api call failed: %w", err)
	}

	zap.L().Info("Payment created",
		zap.String("payment_id", payment.Id),
		zap.String("target_currency", payment.TargetCurrency),
		zap.String("target_amount", payment.TargetAmount.String()))
	return &payment, nil
}

// CreateWithdrawal asks the provider to pay out to WithdrawRequest.
func (s *Service) CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (*Withdrawal, error) {
	body := map[string]interface{}{
		"amount":           json.Number(params.Amount.String()),
		"currency":         strings.ToUpper(params.Currency),
		"target_currency":  strings.ToUpper(params.TargetCurrency),
		"withdraw_method":  params.WithdrawMethod,
		"withdraw_request": params.WithdrawRequest,
	}

	var withdrawal Withdrawal
	if err := s.post(ctx, s.withdrawalURL, body, &withdrawal); err != nil {
		return nil, fmt.Errorf("withdrawal api call failed: %w", err)
	}

	zap.L().Info("Withdrawal created",
		zap.String("withdrawal_id", withdrawal.Id),
		zap.String("status", withdrawal.Status))
	return &withdrawal, nil
}

func (s *Service) post(ctx context.Context, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.authHeader)
	req.Header.Set("speed-version", s.apiVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseAPIError(status int, data []byte) *APIError {
	var envelope struct {
		Errors []struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"errors"`
	}

	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Errors) > 0 {
		apiErr.Type = envelope.Errors[0].Type
		apiErr.Message = envelope.Errors[0].Message
	}
	return apiErr
}
