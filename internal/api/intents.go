package api

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/speed"
	"speed-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateDepositIntent asks the provider for a payment the user can pay on
// one or more rails. The row that a later webhook resolves against is
// written in the same transaction as the provider call.
func (s *LedgerService) CreateDepositIntent(ctx context.Context, req models.DepositIntentRequest) (*models.DepositIntent, error) {
	rails, err := s.validateIntentRequest(&req)
	if err != nil {
		s.metrics.DepositIntent(string(KindValidation))
		return nil, err
	}

	if _, err := s.db.GetBalance(ctx, req.UserId, req.Currency); err != nil {
		s.metrics.DepositIntent(string(KindValidation))
		if errors.Is(err, store.ErrBalanceNotFound) {
			return nil, validationError("no %s balance for user %s", req.Currency, req.UserId)
		}
		return nil, classify(err)
	}

	methods := make([]string, 0, len(rails))
	for _, rail := range rails {
		methods = append(methods, s.rails[rail].OptionKey)
	}

	var intent *models.DepositIntent
	err = s.db.WithTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		var err error
		if s.cfg.DepositMode == models.ModeDirect {
			intent, err = s.createDirectIntent(ctx, tx, req, rails, methods)
		} else {
			intent, err = s.createAddressIntent(ctx, tx, req, rails, methods)
		}
		return err
	})
	if err != nil {
		ledgerErr := classify(err)
		zap.L().Warn("Deposit intent failed",
			zap.String("user_id", req.UserId),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		s.metrics.DepositIntent(string(ledgerErr.Kind))
		return nil, ledgerErr
	}

	s.metrics.DepositIntent("created")
	zap.L().Info("Deposit intent created",
		zap.String("user_id", req.UserId),
		zap.String("payment_id", intent.PaymentId),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", req.Currency),
		zap.Int("rails", len(intent.Addresses)))
	return intent, nil
}

func (s *LedgerService) validateIntentRequest(req *models.DepositIntentRequest) ([]models.Rail, error) {
	if req.UserId == "" {
		return nil, validationError("user id is required")
	}
	if !req.Amount.IsPositive() {
		return nil, validationError("amount must be positive")
	}
	if req.Currency == "" {
		req.Currency = s.cfg.DefaultCurrency
	}
	if req.TargetCurrency == "" {
		req.TargetCurrency = s.cfg.DefaultTarget
	}

	var rails []models.Rail
	if len(req.Methods) == 0 {
		if s.cfg.DepositMode == models.ModeDirect {
			rails = []models.Rail{models.RailLightning}
		} else {
			for rail := range s.rails {
				rails = append(rails, rail)
			}
			sort.Slice(rails, func(i, j int) bool { return rails[i] < rails[j] })
		}
		return rails, nil
	}

	for _, m := range req.Methods {
		rail, err := models.ParseRail(m)
		if err != nil {
			return nil, validationError("%v", err)
		}
		if !s.rails.Supports(rail) {
			return nil, validationError("payment method %q is not enabled", rail)
		}
		rails = append(rails, rail)
	}
	if s.cfg.DepositMode == models.ModeDirect && len(rails) != 1 {
		return nil, validationError("direct deposits take exactly one payment method")
	}
	return rails, nil
}

func (s *LedgerService) createAddressIntent(ctx context.Context, tx store.LedgerTx, req models.DepositIntentRequest, rails []models.Rail, methods []string) (*models.DepositIntent, error) {
	addr := &models.DepositAddress{
		Id:              uuid.New().String(),
		UserId:          req.UserId,
		RequestedAmount: req.Amount,
		Currency:        req.Currency,
		TargetCurrency:  req.TargetCurrency,
	}
	if err := tx.InsertDepositAddress(ctx, addr); err != nil {
		return nil, err
	}

	payment, err := s.provider.CreatePayment(ctx, speed.CreatePaymentParams{
		Amount:         req.Amount,
		Currency:       req.Currency,
		TargetCurrency: req.TargetCurrency,
		PaymentMethods: methods,
		Metadata: map[string]string{
			"userId":           req.UserId,
			"depositAddressId": addr.Id,
			"type":             "deposit",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	addresses := s.railAddresses(payment, rails)
	if len(addresses) == 0 {
		return nil, fmt.Errorf("payment %s returned no payment method options", payment.Id)
	}
	addr.PaymentId = &payment.Id
	for rail, address := range addresses {
		addr.SetAddress(rail, address)
	}
	if err := tx.UpdateDepositAddress(ctx, addr); err != nil {
		return nil, err
	}

	return &models.DepositIntent{
		PaymentId:      payment.Id,
		AddressId:      addr.Id,
		TargetAmount:   payment.TargetAmount,
		TargetCurrency: req.TargetCurrency,
		Addresses:      addresses,
	}, nil
}

func (s *LedgerService) createDirectIntent(ctx context.Context, tx store.LedgerTx, req models.DepositIntentRequest, rails []models.Rail, methods []string) (*models.DepositIntent, error) {
	deposit := &models.Deposit{
		Id:              uuid.New().String(),
		UserId:          req.UserId,
		RequestedAmount: req.Amount,
		Currency:        req.Currency,
		TargetCurrency:  req.TargetCurrency,
		Status:          models.DepositUnpaid,
		DepositMethod:   rails[0],
	}
	if err := tx.InsertDeposit(ctx, deposit); err != nil {
		return nil, err
	}

	payment, err := s.provider.CreatePayment(ctx, speed.CreatePaymentParams{
		Amount:         req.Amount,
		Currency:       req.Currency,
		TargetCurrency: req.TargetCurrency,
		PaymentMethods: methods,
		Metadata: map[string]string{
			"userId":    req.UserId,
			"depositId": deposit.Id,
			"type":      "deposit",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	addresses := s.railAddresses(payment, rails)
	deposit.SourceId = &payment.Id
	deposit.TargetAmount = payment.TargetAmount
	deposit.DepositRequest = addresses[rails[0]]
	if err := tx.TransitionDeposit(ctx, deposit, models.DepositUnpaid); err != nil {
		return nil, err
	}

	return &models.DepositIntent{
		PaymentId:      payment.Id,
		DepositId:      deposit.Id,
		TargetAmount:   payment.TargetAmount,
		TargetCurrency: req.TargetCurrency,
		Addresses:      addresses,
	}, nil
}

// railAddresses picks each requested rail's address out of the
// provider's payment_method_options.
func (s *LedgerService) railAddresses(payment *speed.Payment, rails []models.Rail) map[models.Rail]string {
	addresses := make(map[models.Rail]string, len(rails))
	for _, rail := range rails {
		rc := s.rails[rail]
		option, ok := payment.PaymentMethodOptions[rc.OptionKey]
		if !ok {
			continue
		}
		if address := option.Field(rc.AddressField); address != "" {
			addresses[rail] = address
		}
	}
	return addresses
}
