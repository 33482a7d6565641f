package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"speed-ledger-go/internal/common"
	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/webhook"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func depositCmd() *cobra.Command {
	var (
		userId   string
		amount   string
		currency string
		target   string
		methods  []string
	)

	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Create a deposit intent with the payment provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}

			return withServices(true, func(ctx context.Context, services *common.Services) error {
				intent, err := services.Ledger.CreateDepositIntent(ctx, models.DepositIntentRequest{
					UserId:         userId,
					Amount:         value,
					Currency:       strings.ToUpper(currency),
					TargetCurrency: strings.ToUpper(target),
					Methods:        methods,
				})
				if err != nil {
					return err
				}
				return printJSON(intent)
			})
		},
	}

	cmd.Flags().StringVarP(&userId, "user", "u", "", "User id")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Amount in the balance currency")
	cmd.Flags().StringVarP(&currency, "currency", "c", "", "Balance currency (default from config)")
	cmd.Flags().StringVar(&target, "target", "", "Settlement currency (SATS, USDT, USDC)")
	cmd.Flags().StringSliceVarP(&methods, "method", "m", nil, "Payment rails to offer")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func withdrawCmd() *cobra.Command {
	var (
		userId      string
		amount      string
		currency    string
		target      string
		method      string
		destination string
	)

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Request a payout through the payment provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}

			return withServices(true, func(ctx context.Context, services *common.Services) error {
				w, err := services.Ledger.RequestWithdrawal(ctx, models.WithdrawalRequest{
					UserId:         userId,
					Amount:         value,
					Currency:       strings.ToUpper(currency),
					TargetCurrency: strings.ToUpper(target),
					Method:         method,
					Destination:    destination,
				})
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}

	cmd.Flags().StringVarP(&userId, "user", "u", "", "User id")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Amount in the balance currency")
	cmd.Flags().StringVarP(&currency, "currency", "c", "", "Balance currency (default from config)")
	cmd.Flags().StringVar(&target, "target", "", "Payout currency (SATS, USDT, USDC)")
	cmd.Flags().StringVarP(&method, "method", "m", "", "Payout rail (default lightning)")
	cmd.Flags().StringVarP(&destination, "to", "d", "", "Invoice or address to pay")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// replayCmd feeds a stored webhook body through the same reconciliation
// the HTTP handlers use. Redelivering an applied event is a no-op.
func replayCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "replay [webhook.json]",
		Short: "Reconcile a saved deposit or withdrawal webhook body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("unable to read %s: %w", args[0], err)
			}

			return withServices(false, func(ctx context.Context, services *common.Services) error {
				var (
					ev     models.PaymentEvent
					result *models.ReconcileResult
				)
				switch kind {
				case "deposit":
					if ev, err = webhook.NormalizeDeposit(body, services.Rails); err != nil {
						return err
					}
					result, err = services.Ledger.ReconcileDeposit(ctx, ev)
				case "withdrawal":
					if ev, err = webhook.NormalizeWithdrawal(body); err != nil {
						return err
					}
					result, err = services.Ledger.ReconcileWithdrawal(ctx, ev)
				default:
					return fmt.Errorf("unknown webhook kind %q, expected deposit or withdrawal", kind)
				}
				if err != nil {
					return err
				}
				common.PrintResult(result)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "deposit", "deposit or withdrawal")
	return cmd
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
