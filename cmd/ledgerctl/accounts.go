package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"speed-ledger-go/internal/common"
	"speed-ledger-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func createAccountCmd() *cobra.Command {
	var currencies []string

	cmd := &cobra.Command{
		Use:   "create-account [user-id]",
		Short: "Create zero balances for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(false, func(ctx context.Context, services *common.Services) error {
				for _, currency := range currencies {
					bal, err := services.Ledger.CreateInitialBalance(ctx, args[0], strings.ToUpper(currency))
					if err != nil {
						return fmt.Errorf("create %s balance: %w", currency, err)
					}
					fmt.Printf("%s %s balance ready (available %s)\n", bal.UserId, bal.Currency, bal.AvailableBalance.StringFixed(2))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&currencies, "currency", "c", []string{"USD"}, "Balance currencies to create")
	return cmd
}

func balancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balances [user-id]",
		Short: "Show a user's balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(false, func(ctx context.Context, services *common.Services) error {
				balances, err := services.Ledger.ListBalances(ctx, args[0])
				if err != nil {
					return err
				}
				common.PrintBalances(args[0], balances)
				return nil
			})
		},
	}
}

func historyCmd() *cobra.Command {
	var (
		currency string
		limit    int
		offset   int
	)

	cmd := &cobra.Command{
		Use:   "history [user-id]",
		Short: "Show a user's ledger entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(false, func(ctx context.Context, services *common.Services) error {
				records, err := services.Ledger.GetTransactionHistory(ctx, args[0], strings.ToUpper(currency), limit, offset)
				if err != nil {
					return err
				}
				common.PrintTransactions(records)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&currency, "currency", "c", "USD", "Balance currency")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries")
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	return cmd
}

func adjustCmd() *cobra.Command {
	var (
		currency string
		amount   string
		txType   string
		code     string
		sourceId string
	)

	cmd := &cobra.Command{
		Use:   "adjust [user-id]",
		Short: "Credit or debit a balance outside the payment flows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}
			if sourceId == "" {
				sourceId = "manual-" + uuid.NewString()
			}

			return withServices(false, func(ctx context.Context, services *common.Services) error {
				result, err := services.Ledger.ApplyAdjustment(ctx, models.AdjustmentRequest{
					UserId:   args[0],
					Currency: strings.ToUpper(currency),
					Amount:   value,
					Type:     models.TransactionType(txType),
					Code:     models.TransactionCode(code),
					SourceId: sourceId,
				})
				if err != nil {
					return err
				}
				common.PrintResult(result)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&currency, "currency", "c", "USD", "Balance currency")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Amount, positive")
	cmd.Flags().StringVarP(&txType, "type", "t", string(models.TransactionCredited), "credited or debited")
	cmd.Flags().StringVar(&code, "code", string(models.CodeDebit), "Transaction code (win, bet, debit, freebet, ...)")
	cmd.Flags().StringVar(&sourceId, "source-id", "", "Idempotency key (generated when empty)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func staleCmd() *cobra.Command {
	var (
		age   time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List deposits and withdrawals stuck in pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(false, func(ctx context.Context, services *common.Services) error {
				deposits, withdrawals, err := services.Ledger.ListStalePending(ctx, age, limit)
				if err != nil {
					return err
				}

				common.PrintHeader(fmt.Sprintf("Pending for more than %s", age), common.DefaultWidth)
				for i, d := range deposits {
					fmt.Printf("%sdeposit    %s user %s %s %s since %s\n",
						common.BoxPrefix(i == len(deposits)-1 && len(withdrawals) == 0),
						d.Id, d.UserId, d.Amount.StringFixed(2), d.DepositMethod, d.UpdatedAt.Format(time.RFC3339))
				}
				for i, w := range withdrawals {
					fmt.Printf("%swithdrawal %s user %s %s %s since %s\n",
						common.BoxPrefix(i == len(withdrawals)-1),
						w.SourceId, w.UserId, w.Amount.StringFixed(2), w.Currency, w.CreatedAt.Format(time.RFC3339))
				}
				common.PrintFooter(fmt.Sprintf("%d deposits, %d withdrawals", len(deposits), len(withdrawals)), common.DefaultWidth)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&age, "age", 6*time.Hour, "Minimum time in pending")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum records of each kind")
	return cmd
}
