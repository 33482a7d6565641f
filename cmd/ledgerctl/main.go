package main

import (
	"context"
	"fmt"
	"os"

	"speed-ledger-go/internal/common"
	"speed-ledger-go/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tool for the payment ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(initDBCmd())
	rootCmd.AddCommand(createAccountCmd())
	rootCmd.AddCommand(balancesCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(adjustCmd())
	rootCmd.AddCommand(depositCmd())
	rootCmd.AddCommand(withdrawCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(staleCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withServices loads configuration, opens the ledger and runs fn. The
// provider client is only created when withProvider is set.
func withServices(withProvider bool, fn func(ctx context.Context, services *common.Services) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	var services *common.Services
	if withProvider {
		services, err = common.InitializeServices(ctx, cfg)
	} else {
		services, err = common.InitializeLedgerOnly(ctx, cfg)
	}
	if err != nil {
		zap.L().Error("Failed to initialize services", zap.Error(err))
		return err
	}
	defer services.Close()

	return fn(ctx, services)
}

func initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the ledger schema if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(false, func(ctx context.Context, services *common.Services) error {
				if err := services.DbService.Ping(ctx); err != nil {
					return err
				}
				fmt.Println("Database schema is up to date")
				return nil
			})
		},
	}
}
