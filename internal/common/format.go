package common

import (
	"fmt"
	"strings"

	"speed-ledger-go/internal/models"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a title between two "=" rules
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix returns the prefix for detail lines under list items
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

func PrintBalances(userId string, balances []models.Balance) {
	PrintHeader("Balances for "+userId, DefaultWidth)
	if len(balances) == 0 {
		fmt.Println("No balances")
		return
	}
	for i, b := range balances {
		last := i == len(balances)-1
		fmt.Printf("%s%-6s available %s\n", BoxPrefix(last), b.Currency, b.AvailableBalance.StringFixed(2))
		fmt.Printf("%s       withdrawable %s (version %d)\n", BoxDetailPrefix(last), b.WithdrawableBalance.StringFixed(2), b.Version)
	}
}

func PrintTransactions(records []models.TransactionRecord) {
	PrintHeader(fmt.Sprintf("%d transactions", len(records)), WideWidth)
	for i, r := range records {
		last := i == len(records)-1
		sign := "+"
		if r.Type == string(models.TransactionDebited) {
			sign = "-"
		}
		fmt.Printf("%s%s  %s%s %s  %-12s closing %s\n",
			BoxPrefix(last),
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			sign, r.Amount.StringFixed(2), r.Currency, r.Code, r.ClosingBalance.StringFixed(2))
		fmt.Printf("%ssource %s\n", BoxDetailPrefix(last), r.SourceId)
	}
}

// PrintResult summarizes a reconciliation for operator commands.
func PrintResult(result *models.ReconcileResult) {
	fmt.Printf("Outcome:     %s\n", result.Outcome)
	fmt.Printf("Source:      %s\n", result.SourceId)
	if result.UserId != "" {
		fmt.Printf("User:        %s\n", result.UserId)
	}
	if !result.NewBalance.IsZero() {
		fmt.Printf("New balance: %s %s\n", result.NewBalance.StringFixed(2), result.Currency)
	}
	fmt.Printf("Attempts:    %d\n", result.Attempts)
}
