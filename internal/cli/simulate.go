package cli

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"portfolio-alerts/internal/app"
)

var (
	simulateSymbol string
	simulateLast   string
	simulatePrice  string
	simulateDryRun bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Evaluate a synthetic price move and send the resulting alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol must be provided")
		}

		last, err := decimal.NewFromString(simulateLast)
		if err != nil {
			return fmt.Errorf("invalid --last value: %w", err)
		}
		price, err := decimal.NewFromString(simulatePrice)
		if err != nil {
			return fmt.Errorf("invalid --price value: %w", err)
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Symbol: simulateSymbol,
			Last:   last,
			Price:  price,
			DryRun: simulateDryRun,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Portfolio symbol")
	simulateCmd.Flags().StringVar(&simulateLast, "last", "", "Previous observed price")
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "Current price")
	simulateCmd.Flags().BoolVar(&simulateDryRun, "dry-run", false, "Log the message instead of sending it")
}
