package cli

import (
	"github.com/spf13/cobra"

	"portfolio-alerts/internal/app"
)

var (
	runMode   string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pass and exit",
	Long: `Run one pass and exit.

--mode selects the pass: briefing (or morning), news (or sweep), market (or price, index)
and all (or combined). Without a known mode the configured scheduler windows decide,
falling back to the news sweep.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), app.RunOptions{Mode: runMode, DryRun: runDryRun})
	},
}

var briefingCmd = &cobra.Command{
	Use:   "briefing",
	Short: "Send the portfolio briefing now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), app.RunOptions{Mode: "briefing", DryRun: runDryRun})
	},
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "", "Pass to run: briefing, news, market or all")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Log messages instead of sending them and leave state untouched")
	briefingCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Log the briefing instead of sending it")
}
