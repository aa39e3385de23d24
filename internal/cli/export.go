package cli

import (
	"github.com/spf13/cobra"

	"portfolio-alerts/internal/app"
)

var (
	exportPNGPath   string
	exportCSVPath   string
	exportFromState bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the portfolio profit/loss snapshot as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			FromState: exportFromState,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().BoolVar(&exportFromState, "from-state", false, "Use persisted last prices instead of live quotes")
}
