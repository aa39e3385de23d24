package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	serveInterval time.Duration
	serveDryRun   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run passes on a fixed interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveInterval <= 0 {
			return fmt.Errorf("--interval must be greater than zero")
		}
		return getApp().Serve(cmd.Context(), serveInterval, serveDryRun)
	},
}

func init() {
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 15*time.Minute, "Time between passes")
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "Log messages instead of sending them and leave state untouched")
}
