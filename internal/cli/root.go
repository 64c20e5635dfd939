package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var (
	configFlag string
	urlFlag    string
)

// rootCmd is the base tilewatch command.
var rootCmd = &cobra.Command{
	Use:   "tilewatch",
	Short: "Operator console for a self-healing tile-board controller",
	Long: `tilewatch keeps a live local mirror of a remote tile-board controller:
per-tile status, telemetry history, and in-flight command lifecycles,
synchronized over a websocket connection that survives disconnects.

Start with 'tilewatch sim' in one terminal and 'tilewatch watch' in another
to see the dashboard against the embedded simulator.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&urlFlag, "url", "", "controller websocket URL (overrides config)")
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
