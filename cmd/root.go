// Package cmd defines and implements the CLI commands for vintedwatch.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vintedwatch",
		Short: "Watches Vinted searches and reports new listings to Telegram",
		Long: `vintedwatch polls the Vinted catalog for a set of saved searches,
filters the results, and sends every not-yet-seen listing to the search's
Telegram chat. Searches, credentials, and intervals come from the config
file; see the watch command to start monitoring.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "vintedwatch.yaml", "path to the config file")
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
