package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel - rate limiting admission gateway",
	Long: `Sentinel is a rate limiting admission gateway.

It enforces per-client quotas across several rolling time windows in front
of an upstream HTTP service:
  - Sliding-log counters in memory, Redis or SQLite
  - Path policies matched by longest prefix, with per-tier overrides
  - Operator whitelist by address or network
  - Admin API to inspect and reset client counters
  - Fails open when the counter store is unavailable`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (built-in defaults when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
