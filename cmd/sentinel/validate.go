package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/limits/policy"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the resolved policies",
	Long: `Load the configuration file with defaults and environment overrides
applied, validate it, and print the admission policies that would be enforced.

Every invalid field is reported, not only the first one.

Examples:
  # Validate a file
  sentinel validate --config config.yaml

  # Policy table as CSV
  sentinel validate --config config.yaml --format csv`,
	Args: cobra.NoArgs,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json, csv")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	table, err := policyTable(cfg)
	if err != nil {
		return cli.NewConfigLoadError(err)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatText {
		fmt.Fprintln(out, "✓ Configuration valid")
		fmt.Fprintf(out, "Protected prefix: %s\n", cfg.Admission.ProtectedPrefix)
		fmt.Fprintf(out, "Counter store: %s\n", cfg.Storage.Backend)
		if verbose {
			fmt.Fprintf(out, "Exempt paths: %v\n", cfg.Admission.ExemptPaths)
			fmt.Fprintf(out, "Whitelist: %v %v\n", cfg.Admission.WhitelistAddresses, cfg.Admission.WhitelistNetworks)
		}
		fmt.Fprintln(out)
	}

	return cli.NewFormatter(format).FormatTo(out, table)
}

// policyTable lists every window of every policy the registry would hold.
func policyTable(cfg *config.Config) (*cli.Table, error) {
	registry, err := policy.NewRegistry(cfg.Admission.RegistryConfig())
	if err != nil {
		return nil, err
	}

	table := &cli.Table{Headers: []string{"POLICY", "WINDOW", "DURATION", "LIMIT"}}
	for _, p := range registry.Policies() {
		for _, w := range p.Windows {
			table.AddRow(p.ID, w.Name, formatDuration(w.Duration), w.MaxRequests)
		}
	}
	return table, nil
}

func formatDuration(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return d.String()
}
