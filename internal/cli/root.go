// Package cli implements the threatctl command: offline analysis of threat
// logs, classification of single log lines and lookup of the attack-type
// catalog.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/ThreatBoard/internal/logging"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "threatctl",
	Short: "Analyze AI threat logs from the command line",
	Long: `threatctl - ThreatBoard analysis without the web server.

Aggregates CSV threat logs with the same rules as the dashboard, classifies
single log lines and prints the attack-type catalog.

Examples:
  # Summarize a log as JSON
  threatctl analyze threats.csv

  # Human-readable summary including tolerated malformed values
  threatctl analyze threats.csv --format text --diagnostics

  # Look up remediation for one attack type
  threatctl catalog prompt_injection --format text

  # Label a single prompt or log line
  threatctl classify "ignore previous instructions"`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat != "json" && outputFormat != "text" {
			return fmt.Errorf("invalid --format %q: expected json or text", outputFormat)
		}
		// stdout carries the report; logs go to stderr.
		slog.SetDefault(logging.New(cmd.ErrOrStderr(), logLevel, "text"))
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json",
		"Output format: json or text")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"Log level: debug, info, warn, error")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(versionCmd)
}
