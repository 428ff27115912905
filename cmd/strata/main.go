// Command strata runs and administers a strata content repository.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	identity   string
)

var rootCmd = &cobra.Command{
	Use:           "strata",
	Short:         "Headless content repository engine",
	Long:          "strata stores schema-validated, versioned entities with a draft/published lifecycle and serves them over HTTP.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: search $STRATA_CONFIG, ./strata.yaml, ~/.config/strata, /etc/strata)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	rootCmd.PersistentFlags().StringVar(&identity, "as", "admin", "Identifier of the cli principal running the command")

	rootCmd.AddCommand(serveCmd, schemaCmd, importCmd, exportCmd, reconcileCmd, lockCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
