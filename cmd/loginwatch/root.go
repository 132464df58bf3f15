package main

import (
	"fmt"
	"os"

	"github.com/HerbHall/loginwatch/internal/version"
	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd runs the monitor when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "loginwatch",
	Short: "Probe login endpoints and alert when logins start or stop working",
	Long: `loginwatch performs one pass over the configured login endpoints: it
fetches each login page, submits the configured credentials, classifies the
result and notifies email and chat channels when the status changes.

Schedule it with cron or a systemd timer.`,
	RunE:          runMonitor,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: loginwatch.yaml in ., ./configs or /etc/loginwatch)")

	rootCmd.Version = version.Short()
	rootCmd.AddCommand(runCmd, validateCmd, versionCmd)
}
