// Package cli implements the mulltray commands.
package cli

import (
	"github.com/spf13/cobra"
)

// Persistent flags shared by every command.
var (
	flagSocket      string
	flagLogLevel    string
	flagMetricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "mulltray",
	Short: "Tray status and control for the Mullvad VPN daemon",
	Long: `mulltray shows the Mullvad VPN tunnel state in the system tray and lets
you connect or disconnect. It talks to the daemon over its local socket and
follows it across restarts.

Run without a subcommand to start the tray.`,
	SilenceUsage: true,
	RunE:         runTray,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagSocket, "socket", "", "daemon socket path (overrides $MULLTRAY_SOCKET and settings)")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&flagMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	// Add subcommands (alphabetical)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(watchCmd)
}
