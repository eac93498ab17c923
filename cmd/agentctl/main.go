// Command agentctl is an operator CLI fronting controlplaned's REST
// surface: snapshot reads and directive delivery against a single device,
// authorized by a bearer token against the server's access-control policy.
//
// Usage:
//
//	agentctl --server https://control.example.com --token $TOKEN snapshot router-1234
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	authToken string
	jsonOut   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "agentctl",
	Short:         "Operator CLI for the Router Agent control plane",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `agentctl reads device snapshots and delivers directives through
controlplaned's REST surface.

  agentctl snapshot router-1234
  agentctl config-push router-1234 --section wifi --file wifi.json
  agentctl exec router-1234 --command "ping" --args "-c,3,8.8.8.8"
  agentctl reboot router-1234 --delay 30
  agentctl upgrade router-1234 --target v2.4.0
  agentctl mode router-1234 --section firewall --mode takeover`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if serverURL == "" {
			return fmt.Errorf("--server is required")
		}
		if authToken == "" {
			return fmt.Errorf("--token is required")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", os.Getenv("AGENTCTL_SERVER"), "controlplaned base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("AGENTCTL_TOKEN"), "operator bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print raw JSON responses")

	rootCmd.AddCommand(
		newSnapshotCmd(),
		newConfigPushCmd(),
		newConfigFullCmd(),
		newExecCmd(),
		newRebootCmd(),
		newUpgradeCmd(),
		newModeCmd(),
	)
}

