package main

import (
	"fmt"
	"os"

	"github.com/nexusdash/nexus/internal/cli/commands"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nexusctl",
	Short: "Nexus CLI - manage alerts, rules and notification channels",
	Long: `nexusctl talks to a running Nexus server over its REST API.
Set NEXUS_API_URL and NEXUS_API_TOKEN before use.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(commands.NewAlertCommand())
	rootCmd.AddCommand(commands.NewRuleCommand())
	rootCmd.AddCommand(commands.NewChannelCommand())
	rootCmd.AddCommand(commands.NewJobCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
