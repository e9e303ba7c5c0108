package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/nexusdash/nexus/internal/api/client"
	"github.com/spf13/cobra"
)

func NewChannelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "channel",
		Short:   "Notification channel commands",
		Aliases: []string{"channels", "ch"},
	}

	cmd.AddCommand(newChannelListCommand())
	cmd.AddCommand(newChannelTestCommand())
	cmd.AddCommand(newChannelVerifyCommand())
	cmd.AddCommand(newChannelResetCommand())

	return cmd
}

func newChannelListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List notification channels",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			channels, err := c.ListChannels()
			if err != nil {
				return fmt.Errorf("failed to list channels: %v", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tACTIVE\tVERIFIED\tFAILURES\tLAST USED")
			for _, ch := range channels {
				lastUsed := "never"
				if ch.LastUsed != nil {
					lastUsed = ch.LastUsed.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\t%d\t%s\n",
					ch.ID,
					ch.Name,
					ch.Type,
					ch.IsActive,
					ch.IsVerified,
					ch.FailureCount,
					lastUsed,
				)
			}
			return w.Flush()
		},
	}
}

func newChannelTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test [channel_id]",
		Short: "Send a test notification through a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			result, err := c.TestChannel(args[0])
			if err != nil {
				return fmt.Errorf("failed to test channel: %v", err)
			}
			return printDelivery(result)
		},
	}
}

func newChannelVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [channel_id]",
		Short: "Verify a channel with a test notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			result, err := c.VerifyChannel(args[0])
			if err != nil {
				return fmt.Errorf("failed to verify channel: %v", err)
			}
			return printDelivery(result)
		},
	}
}

func newChannelResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [channel_id]",
		Short: "Clear a channel's failure count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			if err := c.ResetChannel(args[0]); err != nil {
				return fmt.Errorf("failed to reset channel: %v", err)
			}
			fmt.Printf("Channel %s reset\n", args[0])
			return nil
		},
	}
}

func printDelivery(r *client.DeliveryResult) error {
	if r.Success {
		fmt.Printf("Delivered (status %d): %s\n", r.StatusCode, r.Response)
		return nil
	}
	return fmt.Errorf("delivery failed (status %d, retryable=%t): %s", r.StatusCode, r.ShouldRetry, r.Error)
}
