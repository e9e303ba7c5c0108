package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/nexusdash/nexus/internal/api/client"
	"github.com/spf13/cobra"
)

func NewAlertCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alert",
		Short:   "Alert management commands",
		Aliases: []string{"alerts", "a"},
	}

	cmd.AddCommand(newAlertListCommand())
	cmd.AddCommand(newAlertReadCommand())
	cmd.AddCommand(newAlertResolveCommand())
	cmd.AddCommand(newAlertDeliveriesCommand())
	cmd.AddCommand(newDeliveryRetryCommand())

	return cmd
}

func newAlertListCommand() *cobra.Command {
	var q client.AlertQuery

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List alerts",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			alerts, err := c.ListAlerts(q)
			if err != nil {
				return fmt.Errorf("failed to list alerts: %v", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSEVERITY\tTITLE\tREAD\tRESOLVED\tCREATED")
			for _, a := range alerts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\t%s\n",
					a.ID,
					a.Type,
					a.Severity,
					a.Title,
					a.IsRead,
					a.IsResolved,
					a.CreatedAt.Format(time.RFC3339),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&q.UnreadOnly, "unread", false, "Only show unread alerts")
	cmd.Flags().BoolVar(&q.UnresolvedOnly, "unresolved", false, "Only show unresolved alerts")
	cmd.Flags().StringVar(&q.Type, "type", "", "Filter by alert type")
	cmd.Flags().StringVar(&q.Severity, "severity", "", "Filter by severity (low/medium/high/critical)")
	cmd.Flags().StringVar(&q.ProviderID, "provider", "", "Filter by provider id")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Limit the number of alerts")

	return cmd
}

func newAlertReadCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "read [alert_id]",
		Short: "Mark an alert, or every alert, as read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("an alert id or --all is required")
			}
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			if all {
				n, err := c.MarkAllRead()
				if err != nil {
					return fmt.Errorf("failed to mark alerts as read: %v", err)
				}
				fmt.Printf("%d alert(s) marked as read\n", n)
				return nil
			}

			if err := c.MarkAlertRead(args[0]); err != nil {
				return fmt.Errorf("failed to mark alert as read: %v", err)
			}
			fmt.Printf("Alert %s marked as read\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Mark every alert as read")
	return cmd
}

func newAlertResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [alert_id]",
		Short: "Resolve an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			if err := c.ResolveAlert(args[0]); err != nil {
				return fmt.Errorf("failed to resolve alert: %v", err)
			}

			fmt.Printf("Alert %s resolved\n", args[0])
			return nil
		},
	}
}

func newAlertDeliveriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deliveries [alert_id]",
		Short: "Show notification deliveries for an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			deliveries, err := c.AlertDeliveries(args[0])
			if err != nil {
				return fmt.Errorf("failed to list deliveries: %v", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tCHANNEL\tSTATUS\tATTEMPT\tNEXT RETRY\tERROR")
			for _, d := range deliveries {
				next := "-"
				if d.NextRetryAt != nil {
					next = d.NextRetryAt.Format(time.RFC3339)
				}
				errMsg := "-"
				if d.Error != nil {
					errMsg = *d.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					d.ID, d.ChannelID, d.Status, d.Attempt, d.MaxAttempts, next, errMsg)
			}
			return w.Flush()
		},
	}
}

func newDeliveryRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [delivery_id]",
		Short: "Requeue a failed delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			d, err := c.RetryDelivery(args[0])
			if err != nil {
				return fmt.Errorf("failed to retry delivery: %v", err)
			}
			fmt.Printf("Delivery %s requeued (attempt %d/%d)\n", d.ID, d.Attempt, d.MaxAttempts)
			return nil
		},
	}
}
