package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nexusdash/nexus/internal/api/client"
	"github.com/spf13/cobra"
)

func NewJobCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "job",
		Short:   "Background job commands (admin only)",
		Aliases: []string{"jobs", "j"},
	}

	cmd.AddCommand(newJobListCommand())
	cmd.AddCommand(newJobRunCommand())
	cmd.AddCommand(newJobScheduleCommand("start", "Start a job's schedule", true))
	cmd.AddCommand(newJobScheduleCommand("stop", "Stop a job's schedule", false))

	return cmd
}

func newJobListCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "Show job status",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			if watch {
				ticker := time.NewTicker(2 * time.Second)
				defer ticker.Stop()

				for {
					if err := displayJobs(c); err != nil {
						return err
					}
					<-ticker.C
					fmt.Print("\033[H\033[2J")
				}
			}

			return displayJobs(c)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Refresh job status continuously")
	return cmd
}

func newJobRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run a job once, now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			r, err := c.RunJob(args[0])
			if err != nil {
				return fmt.Errorf("failed to run job: %v", err)
			}

			fmt.Printf("%s: success=%t processed=%d succeeded=%d failed=%d retried=%d alerts=%d (%s)\n",
				r.Job, r.Success, r.Processed, r.Succeeded, r.Failed, r.Retried, r.AlertsCreated, r.Duration)
			if len(r.Errors) > 0 {
				fmt.Println("errors:\n  " + strings.Join(r.Errors, "\n  "))
			}
			return nil
		},
	}
}

func newJobScheduleCommand(use, short string, scheduled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [job_name]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			if err := c.SetJobScheduled(args[0], scheduled); err != nil {
				return fmt.Errorf("failed to %s job: %v", use, err)
			}
			fmt.Printf("Job %s: %s\n", args[0], use)
			return nil
		},
	}
}

func displayJobs(c *client.Client) error {
	status, err := c.ListJobs()
	if err != nil {
		return fmt.Errorf("failed to list jobs: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCHEDULED\tINTERVAL\tRUNNING\tRUNS\tFAILURES\tLAST RUN")
	for _, s := range status {
		last := "never"
		if s.LastRun != nil {
			last = s.LastRun.StartedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%t\t%d\t%d\t%s\n",
			s.Name, s.Scheduled, s.Interval, s.Running, s.Runs, s.Failures, last)
	}
	return w.Flush()
}
