package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/nexusdash/nexus/internal/api/client"
	"github.com/spf13/cobra"
)

func NewRuleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rule",
		Short:   "Alert rule commands",
		Aliases: []string{"rules", "r"},
	}

	cmd.AddCommand(newRuleListCommand())
	cmd.AddCommand(newRuleToggleCommand("enable", "Enable an alert rule", true))
	cmd.AddCommand(newRuleToggleCommand("disable", "Disable an alert rule", false))
	cmd.AddCommand(newRuleDeleteCommand())
	cmd.AddCommand(newRuleDefaultsCommand())
	cmd.AddCommand(newRuleImportCommand())
	cmd.AddCommand(newRuleExportCommand())
	cmd.AddCommand(newRuleEvaluateCommand())

	return cmd
}

func newRuleListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List alert rules",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			rules, err := c.ListRules()
			if err != nil {
				return fmt.Errorf("failed to list rules: %v", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSEVERITY\tCONDITION\tWINDOW\tACTIVE\tTRIGGERS")
			for _, r := range rules {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s %s %g\t%dm\t%t\t%d\n",
					r.ID,
					r.Name,
					r.Severity,
					r.Conditions.Metric,
					r.Conditions.Operator.Symbol(),
					r.Conditions.Threshold,
					r.Conditions.TimeWindowMinutes,
					r.IsActive,
					r.TriggerCount,
				)
			}
			return w.Flush()
		},
	}
}

func newRuleToggleCommand(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [rule_id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			if err := c.SetRuleActive(args[0], active); err != nil {
				return fmt.Errorf("failed to %s rule: %v", use, err)
			}
			fmt.Printf("Rule %s %sd\n", args[0], use)
			return nil
		},
	}
}

func newRuleDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete [rule_id]",
		Short:   "Delete an alert rule",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			if err := c.DeleteRule(args[0]); err != nil {
				return fmt.Errorf("failed to delete rule: %v", err)
			}
			fmt.Printf("Rule %s deleted\n", args[0])
			return nil
		},
	}
}

func newRuleDefaultsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Create the starter rule set",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			rules, err := c.CreateDefaultRules()
			if err != nil {
				return fmt.Errorf("failed to create default rules: %v", err)
			}
			fmt.Printf("%d rule(s) created\n", len(rules))
			return nil
		},
	}
}

func newRuleImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import rules from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %v", args[0], err)
			}
			defer f.Close()

			n, err := c.ImportRules(f)
			if err != nil {
				return fmt.Errorf("failed to import rules: %v", err)
			}
			fmt.Printf("%d rule(s) imported\n", n)
			return nil
		},
	}
}

func newRuleExportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export rules as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			if output == "" {
				return c.ExportRules(os.Stdout)
			}

			out, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %v", err)
			}
			defer out.Close()

			if err := c.ExportRules(out); err != nil {
				return fmt.Errorf("failed to export rules: %v", err)
			}
			fmt.Printf("Rules exported to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (defaults to stdout)")
	return cmd
}

func newRuleEvaluateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate your active rules now",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			results, err := c.EvaluateRules()
			if err != nil {
				return fmt.Errorf("failed to evaluate rules: %v", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "RULE\tVALUE\tTHRESHOLD\tSAMPLES\tRESULT")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%d\t%s\n",
					r.RuleID, r.CurrentValue, r.Threshold, r.Samples, evaluationOutcome(r))
			}
			return w.Flush()
		},
	}
}

func evaluationOutcome(r client.Evaluation) string {
	switch {
	case r.Error != "":
		return "error: " + r.Error
	case r.InCooldown:
		return "cooldown"
	case r.AlertCreated:
		return "alert created"
	case r.Triggered:
		return "triggered (deduplicated)"
	default:
		return "ok"
	}
}
