package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AlanyTan/sweteam/internal/config"
	"github.com/AlanyTan/sweteam/internal/issue"
	"github.com/AlanyTan/sweteam/pkg/models"
)

func newIssueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Manage the issue board",
	}
	cmd.AddCommand(newIssueListCmd())
	cmd.AddCommand(newIssueCreateCmd())
	cmd.AddCommand(newIssueShowCmd())
	cmd.AddCommand(newIssueUpdateCmd())
	cmd.AddCommand(newIssueAssignCmd())
	return cmd
}

func openLedger(cmd *cobra.Command) (*issue.Ledger, error) {
	home := config.MustHomeFrom(cmd.Context())
	settings, err := config.Load(home)
	if err != nil {
		return nil, err
	}
	return issue.NewLedger(settings.IssueBoardDir)
}

func newIssueListCmd() *cobra.Command {
	var parent, status, assignee string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues, optionally scoped to a parent or filtered by status/assignee",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(cmd)
			if err != nil {
				return err
			}
			var states []string
			if status != "" {
				states = []string{status}
			}
			sums, err := ledger.ListAll(parent, states, assignee)
			if err != nil {
				return err
			}
			if len(sums) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no issues")
				return nil
			}
			for _, s := range sums {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-14s %-14s %-14s %s\n",
					s.ID, s.Status, s.Priority, s.Assignee, s.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "Scope to one issue and its sub-issues")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&assignee, "assignee", "", "Filter by assignee")
	return cmd
}

func newIssueCreateCmd() *cobra.Command {
	var parent, title, description, priority, assignee, author string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an issue (or a sub-issue with --parent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title is required")
			}
			ledger, err := openLedger(cmd)
			if err != nil {
				return err
			}
			iss, err := ledger.Create(parent, title, description, models.IssueUpdate{
				Author:   author,
				Priority: priority,
				Assignee: assignee,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created issue %s\n", iss.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "Parent issue ID for a sub-issue")
	cmd.Flags().StringVar(&title, "title", "", "Issue title")
	cmd.Flags().StringVar(&description, "description", "", "Issue description")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority (urgent, critical, high, medium, low)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "Assignee agent name")
	cmd.Flags().StringVar(&author, "author", "human", "Author recorded on the first update")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newIssueShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an issue with its full update history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(cmd)
			if err != nil {
				return err
			}
			iss, err := ledger.Read(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Issue %s: %s\n", iss.ID, iss.Title)
			if iss.Description != "" {
				_, _ = fmt.Fprintf(out, "  %s\n", iss.Description)
			}
			assignee := ""
			if iss.Assignee != nil {
				assignee = *iss.Assignee
			}
			_, _ = fmt.Fprintf(out, "  status: %s  priority: %s  assignee: %s\n", iss.Status, iss.Priority, assignee)
			for i, u := range iss.Updates {
				_, _ = fmt.Fprintf(out, "  [%d] %s %s: %s\n", i, u.UpdatedAt.Format("2006-01-02 15:04"), u.Author, u.Details)
			}
			return nil
		},
	}
	return cmd
}

func newIssueUpdateCmd() *cobra.Command {
	var status, priority, details, author string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Append an update entry to an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status == "" && priority == "" && details == "" {
				return fmt.Errorf("nothing to update: pass --status, --priority, or --details")
			}
			ledger, err := openLedger(cmd)
			if err != nil {
				return err
			}
			iss, err := ledger.Update(args[0], models.IssueUpdate{
				Author:   author,
				Status:   status,
				Priority: priority,
				Details:  details,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated issue %s (status %s)\n", iss.ID, iss.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "New status")
	cmd.Flags().StringVar(&priority, "priority", "", "New priority")
	cmd.Flags().StringVar(&details, "details", "", "Update details")
	cmd.Flags().StringVar(&author, "author", "human", "Author of the update")
	return cmd
}

func newIssueAssignCmd() *cobra.Command {
	var assignee, author string

	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign an issue to an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if assignee == "" {
				return fmt.Errorf("--assignee is required")
			}
			ledger, err := openLedger(cmd)
			if err != nil {
				return err
			}
			if _, err := ledger.Assign(args[0], assignee, author); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Assigned issue %s to %s\n", args[0], assignee)
			return nil
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "Agent name")
	cmd.Flags().StringVar(&author, "author", "human", "Author of the assignment")
	_ = cmd.MarkFlagRequired("assignee")
	return cmd
}
