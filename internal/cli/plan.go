package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AlanyTan/sweteam/internal/config"
	"github.com/AlanyTan/sweteam/internal/dirplan"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect the planned vs. actual project structure",
	}
	cmd.AddCommand(newPlanShowCmd())
	return cmd
}

func newPlanShowCmd() *cobra.Command {
	var actualOnly bool
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Render the merged plan/actual tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			settings, err := config.Load(home)
			if err != nil {
				return err
			}
			plan := dirplan.New(settings.PlanFile, settings.ProjectDir)
			root, err := plan.Read(actualOnly)
			if err != nil {
				return err
			}
			out, err := dirplan.Render(root, format)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&actualOnly, "actual-only", false, "Show only what exists on disk")
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or csv")
	return cmd
}
