package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AlanyTan/sweteam/internal/agent"
	"github.com/AlanyTan/sweteam/internal/config"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agent definitions",
	}
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentShowCmd())
	cmd.AddCommand(newAgentInitCmd())
	return cmd
}

func agentsDir(cmd *cobra.Command) string {
	return filepath.Join(config.MustHomeFrom(cmd.Context()), "agents")
}

func newAgentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			roster, err := agent.LoadRoster(agentsDir(cmd))
			if err != nil {
				return err
			}
			names := roster.Names()
			if len(names) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no agents configured; run `sweteam agent init`")
				return nil
			}
			for _, n := range names {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
	return cmd
}

func newAgentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one agent's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roster, err := agent.LoadRoster(agentsDir(cmd))
			if err != nil {
				return err
			}
			cfg, err := roster.Get(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "name: %s\n", cfg.Name)
			_, _ = fmt.Fprintf(out, "model: %s\n", cfg.Model)
			_, _ = fmt.Fprintf(out, "temperature: %g\n", cfg.Temperature)
			_, _ = fmt.Fprintf(out, "tools: %v\n", cfg.Tools)
			_, _ = fmt.Fprintf(out, "instructions:\n%s\n", cfg.FullInstructions())
			return nil
		},
	}
	return cmd
}

func newAgentInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default agent definitions (existing files are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := agentsDir(cmd)
			if err := agent.WriteDefaults(dir); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Agent definitions in %s\n", dir)
			return nil
		},
	}
	return cmd
}
