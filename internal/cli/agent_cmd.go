package cli

import (
	"fmt"
	"strings"

	"github.com/soyeahso/mercora/internal/config"
	"github.com/soyeahso/mercora/internal/store"
	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage registered agents",
	}

	cmd.AddCommand(newAgentCreateCmd())
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentActiveCmd("activate", true))
	cmd.AddCommand(newAgentActiveCmd("deactivate", false))
	return cmd
}

func newAgentCreateCmd() *cobra.Command {
	var in store.NewAgent

	cmd := &cobra.Command{
		Use:   "create <agent-id>",
		Short: "Register an agent and print its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ID = args[0]
			if in.Name == "" {
				in.Name = in.ID
			}
			return withStore(func(cfg config.Config, db *store.DB) error {
				agents := agentStore(cfg, db)
				key, err := agents.Create(cmd.Context(), in)
				if err != nil {
					return err
				}
				a, err := agents.Get(cmd.Context(), in.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Agent:       %s (%s)\n", a.ID, a.Name)
				fmt.Fprintf(out, "Permissions: %s\n", strings.Join(a.Permissions, ","))
				fmt.Fprintf(out, "Limits:      %d/min, %d orders/hour\n", a.RequestsPerMinute, a.OperationsPerHour)
				fmt.Fprintf(out, "API key:     %s\n", key)
				fmt.Fprintln(cmd.ErrOrStderr(), "Store the API key now; it cannot be shown again.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "display name (default: the agent id)")
	cmd.Flags().StringVar(&in.Description, "description", "", "free-form description")
	cmd.Flags().StringSliceVar(&in.Permissions, "permissions", nil, "granted permissions, comma separated (default: every shopper permission)")
	cmd.Flags().IntVar(&in.RequestsPerMinute, "rpm", 0, "requests per minute (default from config)")
	cmd.Flags().IntVar(&in.OperationsPerHour, "orders-per-hour", 0, "orders per hour (default from config)")

	return cmd
}

func newAgentListCmd() *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered agents with their usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if page < 1 || limit < 1 {
				return fmt.Errorf("--page and --limit must be at least 1")
			}
			return withStore(func(cfg config.Config, db *store.DB) error {
				agents, total, err := agentStore(cfg, db).List(cmd.Context(), page, limit)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if total == 0 {
					fmt.Fprintln(out, "No agents registered.")
					return nil
				}
				for _, a := range agents {
					state := "active"
					if !a.Active {
						state = "inactive"
					}
					fmt.Fprintf(out, "  %-20s %-8s rpm=%d/%d orders=%d/%d sessions=%d\n",
						a.ID, state,
						a.Usage.RequestsThisMinute, a.RequestsPerMinute,
						a.Usage.OperationsThisHour, a.OperationsPerHour,
						a.Usage.ActiveSessions)
				}
				pages := (total + limit - 1) / limit
				fmt.Fprintf(out, "Page %d of %d (%d agents)\n", page, pages, total)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "agents per page")

	return cmd
}

func newAgentActiveCmd(verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <agent-id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " an agent's API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(cfg config.Config, db *store.DB) error {
				return setAgentActive(cmd, agentStore(cfg, db), args[0], active)
			})
		},
	}
}

func setAgentActive(cmd *cobra.Command, agents *store.AgentStore, id string, active bool) error {
	previous, err := agents.SetActive(cmd.Context(), id, active)
	if err != nil {
		return err
	}
	state := map[bool]string{true: "active", false: "inactive"}
	if previous == active {
		fmt.Fprintf(cmd.OutOrStdout(), "Agent %s is already %s\n", id, state[active])
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Agent %s is now %s\n", id, state[active])
	return nil
}
