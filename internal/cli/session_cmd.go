package cli

import (
	"fmt"
	"time"

	"github.com/soyeahso/mercora/internal/config"
	"github.com/soyeahso/mercora/internal/store"
	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Maintain shopping sessions",
	}

	cmd.AddCommand(newSessionSweepCmd())
	cmd.AddCommand(newSessionListCmd())
	return cmd
}

func newSessionSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(cfg config.Config, db *store.DB) error {
				sessions := store.NewSessionStore(db, time.Duration(cfg.Session.TTLHours)*time.Hour)
				n, err := sessions.CleanupExpiredSessions(cmd.Context())
				if err != nil {
					return err
				}
				left, err := sessions.CountActive(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired session(s), %d active\n", n, left)
				return nil
			})
		},
	}
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <agent-id>",
		Short: "List an agent's active sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(cfg config.Config, db *store.DB) error {
				sessions := store.NewSessionStore(db, time.Duration(cfg.Session.TTLHours)*time.Hour)
				list, err := sessions.GetActiveSessionsForAgent(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintf(out, "No active sessions for %s\n", args[0])
					return nil
				}
				for _, s := range list {
					units := 0
					for _, it := range s.Cart {
						units += it.Quantity
					}
					fmt.Fprintf(out, "  %-40s cart=%d item(s) expires=%s\n",
						s.ID, units, s.ExpiresAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}
