package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/soyeahso/mercora/internal/config"
	"github.com/soyeahso/mercora/internal/store"
	"github.com/soyeahso/mercora/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show Mercora status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", version.Info())

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:     %s\n", paths.Logs)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:   not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}

			gw := cfg.Gateway
			fmt.Fprintf(out, "Gateway:  port=%d bind=%s base=%s tls=%v\n", gw.Port, gw.Bind, gw.BasePath, gw.TLS.Enabled)
			fmt.Fprintf(out, "Sessions: ttl=%dh sweep=%dm maxCart=%d\n",
				cfg.Session.TTLHours, cfg.Session.SweepMinutes, cfg.Session.MaxCartItems)
			fmt.Fprintf(out, "Limits:   %d req/min, %d orders/hour (new agents)\n",
				cfg.RateLimit.DefaultRequestsPerMinute, cfg.RateLimit.DefaultOperationsPerHour)
			fmt.Fprintf(out, "Commerce: currency=%s tax=%.2f%% freeShipping=%.2f\n",
				cfg.Commerce.Currency, cfg.Commerce.TaxRatePercent, cfg.Commerce.FreeShippingThreshold)
			if cfg.Metrics.Enabled {
				fmt.Fprintf(out, "Metrics:  %s\n", cfg.Metrics.Path)
			} else {
				fmt.Fprintln(out, "Metrics:  disabled")
			}

			dbPath := paths.DatabasePath(cfg.Database)
			if _, err := os.Stat(dbPath); err != nil {
				fmt.Fprintf(out, "Database: %s (not created yet)\n", dbPath)
			} else if err := printCounts(cmd.Context(), cmd, cfg, dbPath); err != nil {
				fmt.Fprintf(out, "Database: %s (error: %v)\n", dbPath, err)
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}
			return nil
		},
	}

	return cmd
}

func printCounts(ctx context.Context, cmd *cobra.Command, cfg config.Config, dbPath string) error {
	db, err := store.Open(dbPath, log)
	if err != nil {
		return err
	}
	defer db.Close()

	_, agents, err := agentStore(cfg, db).List(ctx, 1, 1)
	if err != nil {
		return err
	}
	products, err := store.NewProductStore(db).Count(ctx)
	if err != nil {
		return err
	}
	sessions, err := store.NewSessionStore(db, time.Duration(cfg.Session.TTLHours)*time.Hour).CountActive(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Database: %s (%d agents, %d products, %d active sessions)\n",
		dbPath, agents, products, sessions)
	return nil
}
