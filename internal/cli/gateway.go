package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/soyeahso/mercora/internal/config"
	"github.com/soyeahso/mercora/internal/gateway"
	"github.com/soyeahso/mercora/internal/hooks"
	"github.com/soyeahso/mercora/internal/logging"
	"github.com/soyeahso/mercora/internal/metrics"
	"github.com/soyeahso/mercora/internal/store"
	"github.com/spf13/cobra"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the Mercora gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			// The gateway logs per its config rather than the CLI default.
			gwLog, closer, err := logging.NewFromOptions(logging.Options{
				Level:        cfg.Logging.Level,
				ConsoleStyle: cfg.Logging.ConsoleStyle,
				File:         cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			defer closer.Close()
			log = gwLog

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return errConfigInvalid(len(issues))
			}

			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			srv := buildGateway(cfg, db)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}

// buildGateway wires metrics, configured hook commands and the stores
// into a server.
func buildGateway(cfg config.Config, db *store.DB) *gateway.Server {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	hookMgr := hooks.NewManager(log)
	if n := hooks.RegisterCommands(hookMgr, cfg.Hooks); n > 0 {
		log.Info().Int("count", n).Msg("hook commands registered")
	}

	deps := gateway.NewDeps(cfg, db, log, m)
	return gateway.New(cfg, deps, log, gateway.WithHooks(hookMgr), gateway.WithMetrics(m))
}
