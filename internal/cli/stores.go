package cli

import (
	"fmt"

	"github.com/soyeahso/mercora/internal/config"
	"github.com/soyeahso/mercora/internal/store"
)

// loadConfig reads the config file and rejects invalid settings.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, errConfigInvalid(len(issues))
	}
	return cfg, nil
}

func errConfigInvalid(n int) error {
	return fmt.Errorf("config validation failed with %d issue(s)", n)
}

// openStore opens the configured database, creating the data directory.
func openStore(cfg config.Config) (*store.DB, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data directories: %w", err)
	}
	path := paths.DatabasePath(cfg.Database)
	db, err := store.Open(path, log)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	return db, nil
}

// withStore loads config, opens the database and runs fn.
func withStore(fn func(cfg config.Config, db *store.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(cfg, db)
}

func agentStore(cfg config.Config, db *store.DB) *store.AgentStore {
	return store.NewAgentStore(db, store.AgentLimits{
		RequestsPerMinute: cfg.RateLimit.DefaultRequestsPerMinute,
		OperationsPerHour: cfg.RateLimit.DefaultOperationsPerHour,
	})
}
