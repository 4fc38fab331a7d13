package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/archon-run/orchestrator-pipeline/internal/config"
	"github.com/archon-run/orchestrator-pipeline/internal/logging"
	"github.com/archon-run/orchestrator-pipeline/internal/store/postgres"
)

var migrateConfigFile string

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
	cmd.Flags().StringVar(&migrateConfigFile, "config", "", "path to a YAML/TOML/JSON config file (optional, env vars always apply)")
	return cmd
}

func runMigrate() error {
	v := config.NewViperInstance()
	if err := config.BindEnvironmentVariables(v); err != nil {
		return fmt.Errorf("bind environment variables: %w", err)
	}
	if migrateConfigFile != "" {
		v.SetConfigFile(migrateConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", migrateConfigFile, err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	return postgres.Migrate(cfg.DatabaseURL, logger)
}
