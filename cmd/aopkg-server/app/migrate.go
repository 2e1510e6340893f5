package app

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/aopkg/aopkg-server/database"
	"github.com/aopkg/aopkg-server/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending database migrations",
	Long: `Apply all pending database migrations to bring the schema up to date.
Connection parameters are read from the config file.`,
	RunE: runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent database migration",
	RunE:  runMigrateDown,
}

func init() {
	migrateCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format)")
	_ = migrateCmd.MarkPersistentFlagRequired("config")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

func newMigrator(cmd *cobra.Command) (database.Migrator, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	connString, err := cfg.Database.ConnString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	m, err := database.NewFromConnectionString(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, err := newMigrator(cmd)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("database schema already up to date")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	fmt.Printf("database schema at version %d (dirty: %t)\n", version, dirty)
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	m, err := newMigrator(cmd)
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("no migration to roll back")
			return nil
		}
		return fmt.Errorf("failed to roll back migration: %w", err)
	}

	fmt.Println("rolled back one migration")
	return nil
}
