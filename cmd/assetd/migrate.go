package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"assetd/internal/config"
	"assetd/internal/store"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect asset database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil || cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			st, err := store.OpenWithoutMigrations(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open %s: %w", cfg.DBPath, err)
			}
			defer st.Close()

			if !inspect {
				if err := st.Migrate(); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}

			plan, err := st.MigrationPlan()
			if err != nil {
				return fmt.Errorf("inspect migrations: %w", err)
			}
			if *jsonOutput {
				return writeJSON(plan)
			}
			return writeMigrationPlan(plan, inspect)
		},
	}

	cmd.Flags().BoolVar(&inspect, "inspect", false, "show pending migrations without applying them")
	cmd.Flags().BoolVar(&inspect, "dry-run", false, "alias for --inspect")
	return cmd
}

func writeMigrationPlan(plan *store.MigrationStatus, inspect bool) error {
	if !inspect {
		return writePlain("schema at version %d\n", plan.CurrentVersion)
	}
	if err := writePlain("schema version %d of %d\n", plan.CurrentVersion, plan.AvailableVersion); err != nil {
		return err
	}
	for _, m := range plan.Pending {
		if err := writePlain("  pending %d: %s\n", m.Version, m.Description); err != nil {
			return err
		}
	}
	return nil
}
