// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/doctray/doctray/internal/config"
	"github.com/doctray/doctray/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var down bool
	var steps int
	var force int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run pending database migrations against the PostgreSQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}

			modes := 0
			for _, set := range []bool{down, steps != 0, force >= 0} {
				if set {
					modes++
				}
			}
			if modes > 1 {
				return oops.Code("CONFIG_INVALID").Errorf("--down, --steps and --force are mutually exclusive")
			}

			migrator, err := store.NewMigrator(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := migrator.Close(); closeErr != nil {
					cmd.PrintErrln("warning: closing migrator:", closeErr)
				}
			}()

			switch {
			case down:
				cmd.Println("Rolling back all migrations...")
				err = migrator.Down()
			case force >= 0:
				cmd.Printf("Forcing migration version to %d...\n", force)
				err = migrator.Force(force)
			case steps != 0:
				cmd.Printf("Applying %d migration step(s)...\n", steps)
				err = migrator.Steps(steps)
			default:
				cmd.Println("Running migrations...")
				err = migrator.Up()
			}
			if err != nil {
				return err
			}

			version, dirty, err := migrator.Version()
			if err != nil {
				return err
			}
			cmd.Printf("Migrations completed (version %d, dirty: %v)\n", version, dirty)
			return nil
		},
	}

	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")
	cmd.Flags().BoolVar(&down, "down", false, "roll back all migrations (destroys data)")
	cmd.Flags().IntVar(&steps, "steps", 0, "apply a signed number of migration steps")
	cmd.Flags().IntVar(&force, "force", -1, "set the migration version without running migrations (dirty-state recovery)")

	return cmd
}

// runMigrations applies pending migrations, used by serve --auto-migrate.
func runMigrations(databaseURL string) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck // close error is not actionable here

	return migrator.Up()
}
