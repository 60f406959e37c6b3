package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"globetrotter/config"
	"globetrotter/db/pg"
	migrations "globetrotter/migration"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "migrate the itinerary database",
		Long:  `This command migrates the itinerary schema with goose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			up, _ := cmd.Flags().GetBool("up")
			down, _ := cmd.Flags().GetBool("down")
			if down {
				up = false
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			schema := cfg.Database.Schema
			if schema == "" {
				schema = config.AppName
			}

			if err := goose.SetDialect("postgres"); err != nil {
				return fmt.Errorf("failed to set goose dialect: %w", err)
			}
			goose.SetBaseFS(migrations.FS)

			db, err := sql.Open("postgres", pg.CreateDSN(cfg.Database))
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			ctx := cmd.Context()
			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			defer pingCancel()
			if err := db.PingContext(pingCtx); err != nil {
				return fmt.Errorf("failed to ping database: %w", err)
			}
			log.Println("Successfully connected to the database.")

			// search_path points at the schema, which has to exist before goose writes its table
			if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", schema)); err != nil {
				return fmt.Errorf("failed to create schema %s: %w", schema, err)
			}

			switch {
			case up:
				log.Println("Running 'up' migrations...")
				if err := goose.UpContext(ctx, db, "."); err != nil {
					return fmt.Errorf("goose up failed: %w", err)
				}
			case down:
				log.Println("Rolling back the last migration...")
				if err := goose.DownContext(ctx, db, "."); err != nil {
					return fmt.Errorf("goose down failed: %w", err)
				}
			}
			log.Println("Checking migration status...")
			return goose.StatusContext(ctx, db, ".")
		},
	}

	cmd.Flags().BoolP("up", "u", true, "migrate to the latest version")
	cmd.Flags().BoolP("down", "d", false, "roll back the latest migration")

	return cmd
}
