package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voxpipe/voxpipe/pkg/format"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database schema migration commands",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE:  runMigrateDown,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE:  runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)
	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrateUp(ctx, db, logger); err != nil {
		return err
	}
	fmt.Println("schema is up to date")
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)
	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := newMigrator(db, logger).Down(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	fmt.Println("rolled back one migration")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)
	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	statuses, err := newMigrator(db, logger).Status(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tDESCRIPTION\tAPPLIED")
	for _, s := range statuses {
		applied := "pending"
		if s.Applied && s.AppliedAt != nil {
			applied = format.RelativeTime(*s.AppliedAt)
		} else if s.Applied {
			applied = "applied"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Version, s.Description, applied)
	}
	return w.Flush()
}
