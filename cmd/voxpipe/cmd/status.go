package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/internal/store"
	"github.com/voxpipe/voxpipe/pkg/format"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a pipeline snapshot",
	Long:  "Show per-stage status counts across all registered files.",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusColumns is the column order of the snapshot table.
var statusColumns = []models.StageStatus{
	models.StageStatusNotStarted,
	models.StageStatusInProgress,
	models.StageStatusCompleted,
	models.StageStatusQACompleted,
	models.StageStatusQAFailed,
	models.StageStatusFailed,
}

func runStatus(cmd *cobra.Command, _ []string) error {
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

	snap, err := store.New(db.DB, logger).Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	fmt.Printf("files: %s\n\n", format.Number(snap.Files))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprint(w, "STAGE")
	for _, col := range statusColumns {
		fmt.Fprintf(w, "\t%s", col)
	}
	fmt.Fprintln(w)

	for _, stage := range models.AllStages() {
		counts := snap.Stages[stage]
		fmt.Fprint(w, stage)
		for _, col := range statusColumns {
			fmt.Fprintf(w, "\t%d", counts[col])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
