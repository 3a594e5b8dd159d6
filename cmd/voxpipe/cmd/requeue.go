package cmd

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/internal/store"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue <file-id> <stage>",
	Short: "Requeue a failed or stalled stage",
	Long: `Return a failed, qa_failed, or stuck in_progress stage to not_started
so the daemon picks it up again. Completed evaluation stages may also be
requeued to produce a fresh report. The attempt count is preserved.
Requeueing a qa_failed translation also resets its evaluation stage so
the re-translation gets a fresh verdict.`,
	Args: cobra.ExactArgs(2),
	RunE: runRequeue,
}

func init() {
	rootCmd.AddCommand(requeueCmd)
}

func runRequeue(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid file id %q: %w", args[0], err)
	}
	stage, err := models.ParseStage(args[1])
	if err != nil {
		return err
	}

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

	st := store.New(db.DB, logger)
	err = st.Requeue(ctx, id, stage)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrStageStateNotFound):
		return fmt.Errorf("no %s stage for file %s", stage, id)
	case errors.Is(err, models.ErrRequeueFromInvalidStatus):
		state, stateErr := st.StageStateFor(ctx, id, stage)
		if stateErr == nil {
			return fmt.Errorf("stage %s is %s, not requeueable", stage, state.Status)
		}
		return err
	default:
		return fmt.Errorf("requeueing: %w", err)
	}

	fmt.Printf("requeued %s for file %s\n", stage, id)
	return nil
}
