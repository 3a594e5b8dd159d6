// Package workers implements the per-stage units of work. A worker takes
// one claimed (file, stage) task, does its provider calls and artifact
// writes, and reports the outcome back to the store. Workers never retry
// providers themselves and never touch stage rows directly.
package workers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/voxpipe/voxpipe/internal/artifacts"
	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/internal/providers"
	"github.com/voxpipe/voxpipe/internal/store"
)

// Env bundles the collaborators every worker needs.
type Env struct {
	Store     *store.Store
	Artifacts *artifacts.Writer
	Registry  *providers.Registry
	Retrier   *providers.Retrier
	Config    *config.Config
	Logger    *slog.Logger
}

// logger returns the env logger, defaulting to slog.Default.
func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Fatal reports whether a worker error must bring the whole scheduler
// down: artifact corruption and broken prerequisite gating mean the
// store or filesystem can no longer be trusted.
func Fatal(err error) bool {
	return errors.Is(err, models.ErrArtifactHashMismatch) ||
		errors.Is(err, models.ErrPrerequisiteMissing)
}

// stageErrorKind maps a provider-path error to the kind recorded on the
// stage row.
func stageErrorKind(err error) models.ErrorKind {
	if errors.Is(err, providers.ErrExhausted) {
		return models.ErrorKindProviderExhausted
	}
	return providers.KindOf(err).StageErrorKind()
}

// failStage records a non-fatal worker failure on the stage row. A lost
// lease is not an error: the reclaimed stage will be re-run elsewhere
// and this worker's result is simply discarded.
func (e *Env) failStage(ctx context.Context, task *store.ClaimedTask, owner string, kind models.ErrorKind, detail string) error {
	err := e.Store.Fail(ctx, task.File.ID, task.State.Stage, owner, kind, detail)
	if errors.Is(err, store.ErrLeaseLost) {
		e.logger().Warn("discarding result from lost lease",
			slog.String("file_id", task.File.ID.String()),
			slog.String("stage", string(task.State.Stage)),
			slog.String("owner", owner),
		)
		return nil
	}
	return err
}

// completeStage reports completion, treating a lost lease as a discarded
// result rather than an error.
func (e *Env) completeStage(ctx context.Context, task *store.ClaimedTask, owner string, arts []models.Artifact) error {
	err := e.Store.Complete(ctx, task.File.ID, task.State.Stage, owner, arts)
	if errors.Is(err, store.ErrLeaseLost) {
		e.logger().Warn("discarding result from lost lease",
			slog.String("file_id", task.File.ID.String()),
			slog.String("stage", string(task.State.Stage)),
			slog.String("owner", owner),
		)
		return nil
	}
	return err
}

// handleArtifactError reports an artifact write failure. A hash mismatch
// is fatal and propagates after the stage is marked; any other write
// failure marks the stage failed as transient so it retries once the
// filesystem recovers.
func (e *Env) handleArtifactError(ctx context.Context, task *store.ClaimedTask, owner string, err error) error {
	if errors.Is(err, models.ErrArtifactHashMismatch) {
		if failErr := e.failStage(ctx, task, owner, models.ErrorKindArtifactHashMismatch, err.Error()); failErr != nil {
			return failErr
		}
		return err
	}
	return e.failStage(ctx, task, owner, models.ErrorKindProviderTransient, "artifact write: "+err.Error())
}

// recordCall appends one row to the provider call audit log. Audit
// failures are reported and swallowed; they must not fail the stage.
func (e *Env) recordCall(ctx context.Context, fileID uuid.UUID, stage models.Stage, capability, target string, segmentsIn, segmentsOut int, attempt providers.Attempt) {
	outcome := models.ProviderCallOutcomeOK
	if attempt.Err != nil {
		outcome = string(providers.KindOf(attempt.Err).StageErrorKind())
		segmentsOut = 0
	}

	call := &models.ProviderCall{
		FileID:      fileID,
		Stage:       stage,
		Capability:  capability,
		Provider:    attempt.Provider,
		Target:      target,
		SegmentsIn:  segmentsIn,
		SegmentsOut: segmentsOut,
		Outcome:     outcome,
		DurationMs:  attempt.Duration.Milliseconds(),
	}
	if err := e.Store.RecordProviderCall(ctx, call); err != nil {
		e.logger().Error("recording provider call failed",
			slog.String("stage", string(stage)),
			slog.String("provider", attempt.Provider),
			slog.String("error", err.Error()),
		)
	}
}
