package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voxpipe/voxpipe/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimedTask is one unit of work handed to a worker: the stage row under
// lease plus its file.
type ClaimedTask struct {
	File  models.MediaFile
	State models.StageState
}

// Claim leases the oldest eligible (file, stage) row for the given stage.
// Eligible means not_started with attempts left; rows whose prerequisite
// stage is not completed (or qa_completed) are invisible. Failed rows are
// never claimed automatically — requeue is the operator path back to
// not_started — and stalled in_progress rows return through the lease
// sweep. Ordering is FIFO by last_transition_at. Returns (nil, nil) when
// nothing is eligible.
//
// Prerequisite gating happens only here. Workers may assume their inputs
// exist; a worker finding them missing is a fatal inconsistency.
func (s *Store) Claim(ctx context.Context, stage models.Stage, owner string, ttl time.Duration, maxAttempts int) (*ClaimedTask, error) {
	var task *ClaimedTask

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("stage = ?", stage).
			Where("status = ?", models.StageStatusNotStarted).
			Where("attempt_count < ?", maxAttempts).
			Order("last_transition_at ASC")

		if prereq, ok := stage.Prerequisite(); ok {
			sub := tx.Model(&models.StageState{}).
				Select("file_id").
				Where("stage = ? AND status IN ?", prereq, []models.StageStatus{
					models.StageStatusCompleted, models.StageStatusQACompleted,
				})
			q = q.Where("file_id IN (?)", sub)
		}

		var state models.StageState
		if err := q.First(&state).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("selecting claimable stage: %w", err)
		}

		prevStatus := state.Status
		state.MarkInProgress(owner, ttl)

		// Guard on the previous status so a concurrent claimer on another
		// connection cannot double-lease the row.
		res := tx.Model(&models.StageState{}).
			Where("id = ? AND status = ?", state.ID, prevStatus).
			Select("Status", "LastStartedAt", "LeaseOwner", "LeaseAcquiredAt", "LeaseDeadline", "LastTransitionAt").
			Updates(&state)
		if res.Error != nil {
			return fmt.Errorf("leasing stage: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var file models.MediaFile
		if err := tx.Where("id = ?", state.FileID).First(&file).Error; err != nil {
			return fmt.Errorf("loading claimed file: %w", err)
		}

		if err := recordTransition(tx, &state, prevStatus, "claimed"); err != nil {
			return err
		}

		task = &ClaimedTask{File: file, State: state}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if task != nil {
		s.logger.Debug("stage claimed",
			slog.String("file_id", task.File.ID.String()),
			slog.String("stage", string(stage)),
			slog.String("owner", owner),
		)
	}
	return task, nil
}

// loadLeasedState loads a stage row and verifies the caller still holds
// its lease. Reports from reclaimed leases get ErrLeaseLost.
func loadLeasedState(tx *gorm.DB, fileID uuid.UUID, stage models.Stage, owner string) (*models.StageState, error) {
	var state models.StageState
	err := tx.Where("file_id = ? AND stage = ?", fileID, stage).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrStageStateNotFound
		}
		return nil, fmt.Errorf("getting stage state: %w", err)
	}
	if state.Status != models.StageStatusInProgress || state.LeaseOwner != owner {
		return nil, fmt.Errorf("%w: %s/%s", ErrLeaseLost, fileID, stage)
	}
	return &state, nil
}

// Complete transitions a leased stage to completed and indexes its
// artifacts, atomically. Every artifact kind the stage requires must be
// present; completion is at most once per lease.
func (s *Store) Complete(ctx context.Context, fileID uuid.UUID, stage models.Stage, owner string, artifacts []models.Artifact) error {
	required := models.RequiredArtifactKinds(stage)
	for _, kind := range required {
		found := false
		for _, a := range artifacts {
			if a.Kind == kind {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("completing %s: missing required artifact %s", stage, kind)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := loadLeasedState(tx, fileID, stage, owner)
		if err != nil {
			return err
		}

		for i := range artifacts {
			a := &artifacts[i]
			a.FileID = fileID
			a.Stage = stage
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "file_id"}, {Name: "stage"}, {Name: "kind"}, {Name: "target"},
				},
				DoUpdates: clause.AssignmentColumns([]string{"sha256", "byte_size", "updated_at"}),
			}).Create(a).Error
			if err != nil {
				return fmt.Errorf("indexing artifact %s: %w", a.Kind, err)
			}
		}

		prevStatus := state.Status
		state.MarkCompleted()
		res := tx.Model(&models.StageState{}).
			Where("id = ?", state.ID).
			Select("Status", "LastCompletedAt", "LastErrorKind", "LastErrorDetail",
				"LeaseOwner", "LeaseAcquiredAt", "LeaseDeadline", "LastTransitionAt").
			Updates(state)
		if res.Error != nil {
			return fmt.Errorf("completing stage: %w", res.Error)
		}

		return recordTransition(tx, state, prevStatus, "completed")
	})
	if err != nil {
		return err
	}

	s.logger.Info("stage completed",
		slog.String("file_id", fileID.String()),
		slog.String("stage", string(stage)),
		slog.Int("artifacts", len(artifacts)),
	)
	return nil
}

// Fail transitions a leased stage to failed, recording the error kind and
// incrementing the attempt counter.
func (s *Store) Fail(ctx context.Context, fileID uuid.UUID, stage models.Stage, owner string, kind models.ErrorKind, detail string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := loadLeasedState(tx, fileID, stage, owner)
		if err != nil {
			return err
		}

		prevStatus := state.Status
		prevOwner := state.LeaseOwner
		state.MarkFailed(kind, detail)
		res := tx.Model(&models.StageState{}).
			Where("id = ?", state.ID).
			Select("Status", "AttemptCount", "LastErrorKind", "LastErrorDetail",
				"LeaseOwner", "LeaseAcquiredAt", "LeaseDeadline", "LastTransitionAt").
			Updates(state)
		if res.Error != nil {
			return fmt.Errorf("failing stage: %w", res.Error)
		}

		state.LeaseOwner = prevOwner
		err = recordTransition(tx, state, prevStatus, detail)
		state.LeaseOwner = ""
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Warn("stage failed",
		slog.String("file_id", fileID.String()),
		slog.String("stage", string(stage)),
		slog.String("error_kind", string(kind)),
		slog.String("detail", detail),
	)
	return nil
}

// AnnotateQA records the evaluation verdict on a completed translation
// stage: qa_completed at or above threshold, qa_failed below. Annotating
// a stage that is not completed is an invariant violation.
func (s *Store) AnnotateQA(ctx context.Context, fileID uuid.UUID, target string, passed bool) error {
	stage := models.TranslationStage(target)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var state models.StageState
		err := tx.Where("file_id = ? AND stage = ?", fileID, stage).First(&state).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrStageStateNotFound
			}
			return fmt.Errorf("getting translation state: %w", err)
		}
		if state.Status != models.StageStatusCompleted {
			return fmt.Errorf("%w: %s/%s is %s", models.ErrQAVerdictFromIncomplete, fileID, stage, state.Status)
		}

		prevStatus := state.Status
		state.MarkQA(passed)
		res := tx.Model(&models.StageState{}).
			Where("id = ?", state.ID).
			Select("Status", "LastTransitionAt").
			Updates(&state)
		if res.Error != nil {
			return fmt.Errorf("annotating qa verdict: %w", res.Error)
		}

		detail := "qa passed"
		if !passed {
			detail = "qa below threshold"
		}
		return recordTransition(tx, &state, prevStatus, detail)
	})
	if err != nil {
		return err
	}

	s.logger.Info("qa verdict recorded",
		slog.String("file_id", fileID.String()),
		slog.String("target", target),
		slog.Bool("passed", passed),
	)
	return nil
}

// Requeue returns a failed, qa_failed, or stalled stage to not_started so
// it becomes claimable again. Completed evaluation stages may also be
// requeued to produce a fresh report. The attempt counter and last error
// survive for diagnosis. Stages running under a live lease are not
// requeueable.
//
// Requeueing a qa_failed translation also resets its completed evaluation
// stage, so the re-translation gets a fresh verdict.
func (s *Store) Requeue(ctx context.Context, fileID uuid.UUID, stage models.Stage) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var state models.StageState
		err := tx.Where("file_id = ? AND stage = ?", fileID, stage).First(&state).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrStageStateNotFound
			}
			return fmt.Errorf("getting stage state: %w", err)
		}

		now := time.Now()
		requeueable := state.Status == models.StageStatusFailed ||
			state.Status == models.StageStatusQAFailed ||
			state.LeaseExpired(now) ||
			(state.Status == models.StageStatusCompleted && stage.Kind() == models.StageKindEvaluation)
		if !requeueable {
			return fmt.Errorf("%w: %s/%s is %s", models.ErrRequeueFromInvalidStatus, fileID, stage, state.Status)
		}

		prevStatus := state.Status
		state.ResetForRequeue()
		res := tx.Model(&models.StageState{}).
			Where("id = ?", state.ID).
			Select("Status", "LeaseOwner", "LeaseAcquiredAt", "LeaseDeadline", "LastTransitionAt").
			Updates(&state)
		if res.Error != nil {
			return fmt.Errorf("requeueing stage: %w", res.Error)
		}

		if err := recordTransition(tx, &state, prevStatus, "requeued"); err != nil {
			return err
		}

		if prevStatus == models.StageStatusQAFailed && stage.Kind() == models.StageKindTranslation {
			if target, ok := stage.Target(); ok {
				if err := resetEvaluationForRetranslation(tx, fileID, target); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("stage requeued",
		slog.String("file_id", fileID.String()),
		slog.String("stage", string(stage)),
	)
	return nil
}

// resetEvaluationForRetranslation returns a completed evaluation stage to
// not_started inside tx. Called when its translation is requeued from
// qa_failed; the old verdict belongs to the discarded translation.
func resetEvaluationForRetranslation(tx *gorm.DB, fileID uuid.UUID, target string) error {
	evalStage := models.EvaluationStage(target)

	var evalState models.StageState
	err := tx.Where("file_id = ? AND stage = ?", fileID, evalStage).First(&evalState).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrStageStateNotFound
		}
		return fmt.Errorf("getting evaluation state: %w", err)
	}
	if evalState.Status != models.StageStatusCompleted {
		return nil
	}

	prevStatus := evalState.Status
	evalState.ResetForRequeue()
	res := tx.Model(&models.StageState{}).
		Where("id = ?", evalState.ID).
		Select("Status", "LeaseOwner", "LeaseAcquiredAt", "LeaseDeadline", "LastTransitionAt").
		Updates(&evalState)
	if res.Error != nil {
		return fmt.Errorf("resetting evaluation stage: %w", res.Error)
	}

	return recordTransition(tx, &evalState, prevStatus, "translation requeued, verdict discarded")
}

// ReclaimExpiredLeases returns every in_progress stage whose lease
// deadline has passed to not_started, making it claimable again. The
// attempt counter is untouched: an expired lease is not a failed attempt.
// Returns the number of reclaimed leases.
func (s *Store) ReclaimExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	reclaimed := 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var states []models.StageState
		err := tx.Where("status = ?", models.StageStatusInProgress).
			Where("lease_deadline IS NULL OR lease_deadline <= ?", now).
			Find(&states).Error
		if err != nil {
			return fmt.Errorf("finding expired leases: %w", err)
		}

		for i := range states {
			state := &states[i]
			prevStatus := state.Status
			prevOwner := state.LeaseOwner
			state.ResetForRequeue()
			res := tx.Model(&models.StageState{}).
				Where("id = ? AND status = ?", state.ID, models.StageStatusInProgress).
				Select("Status", "LeaseOwner", "LeaseAcquiredAt", "LeaseDeadline", "LastTransitionAt").
				Updates(state)
			if res.Error != nil {
				return fmt.Errorf("reclaiming lease: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}

			if err := recordTransition(tx, state, prevStatus, "lease expired, reclaimed from "+prevOwner); err != nil {
				return err
			}
			reclaimed++

			s.logger.Warn("expired lease reclaimed",
				slog.String("file_id", state.FileID.String()),
				slog.String("stage", string(state.Stage)),
				slog.String("previous_owner", prevOwner),
			)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reclaimed, nil
}
