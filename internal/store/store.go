// Package store is the durable state layer of the pipeline. All status
// transitions, lease handling, and prerequisite gating happen here inside
// transactions; workers never update stage rows directly.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/voxpipe/voxpipe/internal/models"
	"gorm.io/gorm"
)

// ErrLeaseLost indicates a completion or failure report from a worker
// whose lease was reclaimed in the meantime. The result is discarded.
var ErrLeaseLost = errors.New("lease no longer held by this worker")

// Store wraps the database with the pipeline's state operations.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New creates a store over the given GORM connection.
func New(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// RegisterFile registers a recording for processing. Registration is
// idempotent on (source_path, byte_size): re-registering the same file
// returns the existing record with created=false and touches nothing.
// A new file gets one not_started stage row per defined stage.
func (s *Store) RegisterFile(ctx context.Context, sourcePath string, byteSize int64, kind models.MediaKind) (*models.MediaFile, bool, error) {
	var file models.MediaFile
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("source_path = ? AND byte_size = ?", sourcePath, byteSize).
			First(&file).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("looking up file: %w", err)
		}

		file = models.MediaFile{
			SourcePath: sourcePath,
			ByteSize:   byteSize,
			Kind:       kind,
		}
		if err := tx.Create(&file).Error; err != nil {
			return fmt.Errorf("creating file: %w", err)
		}

		states := make([]models.StageState, 0, len(models.AllStages()))
		for _, stage := range models.AllStages() {
			states = append(states, models.StageState{
				FileID: file.ID,
				Stage:  stage,
				Status: models.StageStatusNotStarted,
			})
		}
		if err := tx.Create(&states).Error; err != nil {
			return fmt.Errorf("creating stage states: %w", err)
		}

		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.logger.Info("file registered",
			slog.String("file_id", file.ID.String()),
			slog.String("source_path", sourcePath),
			slog.Int64("byte_size", byteSize),
		)
	}
	return &file, created, nil
}

// FileByID returns a registered file.
func (s *Store) FileByID(ctx context.Context, id uuid.UUID) (*models.MediaFile, error) {
	var file models.MediaFile
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrFileNotFound
		}
		return nil, fmt.Errorf("getting file: %w", err)
	}
	return &file, nil
}

// ListFiles returns all registered files, newest first.
func (s *Store) ListFiles(ctx context.Context) ([]models.MediaFile, error) {
	var files []models.MediaFile
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

// ListFilesFiltered returns files whose stage rows match the given stage
// and status, newest first. Empty filters match everything.
func (s *Store) ListFilesFiltered(ctx context.Context, stage models.Stage, status models.StageStatus) ([]models.MediaFile, error) {
	if stage == "" && status == "" {
		return s.ListFiles(ctx)
	}

	sub := s.db.WithContext(ctx).Model(&models.StageState{}).Select("file_id")
	if stage != "" {
		sub = sub.Where("stage = ?", stage)
	}
	if status != "" {
		sub = sub.Where("status = ?", status)
	}

	var files []models.MediaFile
	err := s.db.WithContext(ctx).
		Where("id IN (?)", sub).
		Order("created_at DESC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("listing filtered files: %w", err)
	}
	return files, nil
}

// SetFileTranscriptionResult records the detected dominant language and
// duration of a file after transcription.
func (s *Store) SetFileTranscriptionResult(ctx context.Context, fileID uuid.UUID, sourceLanguage string, durationMs int64) error {
	res := s.db.WithContext(ctx).Model(&models.MediaFile{}).
		Where("id = ?", fileID).
		Updates(map[string]any{
			"source_language": sourceLanguage,
			"duration_ms":     durationMs,
		})
	if res.Error != nil {
		return fmt.Errorf("updating file: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrFileNotFound
	}
	return nil
}

// StageStateFor returns the state row for one (file, stage) pair.
func (s *Store) StageStateFor(ctx context.Context, fileID uuid.UUID, stage models.Stage) (*models.StageState, error) {
	var state models.StageState
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND stage = ?", fileID, stage).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrStageStateNotFound
		}
		return nil, fmt.Errorf("getting stage state: %w", err)
	}
	return &state, nil
}

// StatesForFile returns all stage rows of one file in canonical stage order.
func (s *Store) StatesForFile(ctx context.Context, fileID uuid.UUID) ([]models.StageState, error) {
	var states []models.StageState
	if err := s.db.WithContext(ctx).Where("file_id = ?", fileID).Find(&states).Error; err != nil {
		return nil, fmt.Errorf("getting stage states: %w", err)
	}

	ordered := make([]models.StageState, 0, len(states))
	for _, stage := range models.AllStages() {
		for i := range states {
			if states[i].Stage == stage {
				ordered = append(ordered, states[i])
				break
			}
		}
	}
	return ordered, nil
}

// StageCounts is the per-status breakdown of one stage.
type StageCounts map[models.StageStatus]int

// Snapshot is a point-in-time view of the whole pipeline.
type Snapshot struct {
	Files  int64                        `json:"files"`
	Stages map[models.Stage]StageCounts `json:"stages"`
}

// Snapshot aggregates stage counts across all files.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Stages: make(map[models.Stage]StageCounts)}

	if err := s.db.WithContext(ctx).Model(&models.MediaFile{}).Count(&snap.Files).Error; err != nil {
		return nil, fmt.Errorf("counting files: %w", err)
	}

	var rows []struct {
		Stage  models.Stage
		Status models.StageStatus
		N      int
	}
	err := s.db.WithContext(ctx).Model(&models.StageState{}).
		Select("stage, status, COUNT(*) AS n").
		Group("stage, status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting stage states: %w", err)
	}

	for _, r := range rows {
		if snap.Stages[r.Stage] == nil {
			snap.Stages[r.Stage] = make(StageCounts)
		}
		snap.Stages[r.Stage][r.Status] = r.N
	}
	return snap, nil
}

// recordTransition appends one row to the transition history inside tx.
func recordTransition(tx *gorm.DB, state *models.StageState, from models.StageStatus, detail string) error {
	tr := models.StageTransition{
		FileID:     state.FileID,
		Stage:      state.Stage,
		FromStatus: from,
		ToStatus:   state.Status,
		ErrorKind:  state.LastErrorKind,
		Detail:     detail,
		Attempt:    state.AttemptCount,
		LeaseOwner: state.LeaseOwner,
	}
	if state.Status != models.StageStatusFailed {
		tr.ErrorKind = ""
	}
	if err := tx.Create(&tr).Error; err != nil {
		return fmt.Errorf("recording transition: %w", err)
	}
	return nil
}

// TransitionsForFile returns the transition history of one file, oldest first.
func (s *Store) TransitionsForFile(ctx context.Context, fileID uuid.UUID) ([]models.StageTransition, error) {
	var transitions []models.StageTransition
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("id ASC").
		Find(&transitions).Error
	if err != nil {
		return nil, fmt.Errorf("getting transitions: %w", err)
	}
	return transitions, nil
}
