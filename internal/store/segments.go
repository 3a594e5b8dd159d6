package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/voxpipe/voxpipe/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// segmentBatchSize bounds segment inserts; multi-hour interviews can run
// to thousands of segments.
const segmentBatchSize = 500

// ReplaceSegments atomically replaces the segment set of a file. Used by
// the transcription worker, whose re-runs must not leave a mix of old and
// new segments behind.
func (s *Store) ReplaceSegments(ctx context.Context, fileID uuid.UUID, segments []models.Segment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", fileID).Delete(&models.Segment{}).Error; err != nil {
			return fmt.Errorf("deleting old segments: %w", err)
		}
		if len(segments) == 0 {
			return nil
		}
		for i := range segments {
			segments[i].FileID = fileID
		}
		if err := tx.CreateInBatches(segments, segmentBatchSize).Error; err != nil {
			return fmt.Errorf("inserting segments: %w", err)
		}
		return nil
	})
}

// SegmentsForFile returns the segments of a file ordered by ordinal.
func (s *Store) SegmentsForFile(ctx context.Context, fileID uuid.UUID) ([]models.Segment, error) {
	var segments []models.Segment
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("idx ASC").
		Find(&segments).Error
	if err != nil {
		return nil, fmt.Errorf("getting segments: %w", err)
	}
	return segments, nil
}

// SaveTranslations persists translated texts. Rows already present for a
// (file, idx, target) key are left untouched: resumed runs re-translate
// nothing and the first write wins.
func (s *Store) SaveTranslations(ctx context.Context, translations []models.SegmentTranslation) error {
	if len(translations) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "file_id"}, {Name: "idx"}, {Name: "target"},
		},
		DoNothing: true,
	}).CreateInBatches(translations, segmentBatchSize).Error
	if err != nil {
		return fmt.Errorf("saving translations: %w", err)
	}
	return nil
}

// TranslationsForFile returns the stored translations of one target
// ordered by segment ordinal.
func (s *Store) TranslationsForFile(ctx context.Context, fileID uuid.UUID, target string) ([]models.SegmentTranslation, error) {
	var translations []models.SegmentTranslation
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND target = ?", fileID, target).
		Order("idx ASC").
		Find(&translations).Error
	if err != nil {
		return nil, fmt.Errorf("getting translations: %w", err)
	}
	return translations, nil
}

// FirstMissingTranslation returns the lowest segment ordinal of a file
// that has no stored translation for the target. The second return value
// is false when every segment is translated. Resume points come from
// here, never from scratch.
func (s *Store) FirstMissingTranslation(ctx context.Context, fileID uuid.UUID, target string) (int, bool, error) {
	var idxs []int
	err := s.db.WithContext(ctx).Model(&models.Segment{}).
		Select("segments.idx").
		Joins("LEFT JOIN segment_translations t ON t.file_id = segments.file_id AND t.idx = segments.idx AND t.target = ?", target).
		Where("segments.file_id = ? AND t.id IS NULL", fileID).
		Order("segments.idx ASC").
		Limit(1).
		Pluck("segments.idx", &idxs).Error
	if err != nil {
		return 0, false, fmt.Errorf("finding resume point: %w", err)
	}
	if len(idxs) == 0 {
		return 0, false, nil
	}
	return idxs[0], true, nil
}

// RecordArtifact upserts one artifact index row outside the completion
// path. Complete indexes artifacts itself; this exists for the verify
// maintenance pass to refresh byte sizes.
func (s *Store) RecordArtifact(ctx context.Context, artifact *models.Artifact) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "file_id"}, {Name: "stage"}, {Name: "kind"}, {Name: "target"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"sha256", "byte_size", "updated_at"}),
	}).Create(artifact).Error
	if err != nil {
		return fmt.Errorf("recording artifact: %w", err)
	}
	return nil
}

// ArtifactsForFile returns all indexed artifacts of a file.
func (s *Store) ArtifactsForFile(ctx context.Context, fileID uuid.UUID) ([]models.Artifact, error) {
	var artifacts []models.Artifact
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("stage, kind, target").
		Find(&artifacts).Error
	if err != nil {
		return nil, fmt.Errorf("getting artifacts: %w", err)
	}
	return artifacts, nil
}

// AllArtifacts returns every indexed artifact, for the verify pass.
func (s *Store) AllArtifacts(ctx context.Context) ([]models.Artifact, error) {
	var artifacts []models.Artifact
	if err := s.db.WithContext(ctx).Find(&artifacts).Error; err != nil {
		return nil, fmt.Errorf("getting artifacts: %w", err)
	}
	return artifacts, nil
}

// RecordProviderCall appends one row to the provider call log.
func (s *Store) RecordProviderCall(ctx context.Context, call *models.ProviderCall) error {
	if err := s.db.WithContext(ctx).Create(call).Error; err != nil {
		return fmt.Errorf("recording provider call: %w", err)
	}
	return nil
}

// ProviderCallsForFile returns the call log of one file, oldest first.
func (s *Store) ProviderCallsForFile(ctx context.Context, fileID uuid.UUID) ([]models.ProviderCall, error) {
	var calls []models.ProviderCall
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("id ASC").
		Find(&calls).Error
	if err != nil {
		return nil, fmt.Errorf("getting provider calls: %w", err)
	}
	return calls, nil
}
