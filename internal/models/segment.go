package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Segment is one timecoded utterance of a transcript. Segments of a file are
// dense and strictly ordered by Idx; end_ms never exceeds the next segment's
// start_ms unless Overlaps is set.
type Segment struct {
	BaseModel

	// FileID is the owning media file.
	FileID uuid.UUID `gorm:"type:varchar(36);not null;uniqueIndex:idx_segments_file_idx;index" json:"file_id"`

	// Idx is the 0-based dense ordinal within the file.
	Idx int `gorm:"not null;uniqueIndex:idx_segments_file_idx" json:"idx"`

	// StartMs and EndMs are source timecodes in milliseconds.
	StartMs int64 `gorm:"not null" json:"start_ms"`
	EndMs   int64 `gorm:"not null" json:"end_ms"`

	// SourceText is the transcribed text as returned by the provider.
	SourceText string `gorm:"size:8192" json:"source_text"`

	// Language is the detected language of this segment. Empty until
	// detection has run; short segments inherit from preceding segments.
	Language string `gorm:"size:16" json:"language,omitempty"`

	// NonVerbal marks segments whose text is a single bracketed marker such
	// as [pause]. They are skipped by translation and emitted verbatim.
	NonVerbal bool `gorm:"default:false" json:"non_verbal"`

	// Overlaps marks a segment explicitly allowed to overlap its successor.
	Overlaps bool `gorm:"default:false" json:"overlaps,omitempty"`
}

// TableName returns the table name for Segment.
func (Segment) TableName() string {
	return "segments"
}

// DurationMs returns the segment duration in milliseconds.
func (s *Segment) DurationMs() int64 {
	return s.EndMs - s.StartMs
}

// Validate performs basic validation on the segment.
func (s *Segment) Validate() error {
	if s.Idx < 0 {
		return ErrNegativeSegmentIndex
	}
	if s.EndMs < s.StartMs {
		return ErrInvalidTimeRange
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the segment and generates the ULID.
func (s *Segment) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return s.Validate()
}

// ProviderPassthrough is the provider name recorded for segments that needed
// no translation call: non-verbal markers and segments already in the target
// language.
const ProviderPassthrough = "passthrough"

// SegmentTranslation stores the translated text of one segment for one
// target language. Keyed by (file, idx, target) so workers resume from the
// first missing ordinal without joining on segment ids.
type SegmentTranslation struct {
	BaseModel

	// FileID is the owning media file.
	FileID uuid.UUID `gorm:"type:varchar(36);not null;uniqueIndex:idx_segment_translations_file_idx_target;index" json:"file_id"`

	// Idx is the segment ordinal this translation belongs to.
	Idx int `gorm:"not null;uniqueIndex:idx_segment_translations_file_idx_target" json:"idx"`

	// Target is the translation target language code.
	Target string `gorm:"not null;size:8;uniqueIndex:idx_segment_translations_file_idx_target" json:"target"`

	// Text is the translated text.
	Text string `gorm:"size:8192" json:"text"`

	// Provider is the adapter that produced the text, or "passthrough".
	Provider string `gorm:"size:50" json:"provider,omitempty"`
}

// TableName returns the table name for SegmentTranslation.
func (SegmentTranslation) TableName() string {
	return "segment_translations"
}

// Validate performs basic validation on the translation.
func (t *SegmentTranslation) Validate() error {
	if t.Idx < 0 {
		return ErrNegativeSegmentIndex
	}
	if t.Target == "" {
		return ErrTargetRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the translation and generates the ULID.
func (t *SegmentTranslation) BeforeCreate(tx *gorm.DB) error {
	if err := t.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return t.Validate()
}
