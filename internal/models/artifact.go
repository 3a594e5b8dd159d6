package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ArtifactKind identifies what an on-disk artifact contains. Paths are never
// stored: they derive from (file id, kind, target) through the layout.
type ArtifactKind string

const (
	// ArtifactTranscriptText is the timecoded plain-text transcript.
	ArtifactTranscriptText ArtifactKind = "transcript_text"
	// ArtifactTranscriptSRT is the source-language subtitle file.
	ArtifactTranscriptSRT ArtifactKind = "transcript_srt"
	// ArtifactTranslationText is the plain-text translation for one target.
	ArtifactTranslationText ArtifactKind = "translation_text"
	// ArtifactTranslationSRT is the subtitle file for one target.
	ArtifactTranslationSRT ArtifactKind = "translation_srt"
	// ArtifactEvaluationReport is the JSON quality report for one target.
	ArtifactEvaluationReport ArtifactKind = "evaluation_report"
)

// Valid reports whether the artifact kind is defined.
func (k ArtifactKind) Valid() bool {
	switch k {
	case ArtifactTranscriptText, ArtifactTranscriptSRT,
		ArtifactTranslationText, ArtifactTranslationSRT,
		ArtifactEvaluationReport:
		return true
	}
	return false
}

// RequiredArtifactKinds returns the artifact kinds a stage must produce
// before it may transition to completed.
func RequiredArtifactKinds(stage Stage) []ArtifactKind {
	switch stage.Kind() {
	case StageKindTranscription:
		return []ArtifactKind{ArtifactTranscriptText, ArtifactTranscriptSRT}
	case StageKindTranslation:
		return []ArtifactKind{ArtifactTranslationText, ArtifactTranslationSRT}
	case StageKindEvaluation:
		return []ArtifactKind{ArtifactEvaluationReport}
	default:
		return nil
	}
}

// Artifact indexes one materialized on-disk file owned by a (file, stage)
// pair. A stage is completed only if all required artifacts exist with
// matching hashes.
type Artifact struct {
	BaseModel

	// FileID is the owning media file.
	FileID uuid.UUID `gorm:"type:varchar(36);not null;uniqueIndex:idx_artifacts_file_stage_kind_target;index" json:"file_id"`

	// Stage is the pipeline step that produced the artifact.
	Stage Stage `gorm:"not null;size:20;uniqueIndex:idx_artifacts_file_stage_kind_target" json:"stage"`

	// Kind is what the artifact contains.
	Kind ArtifactKind `gorm:"not null;size:20;uniqueIndex:idx_artifacts_file_stage_kind_target" json:"kind"`

	// Target is the language code for translation/evaluation artifacts,
	// empty for transcription artifacts.
	Target string `gorm:"size:8;uniqueIndex:idx_artifacts_file_stage_kind_target" json:"target,omitempty"`

	// SHA256 is the hex digest of the artifact bytes at write time.
	SHA256 string `gorm:"not null;size:64" json:"sha256"`

	// ByteSize is the artifact size at write time.
	ByteSize int64 `json:"byte_size"`
}

// TableName returns the table name for Artifact.
func (Artifact) TableName() string {
	return "artifacts"
}

// Validate performs basic validation on the artifact.
func (a *Artifact) Validate() error {
	if !a.Stage.Valid() {
		return ErrInvalidStage
	}
	if !a.Kind.Valid() {
		return ErrInvalidArtifactKind
	}
	if a.SHA256 == "" {
		return ErrArtifactHashRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the artifact and generates the ULID.
func (a *Artifact) BeforeCreate(tx *gorm.DB) error {
	if err := a.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return a.Validate()
}
