package models

import "github.com/google/uuid"

// StageTransition is an append-only record of one stage status change.
// Kept separate from stage_states so the hot table stays lean.
type StageTransition struct {
	BaseModel

	// FileID is the owning media file.
	FileID uuid.UUID `gorm:"type:varchar(36);not null;index" json:"file_id"`

	// Stage is the pipeline step that transitioned.
	Stage Stage `gorm:"not null;size:20;index" json:"stage"`

	// FromStatus and ToStatus bracket the transition.
	FromStatus StageStatus `gorm:"size:20" json:"from_status"`
	ToStatus   StageStatus `gorm:"not null;size:20;index" json:"to_status"`

	// ErrorKind categorizes the failure for failed transitions.
	ErrorKind ErrorKind `gorm:"size:40" json:"error_kind,omitempty"`

	// Detail carries the error message or a short note.
	Detail string `gorm:"size:4096" json:"detail,omitempty"`

	// Attempt is the attempt counter after the transition.
	Attempt int `json:"attempt"`

	// LeaseOwner is the worker involved, if any.
	LeaseOwner string `gorm:"size:100" json:"lease_owner,omitempty"`
}

// TableName returns the table name for StageTransition.
func (StageTransition) TableName() string {
	return "stage_transitions"
}

// ProviderCallOutcomeOK marks a successful provider call in the call log.
const ProviderCallOutcomeOK = "ok"

// ProviderCall is an append-only record of one adapter invocation. It is the
// audit trail for billed provider work: resumed files must show no duplicate
// calls for already-translated segments.
type ProviderCall struct {
	BaseModel

	// FileID is the media file the call was made for.
	FileID uuid.UUID `gorm:"type:varchar(36);not null;index" json:"file_id"`

	// Stage is the pipeline step that issued the call.
	Stage Stage `gorm:"not null;size:20;index" json:"stage"`

	// Capability is transcription, translation, or evaluation.
	Capability string `gorm:"not null;size:20" json:"capability"`

	// Provider is the adapter name the call was routed to.
	Provider string `gorm:"not null;size:50;index" json:"provider"`

	// Target is the language code for translation/evaluation calls.
	Target string `gorm:"size:8" json:"target,omitempty"`

	// SegmentsIn and SegmentsOut count the segments sent and received.
	SegmentsIn  int `json:"segments_in"`
	SegmentsOut int `json:"segments_out"`

	// Outcome is "ok" or the error kind the call surfaced.
	Outcome string `gorm:"not null;size:40" json:"outcome"`

	// DurationMs is the call duration in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// TableName returns the table name for ProviderCall.
func (ProviderCall) TableName() string {
	return "provider_calls"
}
