package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StageStatus represents the lifecycle state of one (file, stage) pair.
type StageStatus string

const (
	// StageStatusNotStarted indicates the stage has never run or was requeued.
	StageStatusNotStarted StageStatus = "not_started"
	// StageStatusInProgress indicates a worker holds a lease on the stage.
	StageStatusInProgress StageStatus = "in_progress"
	// StageStatusCompleted indicates the stage finished and its artifacts are indexed.
	StageStatusCompleted StageStatus = "completed"
	// StageStatusQACompleted indicates evaluation scored the stage at or above threshold.
	StageStatusQACompleted StageStatus = "qa_completed"
	// StageStatusQAFailed indicates evaluation scored the stage below threshold.
	StageStatusQAFailed StageStatus = "qa_failed"
	// StageStatusFailed indicates the last attempt failed; eligible for requeue.
	StageStatusFailed StageStatus = "failed"
)

// Valid reports whether the status is one of the defined statuses.
func (s StageStatus) Valid() bool {
	switch s {
	case StageStatusNotStarted, StageStatusInProgress, StageStatusCompleted,
		StageStatusQACompleted, StageStatusQAFailed, StageStatusFailed:
		return true
	}
	return false
}

// SatisfiesPrerequisite reports whether a prerequisite stage in this status
// unblocks its dependent stage.
func (s StageStatus) SatisfiesPrerequisite() bool {
	return s == StageStatusCompleted || s == StageStatusQACompleted
}

// StageState tracks the status, attempts, last error, and lease of one
// (file, stage) pair. Exactly one row exists per defined stage per file.
type StageState struct {
	BaseModel

	// FileID is the owning media file.
	FileID uuid.UUID `gorm:"type:varchar(36);not null;uniqueIndex:idx_stage_states_file_stage;index" json:"file_id"`

	// Stage is the pipeline step this row tracks.
	Stage Stage `gorm:"not null;size:20;uniqueIndex:idx_stage_states_file_stage;index" json:"stage"`

	// Status is the current lifecycle state.
	Status StageStatus `gorm:"not null;default:'not_started';size:20;index" json:"status"`

	// LastStartedAt is when the stage last entered in_progress.
	LastStartedAt *Time `json:"last_started_at,omitempty"`

	// LastCompletedAt is when the stage last entered completed.
	LastCompletedAt *Time `json:"last_completed_at,omitempty"`

	// AttemptCount is the number of failed executions. It never decreases;
	// rate-limited provider calls do not count.
	AttemptCount int `gorm:"default:0" json:"attempt_count"`

	// LastErrorKind categorizes the most recent failure.
	LastErrorKind ErrorKind `gorm:"size:40" json:"last_error_kind,omitempty"`

	// LastErrorDetail is the human-readable detail of the most recent failure.
	LastErrorDetail string `gorm:"size:4096" json:"last_error_detail,omitempty"`

	// LeaseOwner is the worker id holding the stage in_progress.
	LeaseOwner string `gorm:"size:100;index" json:"lease_owner,omitempty"`

	// LeaseAcquiredAt is when the current lease was taken.
	LeaseAcquiredAt *Time `json:"lease_acquired_at,omitempty"`

	// LeaseDeadline is when the current lease expires and becomes reclaimable.
	LeaseDeadline *Time `gorm:"index" json:"lease_deadline,omitempty"`

	// LastTransitionAt orders claims FIFO within a stage.
	LastTransitionAt Time `gorm:"not null;index" json:"last_transition_at"`
}

// TableName returns the table name for StageState.
func (StageState) TableName() string {
	return "stage_states"
}

// HasLiveLease reports whether a lease exists and has not expired.
func (s *StageState) HasLiveLease(now time.Time) bool {
	return s.LeaseOwner != "" && s.LeaseDeadline != nil && s.LeaseDeadline.After(now)
}

// LeaseExpired reports whether the stage is in_progress with an expired lease.
func (s *StageState) LeaseExpired(now time.Time) bool {
	if s.Status != StageStatusInProgress {
		return false
	}
	return s.LeaseDeadline == nil || !s.LeaseDeadline.After(now)
}

// releaseLease clears the lease fields.
func (s *StageState) releaseLease() {
	s.LeaseOwner = ""
	s.LeaseAcquiredAt = nil
	s.LeaseDeadline = nil
}

// MarkInProgress transitions the stage to in_progress and assigns a lease.
// Attempts are counted on failure, not on claim, so rate-limited work that
// eventually succeeds leaves the counter untouched.
func (s *StageState) MarkInProgress(owner string, ttl time.Duration) {
	now := Now()
	s.Status = StageStatusInProgress
	s.LastStartedAt = &now
	s.LeaseOwner = owner
	s.LeaseAcquiredAt = &now
	deadline := now.Add(ttl)
	s.LeaseDeadline = &deadline
	s.LastTransitionAt = now
}

// MarkCompleted transitions the stage to completed and releases the lease.
func (s *StageState) MarkCompleted() {
	now := Now()
	s.Status = StageStatusCompleted
	s.LastCompletedAt = &now
	s.LastErrorKind = ""
	s.LastErrorDetail = ""
	s.releaseLease()
	s.LastTransitionAt = now
}

// MarkFailed transitions the stage to failed, records the error, increments
// the attempt counter, and releases the lease.
func (s *StageState) MarkFailed(kind ErrorKind, detail string) {
	now := Now()
	s.Status = StageStatusFailed
	s.AttemptCount++
	s.LastErrorKind = kind
	s.LastErrorDetail = detail
	s.releaseLease()
	s.LastTransitionAt = now
}

// MarkQA annotates a completed stage with the evaluation verdict.
func (s *StageState) MarkQA(passed bool) {
	if passed {
		s.Status = StageStatusQACompleted
	} else {
		s.Status = StageStatusQAFailed
	}
	s.LastTransitionAt = Now()
}

// ResetForRequeue returns the stage to not_started, keeping the attempt
// counter and the last error for diagnosis.
func (s *StageState) ResetForRequeue() {
	s.Status = StageStatusNotStarted
	s.releaseLease()
	s.LastTransitionAt = Now()
}

// Validate performs basic validation on the stage state.
func (s *StageState) Validate() error {
	if !s.Stage.Valid() {
		return ErrInvalidStage
	}
	if s.Status != "" && !s.Status.Valid() {
		return ErrInvalidStageStatus
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the state and generates the ULID.
func (s *StageState) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if s.LastTransitionAt.IsZero() {
		s.LastTransitionAt = Now()
	}
	return s.Validate()
}

// BeforeUpdate is a GORM hook. Guarded partial updates run it against the
// empty Model receiver, so only the fields an update actually carries are
// checked; required-field validation belongs to BeforeCreate.
func (s *StageState) BeforeUpdate(tx *gorm.DB) error {
	if s.Stage != "" && !s.Stage.Valid() {
		return ErrInvalidStage
	}
	if s.Status != "" && !s.Status.Valid() {
		return ErrInvalidStageStatus
	}
	return nil
}
