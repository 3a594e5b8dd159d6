package models

import "errors"

// ErrorKind categorizes a stage failure on the StageState record. Kinds are
// stable strings so operators can query and alert on them.
type ErrorKind string

const (
	// ErrorKindInputUnreadable indicates the source file is missing or zero-length.
	ErrorKindInputUnreadable ErrorKind = "input_unreadable"
	// ErrorKindInputTooLarge indicates the provider rejected the input size.
	ErrorKindInputTooLarge ErrorKind = "input_too_large"
	// ErrorKindProviderTransient indicates a retryable provider failure.
	ErrorKindProviderTransient ErrorKind = "provider_transient"
	// ErrorKindProviderRateLimited indicates the provider throttled the call.
	ErrorKindProviderRateLimited ErrorKind = "provider_rate_limited"
	// ErrorKindProviderExhausted indicates all retries were used.
	ErrorKindProviderExhausted ErrorKind = "provider_exhausted"
	// ErrorKindProviderAuth indicates invalid provider credentials.
	ErrorKindProviderAuth ErrorKind = "provider_auth"
	// ErrorKindProviderPermanent indicates a do-not-retry provider failure.
	ErrorKindProviderPermanent ErrorKind = "provider_permanent"
	// ErrorKindAlignmentMismatch indicates a translation returned the wrong segment count.
	ErrorKindAlignmentMismatch ErrorKind = "alignment_mismatch"
	// ErrorKindArtifactHashMismatch indicates an artifact read back differs from its recorded hash.
	ErrorKindArtifactHashMismatch ErrorKind = "artifact_hash_mismatch"
	// ErrorKindPrerequisiteMissing indicates a stage was claimed before its prerequisite completed.
	ErrorKindPrerequisiteMissing ErrorKind = "prerequisite_missing"
)

// Common validation and state errors for models.
var (
	// ErrSourcePathRequired indicates a required source path field is empty.
	ErrSourcePathRequired = errors.New("source_path is required")

	// ErrInvalidMediaKind indicates an invalid media kind.
	ErrInvalidMediaKind = errors.New("invalid media kind: must be 'audio' or 'video'")

	// ErrNegativeByteSize indicates a negative byte size.
	ErrNegativeByteSize = errors.New("byte_size must not be negative")

	// ErrInvalidStage indicates an undefined pipeline stage.
	ErrInvalidStage = errors.New("invalid stage")

	// ErrInvalidStageStatus indicates an undefined stage status.
	ErrInvalidStageStatus = errors.New("invalid stage status")

	// ErrNegativeSegmentIndex indicates a segment ordinal below zero.
	ErrNegativeSegmentIndex = errors.New("segment index must not be negative")

	// ErrInvalidTimeRange indicates a segment end before its start.
	ErrInvalidTimeRange = errors.New("end_ms must not be before start_ms")

	// ErrTargetRequired indicates a required target language field is empty.
	ErrTargetRequired = errors.New("target language is required")

	// ErrInvalidTarget indicates an unsupported target language.
	ErrInvalidTarget = errors.New("invalid target language")

	// ErrInvalidArtifactKind indicates an undefined artifact kind.
	ErrInvalidArtifactKind = errors.New("invalid artifact kind")

	// ErrArtifactHashRequired indicates a required artifact hash field is empty.
	ErrArtifactHashRequired = errors.New("artifact sha256 is required")

	// ErrFileNotFound indicates a media file was not found.
	ErrFileNotFound = errors.New("media file not found")

	// ErrStageStateNotFound indicates a stage state row was not found.
	ErrStageStateNotFound = errors.New("stage state not found")

	// ErrQAVerdictFromIncomplete indicates annotate was called on a stage not in completed.
	ErrQAVerdictFromIncomplete = errors.New("qa verdict requires a completed stage")

	// ErrRequeueFromInvalidStatus indicates requeue was called on a stage
	// that is neither failed nor a stalled in_progress.
	ErrRequeueFromInvalidStatus = errors.New("requeue requires failed or stalled in_progress")

	// ErrArtifactHashMismatch indicates an artifact read back from disk does
	// not match its recorded hash. Fatal to the scheduler process.
	ErrArtifactHashMismatch = errors.New("artifact hash mismatch")

	// ErrPrerequisiteMissing indicates a claim for a stage whose prerequisite
	// is not completed. Impossible while the store is correct; fatal.
	ErrPrerequisiteMissing = errors.New("stage prerequisite missing")
)
