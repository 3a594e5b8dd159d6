package models

import "fmt"

// Stage identifies one step of the processing pipeline for a file.
type Stage string

const (
	// StageTranscription converts source audio into timecoded segments.
	StageTranscription Stage = "transcription"
	// StageTranslationEN translates segments into English.
	StageTranslationEN Stage = "translation_en"
	// StageTranslationDE translates segments into German.
	StageTranslationDE Stage = "translation_de"
	// StageTranslationHE translates segments into Hebrew.
	StageTranslationHE Stage = "translation_he"
	// StageEvaluationEN scores the English translation.
	StageEvaluationEN Stage = "evaluation_en"
	// StageEvaluationDE scores the German translation.
	StageEvaluationDE Stage = "evaluation_de"
	// StageEvaluationHE scores the Hebrew translation.
	StageEvaluationHE Stage = "evaluation_he"
)

// StageKind groups stages that share concurrency caps and lease settings.
type StageKind string

const (
	// StageKindTranscription covers the transcription stage.
	StageKindTranscription StageKind = "transcription"
	// StageKindTranslation covers all translation_{target} stages.
	StageKindTranslation StageKind = "translation"
	// StageKindEvaluation covers all evaluation_{target} stages.
	StageKindEvaluation StageKind = "evaluation"
)

// Targets lists the translation target languages in canonical order.
var Targets = []string{"en", "de", "he"}

// AllStages returns every defined stage in canonical order: transcription
// first, then translations, then evaluations.
func AllStages() []Stage {
	stages := make([]Stage, 0, 1+2*len(Targets))
	stages = append(stages, StageTranscription)
	for _, t := range Targets {
		stages = append(stages, TranslationStage(t))
	}
	for _, t := range Targets {
		stages = append(stages, EvaluationStage(t))
	}
	return stages
}

// TranslationStage returns the translation stage for a target language.
func TranslationStage(target string) Stage {
	return Stage("translation_" + target)
}

// EvaluationStage returns the evaluation stage for a target language.
func EvaluationStage(target string) Stage {
	return Stage("evaluation_" + target)
}

// ParseStage parses a stage name.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if !stage.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStage, s)
	}
	return stage, nil
}

// Valid reports whether the stage is one of the defined stages.
func (s Stage) Valid() bool {
	for _, defined := range AllStages() {
		if s == defined {
			return true
		}
	}
	return false
}

// Kind returns the stage kind (transcription, translation, evaluation).
func (s Stage) Kind() StageKind {
	switch {
	case s == StageTranscription:
		return StageKindTranscription
	case len(s) > len("translation_") && s[:len("translation_")] == "translation_":
		return StageKindTranslation
	case len(s) > len("evaluation_") && s[:len("evaluation_")] == "evaluation_":
		return StageKindEvaluation
	default:
		return ""
	}
}

// Target returns the target language of a translation or evaluation stage.
// The second return value is false for the transcription stage.
func (s Stage) Target() (string, bool) {
	switch s.Kind() {
	case StageKindTranslation:
		return string(s[len("translation_"):]), true
	case StageKindEvaluation:
		return string(s[len("evaluation_"):]), true
	default:
		return "", false
	}
}

// Prerequisite returns the stage that must be completed (or qa_completed)
// before this stage may start. The second return value is false for
// transcription, which has no prerequisite.
func (s Stage) Prerequisite() (Stage, bool) {
	switch s.Kind() {
	case StageKindTranslation:
		return StageTranscription, true
	case StageKindEvaluation:
		target, _ := s.Target()
		return TranslationStage(target), true
	default:
		return "", false
	}
}
