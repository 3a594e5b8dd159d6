package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllStages(t *testing.T) {
	stages := AllStages()
	require.Len(t, stages, 7)

	assert.Equal(t, StageTranscription, stages[0])
	assert.Equal(t, []Stage{
		StageTranscription,
		StageTranslationEN, StageTranslationDE, StageTranslationHE,
		StageEvaluationEN, StageEvaluationDE, StageEvaluationHE,
	}, stages)
}

func TestStageKind(t *testing.T) {
	tests := []struct {
		stage Stage
		kind  StageKind
	}{
		{StageTranscription, StageKindTranscription},
		{StageTranslationEN, StageKindTranslation},
		{StageTranslationDE, StageKindTranslation},
		{StageTranslationHE, StageKindTranslation},
		{StageEvaluationEN, StageKindEvaluation},
		{StageEvaluationHE, StageKindEvaluation},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.stage.Kind())
		})
	}
}

func TestStageTarget(t *testing.T) {
	target, ok := StageTranslationDE.Target()
	require.True(t, ok)
	assert.Equal(t, "de", target)

	target, ok = StageEvaluationHE.Target()
	require.True(t, ok)
	assert.Equal(t, "he", target)

	_, ok = StageTranscription.Target()
	assert.False(t, ok)
}

func TestStagePrerequisite(t *testing.T) {
	t.Run("transcription has none", func(t *testing.T) {
		_, ok := StageTranscription.Prerequisite()
		assert.False(t, ok)
	})

	t.Run("translation requires transcription", func(t *testing.T) {
		for _, target := range Targets {
			prereq, ok := TranslationStage(target).Prerequisite()
			require.True(t, ok)
			assert.Equal(t, StageTranscription, prereq)
		}
	})

	t.Run("evaluation requires matching translation", func(t *testing.T) {
		prereq, ok := StageEvaluationHE.Prerequisite()
		require.True(t, ok)
		assert.Equal(t, StageTranslationHE, prereq)
	})
}

func TestParseStage(t *testing.T) {
	stage, err := ParseStage("translation_en")
	require.NoError(t, err)
	assert.Equal(t, StageTranslationEN, stage)

	_, err = ParseStage("translation_fr")
	assert.ErrorIs(t, err, ErrInvalidStage)

	_, err = ParseStage("")
	assert.ErrorIs(t, err, ErrInvalidStage)
}

func TestStatusSatisfiesPrerequisite(t *testing.T) {
	assert.True(t, StageStatusCompleted.SatisfiesPrerequisite())
	assert.True(t, StageStatusQACompleted.SatisfiesPrerequisite())
	assert.False(t, StageStatusQAFailed.SatisfiesPrerequisite())
	assert.False(t, StageStatusInProgress.SatisfiesPrerequisite())
	assert.False(t, StageStatusNotStarted.SatisfiesPrerequisite())
	assert.False(t, StageStatusFailed.SatisfiesPrerequisite())
}
