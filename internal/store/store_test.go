package store

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxpipe/voxpipe/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.MediaFile{},
		&models.StageState{},
		&models.Segment{},
		&models.SegmentTranslation{},
		&models.Artifact{},
		&models.StageTransition{},
		&models.ProviderCall{},
	)
	require.NoError(t, err)

	return New(db, nil)
}

func registerTestFile(t *testing.T, s *Store, path string) *models.MediaFile {
	t.Helper()
	file, created, err := s.RegisterFile(context.Background(), path, 1024, models.MediaKindAudio)
	require.NoError(t, err)
	require.True(t, created)
	return file
}

// completeTranscription drives a file's transcription stage to completed
// so dependent stages become claimable.
func completeTranscription(t *testing.T, s *Store, fileID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	task, err := s.Claim(ctx, models.StageTranscription, "setup-worker", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, fileID, task.File.ID)
	require.NoError(t, s.Complete(ctx, fileID, models.StageTranscription, "setup-worker", []models.Artifact{
		{Kind: models.ArtifactTranscriptText, SHA256: "aa"},
		{Kind: models.ArtifactTranscriptSRT, SHA256: "bb"},
	}))
}

func TestRegisterFileIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, created, err := s.RegisterFile(ctx, "/media/interview-001.mp3", 1024, models.MediaKindAudio)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, uuid.Nil, first.ID)

	second, created, err := s.RegisterFile(ctx, "/media/interview-001.mp3", 1024, models.MediaKindAudio)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// Same path with a different size is a different recording.
	third, created, err := s.RegisterFile(ctx, "/media/interview-001.mp3", 2048, models.MediaKindAudio)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestRegisterFileCreatesAllStageRows(t *testing.T) {
	s := setupTestStore(t)
	file := registerTestFile(t, s, "/media/interview-002.mp3")

	states, err := s.StatesForFile(context.Background(), file.ID)
	require.NoError(t, err)
	require.Len(t, states, len(models.AllStages()))

	for i, stage := range models.AllStages() {
		assert.Equal(t, stage, states[i].Stage)
		assert.Equal(t, models.StageStatusNotStarted, states[i].Status)
		assert.Zero(t, states[i].AttemptCount)
	}
}

func TestClaimIsFIFO(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := registerTestFile(t, s, "/media/a.mp3")
	time.Sleep(5 * time.Millisecond)
	second := registerTestFile(t, s, "/media/b.mp3")

	task, err := s.Claim(ctx, models.StageTranscription, "w1", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, first.ID, task.File.ID, "oldest transition claims first")
	assert.Equal(t, models.StageStatusInProgress, task.State.Status)
	assert.Equal(t, "w1", task.State.LeaseOwner)
	require.NotNil(t, task.State.LeaseDeadline)

	task2, err := s.Claim(ctx, models.StageTranscription, "w2", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task2)
	assert.Equal(t, second.ID, task2.File.ID)

	// Both rows leased: nothing left to claim.
	task3, err := s.Claim(ctx, models.StageTranscription, "w3", time.Hour, 5)
	require.NoError(t, err)
	assert.Nil(t, task3)
}

func TestClaimGatesOnPrerequisite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/c.mp3")

	// Transcription not completed: translation stages are invisible.
	task, err := s.Claim(ctx, models.StageTranslationEN, "w1", time.Hour, 5)
	require.NoError(t, err)
	assert.Nil(t, task)

	completeTranscription(t, s, file.ID)

	task, err = s.Claim(ctx, models.StageTranslationEN, "w1", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, file.ID, task.File.ID)

	// Evaluation needs its translation completed, not just transcription.
	evalTask, err := s.Claim(ctx, models.StageEvaluationEN, "w2", time.Hour, 5)
	require.NoError(t, err)
	assert.Nil(t, evalTask)
}

func TestClaimRespectsAttemptCeiling(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/d.mp3")

	for i := 0; i < 2; i++ {
		task, err := s.Claim(ctx, models.StageTranscription, "w1", time.Hour, 2)
		require.NoError(t, err)
		require.NotNil(t, task, "claim %d", i)
		require.NoError(t, s.Fail(ctx, file.ID, models.StageTranscription, "w1",
			models.ErrorKindProviderTransient, "503"))
		require.NoError(t, s.Requeue(ctx, file.ID, models.StageTranscription))
	}

	state, err := s.StageStateFor(ctx, file.ID, models.StageTranscription)
	require.NoError(t, err)
	assert.Equal(t, 2, state.AttemptCount)

	// attempt_count reached max_attempts: no longer claimable even though
	// the row sits at not_started.
	task, err := s.Claim(ctx, models.StageTranscription, "w1", time.Hour, 2)
	require.NoError(t, err)
	assert.Nil(t, task)

	// A higher ceiling makes it claimable again.
	task, err = s.Claim(ctx, models.StageTranscription, "w1", time.Hour, 3)
	require.NoError(t, err)
	assert.NotNil(t, task)
}

func TestClaimNeverRetriesFailedAutomatically(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/d2.mp3")

	task, err := s.Claim(ctx, models.StageTranscription, "w1", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, s.Fail(ctx, file.ID, models.StageTranscription, "w1",
		models.ErrorKindInputUnreadable, "no such file"))

	// A failed row stays failed until an operator requeues it, whatever
	// the error kind and however many attempts remain.
	task, err = s.Claim(ctx, models.StageTranscription, "w2", time.Hour, 5)
	require.NoError(t, err)
	assert.Nil(t, task)

	state, err := s.StageStateFor(ctx, file.ID, models.StageTranscription)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusFailed, state.Status)

	require.NoError(t, s.Requeue(ctx, file.ID, models.StageTranscription))
	task, err = s.Claim(ctx, models.StageTranscription, "w2", time.Hour, 5)
	require.NoError(t, err)
	assert.NotNil(t, task)
}

func TestCompleteRequiresAllArtifacts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/e.mp3")

	task, err := s.Claim(ctx, models.StageTranscription, "w1", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task)

	err = s.Complete(ctx, file.ID, models.StageTranscription, "w1", []models.Artifact{
		{Kind: models.ArtifactTranscriptText, SHA256: "aa"},
	})
	require.Error(t, err, "transcript srt artifact is missing")

	state, err := s.StageStateFor(ctx, file.ID, models.StageTranscription)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusInProgress, state.Status, "failed completion leaves the lease intact")
}

func TestCompleteReleasesLeaseAndIndexesArtifacts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/f.mp3")

	completeTranscription(t, s, file.ID)

	state, err := s.StageStateFor(ctx, file.ID, models.StageTranscription)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusCompleted, state.Status)
	assert.Empty(t, state.LeaseOwner)
	assert.Nil(t, state.LeaseDeadline)
	assert.NotNil(t, state.LastCompletedAt)

	artifacts, err := s.ArtifactsForFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Len(t, artifacts, 2)
}

func TestCompleteFromStaleLeaseIsRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/g.mp3")

	task, err := s.Claim(ctx, models.StageTranscription, "w1", time.Millisecond, 5)
	require.NoError(t, err)
	require.NotNil(t, task)

	time.Sleep(5 * time.Millisecond)
	reclaimed, err := s.ReclaimExpiredLeases(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	// The original worker reports back after losing its lease.
	err = s.Complete(ctx, file.ID, models.StageTranscription, "w1", []models.Artifact{
		{Kind: models.ArtifactTranscriptText, SHA256: "aa"},
		{Kind: models.ArtifactTranscriptSRT, SHA256: "bb"},
	})
	assert.ErrorIs(t, err, ErrLeaseLost)

	state, err := s.StageStateFor(ctx, file.ID, models.StageTranscription)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusNotStarted, state.Status)
	assert.Zero(t, state.AttemptCount, "a reclaimed lease is not a failed attempt")
}

func TestFailRecordsErrorAndCountsAttempt(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/h.mp3")

	task, err := s.Claim(ctx, models.StageTranscription, "w1", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task)

	require.NoError(t, s.Fail(ctx, file.ID, models.StageTranscription, "w1",
		models.ErrorKindProviderExhausted, "all providers exhausted"))

	state, err := s.StageStateFor(ctx, file.ID, models.StageTranscription)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusFailed, state.Status)
	assert.Equal(t, 1, state.AttemptCount)
	assert.Equal(t, models.ErrorKindProviderExhausted, state.LastErrorKind)
	assert.Equal(t, "all providers exhausted", state.LastErrorDetail)
	assert.Empty(t, state.LeaseOwner)
}

func TestAnnotateQA(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/i.mp3")

	// A verdict on a stage that never completed violates the lifecycle.
	err := s.AnnotateQA(ctx, file.ID, "en", true)
	assert.ErrorIs(t, err, models.ErrQAVerdictFromIncomplete)

	completeTranscription(t, s, file.ID)
	task, err := s.Claim(ctx, models.StageTranslationEN, "w1", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, s.Complete(ctx, file.ID, models.StageTranslationEN, "w1", []models.Artifact{
		{Kind: models.ArtifactTranslationText, Target: "en", SHA256: "cc"},
		{Kind: models.ArtifactTranslationSRT, Target: "en", SHA256: "dd"},
	}))

	require.NoError(t, s.AnnotateQA(ctx, file.ID, "en", false))
	state, err := s.StageStateFor(ctx, file.ID, models.StageTranslationEN)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusQAFailed, state.Status)

	// qa_failed is terminal for the verdict path: annotating again fails.
	err = s.AnnotateQA(ctx, file.ID, "en", true)
	assert.ErrorIs(t, err, models.ErrQAVerdictFromIncomplete)
}

func TestQAFailedStillSatisfiesEvaluationPrerequisite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/j.mp3")

	completeTranscription(t, s, file.ID)
	task, err := s.Claim(ctx, models.StageTranslationEN, "w1", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, s.Complete(ctx, file.ID, models.StageTranslationEN, "w1", []models.Artifact{
		{Kind: models.ArtifactTranslationText, Target: "en", SHA256: "cc"},
		{Kind: models.ArtifactTranslationSRT, Target: "en", SHA256: "dd"},
	}))

	// The evaluation stage claims against the completed translation.
	evalTask, err := s.Claim(ctx, models.StageEvaluationEN, "w2", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, evalTask)
	assert.Equal(t, models.StageEvaluationEN, evalTask.State.Stage)
}

func TestRequeue(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/k.mp3")

	// not_started is not requeueable.
	err := s.Requeue(ctx, file.ID, models.StageTranscription)
	assert.ErrorIs(t, err, models.ErrRequeueFromInvalidStatus)

	task, err := s.Claim(ctx, models.StageTranscription, "w1", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, s.Fail(ctx, file.ID, models.StageTranscription, "w1",
		models.ErrorKindProviderAuth, "401"))

	require.NoError(t, s.Requeue(ctx, file.ID, models.StageTranscription))

	state, err := s.StageStateFor(ctx, file.ID, models.StageTranscription)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusNotStarted, state.Status)
	assert.Equal(t, 1, state.AttemptCount, "attempts survive the requeue")
	assert.Equal(t, models.ErrorKindProviderAuth, state.LastErrorKind, "last error kept for diagnosis")
}

func TestRequeueStalledInProgress(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/l.mp3")

	task, err := s.Claim(ctx, models.StageTranscription, "w1", time.Millisecond, 5)
	require.NoError(t, err)
	require.NotNil(t, task)
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, s.Requeue(ctx, file.ID, models.StageTranscription))

	// A live lease is not requeueable.
	task, err = s.Claim(ctx, models.StageTranscription, "w1", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task)
	err = s.Requeue(ctx, file.ID, models.StageTranscription)
	assert.ErrorIs(t, err, models.ErrRequeueFromInvalidStatus)
}

func TestRequeueQAFailedTranslation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/l2.mp3")

	completeTranscription(t, s, file.ID)
	task, err := s.Claim(ctx, models.StageTranslationEN, "w1", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, s.Complete(ctx, file.ID, models.StageTranslationEN, "w1", []models.Artifact{
		{Kind: models.ArtifactTranslationText, Target: "en", SHA256: "cc"},
		{Kind: models.ArtifactTranslationSRT, Target: "en", SHA256: "dd"},
	}))

	evalTask, err := s.Claim(ctx, models.StageEvaluationEN, "w2", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, evalTask)
	require.NoError(t, s.Complete(ctx, file.ID, models.StageEvaluationEN, "w2", []models.Artifact{
		{Kind: models.ArtifactEvaluationReport, Target: "en", SHA256: "ee"},
	}))
	require.NoError(t, s.AnnotateQA(ctx, file.ID, "en", false))

	// The operator sends the below-threshold translation around again.
	require.NoError(t, s.Requeue(ctx, file.ID, models.StageTranslationEN))

	state, err := s.StageStateFor(ctx, file.ID, models.StageTranslationEN)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusNotStarted, state.Status)
	assert.Zero(t, state.AttemptCount, "a qa verdict is not a failed attempt")

	// The old verdict belonged to the discarded translation: the
	// evaluation stage goes around again too.
	evalState, err := s.StageStateFor(ctx, file.ID, models.StageEvaluationEN)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusNotStarted, evalState.Status)
}

func TestRequeueCompletedEvaluation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/l3.mp3")

	completeTranscription(t, s, file.ID)

	// A completed non-evaluation stage is not requeueable.
	err := s.Requeue(ctx, file.ID, models.StageTranscription)
	assert.ErrorIs(t, err, models.ErrRequeueFromInvalidStatus)

	task, err := s.Claim(ctx, models.StageTranslationEN, "w1", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, s.Complete(ctx, file.ID, models.StageTranslationEN, "w1", []models.Artifact{
		{Kind: models.ArtifactTranslationText, Target: "en", SHA256: "cc"},
		{Kind: models.ArtifactTranslationSRT, Target: "en", SHA256: "dd"},
	}))
	evalTask, err := s.Claim(ctx, models.StageEvaluationEN, "w2", time.Hour, 5)
	require.NoError(t, err)
	require.NotNil(t, evalTask)
	require.NoError(t, s.Complete(ctx, file.ID, models.StageEvaluationEN, "w2", []models.Artifact{
		{Kind: models.ArtifactEvaluationReport, Target: "en", SHA256: "ee"},
	}))

	// A completed evaluation may go around again for a fresh report.
	require.NoError(t, s.Requeue(ctx, file.ID, models.StageEvaluationEN))
	state, err := s.StageStateFor(ctx, file.ID, models.StageEvaluationEN)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusNotStarted, state.Status)
}

func TestSetFileTranscriptionResult(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/l4.mp3")

	require.NoError(t, s.SetFileTranscriptionResult(ctx, file.ID, "de", 7000))

	updated, err := s.FileByID(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "de", updated.SourceLanguage)
	require.NotNil(t, updated.DurationMs)
	assert.Equal(t, int64(7000), *updated.DurationMs)
	assert.Equal(t, file.SourcePath, updated.SourcePath, "partial update leaves registration fields alone")

	err = s.SetFileTranscriptionResult(ctx, uuid.New(), "de", 7000)
	assert.ErrorIs(t, err, models.ErrFileNotFound)
}

func TestSegmentsRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/m.mp3")

	segments := []models.Segment{
		{Idx: 0, StartMs: 0, EndMs: 2000, SourceText: "Guten Tag."},
		{Idx: 1, StartMs: 2000, EndMs: 3000, SourceText: "[pause]", NonVerbal: true},
		{Idx: 2, StartMs: 3000, EndMs: 6000, SourceText: "Wie geht es Ihnen?"},
	}
	require.NoError(t, s.ReplaceSegments(ctx, file.ID, segments))

	got, err := s.SegmentsForFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Guten Tag.", got[0].SourceText)
	assert.True(t, got[1].NonVerbal)

	// Replacing wipes the previous set.
	require.NoError(t, s.ReplaceSegments(ctx, file.ID, []models.Segment{
		{Idx: 0, StartMs: 0, EndMs: 1000, SourceText: "Hallo."},
	}))
	got, err = s.SegmentsForFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Hallo.", got[0].SourceText)
}

func TestSaveTranslationsFirstWriteWins(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/n.mp3")

	require.NoError(t, s.SaveTranslations(ctx, []models.SegmentTranslation{
		{FileID: file.ID, Idx: 0, Target: "en", Text: "Good day.", Provider: "deepl"},
	}))
	require.NoError(t, s.SaveTranslations(ctx, []models.SegmentTranslation{
		{FileID: file.ID, Idx: 0, Target: "en", Text: "OVERWRITE", Provider: "openai"},
		{FileID: file.ID, Idx: 1, Target: "en", Text: "How are you?", Provider: "deepl"},
	}))

	got, err := s.TranslationsForFile(ctx, file.ID, "en")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Good day.", got[0].Text, "resumed runs never overwrite stored translations")
	assert.Equal(t, "deepl", got[0].Provider)
	assert.Equal(t, "How are you?", got[1].Text)
}

func TestFirstMissingTranslation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/o.mp3")

	require.NoError(t, s.ReplaceSegments(ctx, file.ID, []models.Segment{
		{Idx: 0, StartMs: 0, EndMs: 1000, SourceText: "a"},
		{Idx: 1, StartMs: 1000, EndMs: 2000, SourceText: "b"},
		{Idx: 2, StartMs: 2000, EndMs: 3000, SourceText: "c"},
	}))

	idx, missing, err := s.FirstMissingTranslation(ctx, file.ID, "de")
	require.NoError(t, err)
	assert.True(t, missing)
	assert.Equal(t, 0, idx)

	require.NoError(t, s.SaveTranslations(ctx, []models.SegmentTranslation{
		{FileID: file.ID, Idx: 0, Target: "de", Text: "a-de"},
		{FileID: file.ID, Idx: 1, Target: "de", Text: "b-de"},
	}))

	idx, missing, err = s.FirstMissingTranslation(ctx, file.ID, "de")
	require.NoError(t, err)
	assert.True(t, missing)
	assert.Equal(t, 2, idx, "resume point is the first untranslated ordinal")

	// Another target is tracked independently.
	idx, missing, err = s.FirstMissingTranslation(ctx, file.ID, "he")
	require.NoError(t, err)
	assert.True(t, missing)
	assert.Equal(t, 0, idx)

	require.NoError(t, s.SaveTranslations(ctx, []models.SegmentTranslation{
		{FileID: file.ID, Idx: 2, Target: "de", Text: "c-de"},
	}))
	_, missing, err = s.FirstMissingTranslation(ctx, file.ID, "de")
	require.NoError(t, err)
	assert.False(t, missing)
}

func TestSnapshot(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	fileA := registerTestFile(t, s, "/media/p.mp3")
	registerTestFile(t, s, "/media/q.mp3")
	completeTranscription(t, s, fileA.ID)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Files)
	assert.Equal(t, 1, snap.Stages[models.StageTranscription][models.StageStatusCompleted])
	assert.Equal(t, 1, snap.Stages[models.StageTranscription][models.StageStatusNotStarted])
	assert.Equal(t, 2, snap.Stages[models.StageTranslationEN][models.StageStatusNotStarted])
}

func TestTransitionHistory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/r.mp3")

	completeTranscription(t, s, file.ID)

	transitions, err := s.TransitionsForFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, models.StageStatusNotStarted, transitions[0].FromStatus)
	assert.Equal(t, models.StageStatusInProgress, transitions[0].ToStatus)
	assert.Equal(t, "setup-worker", transitions[0].LeaseOwner)
	assert.Equal(t, models.StageStatusCompleted, transitions[1].ToStatus)
}

func TestProviderCallLog(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := registerTestFile(t, s, "/media/s.mp3")

	require.NoError(t, s.RecordProviderCall(ctx, &models.ProviderCall{
		FileID:      file.ID,
		Stage:       models.StageTranslationEN,
		Capability:  "translation",
		Provider:    "deepl",
		Target:      "en",
		SegmentsIn:  25,
		SegmentsOut: 25,
		Outcome:     models.ProviderCallOutcomeOK,
		DurationMs:  830,
	}))

	calls, err := s.ProviderCallsForFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "deepl", calls[0].Provider)
	assert.Equal(t, models.ProviderCallOutcomeOK, calls[0].Outcome)
}
