package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxpipe/voxpipe/internal/artifacts"
	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/internal/providers"
	"github.com/voxpipe/voxpipe/internal/store"
	"github.com/voxpipe/voxpipe/internal/workers"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeSTT struct {
	segs []providers.TranscriptSegment
}

func (f *fakeSTT) Name() string { return "stt" }
func (f *fakeSTT) Transcribe(_ context.Context, _ string, _ string) (providers.Transcription, error) {
	return providers.Transcription{Language: "de", Segments: f.segs}, nil
}

type fakeMT struct{}

func (f *fakeMT) Name() string { return "mt" }
func (f *fakeMT) Translate(_ context.Context, texts []string, _, _ string) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = strings.ToUpper(t)
	}
	return out, nil
}

type fakeEval struct {
	composite float64
}

func (f *fakeEval) Name() string { return "eval" }
func (f *fakeEval) Evaluate(_ context.Context, _, _ []string, _ string) (providers.Report, error) {
	return providers.Report{Composite: f.composite}, nil
}

func newSchedulerEnv(t *testing.T) *workers.Env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.MediaFile{}, &models.StageState{}, &models.Segment{},
		&models.SegmentTranslation{}, &models.Artifact{},
		&models.StageTransition{}, &models.ProviderCall{},
	))

	cfg := &config.Config{
		Concurrency: config.ConcurrencyConfig{Transcription: 1, Translation: 1, Evaluation: 1},
		Retries:     config.RetriesConfig{MaxAttempts: 3, BaseMs: 1, CapMs: 2, RateLimitCeiling: 3},
		LeaseTTL: config.LeaseTTLConfig{
			Transcription: time.Hour, Translation: time.Hour, Evaluation: time.Hour,
		},
		Translation: config.TranslationConfig{BatchMaxSegments: 25, Targets: []string{"en", "de", "he"}},
		QA:          config.QAConfig{Threshold: map[string]float64{"en": 7.0, "de": 7.0, "he": 7.0}},
		NonVerbal:   config.NonVerbalConfig{Tokens: []string{"[pause]"}},
		Providers: config.ProvidersConfig{
			Transcription: config.RouteConfig{Primary: "stt"},
			Translation:   config.RouteConfig{Primary: "mt"},
			Evaluation:    config.RouteConfig{Primary: "eval"},
		},
		Scheduler: config.SchedulerConfig{
			PollInterval:       5 * time.Millisecond,
			LeaseSweepInterval: 10 * time.Millisecond,
			DrainTimeout:       2 * time.Second,
		},
	}

	return &workers.Env{
		Store:     store.New(db, nil),
		Artifacts: artifacts.NewWriter(artifacts.NewLayout(t.TempDir()), nil),
		Registry:  providers.NewRegistry(),
		Retrier: providers.NewRetrier(providers.RetrierConfig{
			MaxAttempts:      3,
			Base:             time.Millisecond,
			Cap:              2 * time.Millisecond,
			RateLimitCeiling: 3,
		}, nil),
		Config: cfg,
	}
}

func registerTestFile(t *testing.T, env *workers.Env) *models.MediaFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "interview.mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	file, _, err := env.Store.RegisterFile(context.Background(), path, 5, models.MediaKindAudio)
	require.NoError(t, err)
	return file
}

func registerHappyProviders(env *workers.Env) {
	env.Registry.RegisterTranscription(&fakeSTT{segs: []providers.TranscriptSegment{
		{StartMs: 0, EndMs: 2000, Text: "Guten Tag und danke für die Einladung hierher"},
		{StartMs: 2000, EndMs: 5000, Text: "Ich heiße Hans und ich war damals ein Kind"},
		{StartMs: 5000, EndMs: 7000, Text: "[pause]"},
	}})
	env.Registry.RegisterTranslation(&fakeMT{})
	env.Registry.RegisterEvaluation(&fakeEval{composite: 8.5})
}

// allStagesSettled reports whether every stage of the file has reached a
// terminal successful status.
func allStagesSettled(t *testing.T, env *workers.Env, file *models.MediaFile) bool {
	t.Helper()
	states, err := env.Store.StatesForFile(context.Background(), file.ID)
	require.NoError(t, err)
	for _, st := range states {
		switch st.Status {
		case models.StageStatusCompleted, models.StageStatusQACompleted:
		default:
			return false
		}
	}
	return true
}

func TestSchedulerRunsPipelineToCompletion(t *testing.T) {
	env := newSchedulerEnv(t)
	registerHappyProviders(env)
	file := registerTestFile(t, env)

	sched := New(env)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	require.Eventually(t, func() bool {
		return allStagesSettled(t, env, file)
	}, 10*time.Second, 20*time.Millisecond, "pipeline should settle")

	states, err := env.Store.StatesForFile(context.Background(), file.ID)
	require.NoError(t, err)
	byStage := map[models.Stage]models.StageStatus{}
	for _, st := range states {
		byStage[st.Stage] = st.Status
	}
	assert.Equal(t, models.StageStatusCompleted, byStage[models.StageTranscription])
	for _, target := range models.Targets {
		assert.Equal(t, models.StageStatusQACompleted, byStage[models.TranslationStage(target)], target)
		assert.Equal(t, models.StageStatusCompleted, byStage[models.EvaluationStage(target)], target)
	}

	// 2 transcription + 2 per translation + 1 report per evaluation.
	arts, err := env.Store.ArtifactsForFile(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Len(t, arts, 11)
	for _, a := range arts {
		assert.NoError(t, env.Artifacts.Verify(a))
	}

	require.NoError(t, sched.Stop())
}

func TestSchedulerQAFailureSettlesAsQAFailed(t *testing.T) {
	env := newSchedulerEnv(t)
	registerHappyProviders(env)
	env.Registry.RegisterEvaluation(&fakeEval{composite: 5.0})
	file := registerTestFile(t, env)

	sched := New(env)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	require.Eventually(t, func() bool {
		states, err := env.Store.StatesForFile(context.Background(), file.ID)
		require.NoError(t, err)
		for _, st := range states {
			if st.Stage.Kind() == models.StageKindTranslation &&
				st.Status != models.StageStatusQAFailed {
				return false
			}
			if st.Stage.Kind() == models.StageKindEvaluation &&
				st.Status != models.StageStatusCompleted {
				return false
			}
		}
		return true
	}, 10*time.Second, 20*time.Millisecond, "all translations should end qa_failed")
}

func TestSchedulerReclaimsExpiredLease(t *testing.T) {
	env := newSchedulerEnv(t)
	registerHappyProviders(env)
	file := registerTestFile(t, env)

	// Simulate a crashed worker holding an already-expired lease.
	task, err := env.Store.Claim(context.Background(), models.StageTranscription,
		"ghost-worker", time.Millisecond, 3)
	require.NoError(t, err)
	require.NotNil(t, task)
	time.Sleep(5 * time.Millisecond)

	sched := New(env)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	require.Eventually(t, func() bool {
		return allStagesSettled(t, env, file)
	}, 10*time.Second, 20*time.Millisecond, "sweep should reclaim the lease and finish the file")

	state, err := env.Store.StageStateFor(context.Background(), file.ID, models.StageTranscription)
	require.NoError(t, err)
	assert.Equal(t, 0, state.AttemptCount, "an expired lease is not a failed attempt")
}

func TestSchedulerFatalOnMissingPrerequisiteData(t *testing.T) {
	env := newSchedulerEnv(t)
	registerHappyProviders(env)
	// A transcription that yields no segments completes, but leaves the
	// translation stages without input, which is a fatal inconsistency.
	env.Registry.RegisterTranscription(&fakeSTT{segs: nil})
	registerTestFile(t, env)

	sched := New(env)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	select {
	case err := <-sched.Fatal():
		assert.ErrorIs(t, err, models.ErrPrerequisiteMissing)
	case <-time.After(10 * time.Second):
		t.Fatal("expected a fatal error from the translation worker")
	}
}

func TestSchedulerStartTwice(t *testing.T) {
	env := newSchedulerEnv(t)
	registerHappyProviders(env)

	sched := New(env)
	require.NoError(t, sched.Start(context.Background()))
	assert.Error(t, sched.Start(context.Background()))
	require.NoError(t, sched.Stop())

	// Stop on a stopped scheduler is a no-op.
	require.NoError(t, sched.Stop())
}

func TestVerifyArtifacts(t *testing.T) {
	env := newSchedulerEnv(t)
	registerHappyProviders(env)
	file := registerTestFile(t, env)

	sched := New(env)
	require.NoError(t, sched.Start(context.Background()))
	require.Eventually(t, func() bool {
		return allStagesSettled(t, env, file)
	}, 10*time.Second, 20*time.Millisecond)
	require.NoError(t, sched.Stop())

	checked, err := VerifyArtifacts(context.Background(), env.Store, env.Artifacts, nil)
	require.NoError(t, err)
	assert.Equal(t, 11, checked)

	// Corrupt one artifact on disk; the sweep must flag the drift.
	path, err := env.Artifacts.Layout().Path(file.ID, models.ArtifactTranscriptText, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))

	_, err = VerifyArtifacts(context.Background(), env.Store, env.Artifacts, nil)
	require.ErrorIs(t, err, models.ErrArtifactHashMismatch)
}
