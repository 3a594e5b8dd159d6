package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/internal/providers"
	"github.com/voxpipe/voxpipe/internal/store"
	"github.com/voxpipe/voxpipe/internal/subtitle"
)

// Translator processes one translation_{target} stage: it builds runs
// from the stored segments, routes each run through the providers, and
// emits the translation artifacts. Already-translated segments are never
// re-sent; resumed work starts at the first missing ordinal.
type Translator struct {
	env *Env
}

// NewTranslator creates the translation worker.
func NewTranslator(env *Env) *Translator {
	return &Translator{env: env}
}

// Run processes one claimed translation task.
func (w *Translator) Run(ctx context.Context, task *store.ClaimedTask, owner string) error {
	e := w.env
	stage := task.State.Stage
	target, ok := stage.Target()
	if !ok {
		return fmt.Errorf("translator dispatched for stage %s", stage)
	}
	log := e.logger().With(
		slog.String("file_id", task.File.ID.String()),
		slog.String("stage", string(stage)),
	)

	segments, err := e.Store.SegmentsForFile(ctx, task.File.ID)
	if err != nil {
		return fmt.Errorf("loading segments: %w", err)
	}
	if len(segments) == 0 {
		// Claim gating guarantees transcription completed, which implies
		// segments exist. An empty set means the store lied.
		detail := fmt.Sprintf("no segments for completed transcription of %s", task.File.ID)
		if failErr := e.failStage(ctx, task, owner, models.ErrorKindPrerequisiteMissing, detail); failErr != nil {
			return failErr
		}
		return fmt.Errorf("%w: %s", models.ErrPrerequisiteMissing, detail)
	}

	resumeIdx, missing, err := e.Store.FirstMissingTranslation(ctx, task.File.ID, target)
	if err != nil {
		return fmt.Errorf("finding resume point: %w", err)
	}

	if missing {
		if resumeIdx > 0 {
			log.Info("resuming translation", slog.Int("from_idx", resumeIdx))
		}
		runs := subtitle.BuildRuns(segments, resumeIdx, target, e.Config.Translation.BatchMaxSegments)
		cfgRoute := e.Config.Providers.TranslationRoute(target)
		route := providers.Route{
			Primary:  cfgRoute.Primary,
			Fallback: cfgRoute.Fallback,
		}

		for _, run := range runs {
			if err := w.translateRun(ctx, task, owner, run, target, route); err != nil {
				if errors.Is(err, errStageFailed) {
					return nil
				}
				return err
			}
			if ctx.Err() != nil {
				// Shutdown mid-stage: the saved runs stand, the lease
				// expires, and a later worker resumes from the next
				// missing ordinal.
				return nil
			}
		}
	}

	stored, err := e.Store.TranslationsForFile(ctx, task.File.ID, target)
	if err != nil {
		return fmt.Errorf("loading translations: %w", err)
	}
	texts := make(map[int]string, len(stored))
	for _, tr := range stored {
		texts[tr.Idx] = tr.Text
	}

	textArt, err := e.Artifacts.Write(task.File.ID, stage,
		models.ArtifactTranslationText, target, subtitle.TranslatedText(segments, target, texts))
	if err != nil {
		return e.handleArtifactError(ctx, task, owner, err)
	}
	srtArt, err := e.Artifacts.Write(task.File.ID, stage,
		models.ArtifactTranslationSRT, target, subtitle.TranslatedSRT(segments, target, texts))
	if err != nil {
		return e.handleArtifactError(ctx, task, owner, err)
	}

	if err := e.completeStage(ctx, task, owner, []models.Artifact{textArt, srtArt}); err != nil {
		return err
	}

	log.Info("translation finished",
		slog.String("target", target),
		slog.Int("segments", len(segments)),
	)
	return nil
}

// errStageFailed signals that the run marked its stage failed and the
// worker must stop without writing artifacts.
var errStageFailed = errors.New("stage marked failed")

// translateRun resolves one run: passthrough runs are stored without a
// provider call, translatable runs go through the retrier. A terminal
// run failure marks the stage failed and returns errStageFailed; earlier
// runs' stored translations remain valid for the resume.
func (w *Translator) translateRun(ctx context.Context, task *store.ClaimedTask, owner string, run subtitle.Run, target string, route providers.Route) error {
	e := w.env
	stage := task.State.Stage

	if run.Passthrough {
		rows := make([]models.SegmentTranslation, 0, len(run.Segments))
		for _, seg := range run.Segments {
			rows = append(rows, models.SegmentTranslation{
				FileID:   task.File.ID,
				Idx:      seg.Idx,
				Target:   target,
				Text:     seg.SourceText,
				Provider: models.ProviderPassthrough,
			})
		}
		if err := e.Store.SaveTranslations(ctx, rows); err != nil {
			return fmt.Errorf("saving passthrough run: %w", err)
		}
		return nil
	}

	texts := make([]string, 0, len(run.Segments))
	for _, seg := range run.Segments {
		texts = append(texts, seg.SourceText)
	}

	var translated []string
	var servedBy string
	err := e.Retrier.Do(ctx, route, func(ctx context.Context, name string) error {
		p, err := e.Registry.Translation(name)
		if err != nil {
			return providers.NewError(name, providers.ErrKindPermanent, err)
		}
		out, err := p.Translate(ctx, texts, run.Language, target)
		if err != nil {
			return err
		}
		translated = out
		servedBy = name
		return nil
	}, func(a providers.Attempt) {
		e.recordCall(ctx, task.File.ID, stage, "translation", target, len(texts), len(translated), a)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if failErr := e.failStage(ctx, task, owner, stageErrorKind(err), err.Error()); failErr != nil {
			return failErr
		}
		return errStageFailed
	}

	// The adapter must hand back exactly one line per segment; anything
	// else would desynchronize subtitles from their timecodes.
	if len(translated) != len(run.Segments) {
		detail := fmt.Sprintf("sent %d segments, provider %s returned %d",
			len(run.Segments), servedBy, len(translated))
		if failErr := e.failStage(ctx, task, owner, models.ErrorKindAlignmentMismatch, detail); failErr != nil {
			return failErr
		}
		return errStageFailed
	}

	rows := make([]models.SegmentTranslation, 0, len(run.Segments))
	for i, seg := range run.Segments {
		rows = append(rows, models.SegmentTranslation{
			FileID:   task.File.ID,
			Idx:      seg.Idx,
			Target:   target,
			Text:     translated[i],
			Provider: servedBy,
		})
	}
	if err := e.Store.SaveTranslations(ctx, rows); err != nil {
		return fmt.Errorf("saving translated run: %w", err)
	}
	return nil
}
