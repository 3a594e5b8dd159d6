package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/internal/providers"
	"github.com/voxpipe/voxpipe/internal/store"
)

// Evaluator processes one evaluation_{target} stage: it scores the
// stored translation against the source segments, writes the report
// artifact, and annotates the translation stage with the qa verdict.
type Evaluator struct {
	env *Env
}

// NewEvaluator creates the evaluation worker.
func NewEvaluator(env *Env) *Evaluator {
	return &Evaluator{env: env}
}

// Run processes one claimed evaluation task.
func (w *Evaluator) Run(ctx context.Context, task *store.ClaimedTask, owner string) error {
	e := w.env
	stage := task.State.Stage
	target, ok := stage.Target()
	if !ok {
		return fmt.Errorf("evaluator dispatched for stage %s", stage)
	}
	log := e.logger().With(
		slog.String("file_id", task.File.ID.String()),
		slog.String("stage", string(stage)),
	)

	segments, err := e.Store.SegmentsForFile(ctx, task.File.ID)
	if err != nil {
		return fmt.Errorf("loading segments: %w", err)
	}
	translations, err := e.Store.TranslationsForFile(ctx, task.File.ID, target)
	if err != nil {
		return fmt.Errorf("loading translations: %w", err)
	}
	if len(segments) == 0 || len(translations) != len(segments) {
		// The completed translation stage guarantees full coverage.
		detail := fmt.Sprintf("translation %s covers %d of %d segments",
			target, len(translations), len(segments))
		if failErr := e.failStage(ctx, task, owner, models.ErrorKindPrerequisiteMissing, detail); failErr != nil {
			return failErr
		}
		return fmt.Errorf("%w: %s", models.ErrPrerequisiteMissing, detail)
	}

	source := make([]string, len(segments))
	translated := make([]string, len(segments))
	for i := range segments {
		source[i] = segments[i].SourceText
		translated[i] = translations[i].Text
	}

	var report providers.Report
	route := providers.Route{
		Primary:  e.Config.Providers.Evaluation.Primary,
		Fallback: e.Config.Providers.Evaluation.Fallback,
	}
	err = e.Retrier.Do(ctx, route, func(ctx context.Context, name string) error {
		p, err := e.Registry.Evaluation(name)
		if err != nil {
			return providers.NewError(name, providers.ErrKindPermanent, err)
		}
		r, err := p.Evaluate(ctx, source, translated, target)
		if err != nil {
			return err
		}
		report = r
		return nil
	}, func(a providers.Attempt) {
		e.recordCall(ctx, task.File.ID, stage, "evaluation", target, len(source), len(source), a)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return e.failStage(ctx, task, owner, stageErrorKind(err), err.Error())
	}

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	payload = append(payload, '\n')

	art, err := e.Artifacts.Write(task.File.ID, stage,
		models.ArtifactEvaluationReport, target, payload)
	if err != nil {
		return e.handleArtifactError(ctx, task, owner, err)
	}

	if err := e.completeStage(ctx, task, owner, []models.Artifact{art}); err != nil {
		return err
	}

	threshold := e.Config.QA.ThresholdFor(target)
	passed := report.Composite >= threshold
	if err := e.Store.AnnotateQA(ctx, task.File.ID, target, passed); err != nil {
		// A re-run against a translation that already carries a verdict
		// keeps the earlier verdict; the refreshed report artifact stands.
		if errors.Is(err, models.ErrQAVerdictFromIncomplete) {
			log.Warn("translation already carries a qa verdict, keeping it",
				slog.String("target", target))
			return nil
		}
		return fmt.Errorf("annotating qa verdict: %w", err)
	}

	log.Info("evaluation finished",
		slog.String("target", target),
		slog.Float64("composite", report.Composite),
		slog.Float64("threshold", threshold),
		slog.Bool("passed", passed),
	)
	return nil
}
