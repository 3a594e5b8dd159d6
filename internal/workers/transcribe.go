package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxpipe/voxpipe/internal/langdetect"
	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/internal/providers"
	"github.com/voxpipe/voxpipe/internal/store"
	"github.com/voxpipe/voxpipe/internal/subtitle"
)

// Transcriber turns a claimed transcription stage into stored segments
// and transcript artifacts.
type Transcriber struct {
	env *Env
}

// NewTranscriber creates the transcription worker.
func NewTranscriber(env *Env) *Transcriber {
	return &Transcriber{env: env}
}

// Run processes one claimed transcription task. Provider failures mark
// the stage failed and return nil; only fatal inconsistencies surface as
// errors.
func (w *Transcriber) Run(ctx context.Context, task *store.ClaimedTask, owner string) error {
	e := w.env
	log := e.logger().With(
		slog.String("file_id", task.File.ID.String()),
		slog.String("stage", string(models.StageTranscription)),
	)

	var result providers.Transcription
	route := providers.Route{
		Primary:  e.Config.Providers.Transcription.Primary,
		Fallback: e.Config.Providers.Transcription.Fallback,
	}
	err := e.Retrier.Do(ctx, route, func(ctx context.Context, name string) error {
		p, err := e.Registry.Transcription(name)
		if err != nil {
			return providers.NewError(name, providers.ErrKindPermanent, err)
		}
		r, err := p.Transcribe(ctx, task.File.SourcePath, "")
		if err != nil {
			return err
		}
		result = r
		return nil
	}, func(a providers.Attempt) {
		e.recordCall(ctx, task.File.ID, models.StageTranscription, "transcription", "", 0, len(result.Segments), a)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return e.failStage(ctx, task, owner, stageErrorKind(err), err.Error())
	}

	segments := make([]models.Segment, 0, len(result.Segments))
	for i, s := range result.Segments {
		segments = append(segments, models.Segment{
			Idx:        i,
			StartMs:    s.StartMs,
			EndMs:      s.EndMs,
			SourceText: s.Text,
		})
	}

	hint := langdetect.Canonical(result.Language)
	subtitle.MarkNonVerbal(segments, e.Config.NonVerbal.Tokens)
	subtitle.DetectLanguages(segments, hint)
	dominant := subtitle.DominantLanguage(segments)
	if dominant == "" {
		dominant = hint
	}

	if err := e.Store.ReplaceSegments(ctx, task.File.ID, segments); err != nil {
		return fmt.Errorf("persisting segments: %w", err)
	}

	var durationMs int64
	if len(segments) > 0 {
		durationMs = segments[len(segments)-1].EndMs
	}
	if err := e.Store.SetFileTranscriptionResult(ctx, task.File.ID, dominant, durationMs); err != nil {
		return fmt.Errorf("recording transcription result: %w", err)
	}

	textArt, err := e.Artifacts.Write(task.File.ID, models.StageTranscription,
		models.ArtifactTranscriptText, "", subtitle.TranscriptText(segments))
	if err != nil {
		return e.handleArtifactError(ctx, task, owner, err)
	}
	srtArt, err := e.Artifacts.Write(task.File.ID, models.StageTranscription,
		models.ArtifactTranscriptSRT, "", subtitle.SourceSRT(segments))
	if err != nil {
		return e.handleArtifactError(ctx, task, owner, err)
	}

	if err := e.completeStage(ctx, task, owner, []models.Artifact{textArt, srtArt}); err != nil {
		return err
	}

	log.Info("transcription finished",
		slog.Int("segments", len(segments)),
		slog.String("source_language", dominant),
		slog.Int64("duration_ms", durationMs),
	)
	return nil
}
