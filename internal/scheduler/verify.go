package scheduler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/voxpipe/voxpipe/internal/artifacts"
	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/internal/store"
)

// VerifyArtifacts re-hashes every indexed artifact against its recorded
// sha256 and returns the number checked. The first hash mismatch aborts
// the sweep with an error wrapping models.ErrArtifactHashMismatch; an
// unreadable artifact is logged and skipped so one missing file does not
// mask drift elsewhere.
func VerifyArtifacts(ctx context.Context, st *store.Store, writer *artifacts.Writer, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	indexed, err := st.AllArtifacts(ctx)
	if err != nil {
		return 0, err
	}

	checked := 0
	for _, artifact := range indexed {
		if ctx.Err() != nil {
			return checked, ctx.Err()
		}

		err := writer.Verify(artifact)
		if err == nil {
			checked++
			continue
		}
		if errors.Is(err, models.ErrArtifactHashMismatch) {
			logger.Error("artifact hash drift detected",
				slog.String("file_id", artifact.FileID.String()),
				slog.String("kind", string(artifact.Kind)),
				slog.String("target", artifact.Target),
				slog.String("error", err.Error()))
			return checked, err
		}

		logger.Warn("artifact unreadable during verification",
			slog.String("file_id", artifact.FileID.String()),
			slog.String("kind", string(artifact.Kind)),
			slog.String("target", artifact.Target),
			slog.String("error", err.Error()))
	}
	return checked, nil
}
