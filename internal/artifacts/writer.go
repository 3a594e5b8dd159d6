package artifacts

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/voxpipe/voxpipe/internal/models"
)

// Writer materializes artifacts atomically: the bytes go to a temp file in
// the destination directory, are fsynced, renamed into place, and then read
// back and re-hashed. A read-back mismatch means the filesystem cannot be
// trusted and is fatal to the process.
type Writer struct {
	layout Layout
	logger *slog.Logger
}

// NewWriter creates a writer over the given layout.
func NewWriter(layout Layout, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{layout: layout, logger: logger}
}

// Layout returns the writer's layout.
func (w *Writer) Layout() Layout {
	return w.layout
}

// Write persists data for the given (file, stage, kind, target) and returns
// the artifact index record with its hash and size. A hash mismatch on
// read-back wraps models.ErrArtifactHashMismatch.
func (w *Writer) Write(fileID uuid.UUID, stage models.Stage, kind models.ArtifactKind, target string, data []byte) (models.Artifact, error) {
	path, err := w.layout.Path(fileID, kind, target)
	if err != nil {
		return models.Artifact{}, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.Artifact{}, fmt.Errorf("creating artifact directory: %w", err)
	}

	sum := Hash(data)

	// Temp file in the destination directory so the rename never crosses
	// filesystems.
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return models.Artifact{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return models.Artifact{}, fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return models.Artifact{}, fmt.Errorf("syncing artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return models.Artifact{}, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return models.Artifact{}, fmt.Errorf("renaming artifact into place: %w", err)
	}

	// Read back and verify. Silent corruption here would poison every
	// downstream consumer of the artifact index.
	written, err := os.ReadFile(path)
	if err != nil {
		return models.Artifact{}, fmt.Errorf("reading back artifact: %w", err)
	}
	if !bytes.Equal(written, data) || Hash(written) != sum {
		w.logger.Error("artifact read-back mismatch",
			slog.String("path", path),
			slog.String("expected_sha256", sum),
		)
		return models.Artifact{}, fmt.Errorf("%w: %s", models.ErrArtifactHashMismatch, path)
	}

	w.logger.Debug("artifact written",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
		slog.String("sha256", sum),
	)

	return models.Artifact{
		FileID:   fileID,
		Stage:    stage,
		Kind:     kind,
		Target:   target,
		SHA256:   sum,
		ByteSize: int64(len(data)),
	}, nil
}

// Verify re-hashes an indexed artifact at rest and wraps
// models.ErrArtifactHashMismatch when the bytes have drifted from the
// recorded hash.
func (w *Writer) Verify(artifact models.Artifact) error {
	path, err := w.layout.Path(artifact.FileID, artifact.Kind, artifact.Target)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading artifact for verification: %w", err)
	}
	if sum := Hash(data); sum != artifact.SHA256 {
		return fmt.Errorf("%w: %s: indexed %s, on disk %s",
			models.ErrArtifactHashMismatch, path, artifact.SHA256, sum)
	}
	return nil
}

// Read returns the bytes of an indexed artifact.
func (w *Writer) Read(artifact models.Artifact) ([]byte, error) {
	path, err := w.layout.Path(artifact.FileID, artifact.Kind, artifact.Target)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	return data, nil
}

// Hash returns the hex-encoded sha256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
