// Package artifacts owns the on-disk artifact layout and the atomic writer
// that materializes pipeline output. Paths are always derived, never stored:
// the database records only (file, stage, kind, target, sha256, size).
package artifacts

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/voxpipe/voxpipe/internal/models"
)

// Layout derives artifact paths under a fixed output root. Directories are
// partitioned by file id so concurrent workers on different files never
// touch the same directory.
type Layout struct {
	root string
}

// NewLayout creates a layout rooted at the given directory.
func NewLayout(root string) Layout {
	return Layout{root: root}
}

// Root returns the output root directory.
func (l Layout) Root() string {
	return l.root
}

// Dir returns the directory holding all artifacts of one file.
func (l Layout) Dir(fileID uuid.UUID) string {
	return filepath.Join(l.root, fileID.String())
}

// Path returns the full path for an artifact kind. Target is required for
// translation and evaluation kinds and must be empty for transcript kinds.
//
//	{root}/{id}/{id}.transcript.txt
//	{root}/{id}/{id}.transcript.srt
//	{root}/{id}/{id}.{target}.txt
//	{root}/{id}/{id}.{target}.srt
//	{root}/{id}/{id}.{target}.evaluation.json
func (l Layout) Path(fileID uuid.UUID, kind models.ArtifactKind, target string) (string, error) {
	name, err := fileName(fileID, kind, target)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.Dir(fileID), name), nil
}

func fileName(fileID uuid.UUID, kind models.ArtifactKind, target string) (string, error) {
	id := fileID.String()
	switch kind {
	case models.ArtifactTranscriptText:
		if target != "" {
			return "", fmt.Errorf("artifact kind %s takes no target", kind)
		}
		return id + ".transcript.txt", nil
	case models.ArtifactTranscriptSRT:
		if target != "" {
			return "", fmt.Errorf("artifact kind %s takes no target", kind)
		}
		return id + ".transcript.srt", nil
	case models.ArtifactTranslationText:
		if target == "" {
			return "", fmt.Errorf("artifact kind %s requires a target", kind)
		}
		return id + "." + target + ".txt", nil
	case models.ArtifactTranslationSRT:
		if target == "" {
			return "", fmt.Errorf("artifact kind %s requires a target", kind)
		}
		return id + "." + target + ".srt", nil
	case models.ArtifactEvaluationReport:
		if target == "" {
			return "", fmt.Errorf("artifact kind %s requires a target", kind)
		}
		return id + "." + target + ".evaluation.json", nil
	default:
		return "", fmt.Errorf("%w: %q", models.ErrInvalidArtifactKind, kind)
	}
}
