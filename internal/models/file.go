package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaKind identifies the kind of source recording.
type MediaKind string

const (
	// MediaKindAudio is an audio-only recording.
	MediaKindAudio MediaKind = "audio"
	// MediaKindVideo is a video recording (audio track is transcribed).
	MediaKindVideo MediaKind = "video"
)

// Valid reports whether the media kind is defined.
func (k MediaKind) Valid() bool {
	return k == MediaKindAudio || k == MediaKindVideo
}

// KindForPath infers the media kind from the file extension. Known video
// container extensions map to video; everything else is treated as audio,
// since only the audio track is transcribed either way.
func KindForPath(path string) MediaKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mkv", ".mov", ".avi", ".webm", ".mts", ".m2ts", ".mpg", ".mpeg":
		return MediaKindVideo
	default:
		return MediaKindAudio
	}
}

// MediaFile represents one registered interview recording. Registration is
// idempotent on (source_path, byte_size); the UUID is assigned at creation
// and never changes.
type MediaFile struct {
	// ID is the stable file identifier used in artifact paths.
	ID uuid.UUID `gorm:"primarykey;type:varchar(36)" json:"id"`

	// SourcePath is the location of the recording on disk.
	SourcePath string `gorm:"not null;size:1024;uniqueIndex:idx_media_files_path_size" json:"source_path"`

	// ByteSize is the recording size at registration time.
	ByteSize int64 `gorm:"not null;uniqueIndex:idx_media_files_path_size" json:"byte_size"`

	// Kind indicates audio or video.
	Kind MediaKind `gorm:"not null;size:10" json:"kind"`

	// DurationMs is populated after transcription from the last segment end.
	DurationMs *int64 `json:"duration_ms,omitempty"`

	// SourceLanguage is the detected dominant language of the recording,
	// populated after transcription. Short segments inherit it when
	// per-segment detection is not confident.
	SourceLanguage string `gorm:"size:16" json:"source_language,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for MediaFile.
func (MediaFile) TableName() string {
	return "media_files"
}

// Validate performs basic validation on the file.
func (f *MediaFile) Validate() error {
	if f.SourcePath == "" {
		return ErrSourcePathRequired
	}
	if !f.Kind.Valid() {
		return ErrInvalidMediaKind
	}
	if f.ByteSize < 0 {
		return ErrNegativeByteSize
	}
	return nil
}

// BeforeCreate assigns the file UUID if not already set and validates.
func (f *MediaFile) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return f.Validate()
}

// BeforeUpdate is a GORM hook. Guarded partial updates run it against the
// empty Model receiver, so only the fields an update actually carries are
// checked; required-field validation belongs to BeforeCreate.
func (f *MediaFile) BeforeUpdate(tx *gorm.DB) error {
	if f.Kind != "" && !f.Kind.Valid() {
		return ErrInvalidMediaKind
	}
	if f.ByteSize < 0 {
		return ErrNegativeByteSize
	}
	return nil
}
