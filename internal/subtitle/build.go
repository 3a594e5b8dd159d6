package subtitle

import (
	"strings"

	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/pkg/srt"
	"github.com/voxpipe/voxpipe/pkg/timecode"
)

// Cues renders one cue per segment, in ordinal order, with the body
// chosen by bodyFor. Timing is taken verbatim from the segments; the only
// adjustment is the overlap clamp: a segment running past its successor's
// start ends one millisecond before the successor begins. Segments that
// merely touch keep their boundary byte-exact.
func Cues(segments []models.Segment, bodyFor func(models.Segment) string) []srt.Cue {
	cues := make([]srt.Cue, 0, len(segments))
	for i := range segments {
		cue := srt.Cue{
			StartMs: segments[i].StartMs,
			EndMs:   segments[i].EndMs,
			Text:    bodyFor(segments[i]),
		}
		if i+1 < len(segments) && cue.EndMs > segments[i+1].StartMs {
			cue.EndMs = segments[i+1].StartMs - 1
			if cue.EndMs < cue.StartMs {
				cue.EndMs = cue.StartMs
			}
		}
		cues = append(cues, cue)
	}
	return cues
}

// SourceSRT renders the source-language subtitle document: every cue
// carries the segment's own text.
func SourceSRT(segments []models.Segment) []byte {
	return srt.Marshal(Cues(segments, func(s models.Segment) string {
		return s.SourceText
	}))
}

// TranslatedSRT renders the subtitle document for one target language.
// Verbal foreign segments use their stored translation; non-verbal
// segments and segments already in the target language keep their source
// text.
func TranslatedSRT(segments []models.Segment, target string, translations map[int]string) []byte {
	return srt.Marshal(Cues(segments, func(s models.Segment) string {
		return bodyForTarget(s, target, translations)
	}))
}

// TranslatedText renders the plain-text translation artifact: one
// segment body per line, LF-terminated.
func TranslatedText(segments []models.Segment, target string, translations map[int]string) []byte {
	var b strings.Builder
	for i := range segments {
		b.WriteString(bodyForTarget(segments[i], target, translations))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func bodyForTarget(s models.Segment, target string, translations map[int]string) string {
	if s.NonVerbal || s.Language == target {
		return s.SourceText
	}
	if text, ok := translations[s.Idx]; ok {
		return text
	}
	// A missing translation for a verbal foreign segment means the stage
	// was completed against the store's invariant. Emitting the source
	// text keeps the cue count dense.
	return s.SourceText
}

// TranscriptText renders the timecoded plain-text transcript: UTF-8,
// LF-terminated, one segment per line.
//
//	[HH:MM:SS.mmm → HH:MM:SS.mmm] text
func TranscriptText(segments []models.Segment) []byte {
	var b strings.Builder
	for i := range segments {
		b.WriteString("[")
		b.WriteString(timecode.Transcript(segments[i].StartMs))
		b.WriteString(" → ")
		b.WriteString(timecode.Transcript(segments[i].EndMs))
		b.WriteString("] ")
		b.WriteString(segments[i].SourceText)
		b.WriteString("\n")
	}
	return []byte(b.String())
}
