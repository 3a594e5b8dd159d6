// Package timecode formats and parses millisecond timecodes for subtitle
// and transcript output. Two renderings exist: SRT uses a comma before the
// milliseconds (HH:MM:SS,mmm), transcripts use a dot (HH:MM:SS.mmm).
package timecode

import (
	"fmt"
	"time"
)

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
)

// SRT formats a millisecond offset as an SRT timestamp (HH:MM:SS,mmm).
// Negative offsets are clamped to zero; SRT has no notion of time before
// the start of the recording.
func SRT(ms int64) string {
	return format(ms, ',')
}

// Transcript formats a millisecond offset for transcript text lines
// (HH:MM:SS.mmm).
func Transcript(ms int64) string {
	return format(ms, '.')
}

func format(ms int64, sep byte) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / msPerHour
	ms -= h * msPerHour
	m := ms / msPerMinute
	ms -= m * msPerMinute
	s := ms / msPerSecond
	ms -= s * msPerSecond
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms)
}

// ParseSRT parses an SRT timestamp (HH:MM:SS,mmm) into milliseconds.
func ParseSRT(s string) (int64, error) {
	return parse(s, ',')
}

// ParseTranscript parses a transcript timestamp (HH:MM:SS.mmm) into
// milliseconds.
func ParseTranscript(s string) (int64, error) {
	return parse(s, '.')
}

func parse(s string, sep byte) (int64, error) {
	var h, m, sec, ms int64
	layout := "%02d:%02d:%02d" + string(sep) + "%03d"
	n, err := fmt.Sscanf(s, layout, &h, &m, &sec, &ms)
	if err != nil {
		return 0, fmt.Errorf("parsing timecode %q: %w", s, err)
	}
	if n != 4 {
		return 0, fmt.Errorf("parsing timecode %q: expected HH:MM:SS%cmmm", s, sep)
	}
	if m > 59 || sec > 59 || ms > 999 {
		return 0, fmt.Errorf("parsing timecode %q: component out of range", s)
	}
	return h*msPerHour + m*msPerMinute + sec*msPerSecond + ms, nil
}

// FromDuration converts a duration to whole milliseconds.
func FromDuration(d time.Duration) int64 {
	return d.Milliseconds()
}
