package subtitle

import "github.com/voxpipe/voxpipe/internal/models"

// Run is a maximal sequence of consecutive segments handled as one unit
// by the translation worker: either one provider call, or a passthrough
// that needs no call at all.
type Run struct {
	// Segments are the members in ordinal order.
	Segments []models.Segment

	// Language is the shared source language of a translatable run.
	Language string

	// Passthrough marks runs whose segments are emitted verbatim:
	// non-verbal markers and segments already in the target language.
	Passthrough bool
}

// BuildRuns groups the segments from ordinal fromIdx onward into runs
// for translation into target. Consecutive same-language verbal segments
// form runs of at most batchMax; a language change or a passthrough
// segment closes the current run. Earlier ordinals are skipped: resumed
// work starts at the first missing translation.
func BuildRuns(segments []models.Segment, fromIdx int, target string, batchMax int) []Run {
	if batchMax <= 0 {
		batchMax = 1
	}

	var runs []Run
	var current *Run

	flush := func() {
		if current != nil && len(current.Segments) > 0 {
			runs = append(runs, *current)
		}
		current = nil
	}

	for i := range segments {
		seg := segments[i]
		if seg.Idx < fromIdx {
			continue
		}

		passthrough := seg.NonVerbal || seg.Language == target
		if passthrough {
			if current == nil || !current.Passthrough {
				flush()
				current = &Run{Passthrough: true}
			}
			current.Segments = append(current.Segments, seg)
			continue
		}

		if current == nil || current.Passthrough ||
			current.Language != seg.Language || len(current.Segments) >= batchMax {
			flush()
			current = &Run{Language: seg.Language}
		}
		current.Segments = append(current.Segments, seg)
	}
	flush()

	return runs
}
