// Package subtitle turns stored segments into rendered output: it applies
// per-segment language detection, groups segments into translation runs,
// and emits the transcript text and SRT documents. Timing is carried
// through byte-exact from the segments; nothing is re-timed, merged, or
// split.
package subtitle

import (
	"strings"

	"github.com/voxpipe/voxpipe/internal/langdetect"
	"github.com/voxpipe/voxpipe/internal/models"
)

// MarkNonVerbal flags segments whose entire text is one marker from the
// configured lexicon, such as [pause]. They are skipped by translation
// and emitted verbatim.
func MarkNonVerbal(segments []models.Segment, lexicon []string) {
	tokens := make(map[string]bool, len(lexicon))
	for _, t := range lexicon {
		tokens[strings.ToLower(t)] = true
	}
	for i := range segments {
		text := strings.ToLower(strings.TrimSpace(segments[i].SourceText))
		segments[i].NonVerbal = tokens[text]
	}
}

// DetectLanguages assigns a language to every verbal segment, in place.
// Segments long enough for confident detection get their detected
// language; shorter ones inherit from the nearest preceding confident
// segment, falling back to fileLang. Non-verbal segments keep no
// language.
func DetectLanguages(segments []models.Segment, fileLang string) {
	inherited := fileLang
	for i := range segments {
		if segments[i].NonVerbal {
			segments[i].Language = ""
			continue
		}
		res := langdetect.Detect(segments[i].SourceText)
		if res.Confident {
			segments[i].Language = res.Lang
			inherited = res.Lang
			continue
		}
		segments[i].Language = inherited
	}
}

// DominantLanguage returns the language covering the most spoken time
// across the annotated segments, for the file's source_language field.
// Returns "" when no segment carries a language.
func DominantLanguage(segments []models.Segment) string {
	durations := make(map[string]int64)
	for i := range segments {
		if segments[i].Language == "" {
			continue
		}
		d := segments[i].DurationMs()
		if d <= 0 {
			d = 1
		}
		durations[segments[i].Language] += d
	}

	best := ""
	var bestDur int64 = -1
	for _, lang := range orderedLanguages(segments) {
		if durations[lang] > bestDur {
			best = lang
			bestDur = durations[lang]
		}
	}
	return best
}

// orderedLanguages returns the distinct languages in first-seen order so
// DominantLanguage breaks duration ties deterministically.
func orderedLanguages(segments []models.Segment) []string {
	seen := make(map[string]bool)
	var langs []string
	for i := range segments {
		lang := segments[i].Language
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		langs = append(langs, lang)
	}
	return langs
}
