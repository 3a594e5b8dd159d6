package subtitle

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/pkg/srt"
)

var defaultLexicon = []string{"[pause]", "[crying]", "[inaudible]", "[unintelligible]"}

func seg(idx int, start, end int64, text string) models.Segment {
	return models.Segment{Idx: idx, StartMs: start, EndMs: end, SourceText: text}
}

func TestMarkNonVerbal(t *testing.T) {
	segments := []models.Segment{
		seg(0, 0, 1000, "Guten Tag"),
		seg(1, 1000, 2000, "[pause]"),
		seg(2, 2000, 3000, " [CRYING] "),
		seg(3, 3000, 4000, "[laughter]"),
		seg(4, 4000, 5000, "er sagte [pause] nichts"),
	}
	MarkNonVerbal(segments, defaultLexicon)

	assert.False(t, segments[0].NonVerbal)
	assert.True(t, segments[1].NonVerbal)
	assert.True(t, segments[2].NonVerbal, "matching is case-insensitive and trims whitespace")
	assert.False(t, segments[3].NonVerbal, "tokens outside the lexicon stay verbal")
	assert.False(t, segments[4].NonVerbal, "a marker inside a sentence does not flag the segment")
}

func TestDetectLanguagesInheritance(t *testing.T) {
	segments := []models.Segment{
		seg(0, 0, 2000, "Ich war damals mit meiner Familie in Berlin"),
		seg(1, 2000, 3000, "Ja, genau"),
		seg(2, 3000, 4000, "[pause]"),
		seg(3, 4000, 8000, "and then we had to leave the country with nothing"),
		seg(4, 8000, 9000, "nothing at all"),
	}
	MarkNonVerbal(segments, defaultLexicon)
	DetectLanguages(segments, "de")

	assert.Equal(t, "de", segments[0].Language)
	assert.Equal(t, "de", segments[1].Language, "short segment inherits the preceding confident detection")
	assert.Empty(t, segments[2].Language, "non-verbal segments carry no language")
	assert.Equal(t, "en", segments[3].Language)
	assert.Equal(t, "en", segments[4].Language, "inheritance crosses non-verbal segments")
}

func TestDetectLanguagesDefaultsToFileLanguage(t *testing.T) {
	segments := []models.Segment{
		seg(0, 0, 1000, "Ja"),
		seg(1, 1000, 2000, "genau so"),
	}
	DetectLanguages(segments, "de")
	assert.Equal(t, "de", segments[0].Language, "no preceding confident segment, file language applies")
	assert.Equal(t, "de", segments[1].Language)
}

func TestDominantLanguage(t *testing.T) {
	segments := []models.Segment{
		seg(0, 0, 10000, "x"), seg(1, 10000, 12000, "y"), seg(2, 12000, 13000, "z"),
	}
	segments[0].Language = "de"
	segments[1].Language = "en"
	segments[2].Language = "en"
	assert.Equal(t, "de", DominantLanguage(segments), "dominance is by spoken time, not segment count")

	assert.Empty(t, DominantLanguage([]models.Segment{seg(0, 0, 1000, "x")}))
}

func TestBuildRunsGroupsByLanguage(t *testing.T) {
	// Mid-sentence switch: de, en, de produces three runs.
	segments := []models.Segment{
		seg(0, 0, 3000, "Ich war in"),
		seg(1, 3000, 6000, "the army"),
		seg(2, 6000, 9000, "in Polen"),
	}
	segments[0].Language = "de"
	segments[1].Language = "en"
	segments[2].Language = "de"

	runs := BuildRuns(segments, 0, "en", 25)
	require.Len(t, runs, 3)
	assert.False(t, runs[0].Passthrough)
	assert.Equal(t, "de", runs[0].Language)
	assert.True(t, runs[1].Passthrough, "a segment already in the target language needs no call")
	assert.False(t, runs[2].Passthrough)
	require.Len(t, runs[2].Segments, 1)
	assert.Equal(t, 2, runs[2].Segments[0].Idx)
}

func TestBuildRunsCapsBatchSize(t *testing.T) {
	var segments []models.Segment
	for i := 0; i < 7; i++ {
		s := seg(i, int64(i)*1000, int64(i+1)*1000, "text")
		s.Language = "de"
		segments = append(segments, s)
	}

	runs := BuildRuns(segments, 0, "en", 3)
	require.Len(t, runs, 3)
	assert.Len(t, runs[0].Segments, 3)
	assert.Len(t, runs[1].Segments, 3)
	assert.Len(t, runs[2].Segments, 1)
}

func TestBuildRunsResumesFromOrdinal(t *testing.T) {
	var segments []models.Segment
	for i := 0; i < 10; i++ {
		s := seg(i, int64(i)*1000, int64(i+1)*1000, "text")
		s.Language = "de"
		segments = append(segments, s)
	}

	runs := BuildRuns(segments, 5, "en", 25)
	require.Len(t, runs, 1)
	require.Len(t, runs[0].Segments, 5)
	assert.Equal(t, 5, runs[0].Segments[0].Idx, "resumed work starts at the first missing translation")
}

func TestBuildRunsNonVerbalBreaksRuns(t *testing.T) {
	segments := []models.Segment{
		seg(0, 0, 2000, "Guten Tag"),
		seg(1, 2000, 3000, "[pause]"),
		seg(2, 3000, 5000, "Wie geht es"),
	}
	segments[0].Language = "de"
	segments[2].Language = "de"
	segments[1].NonVerbal = true

	runs := BuildRuns(segments, 0, "en", 25)
	require.Len(t, runs, 3)
	assert.True(t, runs[1].Passthrough)
}

func TestTranslatedSRTScenarioBytes(t *testing.T) {
	segments := []models.Segment{
		seg(0, 0, 2000, "Guten Tag"),
		seg(1, 2000, 5000, "Ich heiße Hans"),
		seg(2, 5000, 7000, "[pause]"),
	}
	segments[0].Language = "de"
	segments[1].Language = "de"
	segments[2].NonVerbal = true

	got := TranslatedSRT(segments, "en", map[int]string{
		0: "Good day",
		1: "My name is Hans",
	})

	want := "1\r\n" +
		"00:00:00,000 --> 00:00:02,000\r\n" +
		"Good day\r\n" +
		"\r\n" +
		"2\r\n" +
		"00:00:02,000 --> 00:00:05,000\r\n" +
		"My name is Hans\r\n" +
		"\r\n" +
		"3\r\n" +
		"00:00:05,000 --> 00:00:07,000\r\n" +
		"[pause]\r\n" +
		"\r\n"
	assert.Equal(t, want, string(got), "shared boundaries stay byte-exact")
}

func TestTranslatedSRTKeepsTargetLanguageSource(t *testing.T) {
	segments := []models.Segment{
		seg(0, 0, 3000, "Ich war in"),
		seg(1, 3000, 6000, "the army"),
	}
	segments[0].Language = "de"
	segments[1].Language = "en"

	got := string(TranslatedSRT(segments, "en", map[int]string{0: "I was in"}))
	assert.Contains(t, got, "I was in\r\n")
	assert.Contains(t, got, "the army\r\n", "segments already in the target keep their original text")
}

func TestSourceSRTCarriesSegmentText(t *testing.T) {
	segments := []models.Segment{
		seg(0, 0, 2000, "Guten Tag"),
		seg(1, 2000, 5000, "Ich heiße Hans"),
	}

	got := SourceSRT(segments)

	cues, err := srt.Parse(bytes.NewReader(got))
	require.NoError(t, err)
	require.Len(t, cues, 2)
	assert.Equal(t, "Guten Tag", cues[0].Text)
	assert.Equal(t, "Ich heiße Hans", cues[1].Text)
}

func TestCuesClampOverlap(t *testing.T) {
	segments := []models.Segment{
		seg(0, 0, 2500, "a"),
		seg(1, 2000, 4000, "b"),
	}
	cues := Cues(segments, func(s models.Segment) string { return s.SourceText })
	require.Len(t, cues, 2)
	assert.Equal(t, int64(1999), cues[0].EndMs, "overlapping cue ends one millisecond before its successor")
	assert.Equal(t, int64(2000), cues[1].StartMs)

	// Touching boundaries are left alone.
	segments[0].EndMs = 2000
	cues = Cues(segments, func(s models.Segment) string { return s.SourceText })
	assert.Equal(t, int64(2000), cues[0].EndMs)
}

func TestTranscriptText(t *testing.T) {
	segments := []models.Segment{
		seg(0, 0, 2000, "Guten Tag"),
		seg(1, 2000, 5000, "Ich heiße Hans"),
	}
	got := string(TranscriptText(segments))

	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[00:00:00.000 → 00:00:02.000] Guten Tag", lines[0])
	assert.Equal(t, "[00:00:02.000 → 00:00:05.000] Ich heiße Hans", lines[1])
	assert.True(t, strings.HasSuffix(got, "\n"), "LF-terminated")
	assert.NotContains(t, got, "\r")
}

func TestTranslatedText(t *testing.T) {
	segments := []models.Segment{
		seg(0, 0, 2000, "Guten Tag"),
		seg(1, 2000, 3000, "[pause]"),
	}
	segments[0].Language = "de"
	segments[1].NonVerbal = true

	got := string(TranslatedText(segments, "en", map[int]string{0: "Good day"}))
	assert.Equal(t, "Good day\n[pause]\n", got)
}
