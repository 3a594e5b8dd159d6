// Package langdetect detects the language of short transcript segments.
//
// Oral-history interviews mix languages mid-sentence, so detection runs per
// segment, not per file. The detector covers the languages this pipeline
// routes on: Hebrew by Unicode script, German and English by stopword
// frequency and orthography. Detection only claims confidence when the
// evidence is unambiguous; callers inherit the language of a preceding
// confident segment otherwise.
package langdetect

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// MinWordsForDetection is the word count below which detection is not
// attempted and the caller should inherit context instead.
const MinWordsForDetection = 5

// Result is one detection outcome.
type Result struct {
	// Lang is the detected language code, empty when nothing matched.
	Lang string

	// Confident reports whether the evidence was strong enough to
	// propagate to neighboring short segments.
	Confident bool
}

// German and English stopword sets. Words appearing in both lists are
// omitted so a hit always discriminates.
var (
	germanStopwords = makeSet(
		"der", "die", "das", "und", "ich", "nicht", "ist", "ein", "eine",
		"mit", "auf", "für", "von", "dem", "den", "des", "sich", "auch",
		"aber", "wir", "sie", "haben", "hat", "war", "wie", "noch", "nach",
		"bei", "aus", "wenn", "nur", "schon", "dann", "über", "mich", "mir",
		"ja", "nein", "als", "wurde", "sind", "sehr", "zum", "zur", "mein",
		"meine", "kein", "keine", "dass", "weil", "oder", "wo", "da",
	)
	englishStopwords = makeSet(
		"the", "and", "that", "have", "for", "not", "with", "you", "this",
		"but", "his", "her", "they", "from", "she", "will", "would", "there",
		"their", "what", "about", "which", "when", "were", "been", "then",
		"them", "these", "some", "could", "out", "into", "time", "very",
		"just", "know", "because", "our", "your", "had", "has", "did",
		"was", "are", "is", "of", "it", "we", "he", "my", "all", "who",
	)
)

func makeSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Detect returns the detected language of the given text. Texts shorter
// than MinWordsForDetection words report no confidence regardless of
// content, except for Hebrew where the script alone is decisive.
func Detect(text string) Result {
	letters, hebrew := countLetters(text)
	if letters == 0 {
		return Result{}
	}

	// Hebrew script is unambiguous even in short segments.
	if hebrew*10 >= letters*3 {
		return Result{Lang: "he", Confident: true}
	}

	words := Words(text)
	if len(words) < MinWordsForDetection {
		return Result{Lang: guessLatin(words), Confident: false}
	}

	lang := guessLatin(words)
	return Result{Lang: lang, Confident: lang != ""}
}

// guessLatin scores German vs English stopwords and orthography; it returns
// an empty language when the evidence does not discriminate.
func guessLatin(words []string) string {
	var de, en int
	for _, w := range words {
		lw := strings.ToLower(strings.Trim(w, ".,!?;:\"'()[]"))
		if lw == "" {
			continue
		}
		if _, ok := germanStopwords[lw]; ok {
			de++
		}
		if _, ok := englishStopwords[lw]; ok {
			en++
		}
		// Umlauts and eszett only occur in German here.
		if strings.ContainsAny(lw, "äöüß") {
			de += 2
		}
	}

	switch {
	case de > en:
		return "de"
	case en > de:
		return "en"
	default:
		return ""
	}
}

// countLetters returns the number of letters in the text and how many of
// them are in the Hebrew script.
func countLetters(text string) (letters, hebrew int) {
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Hebrew, r) {
			hebrew++
		}
	}
	return letters, hebrew
}

// Words splits text into whitespace-separated words.
func Words(text string) []string {
	return strings.Fields(text)
}

// WordCount returns the number of whitespace-separated words in the text.
func WordCount(text string) int {
	return len(Words(text))
}

// Canonical normalizes a language code to its canonical base form
// ("en-US" becomes "en"). Unparseable codes are returned unchanged.
func Canonical(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	base, conf := tag.Base()
	if conf == language.No {
		return code
	}
	return base.String()
}
