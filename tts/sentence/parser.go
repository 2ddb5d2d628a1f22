// Package sentence provides deterministic sentence segmentation for
// synthesis. Cache keys are derived from sentence text, so identical
// input must always yield an identical sequence.
package sentence

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/readaloud/readaloud/tts"
)

// Segmenter splits plain book text into ordered sentences. Segment is
// a pure function of its input: no locale state, no randomness.
type Segmenter struct {
	// Common abbreviations that don't end sentences
	abbreviations map[string]bool

	// Speaking rate used for duration estimates
	wordsPerMinute float64
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NewSegmenter creates a segmenter with the default abbreviation set.
func NewSegmenter() *Segmenter {
	return &Segmenter{
		abbreviations:  makeAbbreviationMap(),
		wordsPerMinute: 150,
	}
}

// Normalize collapses whitespace runs to single spaces and trims the
// ends. Cache key derivation depends on this being stable.
func Normalize(text string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
}

// Segment splits text into ordered sentences. Empty input (after
// trimming) yields an empty slice rather than an error; the caller
// short-circuits with no audio.
func (s *Segmenter) Segment(text string) []tts.Sentence {
	plain := Normalize(text)
	if plain == "" {
		return nil
	}

	boundaries := s.findBoundaries(plain)

	sentences := make([]tts.Sentence, 0, len(boundaries))
	for _, b := range boundaries {
		t := strings.TrimSpace(plain[b.start:b.end])
		if t == "" {
			continue
		}
		sentences = append(sentences, tts.Sentence{
			Index:    len(sentences),
			Text:     t,
			Duration: s.EstimateDuration(t),
		})
	}
	return sentences
}

// EstimateDuration estimates the speaking duration for text. Complex
// text (numbers, heavy punctuation, long words) reads slower.
func (s *Segmenter) EstimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}

	rate := s.wordsPerMinute * (1.0 - complexity(text)*0.2)
	seconds := float64(words) * 60.0 / rate
	return time.Duration(seconds * float64(time.Second))
}

// boundary is a half-open [start, end) byte range within the
// normalized text.
type boundary struct {
	start int
	end   int
}

// findBoundaries locates sentence boundaries in normalized text.
func (s *Segmenter) findBoundaries(text string) []boundary {
	var boundaries []boundary

	runes := []rune(text)
	lastStart := 0

	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}

		// Collect trailing punctuation like "?!" or "..."
		punctEnd := i + 1
		for punctEnd < len(runes) && (runes[punctEnd] == '!' || runes[punctEnd] == '?' || runes[punctEnd] == '.') {
			punctEnd++
		}

		// Closing quotes and brackets belong to the sentence
		if punctEnd < len(runes) && (runes[punctEnd] == '"' || runes[punctEnd] == '\'' || runes[punctEnd] == ')' || runes[punctEnd] == ']') {
			punctEnd++
		}

		if !s.isSentenceEnd(runes, i) {
			continue
		}

		boundaries = append(boundaries, boundary{start: lastStart, end: punctEnd})

		for punctEnd < len(runes) && unicode.IsSpace(runes[punctEnd]) {
			punctEnd++
		}
		lastStart = punctEnd
		i = punctEnd - 1
	}

	// Trailing text without terminal punctuation is still a sentence.
	if lastStart < len(runes) {
		if strings.TrimSpace(string(runes[lastStart:])) != "" {
			boundaries = append(boundaries, boundary{start: lastStart, end: len(runes)})
		}
	}

	if len(boundaries) == 0 && strings.TrimSpace(text) != "" {
		boundaries = append(boundaries, boundary{start: 0, end: len(text)})
	}

	// Convert rune positions to byte positions.
	for i := range boundaries {
		boundaries[i].start = len(string(runes[:boundaries[i].start]))
		boundaries[i].end = len(string(runes[:boundaries[i].end]))
	}

	return boundaries
}

// isSentenceEnd decides whether the punctuation at pos terminates a
// sentence. Abbreviations, initials, decimal numbers and ellipses are
// non-terminal.
func (s *Segmenter) isSentenceEnd(runes []rune, pos int) bool {
	punct := runes[pos]

	// Word immediately before the punctuation, including it.
	wordBefore := ""
	start := pos - 1
	for start >= 0 && !unicode.IsSpace(runes[start]) {
		start--
	}
	if start < pos {
		wordBefore = strings.ToLower(string(runes[start+1 : pos+1]))
	}

	if punct == '.' && wordBefore != "" {
		wordNoPeriod := strings.TrimSuffix(wordBefore, ".")
		if s.abbreviations[wordNoPeriod] || s.abbreviations[wordBefore] {
			return false
		}

		// Multi-dot words: "ph.d.", "u.s.", trailing ellipsis dots.
		if strings.Count(wordBefore, ".") > 1 {
			return false
		}

		// Initials: "J. K. Rowling"
		if len(wordNoPeriod) == 1 && unicode.IsUpper(runes[pos-1]) {
			return false
		}
	}

	// Decimal numbers: "3.14" never splits between the digits.
	if punct == '.' && pos > 0 && pos+1 < len(runes) {
		if unicode.IsDigit(runes[pos-1]) && unicode.IsDigit(runes[pos+1]) {
			return false
		}
	}

	// First or middle dot of an ellipsis.
	if punct == '.' && pos+2 < len(runes) && runes[pos+1] == '.' && runes[pos+2] == '.' {
		return false
	}
	if punct == '.' && pos+1 < len(runes) && runes[pos+1] == '.' {
		return false
	}

	if pos+1 >= len(runes) {
		return true
	}

	// Skip closing quotes and brackets.
	next := pos + 1
	for next < len(runes) && (runes[next] == '"' || runes[next] == '\'' || runes[next] == ')' || runes[next] == ']') {
		next++
	}
	if next >= len(runes) {
		return true
	}

	// A sentence boundary needs whitespace after the punctuation.
	if !unicode.IsSpace(runes[next]) {
		return false
	}
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}

	if next < len(runes) && unicode.IsUpper(runes[next]) {
		return true
	}

	// Exclamation and question marks are terminal even before
	// lowercase continuations.
	if punct == '!' || punct == '?' {
		return true
	}

	return false
}

// complexity estimates text complexity for duration adjustment,
// capped at 0.5 (max 50% slowdown).
func complexity(text string) float64 {
	c := 0.0

	for _, r := range text {
		switch {
		case unicode.IsDigit(r):
			c += 0.005
		case r == ',' || r == ';' || r == ':' || r == '-' || r == '(' || r == ')':
			c += 0.01
		}
	}

	words := strings.Fields(text)
	longWords := 0
	for _, w := range words {
		if len(w) > 10 {
			longWords++
		}
	}
	c += float64(longWords) / float64(len(words)+1) * 0.1

	if c > 0.5 {
		c = 0.5
	}
	return c
}

// makeAbbreviationMap creates a map of common abbreviations.
func makeAbbreviationMap() map[string]bool {
	abbrevs := []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "rev", "hon",
		"ph.d", "m.d", "b.a", "m.a", "b.s",
		"llc", "inc", "ltd", "co", "corp",
		"i.e", "e.g", "etc", "vs", "cf", "al", "approx",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		"mon", "tue", "wed", "thu", "fri", "sat", "sun",
		"st", "rd", "ave", "blvd", "ln", "ct", "vol", "ch", "pg", "pp",
		"u.s", "u.k", "u.n", "e.u", "n.y", "l.a",
		"ft", "lbs", "oz", "kg", "km", "cm", "mm", "mi", "yd",
		"hr", "hrs", "min", "mins", "sec", "secs",
	}

	m := make(map[string]bool)
	for _, a := range abbrevs {
		m[a] = true
		if !strings.Contains(a, ".") {
			m[a+"."] = true
		}
	}
	return m
}
