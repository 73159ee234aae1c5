// Package heuristics implements the stateless text analyzers that feed the
// prosody scorer and the feedback generator: tokenization, filler-word and
// repetition counting, sentence structure, difficult phoneme patterns and
// self-correction detection.
//
// Every function is pure and total: empty or punctuation-only input yields
// zero counts, never an error.
package heuristics

import (
	"slices"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Fillers is the fixed list of disfluency markers counted by [CountFillers].
// Multi-word entries are matched as consecutive tokens.
var Fillers = []string{"um", "uh", "er", "ah", "like", "you know", "so", "well"}

const (
	// selfCorrectionSimilarity is the Jaro-Winkler score above which two
	// adjacent, non-identical words are treated as a restart.
	selfCorrectionSimilarity = 0.9

	// minCorrectionLen keeps short function words ("he her") out of the
	// self-correction list.
	minCorrectionLen = 3

	// LongWordLen is the length from which a word counts as long.
	LongWordLen = 8
)

// Tokenize lowercases text and splits it into words. Punctuation is dropped
// except for apostrophes inside a word ("don't").
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'’")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// FillerCount is the number of times one filler appeared.
type FillerCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// FillerReport summarizes filler usage in a token stream.
type FillerReport struct {
	// Counts lists the fillers found, in order of first appearance.
	Counts []FillerCount `json:"counts,omitempty"`

	// Total is the number of filler occurrences.
	Total int `json:"total"`

	// Ratio is Total over the number of tokens; 0 for empty input.
	Ratio float64 `json:"ratio"`
}

// CountFillers counts the entries of [Fillers] in tokens.
func CountFillers(tokens []string) FillerReport {
	var r FillerReport
	if len(tokens) == 0 {
		return r
	}

	index := map[string]int{}
	add := func(w string) {
		if i, ok := index[w]; ok {
			r.Counts[i].Count++
		} else {
			index[w] = len(r.Counts)
			r.Counts = append(r.Counts, FillerCount{Word: w, Count: 1})
		}
		r.Total++
	}

	for i := 0; i < len(tokens); i++ {
		if i+1 < len(tokens) {
			if pair := tokens[i] + " " + tokens[i+1]; isFiller(pair) {
				add(pair)
				i++
				continue
			}
		}
		if isFiller(tokens[i]) {
			add(tokens[i])
		}
	}
	r.Ratio = float64(r.Total) / float64(len(tokens))
	return r
}

func isFiller(w string) bool {
	return slices.Contains(Fillers, w)
}

// Repetitions returns the number of immediate word repeats ("really really")
// and their ratio over the token count.
func Repetitions(tokens []string) (int, float64) {
	if len(tokens) == 0 {
		return 0, 0
	}
	n := 0
	for i := 1; i < len(tokens); i++ {
		if tokens[i] == tokens[i-1] {
			n++
		}
	}
	return n, float64(n) / float64(len(tokens))
}

// SentenceStats describes the sentence structure of a text.
type SentenceStats struct {
	// WordCounts holds the token count of every non-empty sentence.
	WordCounts []int `json:"word_counts,omitempty"`

	// Variance is the population variance of WordCounts; 0 for fewer than two
	// sentences.
	Variance float64 `json:"variance"`

	HasQuestion    bool `json:"has_question"`
	HasExclamation bool `json:"has_exclamation"`
	HasPeriod      bool `json:"has_period"`
}

// Sentences splits text on terminal punctuation and measures the result.
func Sentences(text string) SentenceStats {
	s := SentenceStats{
		HasQuestion:    strings.Contains(text, "?"),
		HasExclamation: strings.Contains(text, "!"),
		HasPeriod:      strings.Contains(text, "."),
	}
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	for _, p := range parts {
		if n := len(Tokenize(p)); n > 0 {
			s.WordCounts = append(s.WordCounts, n)
		}
	}
	if len(s.WordCounts) < 2 {
		return s
	}

	var sum float64
	for _, n := range s.WordCounts {
		sum += float64(n)
	}
	m := sum / float64(len(s.WordCounts))
	var ss float64
	for _, n := range s.WordCounts {
		d := float64(n) - m
		ss += d * d
	}
	s.Variance = ss / float64(len(s.WordCounts))
	return s
}

// SelfCorrection is a pair of adjacent words where the speaker restarted or
// corrected a word ("walk walked", "go going").
type SelfCorrection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SelfCorrections finds adjacent non-identical tokens that are either a
// truncated prefix of the next word or nearly identical to it by
// Jaro-Winkler similarity.
func SelfCorrections(tokens []string) []SelfCorrection {
	var out []SelfCorrection
	for i := 1; i < len(tokens); i++ {
		a, b := tokens[i-1], tokens[i]
		if a == b || isFiller(a) || isFiller(b) {
			continue
		}
		if len(a) >= 2 && len(b) > len(a) && strings.HasPrefix(b, a) && len(b) >= minCorrectionLen+1 {
			out = append(out, SelfCorrection{From: a, To: b})
			continue
		}
		if len(a) < minCorrectionLen || len(b) < minCorrectionLen {
			continue
		}
		if matchr.JaroWinkler(a, b, false) >= selfCorrectionSimilarity {
			out = append(out, SelfCorrection{From: a, To: b})
		}
	}
	return out
}

// Analysis bundles every text heuristic computed over one transcript.
type Analysis struct {
	Tokens          []string         `json:"-"`
	WordCount       int              `json:"word_count"`
	Fillers         FillerReport     `json:"fillers"`
	Repetitions     int              `json:"repetitions"`
	RepetitionRatio float64          `json:"repetition_ratio"`
	Sentences       SentenceStats    `json:"sentences"`
	Patterns        []PatternMatch   `json:"patterns,omitempty"`
	SelfCorrections []SelfCorrection `json:"self_corrections,omitempty"`
	HasLongWord     bool             `json:"has_long_word"`
}

// Analyze runs every heuristic over text.
func Analyze(text string) Analysis {
	tokens := Tokenize(text)
	a := Analysis{
		Tokens:          tokens,
		WordCount:       len(tokens),
		Fillers:         CountFillers(tokens),
		Sentences:       Sentences(text),
		Patterns:        DifficultPatterns(tokens),
		SelfCorrections: SelfCorrections(tokens),
	}
	a.Repetitions, a.RepetitionRatio = Repetitions(tokens)
	a.HasLongWord = slices.ContainsFunc(tokens, func(w string) bool {
		return len(w) >= LongWordLen
	})
	return a
}
