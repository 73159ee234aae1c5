// Package wordlevel ranks the words of a transcript by pronunciation risk.
//
// With word timings available every word is scored against a penalty table
// (base 85, floor 50) and the ten worst are returned. Without timings a
// coarser constant table is used, the five worst are returned, and the list
// is backfilled with long words so the learner always gets a few words to
// practise.
package wordlevel

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/cadence/pkg/scoring/heuristics"
	"github.com/MrWong99/cadence/pkg/types"
)

const (
	baseScore  = 85
	floorScore = 50

	// keepBelow retains words without a matched issue when they still score
	// under it.
	keepBelow = 80

	maxTimed    = 10
	maxFallback = 5
	minFallback = 3

	minWordLen   = 3
	longWordLen  = 8
	backfillLong = 6

	backfillLongScore  = 78
	backfillShortScore = 80
	backfillShortLen   = 4
)

// Issue is one pronunciation risk found in a word.
type Issue struct {
	Type       string `json:"type"`
	Suggestion string `json:"suggestion"`
}

// WordIssue is the ranked assessment of one word.
type WordIssue struct {
	Word string `json:"word"`

	// Start and End are in seconds; nil in fallback mode.
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`

	// Score is 0..100, lower is worse.
	Score  int     `json:"score"`
	Issues []Issue `json:"issues"`
}

type rule struct {
	issue Issue
	match func(w string) bool
	value int // penalty in timed mode, constant score in fallback mode
}

var timedRules = []rule{
	{Issue{"TH sound", "Put your tongue between your teeth and blow air gently."}, hasTH, 15},
	{Issue{"Final R", "Finish the R without dropping it or adding a vowel."}, hasFinalR, 10},
	{Issue{"-ED ending", "Say the -ED ending as /t/, /d/ or /ɪd/ depending on the sound before it."}, hasED, 8},
	{Issue{"-TION ending", "Pronounce -TION as \"shun\"."}, hasTION, 10},
	{Issue{"Long word", "Break the word into syllables and stress the right one."}, isLong, 5},
	{Issue{"Initial vowel", "Start the vowel cleanly without a glottal stop or an added consonant."}, startsWithVowel, 5},
}

var fallbackRules = []rule{
	{Issue{"TH sound", "Place your tongue lightly between your teeth for TH."}, hasTH, 70},
	{Issue{"Past tense -ED", "Make the -ED ending audible; it is often swallowed."}, hasED, 75},
	{Issue{"-TION ending", "Pronounce -TION as \"shun\"."}, hasTION, 72},
	{Issue{"Final R", "Finish the R without dropping it."}, hasFinalR, 74},
	{Issue{"Multi-syllable word", "Stress the correct syllable and keep the others light."}, isLong, 76},
}

var practiceIssue = Issue{
	Type:       "Syllable practice",
	Suggestion: "Practice this word syllable-by-syllable, then say it at normal speed.",
}

func hasTH(w string) bool { return strings.Contains(w, "th") }
func hasFinalR(w string) bool { return strings.HasSuffix(w, "r") }
func hasED(w string) bool { return strings.HasSuffix(w, "ed") }
func hasTION(w string) bool { return strings.HasSuffix(w, "tion") }
func isLong(w string) bool { return utf8.RuneCountInString(w) >= longWordLen }
func startsWithVowel(w string) bool {
	return w != "" && strings.ContainsRune("aeiou", rune(w[0]))
}

// Analyze ranks the words of tr, using timed mode when the transcript
// carries word timings and fallback mode otherwise.
func Analyze(tr types.Transcript) []WordIssue {
	if tr.HasWordTimings() {
		return AnalyzeTimed(tr.Words)
	}
	return AnalyzeText(tr.PlainText())
}

// AnalyzeTimed scores timed words with the penalty table and returns the
// ten worst, each word once.
func AnalyzeTimed(words []types.Word) []WordIssue {
	seen := map[string]bool{}
	var out []WordIssue
	for _, w := range words {
		norm := normalize(w.Text)
		if !eligible(norm) || seen[norm] {
			continue
		}
		seen[norm] = true

		score := baseScore
		var issues []Issue
		for _, r := range timedRules {
			if r.match(norm) {
				score -= r.value
				issues = append(issues, r.issue)
			}
		}
		score = max(floorScore, score)
		if len(issues) == 0 && score >= keepBelow {
			continue
		}

		start, end := w.Start.Seconds(), w.End.Seconds()
		out = append(out, WordIssue{Word: norm, Start: &start, End: &end, Score: score, Issues: issues})
	}
	return rank(out, maxTimed)
}

// AnalyzeText applies the fallback table to the words of text and backfills
// the result up to three entries.
func AnalyzeText(text string) []WordIssue {
	var words []string
	seen := map[string]bool{}
	for _, tok := range heuristics.Tokenize(text) {
		if eligible(tok) && !seen[tok] {
			seen[tok] = true
			words = append(words, tok)
		}
	}

	tagged := map[string]bool{}
	var out []WordIssue
	for _, w := range words {
		score := 100
		var issues []Issue
		for _, r := range fallbackRules {
			if r.match(w) {
				score = min(score, r.value)
				issues = append(issues, r.issue)
			}
		}
		if len(issues) > 0 {
			tagged[w] = true
			out = append(out, WordIssue{Word: w, Score: score, Issues: issues})
		}
	}
	out = rank(out, maxFallback)
	if len(out) >= minFallback {
		return out
	}

	var untagged []string
	for _, w := range words {
		if !tagged[w] {
			untagged = append(untagged, w)
		}
	}
	slices.SortStableFunc(untagged, func(a, b string) int {
		return cmp.Compare(utf8.RuneCountInString(b), utf8.RuneCountInString(a))
	})

	used := map[string]bool{}
	for _, w := range untagged {
		if len(out) >= minFallback {
			return out
		}
		if utf8.RuneCountInString(w) >= backfillLong {
			used[w] = true
			out = append(out, WordIssue{Word: w, Score: backfillLongScore, Issues: []Issue{practiceIssue}})
		}
	}
	for _, w := range untagged {
		if len(out) >= minFallback {
			break
		}
		if !used[w] && utf8.RuneCountInString(w) >= backfillShortLen {
			out = append(out, WordIssue{Word: w, Score: backfillShortScore, Issues: []Issue{practiceIssue}})
		}
	}
	return out
}

// rank sorts ascending by score, keeping first-appearance order for ties,
// and truncates to n.
func rank(issues []WordIssue, n int) []WordIssue {
	slices.SortStableFunc(issues, func(a, b WordIssue) int {
		return cmp.Compare(a.Score, b.Score)
	})
	if len(issues) > n {
		issues = issues[:n]
	}
	return issues
}

// normalize lowercases w and strips punctuation.
func normalize(w string) string {
	return strings.Join(heuristics.Tokenize(w), "")
}

func eligible(w string) bool {
	return utf8.RuneCountInString(w) >= minWordLen && strings.IndexFunc(w, unicode.IsLetter) >= 0
}
