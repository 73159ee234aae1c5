package heuristics

import (
	"slices"
	"strings"
)

// Pattern is one pronunciation-risk pattern recognised in transcript text.
type Pattern struct {
	Name  string
	Tip   string
	Match func(word string) bool
}

// PatternMatch lists the distinct words of a text that matched a [Pattern].
type PatternMatch struct {
	Name  string   `json:"name"`
	Tip   string   `json:"tip"`
	Words []string `json:"words"`
}

// Patterns is the ordered table consulted by [DifficultPatterns].
var Patterns = []Pattern{
	{
		Name:  "TH sound",
		Tip:   "Place the tip of your tongue lightly between your teeth for TH.",
		Match: func(w string) bool { return strings.Contains(w, "th") },
	},
	{
		Name:  "-ED ending",
		Tip:   "Pronounce past-tense -ED endings clearly as /t/, /d/ or /ɪd/.",
		Match: func(w string) bool { return len(w) > 3 && strings.HasSuffix(w, "ed") },
	},
	{
		Name:  "-TION ending",
		Tip:   "Say -TION as a soft \"shun\" without adding an extra vowel.",
		Match: func(w string) bool { return strings.HasSuffix(w, "tion") },
	},
	{
		Name: "Consonant cluster",
		Tip:  "Keep consonant clusters together without inserting a vowel between them.",
		Match: func(w string) bool {
			return slices.ContainsFunc([]string{"str", "spl", "spr", "scr", "thr"}, func(c string) bool {
				return strings.Contains(w, c)
			})
		},
	},
	{
		Name:  "V/W contrast",
		Tip:   "Touch your lower lip to your upper teeth for V; round your lips for W.",
		Match: func(w string) bool { return strings.HasPrefix(w, "v") || strings.HasPrefix(w, "w") },
	},
	{
		Name:  "Final R",
		Tip:   "Finish words ending in R without dropping or rolling the sound.",
		Match: func(w string) bool { return len(w) > 2 && strings.HasSuffix(w, "r") },
	},
}

// DifficultPatterns matches tokens against [Patterns]. The result holds only
// patterns with at least one match, ordered by the number of distinct
// matching words (most first); ties keep table order.
func DifficultPatterns(tokens []string) []PatternMatch {
	var out []PatternMatch
	for _, p := range Patterns {
		var words []string
		for _, w := range tokens {
			if p.Match(w) && !slices.Contains(words, w) {
				words = append(words, w)
			}
		}
		if len(words) > 0 {
			out = append(out, PatternMatch{Name: p.Name, Tip: p.Tip, Words: words})
		}
	}
	slices.SortStableFunc(out, func(a, b PatternMatch) int {
		return len(b.Words) - len(a.Words)
	})
	return out
}
