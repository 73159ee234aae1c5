// Package feedback turns a score breakdown into a structured report of
// strengths, improvements and per-word issues.
//
// Generation is deterministic template selection: each sub-score picks a
// message from its threshold band, and every claim in the report can be
// traced back to the breakdown, the transcript or the word-level analysis.
// An optional paraphraser may reword strengths and improvements through
// [Report.WithParaphrase]; specific issues are never touched.
package feedback

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/MrWong99/cadence/pkg/scoring"
	"github.com/MrWong99/cadence/pkg/scoring/heuristics"
	"github.com/MrWong99/cadence/pkg/scoring/wordlevel"
	"github.com/MrWong99/cadence/pkg/types"
)

// Report sources.
const (
	SourceRules      = "rules"
	SourceParaphrase = "paraphrase"
	SourceDefault    = "default"
)

// Score bands shared by all four metrics.
const (
	bandExcellent = 0.85
	bandGood      = 0.70
	bandFair      = 0.60

	priorityBelow = bandGood
)

// Severity grades a specific word issue.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// SeverityFor maps a word score to a severity: below 60 is high, below 75
// medium, anything else low.
func SeverityFor(score int) Severity {
	switch {
	case score < 60:
		return SeverityHigh
	case score < 75:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SpecificIssue is a word-level issue with its severity attached.
type SpecificIssue struct {
	wordlevel.WordIssue
	Severity Severity `json:"severity"`
}

// Report is the feedback for one recording. It is built fresh for every call
// and owned by the caller.
type Report struct {
	Strengths      []string        `json:"strengths"`
	Improvements   []string        `json:"improvements"`
	SpecificIssues []SpecificIssue `json:"specific_issues"`

	// Source is one of SourceRules, SourceParaphrase or SourceDefault.
	Source string `json:"source"`
}

// DefaultReport returns the placeholder report used when no transcript is
// available.
func DefaultReport() Report {
	return Report{
		Strengths: []string{
			"Thanks for recording! Regular practice is the fastest way to improve.",
		},
		Improvements: []string{
			"We could not transcribe this recording. Try again in a quiet room, closer to the microphone.",
			"Speak for at least eight seconds so there is enough speech to analyse.",
		},
		SpecificIssues: []SpecificIssue{},
		Source:         SourceDefault,
	}
}

// WithParaphrase returns a copy of r whose strengths and improvements are
// replaced by the non-empty arguments. Specific issues are carried over
// unchanged.
func (r Report) WithParaphrase(strengths, improvements []string) Report {
	out := Report{
		Strengths:      slices.Clone(r.Strengths),
		Improvements:   slices.Clone(r.Improvements),
		SpecificIssues: slices.Clone(r.SpecificIssues),
		Source:         r.Source,
	}
	if len(strengths) > 0 {
		out.Strengths = slices.Clone(strengths)
		out.Source = SourceParaphrase
	}
	if len(improvements) > 0 {
		out.Improvements = slices.Clone(improvements)
		out.Source = SourceParaphrase
	}
	return out
}

// Generate builds the rule-based report for b. tr supplies the original text
// so filler words can be quoted as spoken; issues is the word-level ranking.
func Generate(b scoring.Breakdown, tr types.Transcript, issues []wordlevel.WordIssue) Report {
	g := generator{b: b, a: b.Analysis, text: tr.PlainText()}

	g.pronunciation()
	g.rhythm()
	g.intonation()
	g.fluency()
	g.selfCorrections()

	if p, ok := g.priority(); ok {
		g.improvements = append([]string{p}, g.improvements...)
	}

	r := Report{
		Strengths:      g.strengths,
		Improvements:   g.improvements,
		SpecificIssues: make([]SpecificIssue, 0, len(issues)),
		Source:         SourceRules,
	}
	if r.Strengths == nil {
		r.Strengths = []string{}
	}
	if r.Improvements == nil {
		r.Improvements = []string{}
	}
	for _, wi := range issues {
		r.SpecificIssues = append(r.SpecificIssues, SpecificIssue{WordIssue: wi, Severity: SeverityFor(wi.Score)})
	}
	return r
}

type generator struct {
	b    scoring.Breakdown
	a    heuristics.Analysis
	text string

	strengths    []string
	improvements []string
}

func (g *generator) strength(s string) { g.strengths = append(g.strengths, s) }
func (g *generator) improvement(s string) { g.improvements = append(g.improvements, s) }

func (g *generator) pronunciation() {
	v := g.b.Pronunciation
	switch {
	case v >= bandExcellent:
		g.strength("Your pronunciation is clear and easy to understand.")
	case v >= bandGood:
		g.strength("Your pronunciation is generally clear; keep polishing individual sounds.")
	case v >= bandFair:
		g.improvement(g.patternAdvice("Some sounds were unclear."))
	default:
		g.improvement(g.patternAdvice("Pronunciation needs focused practice."))
	}
}

// patternAdvice cites the most frequent difficult pattern, or falls back to a
// consonant-ending tip when the text matched none.
func (g *generator) patternAdvice(lead string) string {
	if len(g.a.Patterns) == 0 {
		return lead + " Finish every word fully, paying special attention to final consonants like -t, -d and -s."
	}
	p := g.a.Patterns[0]
	return fmt.Sprintf("%s Work on the %s in words like %s. %s", lead, p.Name, quoteList(p.Words, 3), p.Tip)
}

func (g *generator) rhythm() {
	rate := g.b.SpeakingRate
	if rate == nil {
		g.improvement("Your speaking pace could not be measured; record a longer sample with continuous speech.")
		return
	}
	v := g.b.Rhythm
	switch {
	case v >= bandExcellent:
		g.strength(fmt.Sprintf("Your pace of %.0f words per minute is natural and easy to follow.", *rate))
	case v >= bandGood:
		g.strength(fmt.Sprintf("Your pace of %.0f words per minute is comfortable; around 140 sounds most natural.", *rate))
	default:
		lead := ""
		if v < bandFair {
			lead = "Your pace needs attention. "
		}
		if *rate < 140 {
			g.improvement(fmt.Sprintf("%sAt %.0f words per minute you are speaking slowly; link words together and aim for about 140.", lead, *rate))
		} else {
			g.improvement(fmt.Sprintf("%sAt %.0f words per minute you are speaking quickly; slow down to about 140 so every word lands.", lead, *rate))
		}
	}
}

func (g *generator) intonation() {
	v := g.b.Intonation
	switch {
	case v >= bandExcellent:
		g.strength("Your intonation varies naturally across different sentence types.")
	case v >= bandGood:
		g.strength("Your intonation is pleasant; mixing questions and exclamations adds even more expression.")
	case v >= bandFair:
		g.improvement("Vary your intonation: let your voice rise on questions and fall at the end of statements.")
	default:
		g.improvement("Your speech sounds flat. Exaggerate the rise and fall of your voice on key words while practising.")
	}
}

func (g *generator) fluency() {
	v := g.b.Fluency
	at := ""
	if g.b.SpeakingRate != nil {
		at = fmt.Sprintf(" at %.0f words per minute", *g.b.SpeakingRate)
	}
	fillers := g.fillerList()

	switch {
	case v >= bandExcellent:
		g.strength(fmt.Sprintf("You speak fluently%s with few hesitations.", at))
	case v >= bandGood:
		g.strength(fmt.Sprintf("Your speech flows well%s.", at))
	default:
		msg := fmt.Sprintf("Work on smoother delivery%s.", at)
		if v < bandFair {
			msg = fmt.Sprintf("Your delivery was frequently interrupted%s.", at)
		}
		if fillers != "" {
			msg += fmt.Sprintf(" You used filler words %s.", fillers)
		}
		if g.a.Repetitions > 0 {
			msg += " Try not to repeat words back to back."
		}
		g.improvement(msg)
		return
	}
	if fillers != "" {
		g.improvement(fmt.Sprintf("You used filler words %s; a short silent pause works better.", fillers))
	}
}

// fillerList quotes each filler as it appeared in the transcript, with its
// count.
func (g *generator) fillerList() string {
	parts := make([]string, 0, len(g.a.Fillers.Counts))
	for _, fc := range g.a.Fillers.Counts {
		parts = append(parts, fmt.Sprintf("%q (%d×)", verbatim(g.text, fc.Word), fc.Count))
	}
	return strings.Join(parts, ", ")
}

func (g *generator) selfCorrections() {
	sc := g.a.SelfCorrections
	if len(sc) == 0 {
		return
	}
	parts := make([]string, 0, min(3, len(sc)))
	for _, c := range sc[:min(3, len(sc))] {
		parts = append(parts, fmt.Sprintf("%q → %q", c.From, c.To))
	}
	g.improvement(fmt.Sprintf("You corrected yourself mid-word (%s); slow down and plan the phrase before saying it.", strings.Join(parts, ", ")))
}

// priority names the weakest defined sub-score when it falls below 0.70.
// Ties resolve in the order pronunciation, rhythm, intonation, fluency.
func (g *generator) priority() (string, bool) {
	type metric struct {
		name  string
		value float64
	}
	metrics := []metric{{"pronunciation", g.b.Pronunciation}}
	if g.b.SpeakingRate != nil {
		metrics = append(metrics, metric{"rhythm", g.b.Rhythm})
	}
	metrics = append(metrics, metric{"intonation", g.b.Intonation}, metric{"fluency", g.b.Fluency})

	weakest := metrics[0]
	for _, m := range metrics[1:] {
		if m.value < weakest.value {
			weakest = m
		}
	}
	if weakest.value >= priorityBelow {
		return "", false
	}
	return fmt.Sprintf("Priority: focus on your %s first (%d/100).", weakest.name, int(math.Round(weakest.value*100))), true
}

// verbatim returns word as it was written in text, matching
// case-insensitively on word boundaries.
func verbatim(text, word string) string {
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		return word
	}
	for off := 0; off < len(lower); {
		i := strings.Index(lower[off:], word)
		if i < 0 {
			break
		}
		i += off
		end := i + len(word)
		if (i == 0 || !isWordByte(lower[i-1])) && (end == len(lower) || !isWordByte(lower[end])) {
			return text[i:end]
		}
		off = i + 1
	}
	return word
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '\''
}

func quoteList(words []string, n int) string {
	words = words[:min(n, len(words))]
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fmt.Sprintf("%q", w)
	}
	return strings.Join(parts, ", ")
}
