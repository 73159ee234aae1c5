package feedback_test

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/cadence/pkg/feedback"
	"github.com/MrWong99/cadence/pkg/scoring"
	"github.com/MrWong99/cadence/pkg/scoring/heuristics"
	"github.com/MrWong99/cadence/pkg/scoring/wordlevel"
	"github.com/MrWong99/cadence/pkg/types"
)

func generate(tr types.Transcript) feedback.Report {
	return feedback.Generate(scoring.Score(tr), tr, wordlevel.Analyze(tr))
}

func containsText(list []string, sub string) bool {
	return slices.ContainsFunc(list, func(s string) bool { return strings.Contains(s, sub) })
}

func rate(v float64) *float64 { return &v }

func TestGenerate_CityScenario(t *testing.T) {
	t.Parallel()

	r := generate(types.Transcript{
		Text:     "I really, really like this city. Do you like it too?",
		Duration: 5 * time.Second,
	})

	if r.Source != feedback.SourceRules {
		t.Errorf("Source = %q, want %q", r.Source, feedback.SourceRules)
	}
	if len(r.Improvements) == 0 || r.Improvements[0] != "Priority: focus on your fluency first (69/100)." {
		t.Errorf("first improvement = %q, want fluency priority", r.Improvements)
	}
	if !containsText(r.Strengths, "132 words per minute") {
		t.Errorf("strengths %q do not mention the speaking rate", r.Strengths)
	}
	if !containsText(r.Improvements, `"like" (2×)`) {
		t.Errorf("improvements %q do not quote the filler", r.Improvements)
	}
	if !containsText(r.Improvements, "repeat words") {
		t.Errorf("improvements %q do not mention the repetition", r.Improvements)
	}

	if len(r.SpecificIssues) != 3 {
		t.Fatalf("len(SpecificIssues) = %d, want 3", len(r.SpecificIssues))
	}
	first := r.SpecificIssues[0]
	if first.Word != "this" || first.Score != 70 || first.Severity != feedback.SeverityMedium {
		t.Errorf("first issue = %+v, want this/70/medium", first)
	}
}

func TestSeverityFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score int
		want  feedback.Severity
	}{
		{50, feedback.SeverityHigh},
		{59, feedback.SeverityHigh},
		{60, feedback.SeverityMedium},
		{74, feedback.SeverityMedium},
		{75, feedback.SeverityLow},
		{80, feedback.SeverityLow},
	}
	for _, tt := range tests {
		if got := feedback.SeverityFor(tt.score); got != tt.want {
			t.Errorf("SeverityFor(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestGenerate_PatternAdvice(t *testing.T) {
	t.Parallel()

	b := scoring.Breakdown{
		Pronunciation: 0.65,
		Rhythm:        1,
		Intonation:    0.9,
		Fluency:       0.9,
		SpeakingRate:  rate(140),
		Analysis:      heuristics.Analyze("the weather there"),
	}
	r := feedback.Generate(b, types.Transcript{Text: "the weather there"}, nil)

	if r.Improvements[0] != "Priority: focus on your pronunciation first (65/100)." {
		t.Errorf("priority = %q", r.Improvements[0])
	}
	if !containsText(r.Improvements, `TH sound in words like "the", "weather", "there"`) {
		t.Errorf("improvements %q do not cite the TH pattern", r.Improvements)
	}
}

func TestGenerate_ConsonantTipWithoutPatterns(t *testing.T) {
	t.Parallel()

	b := scoring.Breakdown{
		Pronunciation: 0.55,
		Rhythm:        1,
		Intonation:    0.9,
		Fluency:       0.9,
		SpeakingRate:  rate(140),
		Analysis:      heuristics.Analyze("cat dog"),
	}
	r := feedback.Generate(b, types.Transcript{Text: "cat dog"}, nil)
	if !containsText(r.Improvements, "final consonants") {
		t.Errorf("improvements %q lack the consonant-ending tip", r.Improvements)
	}
	if !containsText(r.Improvements, "focused practice") {
		t.Errorf("improvements %q lack the stronger framing", r.Improvements)
	}
}

func TestGenerate_RateBands(t *testing.T) {
	t.Parallel()

	slow := feedback.Generate(scoring.Breakdown{
		Pronunciation: 0.9, Rhythm: 0.5, Intonation: 0.9, Fluency: 0.9, SpeakingRate: rate(60),
	}, types.Transcript{}, nil)
	if !containsText(slow.Improvements, "At 60 words per minute you are speaking slowly") {
		t.Errorf("slow improvements = %q", slow.Improvements)
	}

	fast := feedback.Generate(scoring.Breakdown{
		Pronunciation: 0.9, Rhythm: 0.5, Intonation: 0.9, Fluency: 0.9, SpeakingRate: rate(360),
	}, types.Transcript{}, nil)
	if !containsText(fast.Improvements, "Your pace needs attention. At 360 words per minute you are speaking quickly") {
		t.Errorf("fast improvements = %q", fast.Improvements)
	}
	if fast.Improvements[0] != "Priority: focus on your rhythm first (50/100)." {
		t.Errorf("priority = %q", fast.Improvements[0])
	}
}

func TestGenerate_EmptyTranscript(t *testing.T) {
	t.Parallel()

	r := generate(types.Transcript{})
	if !containsText(r.Improvements, "could not be measured") {
		t.Errorf("improvements %q lack the unmeasured pace note", r.Improvements)
	}
	if containsText(r.Improvements, "Priority:") {
		t.Errorf("unexpected priority for neutral scores: %q", r.Improvements)
	}
	if r.SpecificIssues == nil {
		t.Error("SpecificIssues is nil, want empty slice")
	}
}

func TestGenerate_QuotesFillersVerbatim(t *testing.T) {
	t.Parallel()

	r := generate(types.Transcript{Text: "Um, LIKE, it was like good.", Duration: 3 * time.Second})
	if !containsText(r.Improvements, `"Um" (1×)`) || !containsText(r.Improvements, `"LIKE" (2×)`) {
		t.Errorf("improvements %q do not quote fillers as spoken", r.Improvements)
	}
}

func TestGenerate_SelfCorrectionHint(t *testing.T) {
	t.Parallel()

	r := generate(types.Transcript{Text: "I walk walked home.", Duration: 2 * time.Second})
	if !containsText(r.Improvements, `"walk" → "walked"`) {
		t.Errorf("improvements %q lack the self-correction hint", r.Improvements)
	}
}

func TestWithParaphrase(t *testing.T) {
	t.Parallel()

	base := generate(types.Transcript{
		Text:     "I really, really like this city. Do you like it too?",
		Duration: 5 * time.Second,
	})

	got := base.WithParaphrase([]string{"Lovely flow."}, nil)
	if !slices.Equal(got.Strengths, []string{"Lovely flow."}) {
		t.Errorf("Strengths = %q", got.Strengths)
	}
	if !slices.Equal(got.Improvements, base.Improvements) {
		t.Error("Improvements replaced by an empty paraphrase")
	}
	if !slices.EqualFunc(got.SpecificIssues, base.SpecificIssues, func(a, b feedback.SpecificIssue) bool {
		return a.Word == b.Word && a.Score == b.Score && a.Severity == b.Severity
	}) {
		t.Error("SpecificIssues changed")
	}
	if got.Source != feedback.SourceParaphrase {
		t.Errorf("Source = %q, want %q", got.Source, feedback.SourceParaphrase)
	}
	if base.Strengths[0] == "Lovely flow." {
		t.Error("WithParaphrase mutated the original report")
	}

	same := base.WithParaphrase(nil, []string{})
	if same.Source != feedback.SourceRules || !slices.Equal(same.Strengths, base.Strengths) {
		t.Errorf("empty paraphrase changed the report: %+v", same)
	}
}

func TestDefaultReport(t *testing.T) {
	t.Parallel()

	r := feedback.DefaultReport()
	if r.Source != feedback.SourceDefault {
		t.Errorf("Source = %q, want %q", r.Source, feedback.SourceDefault)
	}
	if len(r.Strengths) == 0 || len(r.Improvements) == 0 {
		t.Error("placeholder report has empty sections")
	}
	if r.SpecificIssues == nil || len(r.SpecificIssues) != 0 {
		t.Errorf("SpecificIssues = %v, want empty non-nil", r.SpecificIssues)
	}
}
