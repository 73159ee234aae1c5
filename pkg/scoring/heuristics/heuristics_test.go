package heuristics_test

import (
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/cadence/pkg/scoring/heuristics"
)

const cityText = "I really, really like this city. Do you like it too?"

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{cityText, []string{"i", "really", "really", "like", "this", "city", "do", "you", "like", "it", "too"}},
		{"Don't stop!", []string{"don't", "stop"}},
		{"'quoted' -- words...", []string{"quoted", "words"}},
		{"  ?! ", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := heuristics.Tokenize(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCountFillers(t *testing.T) {
	t.Parallel()

	r := heuristics.CountFillers(heuristics.Tokenize("Um, so you know I like it, well."))
	want := []heuristics.FillerCount{
		{Word: "um", Count: 1},
		{Word: "so", Count: 1},
		{Word: "you know", Count: 1},
		{Word: "like", Count: 1},
		{Word: "well", Count: 1},
	}
	if !slices.Equal(r.Counts, want) {
		t.Errorf("Counts = %+v, want %+v", r.Counts, want)
	}
	if r.Total != 5 {
		t.Errorf("Total = %d, want 5", r.Total)
	}
	if math.Abs(r.Ratio-5.0/8) > 1e-12 {
		t.Errorf("Ratio = %v, want %v", r.Ratio, 5.0/8)
	}
}

func TestCountFillers_Repeated(t *testing.T) {
	t.Parallel()

	r := heuristics.CountFillers(heuristics.Tokenize(cityText))
	if len(r.Counts) != 1 || r.Counts[0] != (heuristics.FillerCount{Word: "like", Count: 2}) {
		t.Errorf("Counts = %+v, want [like x2]", r.Counts)
	}
	if math.Abs(r.Ratio-2.0/11) > 1e-12 {
		t.Errorf("Ratio = %v, want %v", r.Ratio, 2.0/11)
	}
}

func TestCountFillers_Empty(t *testing.T) {
	t.Parallel()

	r := heuristics.CountFillers(nil)
	if r.Total != 0 || r.Ratio != 0 || r.Counts != nil {
		t.Errorf("CountFillers(nil) = %+v, want zero", r)
	}
}

func TestRepetitions(t *testing.T) {
	t.Parallel()

	n, ratio := heuristics.Repetitions(heuristics.Tokenize(cityText))
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if math.Abs(ratio-1.0/11) > 1e-12 {
		t.Errorf("ratio = %v, want %v", ratio, 1.0/11)
	}
	if n, ratio := heuristics.Repetitions(nil); n != 0 || ratio != 0 {
		t.Errorf("Repetitions(nil) = %d, %v", n, ratio)
	}
}

func TestSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		text        string
		counts      []int
		variance    float64
		question    bool
		exclamation bool
		period      bool
	}{
		{
			name:     "statement and question",
			text:     cityText,
			counts:   []int{6, 5},
			variance: 0.25,
			question: true,
			period:   true,
		},
		{
			name:     "uneven lengths",
			text:     "Hi. I went to the market yesterday to buy some bread.",
			counts:   []int{1, 10},
			variance: 20.25,
			period:   true,
		},
		{
			name:        "single exclamation",
			text:        "What a day!",
			counts:      []int{3},
			exclamation: true,
		},
		{name: "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := heuristics.Sentences(tt.text)
			if !slices.Equal(s.WordCounts, tt.counts) {
				t.Errorf("WordCounts = %v, want %v", s.WordCounts, tt.counts)
			}
			if math.Abs(s.Variance-tt.variance) > 1e-12 {
				t.Errorf("Variance = %v, want %v", s.Variance, tt.variance)
			}
			if s.HasQuestion != tt.question || s.HasExclamation != tt.exclamation || s.HasPeriod != tt.period {
				t.Errorf("flags = %v/%v/%v, want %v/%v/%v",
					s.HasQuestion, s.HasExclamation, s.HasPeriod, tt.question, tt.exclamation, tt.period)
			}
		})
	}
}

func TestSelfCorrections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want []heuristics.SelfCorrection
	}{
		{"I walk walked to the the store", []heuristics.SelfCorrection{{From: "walk", To: "walked"}}},
		{"we go going home", []heuristics.SelfCorrection{{From: "go", To: "going"}}},
		{"I recieve receive mail", []heuristics.SelfCorrection{{From: "recieve", To: "receive"}}},
		{"he her them", nil},
		{"the cat sat on the mat", nil},
	}
	for _, tt := range tests {
		got := heuristics.SelfCorrections(heuristics.Tokenize(tt.text))
		if !slices.Equal(got, tt.want) {
			t.Errorf("SelfCorrections(%q) = %+v, want %+v", tt.text, got, tt.want)
		}
	}
}

func TestDifficultPatterns(t *testing.T) {
	t.Parallel()

	got := heuristics.DifficultPatterns(heuristics.Tokenize("The weather is better than the worst."))
	if len(got) == 0 {
		t.Fatal("no patterns matched")
	}
	if got[0].Name != "TH sound" {
		t.Errorf("top pattern = %q, want TH sound", got[0].Name)
	}
	if want := []string{"the", "weather", "than"}; !slices.Equal(got[0].Words, want) {
		t.Errorf("TH words = %v, want %v", got[0].Words, want)
	}
	names := make([]string, len(got))
	for i, p := range got {
		names[i] = p.Name
	}
	if want := []string{"TH sound", "V/W contrast", "Final R"}; !slices.Equal(names, want) {
		t.Errorf("pattern order = %v, want %v", names, want)
	}
}

func TestDifficultPatterns_Endings(t *testing.T) {
	t.Parallel()

	got := heuristics.DifficultPatterns([]string{"walked", "station", "street"})
	names := map[string]bool{}
	for _, p := range got {
		names[p.Name] = true
	}
	for _, want := range []string{"-ED ending", "-TION ending", "Consonant cluster"} {
		if !names[want] {
			t.Errorf("missing pattern %q in %+v", want, got)
		}
	}
}

func TestAnalyze_Empty(t *testing.T) {
	t.Parallel()

	a := heuristics.Analyze("")
	if a.WordCount != 0 || a.Fillers.Ratio != 0 || a.RepetitionRatio != 0 {
		t.Errorf("Analyze(\"\") = %+v, want zero counts", a)
	}
	if a.HasLongWord || len(a.Patterns) != 0 || len(a.SelfCorrections) != 0 {
		t.Errorf("Analyze(\"\") reported findings: %+v", a)
	}
}

func TestAnalyze_LongWord(t *testing.T) {
	t.Parallel()

	if !heuristics.Analyze("pronunciation matters").HasLongWord {
		t.Error("HasLongWord = false for a 13-letter word")
	}
	if heuristics.Analyze("short words only").HasLongWord {
		t.Error("HasLongWord = true without long words")
	}
}
