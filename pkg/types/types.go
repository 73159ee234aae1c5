// Package types defines the data exchanged between the transcription
// providers, the scoring packages and the HTTP layer.
//
// Transcripts are produced by an external ASR collaborator and treated as
// read-only input everywhere else. Optional numeric fields follow the
// convention that a zero value means "not reported".
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Word is a single recognised word with optional timing and confidence.
type Word struct {
	// Text is the word as recognised, possibly carrying punctuation.
	Text string

	// Start and End locate the word relative to the start of the recording.
	// Both are zero when the provider does not report word timings.
	Start time.Duration
	End   time.Duration

	// Confidence is the provider's confidence in [0,1]. Zero if not reported.
	Confidence float64
}

// Segment is a phrase-level recognition result.
type Segment struct {
	Text string

	// Confidence is the segment confidence in [0,1]. Zero if not reported.
	Confidence float64
}

// Transcript is the ASR output for one recording.
type Transcript struct {
	// Text is the full UTF-8 transcript.
	Text string

	// Duration is the length of the recording the transcript covers.
	Duration time.Duration

	// Words is the ordered word list. May be empty.
	Words []Word

	// Segments is the ordered segment list. May be empty.
	Segments []Segment
}

// HasWordTimings reports whether at least one word carries timing data.
func (t Transcript) HasWordTimings() bool {
	for _, w := range t.Words {
		if w.End > 0 {
			return true
		}
	}
	return false
}

// SegmentConfidences returns the reported (non-zero) segment confidences in
// order. The result is nil when no segment reports a confidence.
func (t Transcript) SegmentConfidences() []float64 {
	var out []float64
	for _, s := range t.Segments {
		if s.Confidence > 0 {
			out = append(out, s.Confidence)
		}
	}
	return out
}

// PlainText returns Text, or the space-joined word list when the provider
// reported words but no text.
func (t Transcript) PlainText() string {
	if strings.TrimSpace(t.Text) != "" || len(t.Words) == 0 {
		return t.Text
	}
	words := make([]string, len(t.Words))
	for i, w := range t.Words {
		words[i] = w.Text
	}
	return strings.Join(words, " ")
}

// IsEmpty reports whether the transcript carries no recognised speech.
func (t Transcript) IsEmpty() bool {
	return strings.TrimSpace(t.Text) == "" && len(t.Words) == 0
}

// ---- JSON wire format ------------------------------------------------------
//
// Durations travel as fractional seconds so that clients in any language can
// produce and consume transcripts without knowing Go's duration encoding.

type wireWord struct {
	Text       string  `json:"text"`
	StartS     float64 `json:"start_s,omitempty"`
	EndS       float64 `json:"end_s,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

type wireSegment struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

type wireTranscript struct {
	Text      string        `json:"text"`
	DurationS float64       `json:"duration_s"`
	Words     []wireWord    `json:"words,omitempty"`
	Segments  []wireSegment `json:"segments,omitempty"`
}

// MarshalJSON encodes the transcript with durations in seconds.
func (t Transcript) MarshalJSON() ([]byte, error) {
	w := wireTranscript{
		Text:      t.Text,
		DurationS: t.Duration.Seconds(),
	}
	for _, word := range t.Words {
		w.Words = append(w.Words, wireWord{
			Text:       word.Text,
			StartS:     word.Start.Seconds(),
			EndS:       word.End.Seconds(),
			Confidence: word.Confidence,
		})
	}
	for _, s := range t.Segments {
		w.Segments = append(w.Segments, wireSegment(s))
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the seconds-based wire format.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	var w wireTranscript
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = Transcript{
		Text:     w.Text,
		Duration: Seconds(w.DurationS),
	}
	for _, word := range w.Words {
		t.Words = append(t.Words, Word{
			Text:       word.Text,
			Start:      Seconds(word.StartS),
			End:        Seconds(word.EndS),
			Confidence: word.Confidence,
		})
	}
	for _, s := range w.Segments {
		t.Segments = append(t.Segments, Segment(s))
	}
	return nil
}

// Seconds converts fractional seconds to a [time.Duration]. Negative inputs
// are clamped to zero.
func Seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
