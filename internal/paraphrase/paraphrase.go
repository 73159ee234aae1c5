// Package paraphrase rewords rule-based feedback with a language model.
//
// The [Paraphraser] sends the transcript text and the score breakdown to an
// [llm.Provider] and asks for a JSON object with optional "strengths" and
// "improvements" arrays. The caller merges the result with
// feedback.Report.WithParaphrase, so word-level issues are never exposed to
// the model and can never be overwritten by it.
//
// Output that is not valid JSON, or that violates the schema, is discarded:
// Paraphrase returns a nil result and a nil error and the rule-based report
// stands.
package paraphrase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/cadence/pkg/provider/llm"
	"github.com/MrWong99/cadence/pkg/scoring"
)

const (
	defaultTemperature = 0.4
	defaultMaxTokens   = 600
	defaultMaxItems    = 5
	maxItemRunes       = 400
)

const systemPrompt = `You are a friendly English speaking coach.

You receive a learner's transcript and heuristic prosody scores between 0 and 1
(pronunciation, rhythm, intonation, fluency, overall) plus the measured speaking
rate in words per minute when it is known.

Write short, encouraging, concrete feedback.

Rules:
- Only make claims that follow from the scores and the transcript.
- Quote words from the transcript exactly as written when you mention them.
- Do not invent scores, word lists or numbers that are not given.
- At most %d strengths and %d improvements, one sentence each.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "strengths": ["<sentence>", ...],
  "improvements": ["<sentence>", ...]
}`

// Result is the reworded feedback. Either slice may be empty, in which case
// the rule-based entries for that section are kept.
type Result struct {
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Option configures a [Paraphraser].
type Option func(*Paraphraser)

// WithTemperature sets the sampling temperature. Default: 0.4.
func WithTemperature(temp float64) Option {
	return func(p *Paraphraser) {
		p.temperature = temp
	}
}

// WithMaxItems caps the number of entries kept per section. Default: 5.
func WithMaxItems(n int) Option {
	return func(p *Paraphraser) {
		if n > 0 {
			p.maxItems = n
		}
	}
}

// Paraphraser rewords feedback through an [llm.Provider]. It is safe for
// concurrent use.
type Paraphraser struct {
	llm         llm.Provider
	temperature float64
	maxItems    int
}

// New returns a Paraphraser backed by provider.
func New(provider llm.Provider, opts ...Option) *Paraphraser {
	p := &Paraphraser{
		llm:         provider,
		temperature: defaultTemperature,
		maxItems:    defaultMaxItems,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Paraphrase asks the model to reword feedback for text scored as b.
//
// Provider errors, including context cancellation, are returned wrapped.
// Malformed output yields (nil, nil).
func (p *Paraphraser) Paraphrase(ctx context.Context, text string, b scoring.Breakdown) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	resp, err := p.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(systemPrompt, p.maxItems, p.maxItems),
		Temperature:  p.temperature,
		MaxTokens:    p.maxTokens(),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserMessage(text, b)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("paraphrase: complete: %w", err)
	}
	if resp == nil {
		return nil, nil
	}

	r, err := parseResponse(resp.Content, p.maxItems)
	if err != nil {
		return nil, nil //nolint:nilerr // malformed output falls back to the rule-based report
	}
	return r, nil
}

// maxTokens caps the completion at the model's output limit when the
// provider reports one below the default.
func (p *Paraphraser) maxTokens() int {
	if limit := p.llm.Capabilities().MaxOutputTokens; limit > 0 && limit < defaultMaxTokens {
		return limit
	}
	return defaultMaxTokens
}

func buildUserMessage(text string, b scoring.Breakdown) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transcript: %s\n\n", text)
	fmt.Fprintf(&sb, "Scores: pronunciation=%.2f rhythm=%.2f intonation=%.2f fluency=%.2f overall=%.2f\n",
		b.Pronunciation, b.Rhythm, b.Intonation, b.Fluency, b.Overall)
	if b.SpeakingRate != nil {
		fmt.Fprintf(&sb, "Speaking rate: %.0f words per minute\n", *b.SpeakingRate)
	} else {
		sb.WriteString("Speaking rate: unknown\n")
	}
	if fc := b.Analysis.Fillers.Counts; len(fc) > 0 {
		parts := make([]string, len(fc))
		for i, c := range fc {
			parts[i] = fmt.Sprintf("%s×%d", c.Word, c.Count)
		}
		fmt.Fprintf(&sb, "Filler words: %s\n", strings.Join(parts, ", "))
	}
	return sb.String()
}

// parseResponse decodes the model output. Any entry that is blank or overlong
// makes the whole response invalid.
func parseResponse(content string, maxItems int) (*Result, error) {
	var raw struct {
		Strengths    *[]string `json:"strengths"`
		Improvements *[]string `json:"improvements"`
	}
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &raw); err != nil {
		return nil, fmt.Errorf("paraphrase: parse response: %w", err)
	}
	if raw.Strengths == nil && raw.Improvements == nil {
		return nil, fmt.Errorf("paraphrase: response has neither strengths nor improvements")
	}

	r := &Result{}
	var err error
	if raw.Strengths != nil {
		if r.Strengths, err = clean(*raw.Strengths, maxItems); err != nil {
			return nil, fmt.Errorf("paraphrase: strengths: %w", err)
		}
	}
	if raw.Improvements != nil {
		if r.Improvements, err = clean(*raw.Improvements, maxItems); err != nil {
			return nil, fmt.Errorf("paraphrase: improvements: %w", err)
		}
	}
	return r, nil
}

func clean(items []string, maxItems int) ([]string, error) {
	out := make([]string, 0, min(len(items), maxItems))
	for i, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("entry %d is empty", i)
		}
		if utf8.RuneCountInString(s) > maxItemRunes {
			return nil, fmt.Errorf("entry %d exceeds %d characters", i, maxItemRunes)
		}
		if len(out) < maxItems {
			out = append(out, s)
		}
	}
	return out, nil
}

// stripMarkdown removes optional ```json fences around the payload.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
