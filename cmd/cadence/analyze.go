package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cadence/internal/analysis"
	"github.com/MrWong99/cadence/internal/app"
	"github.com/MrWong99/cadence/internal/config"
	"github.com/MrWong99/cadence/pkg/prosody"
	"github.com/MrWong99/cadence/pkg/types"
)

func newAnalyzeCmd(c *cli) *cobra.Command {
	var (
		contentType string
		rate        int
		paraphrase  bool
		contour     bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <audio-file>",
		Short: "Extract prosody and score one recording",
		Long: `analyze runs the full pipeline on a recording: acoustic extraction, speech
recognition when an ASR provider is configured, scoring and feedback.
WAV is decoded from its header; .pcm and .raw files are read as 16-bit
little-endian mono at --rate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if contentType == "" {
				contentType = guessContentType(args[0], rate)
			}
			if contour {
				c.cfg.Extractor.IncludeContour = true
			}
			req := analysis.Request{Audio: data, ContentType: contentType}
			if cmd.Flags().Changed("paraphrase") {
				req.Paraphrase = &paraphrase
			}

			application, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Shutdown(context.WithoutCancel(cmd.Context()))

			res, err := application.Service().Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			return c.render(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "media type of the file (guessed from the extension when empty)")
	cmd.Flags().IntVar(&rate, "rate", 16000, "sample rate of raw PCM input")
	cmd.Flags().BoolVar(&paraphrase, "paraphrase", false, "reword feedback with the configured LLM")
	cmd.Flags().BoolVar(&contour, "contour", false, "include the pitch contour in the output")
	return cmd
}

func newScoreCmd(c *cli) *cobra.Command {
	var (
		prosodyPath string
		paraphrase  bool
	)
	cmd := &cobra.Command{
		Use:   "score <transcript.json|->",
		Short: "Score a transcript without audio",
		Long: `score reads a transcript in the service's JSON format
({"text": "...", "duration_s": 5.0, "words": [...]}) from a file or stdin
and prints the scores and feedback. --prosody adds an acoustic summary
produced by an earlier analyze run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tr types.Transcript
			if err := readJSON(cmd.InOrStdin(), args[0], &tr); err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}
			if tr.Duration < 0 {
				return fmt.Errorf("read transcript: negative duration")
			}

			var summary *prosody.Summary
			if prosodyPath != "" {
				summary = new(prosody.Summary)
				if err := readJSON(cmd.InOrStdin(), prosodyPath, summary); err != nil {
					return fmt.Errorf("read prosody summary: %w", err)
				}
			}
			var want *bool
			if cmd.Flags().Changed("paraphrase") {
				want = &paraphrase
			}

			application, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Shutdown(context.WithoutCancel(cmd.Context()))

			return c.render(cmd.OutOrStdout(), application.Service().Score(cmd.Context(), tr, summary, want))
		},
	}
	cmd.Flags().StringVar(&prosodyPath, "prosody", "", "JSON acoustic summary to blend into the scores")
	cmd.Flags().BoolVar(&paraphrase, "paraphrase", false, "reword feedback with the configured LLM")
	return cmd
}

// newApp wires an application for one-shot commands. Providers are built the
// same way as for serve.
func (c *cli) newApp(ctx context.Context) (*app.App, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(c.cfg, reg)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, c.cfg, providers)
}

// guessContentType maps a file extension to the media type the analysis
// service understands.
func guessContentType(path string, rate int) string {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return "audio/wav"
	case ".pcm", ".raw", ".s16":
		return fmt.Sprintf("audio/l16; rate=%d; channels=1", rate)
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}

// readJSON decodes the file at path, or stdin when path is "-".
func readJSON(stdin io.Reader, path string, v any) error {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return json.NewDecoder(r).Decode(v)
}

// ── Output ────────────────────────────────────────────────────────────────────

func (c *cli) render(w io.Writer, res *analysis.Result) error {
	if c.output == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	renderText(w, res)
	return nil
}

func renderText(w io.Writer, res *analysis.Result) {
	fmt.Fprintf(w, "Result %s (%s)\n", res.ID, time.Duration(res.ElapsedMs)*time.Millisecond)

	if p := res.Prosody; p != nil {
		fmt.Fprintln(w, "\nProsody")
		fmt.Fprintf(w, "  duration      %.2fs\n", p.DurationS)
		fmt.Fprintf(w, "  pitch mean    %s\n", optFloat(p.F0Mean, "%.1f Hz"))
		fmt.Fprintf(w, "  pitch stdev   %s\n", optFloat(p.F0Stdev, "%.1f Hz"))
		fmt.Fprintf(w, "  energy mean   %.4f\n", p.EnergyMean)
		fmt.Fprintf(w, "  pauses        %d (avg %s)\n", p.PauseCount, optFloat(p.AvgPauseMs, "%.0f ms"))
		fmt.Fprintf(w, "  speech rate   %s\n", optFloat(p.SpeechRateSyllablesPerMin, "%.0f syllables/min"))
		fmt.Fprintf(w, "  monotony      %s\n", optFloat(p.Monotony, "%.2f"))
		for _, tip := range p.Tips {
			fmt.Fprintf(w, "  tip: %s\n", tip)
		}
	}

	if res.Transcript != nil {
		fmt.Fprintf(w, "\nTranscript\n  %q\n", res.Transcript.Text)
	}

	if s := res.Scores; s != nil {
		fmt.Fprintln(w, "\nScores")
		fmt.Fprintf(w, "  pronunciation %.2f\n", s.Pronunciation)
		fmt.Fprintf(w, "  rhythm        %.2f\n", s.Rhythm)
		fmt.Fprintf(w, "  intonation    %.2f\n", s.Intonation)
		fmt.Fprintf(w, "  fluency       %.2f\n", s.Fluency)
		fmt.Fprintf(w, "  overall       %.2f\n", s.Overall)
		fmt.Fprintf(w, "  words         %d in %.1fs (%s)\n", s.WordCount, s.DurationS, optFloat(s.SpeakingRate, "%.0f wpm"))
	}

	fb := res.Feedback
	fmt.Fprintf(w, "\nFeedback (%s)\n", fb.Source)
	for _, s := range fb.Strengths {
		fmt.Fprintf(w, "  + %s\n", s)
	}
	for _, s := range fb.Improvements {
		fmt.Fprintf(w, "  - %s\n", s)
	}
	for _, is := range fb.SpecificIssues {
		kinds := make([]string, len(is.Issues))
		for i, k := range is.Issues {
			kinds[i] = k.Type
		}
		fmt.Fprintf(w, "  ! %-14s %3d  %-6s %s\n", is.Word, is.Score, is.Severity, strings.Join(kinds, ", "))
	}

	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "\nwarning: %s\n", warn)
	}
}

func optFloat(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}
