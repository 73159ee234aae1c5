package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/cadence/pkg/prosody/signal"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr": {"whisper", "deepgram"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown keys are rejected. An empty document yields
// the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout %s must not be negative", cfg.Server.RequestTimeout))
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must be positive", cfg.Server.MaxUploadBytes))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	errs = append(errs, validateChain("asr", cfg.Providers.ASR, cfg.Providers.ASRFallbacks)...)
	errs = append(errs, validateChain("llm", cfg.Providers.LLM, cfg.Providers.LLMFallbacks)...)

	if !cfg.Providers.ASR.Configured() {
		slog.Warn("providers.asr is not configured; analysis will return acoustic scores and placeholder feedback only")
	}
	if cfg.Analysis.Paraphrase && !cfg.Providers.LLM.Configured() {
		errs = append(errs, errors.New("analysis.paraphrase requires providers.llm to be configured"))
	}

	// Extractor
	ex := cfg.Extractor
	if ex.SampleRate < 8000 || ex.SampleRate > 96000 {
		errs = append(errs, fmt.Errorf("extractor.sample_rate %d is out of range [8000, 96000]", ex.SampleRate))
	}
	if ex.FrameSize < 64 {
		errs = append(errs, fmt.Errorf("extractor.frame_size %d must be at least 64", ex.FrameSize))
	} else if ex.SampleRate > 0 {
		// Pitch lags run from sample_rate/max_f0 up to frame_size/2; an
		// empty window disables pitch detection for every frame.
		maxF0 := ex.MaxF0
		if maxF0 <= 0 {
			maxF0 = signal.DefaultMaxFrequency
		}
		if minLag := int(float64(ex.SampleRate) / maxF0); ex.FrameSize/2 <= minLag {
			errs = append(errs, fmt.Errorf("extractor.frame_size %d is too small to detect pitch up to %.0f Hz at %d Hz; half the frame must exceed %d samples",
				ex.FrameSize, maxF0, ex.SampleRate, minLag))
		}
	}
	for name, v := range map[string]float64{
		"pause_percentile": ex.PausePercentile,
		"peak_percentile":  ex.PeakPercentile,
	} {
		if v != 0 && (v <= 0 || v >= 1) {
			errs = append(errs, fmt.Errorf("extractor.%s %.3f is out of range (0, 1)", name, v))
		}
	}
	if ex.MinPauseMs < 0 || ex.MinPeakSpacingMs < 0 || ex.PauseFloor < 0 || ex.PeakMultiplier < 0 {
		errs = append(errs, errors.New("extractor thresholds must not be negative"))
	}
	if ex.MinF0 < 0 || ex.MaxF0 < 0 {
		errs = append(errs, errors.New("extractor.min_f0 and extractor.max_f0 must not be negative"))
	}
	if ex.MinF0 > 0 && ex.MaxF0 > 0 && ex.MinF0 >= ex.MaxF0 {
		errs = append(errs, fmt.Errorf("extractor.min_f0 %.0f must be below extractor.max_f0 %.0f", ex.MinF0, ex.MaxF0))
	}
	if ex.ClarityThreshold < 0 || ex.ClarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("extractor.clarity_threshold %.2f is out of range [0, 1]", ex.ClarityThreshold))
	}

	// Analysis
	if cfg.Analysis.ASRTimeout < 0 || cfg.Analysis.ParaphraseTimeout < 0 {
		errs = append(errs, errors.New("analysis timeouts must not be negative"))
	}
	if cfg.Analysis.MaxParaphraseItems < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_paraphrase_items %d must not be negative", cfg.Analysis.MaxParaphraseItems))
	}
	if cfg.Analysis.MaxStreams < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_streams %d must not be negative", cfg.Analysis.MaxStreams))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.HalfOpenMax < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience settings must not be negative"))
	}

	return errors.Join(errs...)
}

// validateChain checks a primary entry and its fallbacks.
func validateChain(kind string, primary ProviderEntry, fallbacks []ProviderEntry) []error {
	var errs []error
	validateProviderName(kind, primary.Name)
	if len(fallbacks) > 0 && !primary.Configured() {
		errs = append(errs, fmt.Errorf("providers.%s_fallbacks requires providers.%s to be configured", kind, kind))
	}
	for i, fb := range fallbacks {
		if !fb.Configured() {
			errs = append(errs, fmt.Errorf("providers.%s_fallbacks[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
