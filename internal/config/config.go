// Package config provides the configuration schema, loader, provider registry
// and file watcher for the Cadence server and CLI.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/cadence/pkg/prosody/extractor"
	"github.com/MrWong99/cadence/pkg/prosody/signal"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to its slog equivalent. Unknown or empty values map to
// [slog.LevelInfo].
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// Fields omitted from the file keep the values from [Default].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings for the HTTP API.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It can be changed without a restart.
	LogLevel LogLevel `yaml:"log_level"`

	// RequestTimeout bounds a single HTTP request, including ASR and
	// paraphrasing. Zero disables the bound.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxUploadBytes caps the audio body accepted by /v1/analyze.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares which collaborator implementations to use. Each
// entry selects a named provider registered in the [Registry]. Fallbacks are
// tried in order when the primary fails or its circuit breaker is open.
type ProvidersConfig struct {
	ASR          ProviderEntry   `yaml:"asr"`
	ASRFallbacks []ProviderEntry `yaml:"asr_fallbacks"`
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above, such as "language".
	Options map[string]any `yaml:"options"`
}

// Configured reports whether the entry names a provider.
func (e ProviderEntry) Configured() bool { return e.Name != "" }

// ExtractorConfig tunes acoustic feature extraction. Zero values fall back to
// the extractor's own defaults.
type ExtractorConfig struct {
	// SampleRate is the rate uploads are resampled to before framing.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples per analysis frame.
	FrameSize int `yaml:"frame_size"`

	PausePercentile  float64 `yaml:"pause_percentile"`
	PauseFloor       float64 `yaml:"pause_floor"`
	MinPauseMs       float64 `yaml:"min_pause_ms"`
	PeakMultiplier   float64 `yaml:"peak_multiplier"`
	PeakPercentile   float64 `yaml:"peak_percentile"`
	MinPeakSpacingMs float64 `yaml:"min_peak_spacing_ms"`

	// MinF0 and MaxF0 bound the pitch search in Hz.
	MinF0 float64 `yaml:"min_f0"`
	MaxF0 float64 `yaml:"max_f0"`

	// ClarityThreshold is the minimum normalised autocorrelation for a frame
	// to count as voiced.
	ClarityThreshold float64 `yaml:"clarity_threshold"`

	// IncludeContour adds the full pitch contour to every summary.
	IncludeContour bool `yaml:"include_contour"`
}

// Options converts c into extractor options.
func (c ExtractorConfig) Options() []extractor.Option {
	return []extractor.Option{extractor.WithConfig(extractor.Config{
		PausePercentile:  c.PausePercentile,
		PauseFloor:       c.PauseFloor,
		MinPauseMs:       c.MinPauseMs,
		PeakMultiplier:   c.PeakMultiplier,
		PeakPercentile:   c.PeakPercentile,
		MinPeakSpacingMs: c.MinPeakSpacingMs,
		IncludeContour:   c.IncludeContour,
		Detector: signal.Detector{
			Threshold:    c.ClarityThreshold,
			MinFrequency: c.MinF0,
			MaxFrequency: c.MaxF0,
		},
	})}
}

// AnalysisConfig controls the end-to-end analysis pipeline.
type AnalysisConfig struct {
	// ASRTimeout bounds one transcription call including fallbacks.
	ASRTimeout time.Duration `yaml:"asr_timeout"`

	// ParaphraseTimeout bounds one paraphrase call including fallbacks.
	ParaphraseTimeout time.Duration `yaml:"paraphrase_timeout"`

	// Paraphrase enables LLM rewording of rule-based feedback by default.
	// Requests may still opt in or out individually.
	Paraphrase bool `yaml:"paraphrase"`

	// MaxParaphraseItems caps strengths and improvements returned by the LLM.
	MaxParaphraseItems int `yaml:"max_paraphrase_items"`

	// MaxStreams caps concurrent live-extraction streams. Zero means no cap.
	MaxStreams int `yaml:"max_streams"`
}

// ResilienceConfig tunes the circuit breakers guarding every provider.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// Default returns the configuration used for every field the YAML file
// leaves out.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":8080",
			LogLevel:       LogInfo,
			RequestTimeout: 60 * time.Second,
			MaxUploadBytes: 25 << 20,
		},
		Extractor: ExtractorConfig{
			SampleRate: 16000,
			FrameSize:  1024,
		},
		Analysis: AnalysisConfig{
			ASRTimeout:         30 * time.Second,
			ParaphraseTimeout:  15 * time.Second,
			MaxParaphraseItems: 5,
			MaxStreams:         16,
		},
		Resilience: ResilienceConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  3,
		},
	}
}
