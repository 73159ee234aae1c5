package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/cadence/internal/config"
	"github.com/MrWong99/cadence/pkg/prosody/extractor"
	"github.com/MrWong99/cadence/pkg/provider/asr"
	asrmock "github.com/MrWong99/cadence/pkg/provider/asr/mock"
	"github.com/MrWong99/cadence/pkg/provider/llm"
	llmmock "github.com/MrWong99/cadence/pkg/provider/llm/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  request_timeout: 45s
  max_upload_bytes: 1048576

providers:
  asr:
    name: whisper
    base_url: http://localhost:8081
    options:
      language: en
  asr_fallbacks:
    - name: deepgram
      api_key: dg-test
      model: nova-2
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini

extractor:
  sample_rate: 22050
  frame_size: 2048
  min_pause_ms: 250
  min_f0: 60
  max_f0: 400
  include_contour: true

analysis:
  asr_timeout: 10s
  paraphrase_timeout: 5s
  paraphrase: true

resilience:
  max_failures: 2
  reset_timeout: 1m
`

func load(t *testing.T, yaml string) (*config.Config, error) {
	t.Helper()
	return config.LoadFromReader(strings.NewReader(yaml))
}

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, sampleYAML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.RequestTimeout != 45*time.Second {
		t.Errorf("request_timeout = %s, want 45s", cfg.Server.RequestTimeout)
	}
	if cfg.Providers.ASR.Name != "whisper" || cfg.Providers.ASR.Options["language"] != "en" {
		t.Errorf("providers.asr = %+v", cfg.Providers.ASR)
	}
	if len(cfg.Providers.ASRFallbacks) != 1 || cfg.Providers.ASRFallbacks[0].Model != "nova-2" {
		t.Errorf("providers.asr_fallbacks = %+v", cfg.Providers.ASRFallbacks)
	}
	if cfg.Extractor.FrameSize != 2048 || !cfg.Extractor.IncludeContour {
		t.Errorf("extractor = %+v", cfg.Extractor)
	}
	if cfg.Analysis.ASRTimeout != 10*time.Second || !cfg.Analysis.Paraphrase {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}
	if cfg.Resilience.ResetTimeout != time.Minute || cfg.Resilience.MaxFailures != 2 {
		t.Errorf("resilience = %+v", cfg.Resilience)
	}
	// Left out of the file, so the default survives.
	if cfg.Resilience.HalfOpenMax != 3 {
		t.Errorf("half_open_max = %d, want default 3", cfg.Resilience.HalfOpenMax)
	}
	if cfg.Analysis.MaxParaphraseItems != 5 {
		t.Errorf("max_paraphrase_items = %d, want default 5", cfg.Analysis.MaxParaphraseItems)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := config.Default()
	if cfg.Server != def.Server || cfg.Extractor != def.Extractor || cfg.Analysis != def.Analysis {
		t.Errorf("empty document = %+v, want defaults %+v", cfg, def)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := load(t, "server:\n  listen_adr: \":80\"\n")
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "listen_adr") {
		t.Errorf("error %q does not name the unknown field", err)
	}
}

func TestLoadFromReader_BadDuration(t *testing.T) {
	t.Parallel()

	if _, err := load(t, "analysis:\n  asr_timeout: soon\n"); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cadence.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm model = %q", cfg.Providers.LLM.Model)
	}

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) err = %v, want os.ErrNotExist", err)
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"bad log level", func(c *config.Config) { c.Server.LogLevel = "loud" }, "server.log_level"},
		{"zero upload cap", func(c *config.Config) { c.Server.MaxUploadBytes = 0 }, "max_upload_bytes"},
		{"half tls", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c.pem"} }, "server.tls"},
		{"fallback without primary", func(c *config.Config) {
			c.Providers.ASRFallbacks = []config.ProviderEntry{{Name: "deepgram"}}
		}, "providers.asr_fallbacks requires"},
		{"nameless fallback", func(c *config.Config) {
			c.Providers.LLM = config.ProviderEntry{Name: "openai"}
			c.Providers.LLMFallbacks = []config.ProviderEntry{{Model: "x"}}
		}, "providers.llm_fallbacks[0].name"},
		{"paraphrase without llm", func(c *config.Config) { c.Analysis.Paraphrase = true }, "analysis.paraphrase"},
		{"low sample rate", func(c *config.Config) { c.Extractor.SampleRate = 4000 }, "extractor.sample_rate"},
		{"tiny frame", func(c *config.Config) { c.Extractor.FrameSize = 16 }, "extractor.frame_size"},
		{"frame too short for pitch", func(c *config.Config) {
			c.Extractor.SampleRate = 16000
			c.Extractor.FrameSize = 64
		}, "too small to detect pitch"},
		{"frame too short for custom max_f0", func(c *config.Config) {
			c.Extractor.SampleRate = 16000
			c.Extractor.FrameSize = 128
			c.Extractor.MaxF0 = 200
		}, "too small to detect pitch"},
		{"smallest pitch-capable frame", func(c *config.Config) {
			c.Extractor.SampleRate = 16000
			c.Extractor.FrameSize = 128
		}, ""},
		{"percentile out of range", func(c *config.Config) { c.Extractor.PausePercentile = 1.5 }, "pause_percentile"},
		{"inverted pitch range", func(c *config.Config) {
			c.Extractor.MinF0 = 300
			c.Extractor.MaxF0 = 100
		}, "extractor.min_f0"},
		{"negative timeout", func(c *config.Config) { c.Analysis.ASRTimeout = -time.Second }, "analysis timeouts"},
		{"negative breaker", func(c *config.Config) { c.Resilience.MaxFailures = -1 }, "resilience"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Extractor.FrameSize = 1
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "extractor.frame_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q lacks %q", err, want)
		}
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.in.Level(); got != tt.want {
			t.Errorf("LogLevel(%q).Level() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestExtractorConfig_Options(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Extractor
	cfg.IncludeContour = true
	e := extractor.New(cfg.Options()...)
	e.Start()
	if s := e.Stop(); s == nil {
		t.Fatal("Stop returned nil for a started session")
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

func TestRegistry_CreateASR(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var got config.ProviderEntry
	reg.RegisterASR("whisper", func(e config.ProviderEntry) (asr.Provider, error) {
		got = e
		return &asrmock.Provider{}, nil
	})

	entry := config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8081"}
	p, err := reg.CreateASR(entry)
	if err != nil {
		t.Fatalf("CreateASR: %v", err)
	}
	if p == nil {
		t.Fatal("CreateASR returned nil provider")
	}
	if got.BaseURL != entry.BaseURL {
		t.Errorf("factory received %+v", got)
	}

	_, err = reg.CreateASR(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_CreateLLM(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	factoryErr := errors.New("bad key")
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, factoryErr
	})

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai"}); err != nil {
		t.Errorf("CreateLLM(openai): %v", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"}); !errors.Is(err, factoryErr) {
		t.Errorf("CreateLLM(broken) err = %v, want factory error", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "whisper"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM(whisper) err = %v, want ErrProviderNotRegistered", err)
	}
	if got := reg.Names("llm"); !slices.Equal(got, []string{"broken", "openai"}) {
		t.Errorf("Names(llm) = %v", got)
	}
}
