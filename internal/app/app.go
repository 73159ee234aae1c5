// Package app wires the cadence subsystems into a running service.
//
// The App struct owns the full lifecycle: New wraps the configured providers
// in failover groups and builds the analysis service and HTTP server, Run
// serves until the context is cancelled, and Shutdown releases everything in
// order.
//
// For testing, inject metrics and a log level via functional options. The
// providers themselves are passed in by the caller, so tests hand in mocks.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/cadence/internal/analysis"
	"github.com/MrWong99/cadence/internal/config"
	"github.com/MrWong99/cadence/internal/health"
	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/paraphrase"
	"github.com/MrWong99/cadence/internal/resilience"
	"github.com/MrWong99/cadence/internal/server"
	"github.com/MrWong99/cadence/pkg/provider/asr"
	"github.com/MrWong99/cadence/pkg/provider/llm"
)

// shutdownTimeout bounds the HTTP drain after Run's context is cancelled.
const shutdownTimeout = 15 * time.Second

// Named is one backend and the name it was configured under.
type Named[T any] struct {
	Name     string
	Provider T
}

// Providers holds the constructed backends in preference order. The first
// entry of each slice is the primary. Empty slices mean the capability is
// not configured. Populated by main.go via the config registry.
type Providers struct {
	ASR []Named[asr.Provider]
	LLM []Named[llm.Provider]
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics     *observe.Metrics
	scrape      http.Handler
	level       *slog.LevelVar
	asrGroup    *resilience.ASRFallback
	llmGroup    *resilience.LLMFallback
	paraphraser *paraphrase.Paraphraser
	service     *analysis.Service
	health      *health.Handler
	server      *server.Server

	mu  sync.Mutex
	cur *config.Config

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithLogLevel lets config reloads adjust the level of the process logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithCloser registers fn to run during Shutdown. main.go uses it for the
// telemetry providers.
func WithCloser(fn func(context.Context) error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New wires the application. Provider construction happens in main.go; New
// only assembles what it is given.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, cur: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	fbCfg := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Resilience.MaxFailures,
		ResetTimeout: cfg.Resilience.ResetTimeout,
		HalfOpenMax:  cfg.Resilience.HalfOpenMax,
		OnStateChange: func(name string, from, to resilience.State) {
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			slog.Warn("circuit breaker state changed", "provider", name, "from", from, "to", to)
		},
	}}

	// ── 1. Provider groups ───────────────────────────────────────────────
	svcOpts := []analysis.Option{analysis.WithMetrics(a.metrics)}
	var checkers []health.Checker
	if len(providers.ASR) > 0 {
		a.asrGroup = resilience.NewASRFallback(providers.ASR[0].Provider, providers.ASR[0].Name, fbCfg)
		for _, p := range providers.ASR[1:] {
			a.asrGroup.AddFallback(p.Name, p.Provider)
		}
		svcOpts = append(svcOpts, analysis.WithTranscriber(a.asrGroup, chainName(providers.ASR)))
		checkers = append(checkers, health.Checker{Name: "asr", Check: breakersCheck(a.asrGroup.States)})
	}
	if len(providers.LLM) > 0 {
		a.llmGroup = resilience.NewLLMFallback(providers.LLM[0].Provider, providers.LLM[0].Name, fbCfg)
		for _, p := range providers.LLM[1:] {
			a.llmGroup.AddFallback(p.Name, p.Provider)
		}
		checkers = append(checkers, health.Checker{Name: "llm", Check: breakersCheck(a.llmGroup.States)})
	}

	// ── 2. Paraphraser ───────────────────────────────────────────────────
	if a.llmGroup != nil {
		var popts []paraphrase.Option
		if n := cfg.Analysis.MaxParaphraseItems; n > 0 {
			popts = append(popts, paraphrase.WithMaxItems(n))
		}
		a.paraphraser = paraphrase.New(a.llmGroup, popts...)
		svcOpts = append(svcOpts, analysis.WithParaphraser(a.paraphraser, chainName(providers.LLM)))
	} else if cfg.Analysis.Paraphrase {
		return nil, errors.New("app: paraphrasing is enabled but no llm provider is configured")
	}

	// ── 3. Analysis service ──────────────────────────────────────────────
	a.service = analysis.New(settingsOf(cfg), svcOpts...)

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.health = health.New(checkers...)
	srvOpts := []server.Option{server.WithMetrics(a.metrics)}
	if a.scrape != nil {
		srvOpts = append(srvOpts, server.WithMetricsHandler(a.scrape))
	}
	a.server = server.New(a.service, a.health, server.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, srvOpts...)

	observe.Logger(ctx).Info("application wired",
		"asr", chainName(providers.ASR),
		"llm", chainName(providers.LLM),
		"paraphrase", cfg.Analysis.Paraphrase && a.paraphraser != nil,
	)
	return a, nil
}

// Service returns the analysis service.
func (a *App) Service() *analysis.Service { return a.service }

// Handler returns the instrumented HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Health returns the probe handler.
func (a *App) Health() *health.Handler { return a.health }

// BreakerStates reports per-backend breaker states keyed "asr/<name>" and
// "llm/<name>".
func (a *App) BreakerStates() map[string]resilience.State {
	out := make(map[string]resilience.State)
	if a.asrGroup != nil {
		for k, v := range a.asrGroup.States() {
			out["asr/"+k] = v
		}
	}
	if a.llmGroup != nil {
		for k, v := range a.llmGroup.States() {
			out["llm/"+k] = v
		}
	}
	return out
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	var cert, key string
	if tls := a.cfg.Server.TLS; tls != nil {
		cert, key = tls.CertFile, tls.KeyFile
	}
	return a.server.ListenAndServe(ctx, a.cfg.Server.ListenAddr, cert, key, shutdownTimeout)
}

// ApplyConfig is the config watcher callback. It applies the hot-reloadable
// sections and logs the ones that need a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ExtractorChanged || d.AnalysisChanged {
		a.service.UpdateSettings(settingsOf(new))
		slog.Info("analysis settings reloaded",
			"extractor", d.ExtractorChanged,
			"analysis", d.AnalysisChanged,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}

	a.mu.Lock()
	a.cur = new
	a.mu.Unlock()
}

// Config returns the most recently applied configuration.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases subsystems in order. It respects the context deadline:
// if ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers), "live_streams", len(a.service.Streams()))
		a.health.SetDraining(true)

		var errs []error
		for i, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, err)
				break
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				errs = append(errs, err)
			}
		}
		shutdownErr = errors.Join(errs...)
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func settingsOf(cfg *config.Config) analysis.Settings {
	return analysis.Settings{Extractor: cfg.Extractor, Analysis: cfg.Analysis}
}

// breakersCheck fails readiness when every backend's breaker is open.
func breakersCheck(states func() map[string]resilience.State) func(context.Context) error {
	return func(context.Context) error {
		st := states()
		names := make([]string, 0, len(st))
		for name, s := range st {
			if s != resilience.StateOpen {
				return nil
			}
			names = append(names, name)
		}
		sort.Strings(names)
		return fmt.Errorf("all circuit breakers open: %v", names)
	}
}

// chainName renders a fallback chain as "primary>fallback1>fallback2".
func chainName[T any](ps []Named[T]) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return strings.Join(names, ">")
}
