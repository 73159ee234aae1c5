package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cadence/internal/app"
	"github.com/MrWong99/cadence/internal/config"
	"github.com/MrWong99/cadence/internal/observe"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func newServeCmd(c *cli) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd, !noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not hot-reload the config file")
	return cmd
}

func (c *cli) serve(cmd *cobra.Command, watch bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("cadence starting",
		"version", version,
		"config", c.configPath,
		"listen_addr", c.cfg.Server.ListenAddr,
		"log_level", c.cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(c.cfg, reg)
	if err != nil {
		return err
	}

	printStartupSummary(cmd.ErrOrStderr(), c.cfg)

	application, err := app.New(ctx, c.cfg, providers,
		app.WithMetricsHandler(tel.Handler),
		app.WithLogLevel(c.level),
		app.WithCloser(tel.Shutdown),
	)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if watch && c.configPath != "" {
		w, err := config.NewWatcher(ctx, c.configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         cadence: startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "ASR", cfg.Providers.ASR.Name, cfg.Providers.ASR.Model)
	fmt.Fprintf(w, "║  ASR fallbacks   : %-19d ║\n", len(cfg.Providers.ASRFallbacks))
	printProvider(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Fprintf(w, "║  LLM fallbacks   : %-19d ║\n", len(cfg.Providers.LLMFallbacks))
	paraphrase := "(disabled)"
	if cfg.Analysis.Paraphrase {
		paraphrase = "enabled"
	}
	fmt.Fprintf(w, "║  Paraphrase      : %-19s ║\n", paraphrase)
	fmt.Fprintf(w, "║  Sample rate     : %-19d ║\n", cfg.Extractor.SampleRate)
	fmt.Fprintf(w, "║  Frame size      : %-19d ║\n", cfg.Extractor.FrameSize)
	if cfg.Server.ListenAddr != "" {
		fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}
