package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cadence/internal/config"
)

const (
	outputJSON = "json"
	outputText = "text"
)

// cli carries the state shared by every subcommand. It is filled in by the
// root command's PersistentPreRunE.
type cli struct {
	configPath string
	logLevel   string
	output     string

	cfg   *config.Config
	level *slog.LevelVar
	log   *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{level: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:   "cadence",
		Short: "Prosody feature extraction and speaking-practice scoring",
		Long: `cadence measures pitch, energy, pauses and speech rate from recordings,
scores the transcript on pronunciation, rhythm, intonation and fluency, and
produces learner feedback. Run it as an HTTP service with "serve" or score
single files with "analyze" and "score".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "",
		"path to the YAML configuration file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "",
		"log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", outputJSON,
		"output format for analyze and score (json, text)")

	root.AddCommand(newServeCmd(c), newAnalyzeCmd(c), newScoreCmd(c))
	return root
}

// init loads the configuration and installs the process logger.
func (c *cli) init(cmd *cobra.Command) error {
	if c.output != outputJSON && c.output != outputText {
		return fmt.Errorf("unknown --output %q (want json or text)", c.output)
	}

	if c.configPath == "" {
		c.cfg = config.Default()
	} else {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", c.configPath)
			}
			return err
		}
		c.cfg = cfg
	}

	if c.logLevel != "" {
		lvl := config.LogLevel(c.logLevel)
		if !lvl.IsValid() {
			return fmt.Errorf("unknown --log-level %q", c.logLevel)
		}
		c.cfg.Server.LogLevel = lvl
	}

	c.level.Set(c.cfg.Server.LogLevel.Level())
	c.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: c.level}))
	slog.SetDefault(c.log)
	return nil
}
