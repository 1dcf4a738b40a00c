package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/comtradebench/greenbench/internal/fixtures"
	"github.com/comtradebench/greenbench/internal/projectconfig"
)

var version = "dev"

// app carries the resolved configuration and logger to subcommands.
type app struct {
	cfg    *projectconfig.ProjectConfig
	logger *slog.Logger
}

// fixtureSource returns the ground truth: files from FixturesDir when set,
// otherwise the deterministic generator.
func (a *app) fixtureSource() fixtures.Source {
	if dir := a.cfg.Paths.FixturesDir; dir != "" {
		return fixtures.NewCached(fixtures.DirStore{Dir: dir})
	}
	return fixtures.NewCached(fixtures.Generator{})
}

func newRootCommand() *cobra.Command {
	a := &app{cfg: projectconfig.New(), logger: slog.Default()}

	cmd := &cobra.Command{
		Use:   "greenbench",
		Short: "greenbench - deterministic benchmark for trade-data fetching agents",
		Long: `greenbench evaluates purple agents that fetch paginated trade data.

It runs the fault-injecting mock API, the green agent that scores purple
output, and offline tools to validate and score output directories.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	logFormat := cmd.PersistentFlags().String("log-format", "", "Log format: text or json (default from config)")
	configDir := cmd.PersistentFlags().String("config-dir", ".", "Directory to start the "+projectconfig.FileName+" search from")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := projectconfig.Load(*configDir)
		if err != nil {
			return err
		}
		if err := projectconfig.ApplyEnv(cfg, os.LookupEnv); err != nil {
			return err
		}
		if *logFormat != "" {
			cfg.Logging.Format = *logFormat
		}
		if *debugLogging {
			cfg.Logging.Level = "DEBUG"
		}
		logger, err := newLogger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		a.cfg, a.logger = cfg, logger
		return nil
	}

	cmd.AddCommand(newMockCommand(a))
	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newRPCCommand(a))
	cmd.AddCommand(newValidateCommand(a))
	cmd.AddCommand(newScoreCommand(a))
	cmd.AddCommand(newTasksCommand())
	cmd.AddCommand(newFixturesCommand(a))
	cmd.AddCommand(newBaselineCommand(a))

	return cmd
}

// newLogger builds the process logger from a level name and a format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", format)
	}
}

func execute() error {
	return newRootCommand().Execute()
}
