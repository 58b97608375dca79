package commands

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rostermap/internal/cli/config"
	"github.com/leapstack-labs/rostermap/internal/cli/output"
	"github.com/leapstack-labs/rostermap/internal/engine"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutEngine(cmd)

	eng, err := engine.New(cmd.Context(), engine.Config{
		StatePath: cmdCtx.Cfg.StatePath,
		Settings:  cmdCtx.Cfg,
		Workers:   cmdCtx.Cfg.Workers,
		OutputDir: cmdCtx.Cfg.OutputDir,
		Logger:    cmdCtx.Logger,
	})
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Engine = eng

	cleanup := func() {
		_ = eng.Close()
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't need database access.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// mapStation returns the station for workbook commands. An unset station
// is left empty so the engine detects it from the file name.
func mapStation(cmd *cobra.Command, cfg *config.Config) string {
	if cmd.Flags().Changed("station") {
		return cfg.Station
	}
	if strings.EqualFold(cfg.Station, config.DefaultStation) {
		return ""
	}
	return cfg.Station
}
