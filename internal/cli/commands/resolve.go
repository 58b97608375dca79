package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rostermap/internal/cli/output"
	"github.com/leapstack-labs/rostermap/internal/engine"
	"github.com/leapstack-labs/rostermap/internal/store"
)

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <code>...",
		Short: "Resolve roster codes against a station table",
		Long: `Look up one or more codes in the station's mapping table.

Compound values such as "OFF/TR" are split on the configured separators
and each part is resolved; the Mapped column shows the full rewrite.`,
		Example: `  rostermap resolve B1 OFF/TR --station SGN`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			res, v, err := cmdCtx.Engine.ResolveCodes(cmd.Context(), cmdCtx.Cfg.Station, args)
			if err != nil {
				return err
			}
			return renderResolutions(cmdCtx.Renderer, cmdCtx.Cfg.Station, v, res)
		},
	}
}

func renderResolutions(r *output.Renderer, station string, v *store.Version, res []engine.Resolution) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(struct {
			Station string              `json:"station"`
			Source  string              `json:"source_station"`
			Version int                 `json:"version"`
			Codes   []engine.Resolution `json:"codes"`
		}{station, v.Station, v.Number, res})
	}

	styles := r.Styles()
	colorize := r.EffectiveMode() == output.ModeText
	rows := make([][]string, 0, len(res))
	for _, rs := range res {
		status := "found"
		switch {
		case !rs.Found && rs.Mapped != rs.Code:
			status = "compound"
		case !rs.Found:
			status = "unmapped"
		}
		if colorize {
			switch status {
			case "unmapped":
				status = styles.Warning.Render(status)
			default:
				status = styles.Success.Render(status)
			}
		}
		rows = append(rows, []string{rs.Code, rs.Mapped, status})
	}

	code, _ := store.NormalizeStation(station)
	r.KeyValue("Station", stationLabel(code, v.Station, v.Number))
	r.Table([]string{"Code", "Mapped", "Status"}, rows)
	return nil
}
