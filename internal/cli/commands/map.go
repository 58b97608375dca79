package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/rostermap/internal/cli/output"
	"github.com/leapstack-labs/rostermap/internal/engine"
)

// NewMapCommand creates the map command.
func NewMapCommand() *cobra.Command {
	var (
		sheets []string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "map <workbook>",
		Short: "Map roster codes in a workbook",
		Long: `Rewrite every roster code in a workbook with its description.

The station is taken from --station, else detected from the file name, else
the global table is used. In styled mode (default) the workbook is copied
with cell styles intact and only code cells are rewritten. In plain mode
each sheet is written as values only, first row treated as a header.`,
		Example: `  # Map using the station detected from the file name
  rostermap map roster_SGN_june.xlsx

  # Map two sheets with the HAN table into a values-only workbook
  rostermap map roster.xlsx --station HAN --sheet Week1 --sheet Week2 --mode plain

  # Choose the output path
  rostermap map roster.xlsx --out mapped.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := cmdCtx.Engine.MapFile(cmd.Context(), engine.MapRequest{
				Input:   args[0],
				Output:  out,
				Station: mapStation(cmd, cmdCtx.Cfg),
				Sheets:  sheets,
				Mode:    cmdCtx.Cfg.DownloadMode,
			})
			if err != nil {
				return err
			}
			return renderMapResult(cmdCtx.Renderer, res)
		},
	}

	cmd.Flags().StringArrayVar(&sheets, "sheet", nil, "Sheet to map (repeatable, default all)")
	cmd.Flags().String("mode", "", "Output mode (styled|plain)")
	cmd.Flags().StringVar(&out, "out", "", "Output workbook path")
	_ = cmd.RegisterFlagCompletionFunc("mode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{engine.ModeStyled, engine.ModePlain}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func renderMapResult(r *output.Renderer, res *engine.MapResult) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(res)
	case output.ModeMarkdown:
		r.Header(1, "Mapped "+res.Input)
		r.KeyValue("Output", res.Output)
		r.KeyValue("Station", stationLabel(res.Station, res.Source, res.Version))
		r.KeyValue("Mode", res.Mode)
		r.Println("")
		r.Table(sheetHeader, sheetRows(res))
		return nil
	}

	styles := r.Styles()
	titleCaser := cases.Title(language.English)
	r.Success(fmt.Sprintf("Mapped %s → %s", res.Input, res.Output))
	r.KeyValue("Station", styles.Station.Render(stationLabel(res.Station, res.Source, res.Version)))
	r.KeyValue("Mode", titleCaser.String(res.Mode))
	r.KeyValue("Duration", res.Duration.Round(time.Millisecond))
	r.Table(sheetHeader, sheetRows(res))
	return nil
}

var sheetHeader = []string{"Sheet", "Cells", "Mapped", "Unchanged", "Empty"}

func sheetRows(res *engine.MapResult) [][]string {
	rows := make([][]string, 0, len(res.Sheets)+1)
	for _, s := range res.Sheets {
		rows = append(rows, []string{
			s.Sheet,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Mapped),
			strconv.Itoa(s.Unchanged),
			strconv.Itoa(s.Empty),
		})
	}
	if len(res.Sheets) > 1 {
		rows = append(rows, []string{
			"Total",
			strconv.Itoa(res.Stats.Total),
			strconv.Itoa(res.Stats.Mapped),
			strconv.Itoa(res.Stats.Unchanged),
			strconv.Itoa(res.Stats.Empty),
		})
	}
	return rows
}

// stationLabel names the table that was used, noting a fallback.
func stationLabel(station, source string, version int) string {
	label := fmt.Sprintf("%s v%d", station, version)
	if source != "" && source != station {
		label = fmt.Sprintf("%s (using %s v%d)", station, source, version)
	}
	return label
}
