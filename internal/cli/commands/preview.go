package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/rostermap/internal/cli/output"
	"github.com/leapstack-labs/rostermap/internal/engine"
	"github.com/leapstack-labs/rostermap/pkg/grid"
)

// NewPreviewCommand creates the preview command.
func NewPreviewCommand() *cobra.Command {
	var (
		sheets []string
		limit  int
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "preview <workbook>",
		Short: "Show how a workbook would be mapped",
		Long: `Resolve every cell of a workbook without writing anything.

Shows the would-be value of each cell, the mapping statistics and a sample
of values that look like codes but have no mapping.`,
		Example: `  rostermap preview roster_SGN.xlsx
  rostermap preview roster.xlsx --station HAN --limit 200
  rostermap preview roster.xlsx --all --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if all {
				limit = 0
			}
			res, err := cmdCtx.Engine.PreviewFile(cmd.Context(), engine.PreviewRequest{
				Input:   args[0],
				Station: mapStation(cmd, cmdCtx.Cfg),
				Sheets:  sheets,
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			return renderPreview(cmdCtx.Renderer, res)
		},
	}

	cmd.Flags().StringArrayVar(&sheets, "sheet", nil, "Sheet to preview (repeatable, default all)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum cells to list")
	cmd.Flags().BoolVar(&all, "all", false, "List every cell")

	return cmd
}

func renderPreview(r *output.Renderer, res *engine.PreviewResult) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}

	rows := make([][]string, 0, len(res.Entries))
	for _, en := range res.Entries {
		if en.Status == grid.StatusEmpty {
			continue
		}
		rows = append(rows, []string{
			en.Sheet,
			cellRef(en.Row, en.Col),
			en.Original,
			en.Mapped,
			string(en.Status),
		})
	}
	header := []string{"Sheet", "Cell", "Original", "Mapped", "Status"}

	r.Header(1, "Preview of "+res.Input)
	r.KeyValue("Station", stationLabel(res.Station, res.Source, res.Version))
	r.KeyValue("Cells", res.Stats.Total)
	r.KeyValue("Mapped", res.Stats.Mapped)
	r.KeyValue("Unmapped", res.Stats.Unchanged)
	r.KeyValue("Empty", res.Stats.Empty)
	if len(res.UnmappedCodes) > 0 {
		r.KeyValue("Unmapped codes", strings.Join(res.UnmappedCodes, ", "))
	}
	r.Println("")
	r.Table(header, rows)
	if res.Truncated {
		r.Muted(fmt.Sprintf("(showing first %d cells, use --all for every cell)", len(res.Entries)))
	}
	return nil
}

// cellRef formats a 1-based coordinate as an A1 reference.
func cellRef(row, col int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Sprintf("R%dC%d", row, col)
	}
	return name
}
