package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rostermap/internal/cli/output"
	"github.com/leapstack-labs/rostermap/internal/engine"
)

// zipAuto is the --zip value used when the flag is given without a path.
const zipAuto = "auto"

// NewBatchCommand creates the batch command.
func NewBatchCommand() *cobra.Command {
	var (
		sheets  []string
		zipPath string
	)

	cmd := &cobra.Command{
		Use:   "batch <workbook>...",
		Short: "Map several workbooks concurrently",
		Long: `Map several workbooks at once, each with its own station.

Stations are detected from each file name unless --station is given.
Failures are reported per file and do not stop the other files. With --zip
the mapped workbooks are also packaged into one archive.`,
		Example: `  rostermap batch rosters/*.xlsx --workers 8
  rostermap batch a_SGN.xlsx b_HAN.xlsx --zip
  rostermap batch *.xlsx --zip out/june.zip --mode plain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			station := mapStation(cmd, cmdCtx.Cfg)
			reqs := make([]engine.MapRequest, 0, len(args))
			for _, in := range args {
				reqs = append(reqs, engine.MapRequest{
					Input:   in,
					Station: station,
					Sheets:  sheets,
					Mode:    cmdCtx.Cfg.DownloadMode,
				})
			}

			archive := zipPath
			if archive == zipAuto {
				archive = cmdCtx.Engine.ZipPath("")
			} else if archive != "" {
				archive = cmdCtx.Engine.ZipPath(archive)
			}

			res, err := cmdCtx.Engine.MapBatch(cmd.Context(), reqs, archive)
			if res != nil {
				if rerr := renderBatch(cmdCtx.Renderer, res); rerr != nil && err == nil {
					err = rerr
				}
			}
			if err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d of %d workbooks failed", res.Failed, len(res.Items))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&sheets, "sheet", nil, "Sheet to map in every workbook (repeatable, default all)")
	cmd.Flags().String("mode", "", "Output mode (styled|plain)")
	cmd.Flags().StringVar(&zipPath, "zip", "", "Package outputs into a zip archive (optional path)")
	cmd.Flags().Lookup("zip").NoOptDefVal = zipAuto

	return cmd
}

type batchItemJSON struct {
	Input  string            `json:"input"`
	Result *engine.MapResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func renderBatch(r *output.Renderer, res *engine.BatchResult) error {
	if r.EffectiveMode() == output.ModeJSON {
		items := make([]batchItemJSON, 0, len(res.Items))
		for _, it := range res.Items {
			item := batchItemJSON{Input: it.Request.Input, Result: it.Result}
			if it.Err != nil {
				item.Error = it.Err.Error()
			}
			items = append(items, item)
		}
		return r.JSON(struct {
			Items   []batchItemJSON `json:"items"`
			Failed  int             `json:"failed"`
			Mapped  int             `json:"mapped_cells"`
			Archive string          `json:"archive,omitempty"`
		}{items, res.Failed, res.Stats.Mapped, res.Archive})
	}

	styles := r.Styles()
	colorize := r.EffectiveMode() == output.ModeText
	rows := make([][]string, 0, len(res.Items))
	for _, it := range res.Items {
		status := styles.StatusSuccess.String()
		if !colorize {
			status = "ok"
		}
		row := []string{it.Request.Input, "", "", "", status}
		if it.Err != nil {
			row[4] = it.Err.Error()
			if colorize {
				row[4] = styles.StatusFailed.String() + " " + it.Err.Error()
			}
		} else {
			row[1] = it.Result.Station
			row[2] = strconv.Itoa(it.Result.Stats.Mapped)
			row[3] = it.Result.Output
		}
		rows = append(rows, row)
	}

	r.Header(1, fmt.Sprintf("Batch (%d workbooks)", len(res.Items)))
	r.Table([]string{"Input", "Station", "Mapped", "Output", "Status"}, rows)
	r.KeyValue("Mapped cells", res.Stats.Mapped)
	r.KeyValue("Failed", res.Failed)
	if res.Archive != "" {
		r.KeyValue("Archive", res.Archive)
	}
	r.KeyValue("Duration", res.Duration.Round(time.Millisecond))
	return nil
}
