package frame

import (
	"log/slog"
	"slices"

	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// Options controls a Map call.
type Options struct {
	// Columns restricts mapping to these names. Unknown names are ignored;
	// nil means every column.
	Columns []string
	// InPlace mutates the input frame instead of a copy.
	InPlace bool
	// Logger receives a completion record. Optional.
	Logger *slog.Logger
}

// Map resolves every cell of the selected columns through t and returns the
// mapped frame with its statistics. Cells are visited column by column.
func Map(t *roster.Table, f *Frame, opts Options) (*Frame, roster.Stats) {
	out := f
	if !opts.InPlace {
		out = f.Clone()
	}

	stats := roster.Stats{Columns: []string{}}
	for _, col := range selectColumns(out, opts.Columns) {
		stats.Columns = append(stats.Columns, out.Columns[col])

		for row := range out.Rows {
			mapped, changed, empty := t.Classify(out.cell(row, col))
			switch {
			case empty:
				stats.CountEmpty()
			case changed:
				out.set(row, col, roster.String(mapped))
				stats.CountMapped()
			default:
				stats.CountUnchanged()
			}
		}
	}

	if opts.Logger != nil {
		opts.Logger.Info("frame mapping completed",
			"station", t.Station(),
			"total_cells", stats.Total,
			"mapped_cells", stats.Mapped,
			"unchanged_cells", stats.Unchanged,
			"empty_cells", stats.Empty,
			"columns_processed", stats.Columns)
	}

	return out, stats
}

// selectColumns returns the column indexes to visit. With no names every
// index is returned, so columns sharing a label are each visited once.
func selectColumns(f *Frame, names []string) []int {
	if len(names) == 0 {
		cols := make([]int, len(f.Columns))
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	var cols []int
	for _, name := range names {
		col := f.ColumnIndex(name)
		if col < 0 || slices.Contains(cols, col) {
			continue
		}
		cols = append(cols, col)
	}
	return cols
}
