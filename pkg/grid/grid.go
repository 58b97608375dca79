// Package grid maps roster codes across an already loaded workbook cell grid.
//
// Cells carry an opaque style handle of type S owned by the workbook. The
// functions here are generic over S, so they can only pass it through; only
// Cell.Value is ever written.
package grid

import (
	"iter"
	"log/slog"
	"slices"

	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// Cell is one populated workbook cell. Row and Col are 1-based.
type Cell[S any] struct {
	Sheet string
	Row   int
	Col   int
	Value roster.Value
	Style S
}

// Status classifies a previewed cell.
type Status string

// Preview statuses.
const (
	StatusMapped   Status = "mapped"
	StatusUnmapped Status = "unmapped"
	StatusEmpty    Status = "empty"
)

// PreviewEntry is the would-be result for one cell.
type PreviewEntry struct {
	Sheet    string `json:"sheet"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	Original string `json:"original"`
	Mapped   string `json:"mapped"`
	Status   Status `json:"status"`
}

// SheetFilter reports whether a sheet takes part in a pass.
type SheetFilter func(sheet string) bool

// Sheets returns a filter for names. No names selects every sheet.
func Sheets(names []string) SheetFilter {
	if len(names) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(sheet string) bool {
		_, ok := set[sheet]
		return ok
	}
}

// Map rewrites the value of every mapped cell in place and returns stats
// per sheet. Cells of sheets outside names are skipped.
func Map[S any](t *roster.Table, cells iter.Seq[*Cell[S]], names []string) map[string]*roster.Stats {
	include := Sheets(names)
	stats := make(map[string]*roster.Stats)

	for c := range cells {
		if c == nil || !include(c.Sheet) {
			continue
		}
		s, ok := stats[c.Sheet]
		if !ok {
			s = &roster.Stats{}
			stats[c.Sheet] = s
		}

		mapped, changed, empty := t.Classify(c.Value)
		switch {
		case empty:
			s.CountEmpty()
		case changed:
			c.Value = roster.String(mapped)
			s.CountMapped()
		default:
			s.CountUnchanged()
		}
	}
	return stats
}

// Preview runs the same resolution as Map without touching the cells.
func Preview[S any](t *roster.Table, cells iter.Seq[Cell[S]], names []string) []PreviewEntry {
	include := Sheets(names)
	var out []PreviewEntry

	for c := range cells {
		if !include(c.Sheet) {
			continue
		}
		entry := PreviewEntry{Sheet: c.Sheet, Row: c.Row, Col: c.Col}
		mapped, changed, empty := t.Classify(c.Value)
		switch {
		case empty:
			entry.Status = StatusEmpty
			if !c.Value.IsNull() {
				entry.Original = c.Value.String()
			}
		case changed:
			entry.Original = c.Value.String()
			entry.Mapped = mapped
			entry.Status = StatusMapped
		default:
			entry.Original = c.Value.String()
			entry.Mapped = mapped
			entry.Status = StatusUnmapped
		}
		out = append(out, entry)
	}
	return out
}

// Pointers adapts a slice of cells for Map.
func Pointers[S any](cells []*Cell[S]) iter.Seq[*Cell[S]] {
	return slices.Values(cells)
}

// Values adapts a slice of cells for Preview.
func Values[S any](cells []*Cell[S]) iter.Seq[Cell[S]] {
	return func(yield func(Cell[S]) bool) {
		for _, c := range cells {
			if c == nil {
				continue
			}
			if !yield(*c) {
				return
			}
		}
	}
}

// Total folds per-sheet stats into one.
func Total(stats map[string]*roster.Stats) roster.Stats {
	var total roster.Stats
	for _, s := range stats {
		total.Add(*s)
	}
	return total
}

// LogStats writes one record per sheet.
func LogStats(logger *slog.Logger, station string, stats map[string]*roster.Stats) {
	if logger == nil {
		return
	}
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		s := stats[name]
		logger.Info("sheet mapping completed",
			"station", station,
			"sheet", name,
			"total_cells", s.Total,
			"mapped_cells", s.Mapped,
			"unchanged_cells", s.Unchanged,
			"empty_cells", s.Empty)
	}
}
