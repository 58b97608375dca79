// Package xlsx adapts excelize workbooks to the roster grid and frame types.
package xlsx

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/rostermap/pkg/frame"
	"github.com/leapstack-labs/rostermap/pkg/grid"
	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// ErrNoSheets is returned when a workbook has none of the requested sheets.
var ErrNoSheets = errors.New("no matching sheets")

type cellKey struct {
	sheet    string
	row, col int
}

// Workbook is an open spreadsheet. Style handles are excelize style IDs.
type Workbook struct {
	f      *excelize.File
	path   string
	logger *slog.Logger
	orig   map[cellKey]roster.Value
}

// Open opens the workbook at path.
func Open(path string, logger *slog.Logger) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Workbook{f: f, path: path, logger: logger, orig: make(map[cellKey]roster.Value)}, nil
}

// Path returns the file the workbook was opened from.
func (w *Workbook) Path() string { return w.path }

// SheetNames lists the sheets in workbook order.
func (w *Workbook) SheetNames() []string {
	return w.f.GetSheetList()
}

// SelectSheets keeps the requested sheets that exist, in workbook order.
// No names selects every sheet.
// Missing names are logged and skipped.
func (w *Workbook) SelectSheets(names []string) ([]string, error) {
	all := w.SheetNames()
	if len(names) == 0 {
		return all, nil
	}
	for _, n := range names {
		if !slices.Contains(all, n) {
			w.logger.Warn("sheet not found in workbook", "path", w.path, "sheet", n)
		}
	}
	var out []string
	for _, s := range all {
		if slices.Contains(names, s) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s: %s", ErrNoSheets, w.path, strings.Join(names, ", "))
	}
	return out, nil
}

// Cells reads every cell of the selected sheets (all when sheets is empty)
// up to the last populated column of each row. Formula cells are left out
// so they are never overwritten.
func (w *Workbook) Cells(sheets []string) ([]*grid.Cell[int], error) {
	selected, err := w.SelectSheets(sheets)
	if err != nil {
		return nil, err
	}

	var out []*grid.Cell[int]
	for _, sheet := range selected {
		rows, err := w.f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		for r, row := range rows {
			for c, raw := range row {
				cell, ok, err := w.readCell(sheet, r+1, c+1, raw)
				if err != nil {
					return nil, err
				}
				if ok {
					out = append(out, cell)
				}
			}
		}
	}
	return out, nil
}

func (w *Workbook) readCell(sheet string, row, col int, raw string) (*grid.Cell[int], bool, error) {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, false, err
	}

	formula, err := w.f.GetCellFormula(sheet, name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s!%s: %w", sheet, name, err)
	}
	if formula != "" {
		return nil, false, nil
	}

	cell := &grid.Cell[int]{Sheet: sheet, Row: row, Col: col}
	if raw != "" {
		ct, err := w.f.GetCellType(sheet, name)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read %s!%s: %w", sheet, name, err)
		}
		cell.Value = typedValue(ct, raw)
	}
	if cell.Style, err = w.f.GetCellStyle(sheet, name); err != nil {
		return nil, false, fmt.Errorf("failed to read style of %s!%s: %w", sheet, name, err)
	}

	w.orig[cellKey{sheet, row, col}] = cell.Value
	return cell, true, nil
}

// typedValue converts a raw cell value according to its stored type.
func typedValue(ct excelize.CellType, raw string) roster.Value {
	switch ct {
	case excelize.CellTypeBool:
		return roster.Bool(raw == "1" || strings.EqualFold(raw, "true"))
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return roster.Number(f)
		}
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return roster.Time(t)
		}
	}
	return roster.String(raw)
}

// Apply writes back cells whose value differs from what Cells read. Only
// the value is set; the cell keeps its style.
func (w *Workbook) Apply(cells []*grid.Cell[int]) (int, error) {
	written := 0
	for _, c := range cells {
		if c == nil {
			continue
		}
		orig, ok := w.orig[cellKey{c.Sheet, c.Row, c.Col}]
		if ok && orig == c.Value {
			continue
		}
		name, err := excelize.CoordinatesToCellName(c.Col, c.Row)
		if err != nil {
			return written, err
		}
		if err := w.f.SetCellValue(c.Sheet, name, c.Value.Any()); err != nil {
			return written, fmt.Errorf("failed to write %s!%s: %w", c.Sheet, name, err)
		}
		w.orig[cellKey{c.Sheet, c.Row, c.Col}] = c.Value
		written++
	}
	return written, nil
}

// ReadFrame reads a sheet as a frame, taking the first row as the header.
// Blank header cells are named after their column letter and repeated
// names get a ".N" suffix ("Mon", "Mon.1").
func (w *Workbook) ReadFrame(sheet string) (*frame.Frame, error) {
	rows, err := w.f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return frame.New(), nil
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	columns := make([]string, width)
	for i := range columns {
		if i < len(rows[0]) && strings.TrimSpace(rows[0][i]) != "" {
			columns[i] = rows[0][i]
			continue
		}
		letter, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		columns[i] = letter
	}

	f := frame.New(uniqueColumns(columns)...)
	for r, row := range rows[1:] {
		values := make([]roster.Value, len(row))
		for c, raw := range row {
			if raw == "" {
				continue
			}
			name, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			ct, err := w.f.GetCellType(sheet, name)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s!%s: %w", sheet, name, err)
			}
			values[c] = typedValue(ct, raw)
		}
		if err := f.AppendRow(values...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func uniqueColumns(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	for i, name := range names {
		n := seen[name]
		seen[name] = n + 1
		candidate := name
		for n > 0 {
			candidate = fmt.Sprintf("%s.%d", name, n)
			if _, taken := seen[candidate]; !taken {
				break
			}
			n++
		}
		if candidate != name {
			seen[candidate] = 1
			seen[name] = n + 1
		}
		out[i] = candidate
	}
	return out
}

// SaveAs writes the workbook to path.
func (w *Workbook) SaveAs(path string) error {
	if err := w.f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// WriteFrames writes one sheet per frame to a new values-only workbook.
func WriteFrames(path string, names []string, frames []*frame.Frame) error {
	if len(names) != len(frames) {
		return fmt.Errorf("got %d sheet names for %d frames", len(names), len(frames))
	}
	if len(frames) == 0 {
		return fmt.Errorf("%w to write", ErrNoSheets)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	first := f.GetSheetList()[0]
	for i, name := range names {
		if i == 0 {
			if err := f.SetSheetName(first, name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
		if err := writeFrame(f, name, frames[i]); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func writeFrame(f *excelize.File, sheet string, fr *frame.Frame) error {
	header := make([]any, len(fr.Columns))
	for i, c := range fr.Columns {
		header[i] = c
	}
	if len(header) > 0 {
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return fmt.Errorf("failed to write header of %s: %w", sheet, err)
		}
	}
	for r, row := range fr.Rows {
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = v.Any()
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", r+2, sheet, err)
		}
	}
	return nil
}
