package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/rostermap/internal/store"
	"github.com/leapstack-labs/rostermap/internal/xlsx"
	"github.com/leapstack-labs/rostermap/pkg/frame"
	"github.com/leapstack-labs/rostermap/pkg/grid"
	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// Output modes.
const (
	// ModeStyled rewrites mapped values in the original workbook, keeping styles.
	ModeStyled = "styled"
	// ModePlain writes a new values-only workbook, one sheet per input sheet.
	ModePlain = "plain"
)

// ErrUnsupportedWorkbook is returned for inputs that are not xlsx workbooks.
var ErrUnsupportedWorkbook = errors.New("unsupported workbook format")

// MapRequest describes one workbook to map.
type MapRequest struct {
	Input string
	// Output is the path of the mapped workbook. Derived from the input
	// name and the engine's output directory when empty.
	Output string
	// Station defaults to the code detected in the file name, then global.
	Station string
	Sheets  []string
	// Mode is ModeStyled or ModePlain. Defaults to ModeStyled.
	Mode string
}

// SheetStats is the mapping summary of one sheet.
type SheetStats struct {
	Sheet string `json:"sheet"`
	roster.Stats
}

// MapResult reports a mapped workbook.
type MapResult struct {
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	Station  string        `json:"station"`
	Mode     string        `json:"mode"`
	Version  int           `json:"version"`
	Source   string        `json:"source_station"`
	Sheets   []SheetStats  `json:"sheets"`
	Stats    roster.Stats  `json:"stats"`
	Written  int           `json:"written_cells"`
	Duration time.Duration `json:"duration"`
}

// MapFile maps one workbook and writes the result.
func (e *Engine) MapFile(ctx context.Context, req MapRequest) (*MapResult, error) {
	t, v, req, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Output == "" {
		req.Output = e.OutputPath(req.Input, req.Station)
	}
	return e.mapWith(ctx, t, v, req)
}

// prepare validates req, fills in its defaults and loads the station table.
func (e *Engine) prepare(ctx context.Context, req MapRequest) (*roster.Table, *store.Version, MapRequest, error) {
	if err := checkWorkbook(req.Input); err != nil {
		return nil, nil, req, err
	}
	switch req.Mode {
	case "":
		req.Mode = ModeStyled
	case ModeStyled, ModePlain:
	default:
		return nil, nil, req, fmt.Errorf("invalid mode %q (expected %s or %s)", req.Mode, ModeStyled, ModePlain)
	}

	if strings.TrimSpace(req.Station) == "" {
		detected, err := e.DetectStation(ctx, req.Input)
		if err != nil {
			return nil, nil, req, err
		}
		if detected == "" {
			detected = store.Global
		}
		e.logger.Debug("station detected from file name", "path", req.Input, "station", detected)
		req.Station = detected
	}
	code, err := store.NormalizeStation(req.Station)
	if err != nil {
		return nil, nil, req, err
	}
	req.Station = code

	t, v, err := e.LoadTable(ctx, code)
	if err != nil {
		return nil, nil, req, err
	}
	return t, v, req, nil
}

func (e *Engine) mapWith(ctx context.Context, t *roster.Table, v *store.Version, req MapRequest) (*MapResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	if dir := filepath.Dir(req.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	wb, err := xlsx.Open(req.Input, e.logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = wb.Close() }()

	sheets, err := wb.SelectSheets(req.Sheets)
	if err != nil {
		return nil, err
	}

	result := &MapResult{
		Input:   req.Input,
		Output:  req.Output,
		Station: req.Station,
		Mode:    req.Mode,
		Version: v.Number,
		Source:  v.Station,
	}

	var stats map[string]*roster.Stats
	if req.Mode == ModePlain {
		stats, err = e.mapPlain(wb, t, sheets, req.Output)
	} else {
		stats, result.Written, err = e.mapStyled(wb, t, sheets, req.Output)
	}
	if err != nil {
		return nil, err
	}

	for _, name := range sheets {
		s := SheetStats{Sheet: name}
		if st, ok := stats[name]; ok {
			s.Stats = *st
		}
		result.Sheets = append(result.Sheets, s)
	}
	result.Stats = grid.Total(stats)
	result.Duration = time.Since(start)

	grid.LogStats(e.logger, req.Station, stats)
	e.logger.Info("workbook mapped",
		"input", req.Input,
		"output", req.Output,
		"station", req.Station,
		"mode", req.Mode,
		"version", v.Number,
		"mapped_cells", result.Stats.Mapped,
		"duration", result.Duration)
	return result, nil
}

func (e *Engine) mapStyled(wb *xlsx.Workbook, t *roster.Table, sheets []string, out string) (map[string]*roster.Stats, int, error) {
	cells, err := wb.Cells(sheets)
	if err != nil {
		return nil, 0, err
	}
	stats := grid.Map(t, grid.Pointers(cells), sheets)
	written, err := wb.Apply(cells)
	if err != nil {
		return nil, 0, err
	}
	if err := wb.SaveAs(out); err != nil {
		return nil, 0, err
	}
	return stats, written, nil
}

func (e *Engine) mapPlain(wb *xlsx.Workbook, t *roster.Table, sheets []string, out string) (map[string]*roster.Stats, error) {
	stats := make(map[string]*roster.Stats, len(sheets))
	frames := make([]*frame.Frame, 0, len(sheets))
	for _, name := range sheets {
		fr, err := wb.ReadFrame(name)
		if err != nil {
			return nil, err
		}
		mapped, st := frame.Map(t, fr, frame.Options{InPlace: true})
		stats[name] = &st
		frames = append(frames, mapped)
	}
	if err := xlsx.WriteFrames(out, sheets, frames); err != nil {
		return nil, err
	}
	return stats, nil
}

// OutputPath names the mapped copy of input for station.
func (e *Engine) OutputPath(input, station string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	dir := e.outputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, fmt.Sprintf("mapped_%s_%s.xlsx", station, stem))
}

func checkWorkbook(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains([]string{".xlsx", ".xlsm"}, ext) {
		return fmt.Errorf("%w: %s", ErrUnsupportedWorkbook, filepath.Base(path))
	}
	return nil
}
