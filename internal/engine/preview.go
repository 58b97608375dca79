package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/leapstack-labs/rostermap/internal/store"
	"github.com/leapstack-labs/rostermap/internal/xlsx"
	"github.com/leapstack-labs/rostermap/pkg/grid"
	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// maxUnmappedCodes caps the unmapped code sample of a preview.
const maxUnmappedCodes = 10

// PreviewRequest describes a dry run over one workbook.
type PreviewRequest struct {
	Input   string
	Station string
	Sheets  []string
	// Limit caps the returned entries. Zero or less returns all of them.
	Limit int
}

// PreviewResult is the would-be outcome of mapping a workbook.
type PreviewResult struct {
	Input         string              `json:"input"`
	Station       string              `json:"station"`
	Version       int                 `json:"version"`
	Source        string              `json:"source_station"`
	Entries       []grid.PreviewEntry `json:"entries"`
	Stats         roster.Stats        `json:"stats"`
	UnmappedCodes []string            `json:"unmapped_codes"`
	Truncated     bool                `json:"truncated"`
}

// PreviewFile resolves every cell of a workbook without writing anything.
func (e *Engine) PreviewFile(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	t, v, mreq, err := e.prepare(ctx, MapRequest{Input: req.Input, Station: req.Station})
	if err != nil {
		return nil, err
	}

	wb, err := xlsx.Open(req.Input, e.logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = wb.Close() }()

	cells, err := wb.Cells(req.Sheets)
	if err != nil {
		return nil, err
	}
	entries := grid.Preview(t, grid.Values(cells), nil)

	result := &PreviewResult{
		Input:         req.Input,
		Station:       mreq.Station,
		Version:       v.Number,
		Source:        v.Station,
		UnmappedCodes: unmappedCodes(entries),
	}
	for _, en := range entries {
		switch en.Status {
		case grid.StatusMapped:
			result.Stats.CountMapped()
		case grid.StatusEmpty:
			result.Stats.CountEmpty()
		default:
			result.Stats.CountUnchanged()
		}
	}
	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[:req.Limit]
		result.Truncated = true
	}
	result.Entries = entries

	e.logger.Debug("workbook previewed",
		"input", req.Input,
		"station", mreq.Station,
		"cells", result.Stats.Total,
		"mapped_cells", result.Stats.Mapped)
	return result, nil
}

// unmappedCodes returns a sorted sample of distinct values that look like
// codes but resolved to nothing. Plain numbers are not codes.
func unmappedCodes(entries []grid.PreviewEntry) []string {
	seen := make(map[string]struct{})
	for _, en := range entries {
		if en.Status != grid.StatusUnmapped {
			continue
		}
		code := strings.TrimSpace(en.Original)
		if code == "" || isDigits(code) {
			continue
		}
		seen[code] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for code := range seen {
		out = append(out, code)
	}
	slices.Sort(out)
	if len(out) > maxUnmappedCodes {
		out = out[:maxUnmappedCodes]
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ResolveCodes resolves codes against the station table without a workbook.
func (e *Engine) ResolveCodes(ctx context.Context, station string, codes []string) ([]Resolution, *store.Version, error) {
	t, v, err := e.LoadTable(ctx, station)
	if err != nil {
		return nil, nil, err
	}
	out := make([]Resolution, 0, len(codes))
	for _, c := range codes {
		o := t.Resolve(c)
		out = append(out, Resolution{Code: c, Description: o.Description, Found: o.Found, Mapped: t.MapString(c)})
	}
	return out, v, nil
}

// Resolution is the outcome of resolving one code.
type Resolution struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Found       bool   `json:"found"`
	// Mapped is the full cell rewrite, splitting compound codes.
	Mapped string `json:"mapped"`
}
