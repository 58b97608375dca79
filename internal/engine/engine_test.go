package engine

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/rostermap/internal/store"
	"github.com/leapstack-labs/rostermap/internal/testutil"
	"github.com/leapstack-labs/rostermap/pkg/grid"
	"github.com/leapstack-labs/rostermap/pkg/roster"
)

type stationSettings struct {
	seps     map[string][]string
	fallback string
}

func (s stationSettings) SeparatorsFor(station string) []string {
	if seps, ok := s.seps[station]; ok {
		return seps
	}
	return roster.DefaultSeparators
}

func (s stationSettings) FallbackFor(string) string { return s.fallback }

// setupTestEngine returns an engine over an in-memory store seeded with
// SGN and global tables.
func setupTestEngine(t *testing.T, workers int) *Engine {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	st, err := store.Open(ctx, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	_, err = st.SaveMapping(ctx, store.SaveRequest{Station: "SGN", Entries: []roster.Entry{
		{Code: "B1", Description: "Nghỉ phép"},
		{Code: "OFF", Description: "Nghỉ"},
		{Code: "TR", Description: "Training"},
	}})
	require.NoError(t, err)
	_, err = st.SaveMapping(ctx, store.SaveRequest{Station: store.Global, Entries: []roster.Entry{
		{Code: "OFF", Description: "Day off"},
	}})
	require.NoError(t, err)

	e, err := New(ctx, Config{
		Store:     st,
		Settings:  stationSettings{fallback: store.Global},
		Workers:   workers,
		OutputDir: t.TempDir(),
		Logger:    logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// writeWorkbook creates a roster workbook with one styled code cell.
func writeWorkbook(t *testing.T, dir, name string) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	require.NoError(t, f.SetSheetName("Sheet1", "Roster"))
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Italic: true}})
	require.NoError(t, err)

	rows := [][]any{
		{"Name", "Mon", "Tue"},
		{"An", "B1", "OFF/TR"},
		{"Binh", 7, "XYZ"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Roster", cell, &row))
	}
	require.NoError(t, f.SetCellStyle("Roster", "B2", "B2", style))
	require.NoError(t, f.SetCellValue("Notes", "A1", "TR"))

	path := filepath.Join(dir, name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func cellValue(t *testing.T, path, sheet, cell string) string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	v, err := f.GetCellValue(sheet, cell)
	require.NoError(t, err)
	return v
}

func TestNew_OpensStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	e, err := New(context.Background(), Config{StatePath: path})
	require.NoError(t, err)
	assert.Equal(t, path, e.Store().Path())
	require.NoError(t, e.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestEngine_LoadTable(t *testing.T) {
	e := setupTestEngine(t, 1)
	ctx := context.Background()

	tbl, v, err := e.LoadTable(ctx, "sgn")
	require.NoError(t, err)
	assert.Equal(t, "SGN", tbl.Station())
	assert.Equal(t, "SGN", v.Station)
	assert.Equal(t, 3, tbl.Len())

	// callers get private copies
	tbl.Add("ZZ", "Sleep")
	again, _, err := e.LoadTable(ctx, "SGN")
	require.NoError(t, err)
	assert.False(t, again.Contains("ZZ"))

	fb, v, err := e.LoadTable(ctx, "HAN")
	require.NoError(t, err)
	assert.Equal(t, store.Global, v.Station)
	assert.Equal(t, "Day off", fb.MapString("OFF"))

	_, _, err = e.LoadTable(ctx, " ")
	assert.ErrorIs(t, err, store.ErrInvalidStation)
}

func TestEngine_LoadTableNoFallback(t *testing.T) {
	e := setupTestEngine(t, 1)
	e.settings = stationSettings{fallback: "HAN"}

	_, _, err := e.LoadTable(context.Background(), "DAD")
	assert.ErrorIs(t, err, store.ErrNoMappings)
}

func TestEngine_ImportMappingInvalidatesCache(t *testing.T) {
	e := setupTestEngine(t, 1)
	ctx := context.Background()

	_, _, err := e.LoadTable(ctx, "SGN")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "extra.csv")
	require.NoError(t, os.WriteFile(path, []byte("code,description\nSB,Standby\n"), 0600))

	v, err := e.ImportMapping(ctx, ImportRequest{Station: "sgn", Path: path, Author: "ops"})
	require.NoError(t, err)
	assert.Equal(t, 2, v.Number)
	assert.Equal(t, "imported from extra.csv", v.Note)

	tbl, _, err := e.LoadTable(ctx, "SGN")
	require.NoError(t, err)
	assert.True(t, tbl.Contains("SB"))
	assert.True(t, tbl.Contains("B1"), "imports merge with the previous version")

	ok, err := e.DeleteMapping(ctx, "SGN", 2, "ops")
	require.NoError(t, err)
	assert.True(t, ok)
	tbl, _, err = e.LoadTable(ctx, "SGN")
	require.NoError(t, err)
	assert.False(t, tbl.Contains("SB"))
}

func TestEngine_ImportMappingEmpty(t *testing.T) {
	e := setupTestEngine(t, 1)
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))

	_, err := e.ImportMapping(context.Background(), ImportRequest{Station: "SGN", Path: path})
	assert.ErrorIs(t, err, store.ErrEmptyMapping)
}

func TestEngine_DetectStation(t *testing.T) {
	e := setupTestEngine(t, 1)
	ctx := context.Background()
	_, err := e.Store().SaveMapping(ctx, store.SaveRequest{Station: "SGNX", Entries: []roster.Entry{{Code: "A", Description: "a"}}})
	require.NoError(t, err)

	tests := []struct {
		name string
		file string
		want string
	}{
		{name: "lowercase name", file: "/tmp/roster_sgn_june.xlsx", want: "SGN"},
		{name: "longest code wins", file: "SGNX-week2.xlsx", want: "SGNX"},
		{name: "no station", file: "roster.xlsx", want: ""},
		{name: "global is never detected", file: "global.xlsx", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.DetectStation(ctx, tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_MapFileStyled(t *testing.T) {
	e := setupTestEngine(t, 1)
	in := writeWorkbook(t, t.TempDir(), "june_sgn.xlsx")

	res, err := e.MapFile(context.Background(), MapRequest{Input: in, Sheets: []string{"Roster"}})
	require.NoError(t, err)

	assert.Equal(t, "SGN", res.Station, "station is detected from the file name")
	assert.Equal(t, ModeStyled, res.Mode)
	assert.Equal(t, 1, res.Version)
	assert.Equal(t, filepath.Join(e.outputDir, "mapped_SGN_june_sgn.xlsx"), res.Output)
	require.Len(t, res.Sheets, 1)
	assert.Equal(t, "Roster", res.Sheets[0].Sheet)
	assert.Equal(t, 2, res.Stats.Mapped)
	assert.Equal(t, 2, res.Written)
	assert.True(t, res.Stats.Valid())

	assert.Equal(t, "Nghỉ phép", cellValue(t, res.Output, "Roster", "B2"))
	assert.Equal(t, "Nghỉ/Training", cellValue(t, res.Output, "Roster", "C2"))
	assert.Equal(t, "XYZ", cellValue(t, res.Output, "Roster", "C3"))
	assert.Equal(t, "TR", cellValue(t, res.Output, "Notes", "A1"))

	f, err := excelize.OpenFile(res.Output)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	style, err := f.GetCellStyle("Roster", "B2")
	require.NoError(t, err)
	assert.NotZero(t, style)
}

func TestEngine_MapFilePlain(t *testing.T) {
	e := setupTestEngine(t, 1)
	in := writeWorkbook(t, t.TempDir(), "roster.xlsx")
	out := filepath.Join(t.TempDir(), "plain.xlsx")

	res, err := e.MapFile(context.Background(), MapRequest{Input: in, Output: out, Station: "sgn", Mode: ModePlain})
	require.NoError(t, err)

	assert.Equal(t, out, res.Output)
	require.Len(t, res.Sheets, 2)
	assert.Equal(t, "Notes", res.Sheets[1].Sheet)

	assert.Equal(t, "Mon", cellValue(t, out, "Roster", "B1"), "header row is kept as is")
	assert.Equal(t, "Nghỉ phép", cellValue(t, out, "Roster", "B2"))
	assert.Equal(t, "Nghỉ/Training", cellValue(t, out, "Roster", "C2"))
	assert.Equal(t, "TR", cellValue(t, out, "Notes", "A1"), "header of the second sheet is not mapped")
}

func TestEngine_MapFileErrors(t *testing.T) {
	e := setupTestEngine(t, 1)
	ctx := context.Background()

	_, err := e.MapFile(ctx, MapRequest{Input: "roster.xls"})
	assert.ErrorIs(t, err, ErrUnsupportedWorkbook)

	in := writeWorkbook(t, t.TempDir(), "roster.xlsx")
	_, err = e.MapFile(ctx, MapRequest{Input: in, Mode: "raw"})
	assert.ErrorContains(t, err, "invalid mode")

	_, err = e.MapFile(ctx, MapRequest{Input: filepath.Join(t.TempDir(), "missing.xlsx"), Station: "SGN"})
	assert.Error(t, err)
}

func TestEngine_PreviewFile(t *testing.T) {
	e := setupTestEngine(t, 1)
	in := writeWorkbook(t, t.TempDir(), "roster.xlsx")

	res, err := e.PreviewFile(context.Background(), PreviewRequest{Input: in, Station: "SGN", Sheets: []string{"Roster"}})
	require.NoError(t, err)

	assert.Equal(t, "SGN", res.Station)
	assert.Equal(t, 2, res.Stats.Mapped)
	assert.Equal(t, []string{"An", "Binh", "Mon", "Name", "Tue", "XYZ"}, res.UnmappedCodes)
	assert.False(t, res.Truncated)
	assert.Len(t, res.Entries, res.Stats.Total)

	var mapped []grid.PreviewEntry
	for _, en := range res.Entries {
		if en.Status == grid.StatusMapped {
			mapped = append(mapped, en)
		}
	}
	require.Len(t, mapped, 2)
	assert.Equal(t, "Nghỉ phép", mapped[0].Mapped)

	// the workbook is left untouched
	assert.Equal(t, "B1", cellValue(t, in, "Roster", "B2"))

	limited, err := e.PreviewFile(context.Background(), PreviewRequest{Input: in, Station: "SGN", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, limited.Entries, 3)
	assert.True(t, limited.Truncated)
}

func TestUnmappedCodes(t *testing.T) {
	var entries []grid.PreviewEntry
	for _, code := range []string{"K", "J", "I", "H", "G", "F", "E", "D", "C", "B", "A", "A", "123", " "} {
		entries = append(entries, grid.PreviewEntry{Original: code, Status: grid.StatusUnmapped})
	}
	entries = append(entries, grid.PreviewEntry{Original: "Z", Status: grid.StatusMapped})

	got := unmappedCodes(entries)
	assert.Equal(t, []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}, got)
}

func TestEngine_ResolveCodes(t *testing.T) {
	e := setupTestEngine(t, 1)
	got, v, err := e.ResolveCodes(context.Background(), "SGN", []string{"b1", "OFF/TR", "NOPE"})
	require.NoError(t, err)
	assert.Equal(t, "SGN", v.Station)
	assert.Equal(t, []Resolution{
		{Code: "b1", Description: "Nghỉ phép", Found: true, Mapped: "Nghỉ phép"},
		{Code: "OFF/TR", Mapped: "Nghỉ/Training"},
		{Code: "NOPE", Mapped: "NOPE"},
	}, got)
}

func TestEngine_MapBatch(t *testing.T) {
	e := setupTestEngine(t, 2)
	dir := t.TempDir()
	reqs := []MapRequest{
		{Input: writeWorkbook(t, dir, "a_SGN.xlsx")},
		{Input: writeWorkbook(t, dir, "b_HAN.xlsx"), Station: "HAN"},
		{Input: filepath.Join(dir, "broken.csv")},
	}

	zipPath := e.ZipPath("")
	res, err := e.MapBatch(context.Background(), reqs, zipPath)
	require.NoError(t, err)

	require.Len(t, res.Items, 3)
	assert.Equal(t, 1, res.Failed)
	assert.ErrorIs(t, res.Items[2].Err, ErrUnsupportedWorkbook)
	require.NotNil(t, res.Items[0].Result)
	require.NotNil(t, res.Items[1].Result)
	assert.Equal(t, "SGN", res.Items[0].Result.Station)
	assert.Equal(t, store.Global, res.Items[1].Result.Source)
	assert.Equal(t, res.Items[0].Result.Stats.Mapped+res.Items[1].Result.Stats.Mapped, res.Stats.Mapped)

	assert.Equal(t, filepath.Join(e.outputDir, DefaultZipName), res.Archive)
	zr, err := zip.OpenReader(res.Archive)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"mapped_SGN_a_SGN.xlsx", "mapped_HAN_b_HAN.xlsx"}, names)
}

func TestEngine_MapBatchSameFileNames(t *testing.T) {
	e := setupTestEngine(t, 2)
	e.outputDir = ""
	reqs := []MapRequest{
		{Input: writeWorkbook(t, t.TempDir(), "june.xlsx"), Station: "SGN"},
		{Input: writeWorkbook(t, t.TempDir(), "june.xlsx"), Station: "SGN"},
	}

	zipPath := filepath.Join(t.TempDir(), "batch.zip")
	res, err := e.MapBatch(context.Background(), reqs, zipPath)
	require.NoError(t, err)
	require.Zero(t, res.Failed)

	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"mapped_SGN_june.xlsx", "mapped_SGN_june_2.xlsx"}, names)
}

func TestArchiveNames(t *testing.T) {
	got := archiveNames([]string{
		filepath.Join("a", "x.xlsx"),
		filepath.Join("b", "x.xlsx"),
		filepath.Join("c", "x_2.xlsx"),
		filepath.Join("d", "y.xlsx"),
	})
	assert.Equal(t, []string{"x.xlsx", "x_2.xlsx", "x_2_2.xlsx", "y.xlsx"}, got)
}

func TestEngine_MapBatchDuplicateOutput(t *testing.T) {
	e := setupTestEngine(t, 1)
	in := writeWorkbook(t, t.TempDir(), "roster.xlsx")

	res, err := e.MapBatch(context.Background(), []MapRequest{
		{Input: in, Station: "SGN"},
		{Input: in, Station: "SGN"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, res.Archive)
}

func TestEngine_MapBatchCanceled(t *testing.T) {
	e := setupTestEngine(t, 1)
	in := writeWorkbook(t, t.TempDir(), "roster.xlsx")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.MapBatch(ctx, []MapRequest{{Input: in, Station: "SGN"}}, "")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Failed)
}

func TestOutputAndZipPaths(t *testing.T) {
	e := &Engine{}
	assert.Equal(t, filepath.Join("in", "mapped_SGN_june.xlsx"), e.OutputPath(filepath.Join("in", "june.xlsm"), "SGN"))

	e.outputDir = "out"
	assert.Equal(t, filepath.Join("out", "mapped_global_june.xlsx"), e.OutputPath("june.xlsx", store.Global))
	assert.Equal(t, filepath.Join("out", DefaultZipName), e.ZipPath(""))

	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, DefaultZipName), e.ZipPath(dir))
	assert.Equal(t, filepath.Join(dir, "x.zip"), e.ZipPath(filepath.Join(dir, "x.zip")))
}
