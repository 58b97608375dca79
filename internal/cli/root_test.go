package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/rostermap/internal/cli/config"
	"github.com/leapstack-labs/rostermap/internal/cli/testutil"
	"github.com/leapstack-labs/rostermap/internal/store"
)

type cliRun struct {
	out    string
	errOut string
	err    error
}

func runCLI(t *testing.T, cfgPath string, args ...string) cliRun {
	t.Helper()
	config.ResetConfig()

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return cliRun{out: out.String(), errOut: errOut.String(), err: err}
}

func TestRootCommand_Metadata(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "rostermap", cmd.Use)
	assert.True(t, cmd.SilenceUsage)

	for _, name := range []string{"config", "state", "station", "fallback", "separator", "output", "output-dir", "workers", "log-level", "log-format", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "flag %q should exist", name)
	}

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"map", "preview", "resolve", "batch", "mappings", "version", "completion"})
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	res := runCLI(t, filepath.Join(dir, testutil.ConfigFile), "--workers", "0", "mappings", "stations")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "workers must be at least 1")
}

func TestCompletionCommand(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"completion", "bash"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "rostermap")
}

func TestCLI_EndToEnd(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfgPath := filepath.Join(dir, testutil.ConfigFile)
	workbook := filepath.Join(dir, testutil.WorkbookFile)

	// import
	res := runCLI(t, cfgPath, "-o", "json", "mappings", "import", filepath.Join(dir, testutil.DictionaryFile), "--station", "sgn", "--author", "ops")
	require.NoError(t, res.err, res.errOut)
	var v store.Version
	require.NoError(t, json.Unmarshal([]byte(res.out), &v))
	assert.Equal(t, "SGN", v.Station)
	assert.Equal(t, 1, v.Number)
	assert.Equal(t, 3, v.EntryCount)
	assert.Equal(t, "ops", v.Author)

	// resolve
	res = runCLI(t, cfgPath, "-o", "json", "resolve", "--station", "SGN", "B1", "OFF/TR", "ZZ")
	require.NoError(t, res.err, res.errOut)
	var resolved struct {
		Station string `json:"station"`
		Codes   []struct {
			Code   string `json:"code"`
			Mapped string `json:"mapped"`
			Found  bool   `json:"found"`
		} `json:"codes"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.out), &resolved))
	require.Len(t, resolved.Codes, 3)
	assert.Equal(t, "Nghỉ phép", resolved.Codes[0].Mapped)
	assert.Equal(t, "Nghỉ/Training", resolved.Codes[1].Mapped)
	assert.False(t, resolved.Codes[2].Found)

	// preview as markdown
	res = runCLI(t, cfgPath, "-o", "markdown", "preview", workbook)
	require.NoError(t, res.err, res.errOut)
	assert.Contains(t, res.out, "# Preview of")
	assert.Contains(t, res.out, "| Sheet | Cell | Original | Mapped | Status |")
	assert.Contains(t, res.out, "| Sheet1 | B2 | B1 | Nghỉ phép | mapped |")
	assert.Contains(t, res.out, "XYZ")
	testutil.AssertNoANSI(t, res.out)
	testutil.AssertValidMarkdown(t, res.out)

	// map, station detected from the file name
	res = runCLI(t, cfgPath, "-o", "json", "map", workbook)
	require.NoError(t, res.err, res.errOut)
	var mapped struct {
		Output  string `json:"output"`
		Station string `json:"station"`
		Stats   struct {
			Mapped int `json:"mapped_cells"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.out), &mapped))
	assert.Equal(t, "SGN", mapped.Station)
	assert.Equal(t, 2, mapped.Stats.Mapped)
	assert.Equal(t, filepath.Join(dir, "out", "mapped_SGN_roster_SGN_june.xlsx"), mapped.Output)

	f, err := excelize.OpenFile(mapped.Output)
	require.NoError(t, err)
	got, err := f.GetCellValue("Sheet1", "C2")
	require.NoError(t, err)
	assert.Equal(t, "Nghỉ/Training", got)
	require.NoError(t, f.Close())

	// batch with zip
	res = runCLI(t, cfgPath, "-o", "json", "batch", workbook, "--zip", "--mode", "plain")
	require.NoError(t, res.err, res.errOut)
	_, err = os.Stat(filepath.Join(dir, "out", "roster_mapped_batch.zip"))
	assert.NoError(t, err)

	// export as CSV to stdout
	res = runCLI(t, cfgPath, "mappings", "export", "--station", "SGN", "--format", "csv")
	require.NoError(t, res.err, res.errOut)
	assert.Contains(t, res.out, "B1,Nghỉ phép")

	// versions and stations
	res = runCLI(t, cfgPath, "-o", "json", "mappings", "versions", "--station", "SGN")
	require.NoError(t, res.err, res.errOut)
	var versions []store.Version
	require.NoError(t, json.Unmarshal([]byte(res.out), &versions))
	require.Len(t, versions, 1)

	res = runCLI(t, cfgPath, "-o", "text", "mappings", "stations")
	require.NoError(t, res.err, res.errOut)
	assert.Contains(t, res.out, "SGN")

	// delete, after which mapping has no table to use
	res = runCLI(t, cfgPath, "mappings", "delete", "1", "--station", "SGN")
	require.NoError(t, res.err, res.errOut)

	res = runCLI(t, cfgPath, "mappings", "delete", "1", "--station", "SGN")
	assert.ErrorIs(t, res.err, store.ErrNotFound)

	res = runCLI(t, cfgPath, "map", workbook, "--station", "SGN")
	assert.ErrorIs(t, res.err, store.ErrNoMappings)

	// audit
	res = runCLI(t, cfgPath, "-o", "json", "mappings", "audit", "--station", "SGN")
	require.NoError(t, res.err, res.errOut)
	var audit []store.AuditEntry
	require.NoError(t, json.Unmarshal([]byte(res.out), &audit))
	require.Len(t, audit, 2)
	assert.Equal(t, store.ActionDeleted, audit[0].Action)
	assert.Equal(t, store.ActionSaved, audit[1].Action)
}
