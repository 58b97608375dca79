package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode(t *testing.T) {
	tests := []struct {
		in   string
		want OutputMode
	}{
		{"", ModeAuto},
		{"auto", ModeAuto},
		{"TEXT", ModeText},
		{"md", ModeMarkdown},
		{"markdown", ModeMarkdown},
		{" json ", ModeJSON},
		{"xml", ModeAuto},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Mode(tt.in))
		})
	}
}

func TestRenderer_EffectiveMode(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, ModeMarkdown, NewRendererWithTTY(&out, &errOut, false, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeText, NewRendererWithTTY(&out, &errOut, true, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeJSON, NewRendererWithTTY(&out, &errOut, true, ModeJSON).EffectiveMode())
	assert.False(t, NewRenderer(&out, &errOut, ModeAuto).IsTTY(), "buffers are never terminals")
}

func TestRenderer_TableMarkdown(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &out, false, ModeMarkdown)
	r.Table([]string{"Code", "Description"}, [][]string{{"B1", "Rest"}, {"A|B", "pipe"}})

	assert.Equal(t, "| Code | Description |\n| --- | --- |\n| B1 | Rest |\n| A\\|B | pipe |\n", out.String())
}

func TestRenderer_TableText(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &out, false, ModeText)
	r.Table([]string{"Code"}, [][]string{{"B1"}})

	assert.Contains(t, out.String(), "CODE")
	assert.Contains(t, out.String(), "B1")
	assert.Contains(t, out.String(), "┌")
	assert.NotContains(t, out.String(), "\x1b[", "no colors without a terminal")
}

func TestRenderer_Messages(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeText)

	r.Success("saved")
	r.Warning("careful")
	r.Error("broken")
	r.KeyValue("Station", "SGN")

	assert.Contains(t, out.String(), "✓ saved")
	assert.Contains(t, out.String(), "Station: SGN")
	assert.Contains(t, errOut.String(), "! careful")
	assert.Contains(t, errOut.String(), "✗ broken")
}

func TestRenderer_JSON(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &out, false, ModeJSON)
	require.NoError(t, r.JSON(map[string]string{"code": "<B1>"}))

	var got map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "<B1>", got["code"])
	assert.Contains(t, out.String(), "<B1>", "HTML is not escaped")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "## Versions", FormatHeader(2, "Versions"))
	assert.Equal(t, "# x", FormatHeader(0, "x"))
	assert.Equal(t, "- **Station**: SGN", FormatKeyValue("Station", "SGN"))
}
