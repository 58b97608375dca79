// Package dictionary reads and writes station mapping files.
//
// Supported formats are a JSON object, a YAML mapping (both optionally
// wrapped in a top-level "mappings" key) and a CSV file with a
// code,description header. Entry order is preserved for every format since
// it decides tie-breaking and pattern precedence in the mapping table.
package dictionary

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// Format is a dictionary file format.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

var (
	// ErrUnsupportedFormat is returned for unknown file extensions or format names.
	ErrUnsupportedFormat = errors.New("unsupported dictionary format")
	// ErrDuplicateCode is returned when a file defines the same code twice.
	ErrDuplicateCode = errors.New("duplicate code")
)

// wrapperKey is the top-level key the upload API wrote mapping files under.
const wrapperKey = "mappings"

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ParseFormat validates a format name given on the command line.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// Load reads the dictionary file at path.
func Load(path string) ([]roster.Entry, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries, err := Read(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Read parses a dictionary in the given format.
func Read(r io.Reader, format Format) ([]roster.Entry, error) {
	var (
		raw []roster.Entry
		err error
	)
	switch format {
	case FormatJSON:
		raw, err = readJSON(r)
	case FormatYAML:
		raw, err = readYAML(r)
	case FormatCSV:
		raw, err = readCSV(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return normalize(raw)
}

// Write serialises entries in the given format.
func Write(w io.Writer, format Format, entries []roster.Entry) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, entries)
	case FormatYAML:
		return writeYAML(w, entries)
	case FormatCSV:
		return writeCSV(w, entries)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// normalize trims codes, drops blank ones, applies NFC to both sides and
// rejects duplicates.
func normalize(raw []roster.Entry) ([]roster.Entry, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]roster.Entry, 0, len(raw))
	for _, e := range raw {
		code := norm.NFC.String(strings.TrimSpace(e.Code))
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCode, code)
		}
		seen[code] = struct{}{}
		out = append(out, roster.Entry{Code: code, Description: norm.NFC.String(e.Description)})
	}
	return out, nil
}
