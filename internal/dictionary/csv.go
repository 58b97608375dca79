package dictionary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/leapstack-labs/rostermap/pkg/roster"
)

func readCSV(r io.Reader) ([]roster.Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid CSV: %w", err)
	}

	codeCol, descCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "code":
			codeCol = i
		case "description":
			descCol = i
		}
	}
	if codeCol < 0 || descCol < 0 {
		return nil, fmt.Errorf("invalid CSV: header must contain code and description columns, got %v", header)
	}

	var out []roster.Entry
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid CSV: %w", err)
		}
		e := roster.Entry{}
		if codeCol < len(rec) {
			e.Code = rec[codeCol]
		}
		if descCol < len(rec) {
			e.Description = rec[descCol]
		}
		out = append(out, e)
	}
	return out, nil
}

func writeCSV(w io.Writer, entries []roster.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "description"}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.Code, e.Description}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
