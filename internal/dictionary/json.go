package dictionary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// metaKey holds version metadata in files written by the upload API.
const metaKey = "_meta"

var errNoMappings = errors.New("file has metadata but no mappings object")

// readJSON decodes an object token by token so that key order survives.
func readJSON(r io.Reader) ([]roster.Entry, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var (
		direct  []roster.Entry
		wrapped []roster.Entry
		hasWrap bool
		hasMeta bool
	)
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		switch key {
		case wrapperKey:
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, fmt.Errorf("invalid %q value: %w", key, err)
			}
			inner := json.NewDecoder(bytes.NewReader(raw))
			inner.UseNumber()
			if err := expectDelim(inner, '{'); err != nil {
				return nil, fmt.Errorf("invalid %q value: %w", key, err)
			}
			if wrapped, err = readPairs(inner); err != nil {
				return nil, err
			}
			hasWrap = true
		case metaKey:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("invalid %q value: %w", key, err)
			}
			hasMeta = true
		default:
			desc, err := readDescription(dec, key)
			if err != nil {
				return nil, err
			}
			direct = append(direct, roster.Entry{Code: key, Description: desc})
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}

	switch {
	case hasWrap:
		return wrapped, nil
	case hasMeta:
		return nil, errNoMappings
	default:
		return direct, nil
	}
}

func readPairs(dec *json.Decoder) ([]roster.Entry, error) {
	var out []roster.Entry
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		desc, err := readDescription(dec, key)
		if err != nil {
			return nil, err
		}
		out = append(out, roster.Entry{Code: key, Description: desc})
	}
	return out, expectDelim(dec, '}')
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("invalid JSON: expected object key, got %v", tok)
	}
	return key, nil
}

func readDescription(dec *json.Decoder, code string) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	switch v := tok.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("code %q: description must be a string, got %v", code, tok)
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("invalid JSON: expected %q, got %v", want, tok)
	}
	return nil
}

func writeJSON(w io.Writer, entries []roster.Entry) error {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, e := range entries {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		buf.Write(quoteJSON(e.Code))
		buf.WriteString(": ")
		buf.Write(quoteJSON(e.Description))
	}
	if len(entries) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func quoteJSON(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // encoding a string cannot fail
	return bytes.TrimRight(buf.Bytes(), "\n")
}
