// Package roster resolves crew roster shorthand codes into descriptions.
//
// A Table holds one station's code dictionary. Resolution tries every exact
// key (longest first, case-insensitive) before falling back to wildcard and
// regex rules, and MapCell extends that to composite cells such as "B1/B19".
package roster

import (
	"log/slog"
	"regexp"
	"slices"
	"strings"
)

// DefaultSeparators are tried in order when a cell holds several codes.
var DefaultSeparators = []string{"/", ",", ";", " "}

// Entry is a single code → description rule.
type Entry struct {
	Code        string `json:"code" yaml:"code"`
	Description string `json:"description" yaml:"description"`
}

type pattern struct {
	code        string
	re          *regexp.Regexp
	description string
}

// Table is a station's mapping dictionary plus its derived lookup structures.
//
// A Table is not safe for concurrent mutation. Readers may share a Table as
// long as nobody calls Add or Remove during the pass; use Clone to build a
// replacement instead.
type Table struct {
	station    string
	separators []string
	logger     *slog.Logger

	entries []Entry
	index   map[string]int // exact code → position in entries

	// Rebuilt on every mutation.
	order    []string
	patterns []pattern
}

// Option configures a Table.
type Option func(*Table)

// WithSeparators overrides the composite-cell separators. Empty strings are ignored.
func WithSeparators(seps ...string) Option {
	return func(t *Table) {
		out := make([]string, 0, len(seps))
		for _, s := range seps {
			if s != "" {
				out = append(out, s)
			}
		}
		t.separators = out
	}
}

// WithLogger sets the logger used for build diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// New builds a Table for station from entries, in order. A later entry with
// the same code replaces the earlier description but keeps its position.
func New(station string, entries []Entry, opts ...Option) *Table {
	t := &Table{
		station:    station,
		separators: slices.Clone(DefaultSeparators),
		logger:     slog.New(slog.DiscardHandler),
		entries:    make([]Entry, 0, len(entries)),
		index:      make(map[string]int, len(entries)),
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, e := range entries {
		t.put(e.Code, e.Description)
	}
	t.rebuild()

	t.logger.Debug("mapping table built",
		"station", t.station,
		"mapping_count", len(t.entries),
		"pattern_count", len(t.patterns))

	return t
}

// FromMap builds a Table from an unordered dictionary. Keys are inserted in
// sorted order so that tie-breaking is deterministic.
func FromMap(station string, m map[string]string, opts ...Option) *Table {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	entries := make([]Entry, 0, len(codes))
	for _, code := range codes {
		entries = append(entries, Entry{Code: code, Description: m[code]})
	}
	return New(station, entries, opts...)
}

// Station returns the station code the table was built for.
func (t *Table) Station() string { return t.station }

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Contains reports whether code is an exact key of the table.
func (t *Table) Contains(code string) bool {
	_, ok := t.index[code]
	return ok
}

// Lookup returns the description stored under the exact key code.
func (t *Table) Lookup(code string) (string, bool) {
	i, ok := t.index[code]
	if !ok {
		return "", false
	}
	return t.entries[i].Description, true
}

// Entries returns a copy of the entries in insertion order.
func (t *Table) Entries() []Entry { return slices.Clone(t.entries) }

// Separators returns a copy of the separators in priority order.
func (t *Table) Separators() []string { return slices.Clone(t.separators) }

// Add inserts or replaces a mapping and rebuilds the lookup order.
func (t *Table) Add(code, description string) {
	t.put(code, description)
	t.rebuild()
}

// Remove deletes a mapping. It reports false if code was not present.
func (t *Table) Remove(code string) bool {
	i, ok := t.index[code]
	if !ok {
		return false
	}
	t.entries = slices.Delete(t.entries, i, i+1)
	delete(t.index, code)
	for j := i; j < len(t.entries); j++ {
		t.index[t.entries[j].Code] = j
	}
	t.rebuild()
	return true
}

// Clone returns an independent copy with freshly built lookup structures.
func (t *Table) Clone() *Table {
	return New(t.station, t.entries, WithSeparators(t.separators...), WithLogger(t.logger))
}

func (t *Table) put(code, description string) {
	if i, ok := t.index[code]; ok {
		t.entries[i].Description = description
		return
	}
	t.index[code] = len(t.entries)
	t.entries = append(t.entries, Entry{Code: code, Description: description})
}

func (t *Table) rebuild() {
	order := make([]string, len(t.entries))
	for i, e := range t.entries {
		order[i] = e.Code
	}
	// Stable so equal-length codes keep insertion order.
	slices.SortStableFunc(order, func(a, b string) int {
		return len(b) - len(a)
	})
	t.order = order

	t.patterns = t.patterns[:0]
	for _, e := range t.entries {
		if !IsPattern(e.Code) {
			continue
		}
		re, err := compilePattern(e.Code)
		if err != nil {
			t.logger.Warn("invalid pattern rule skipped",
				"station", t.station,
				"pattern", e.Code,
				"error", err)
			continue
		}
		t.patterns = append(t.patterns, pattern{code: e.Code, re: re, description: e.Description})
	}
}

// IsPattern reports whether code is treated as a wildcard or regex rule.
func IsPattern(code string) bool {
	return strings.HasPrefix(code, "^") || strings.HasSuffix(code, "$") || strings.Contains(code, "*")
}

// compilePattern translates '*' to '.*' and anchors the expression at the
// start of the input so that it behaves as a prefix match.
func compilePattern(code string) (*regexp.Regexp, error) {
	expr := strings.ReplaceAll(code, "*", ".*")
	return regexp.Compile(`(?i)^(?:` + expr + `)`)
}
