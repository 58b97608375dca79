package roster

import "strings"

// Outcome is the result of resolving a single code. A Found outcome may
// carry an empty description; that is different from NotFound.
type Outcome struct {
	Description string
	Found       bool
}

// NotFound is the outcome for codes with no matching rule.
var NotFound = Outcome{}

// Found returns a successful outcome carrying description.
func Found(description string) Outcome {
	return Outcome{Description: description, Found: true}
}

// Resolve maps one atomic code to its description.
//
// Exact keys are tried first, longest first, comparing both verbatim and
// case-insensitively. Pattern rules are only consulted when no key matched,
// in the order they were defined.
func (t *Table) Resolve(code string) Outcome {
	clean := strings.TrimSpace(code)
	if clean == "" {
		return NotFound
	}

	for _, key := range t.order {
		if clean == key || strings.EqualFold(clean, key) {
			return Found(t.entries[t.index[key]].Description)
		}
	}

	for _, p := range t.patterns {
		if p.re.MatchString(clean) {
			return Found(p.description)
		}
	}

	return NotFound
}
