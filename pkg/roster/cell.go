package roster

import "strings"

// MapCell maps a raw cell value that may hold one code or several codes
// joined by a separator.
//
// The whole trimmed value is resolved first, so a key such as "A/B" wins
// over splitting. Otherwise the value is split on the first configured
// separator it contains and every token is resolved on its own; tokens
// without a rule are kept as they are. Values with no separator and no rule
// pass through trimmed.
func (t *Table) MapCell(v Value) string {
	if v.IsNull() {
		return ""
	}
	return t.MapString(v.String())
}

// MapString is MapCell for plain text.
func (t *Table) MapString(s string) string {
	clean := strings.TrimSpace(s)
	if clean == "" {
		return ""
	}

	if out := t.Resolve(clean); out.Found {
		return out.Description
	}

	for _, sep := range t.separators {
		if !strings.Contains(clean, sep) {
			continue
		}
		parts := strings.Split(clean, sep)
		for i, part := range parts {
			part = strings.TrimSpace(part)
			if out := t.Resolve(part); out.Found {
				part = out.Description
			}
			parts[i] = part
		}
		return strings.Join(parts, sep)
	}

	return clean
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
