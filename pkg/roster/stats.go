package roster

// Stats counts what happened to the cells of one table or sheet.
// Every visited cell lands in exactly one of Mapped, Unchanged or Empty.
type Stats struct {
	Total     int      `json:"total_cells"`
	Mapped    int      `json:"mapped_cells"`
	Unchanged int      `json:"unchanged_cells"`
	Empty     int      `json:"empty_cells"`
	Columns   []string `json:"columns_processed,omitempty"`
}

// CountEmpty records a null or blank cell.
func (s *Stats) CountEmpty() {
	s.Total++
	s.Empty++
}

// CountMapped records a cell whose value changed.
func (s *Stats) CountMapped() {
	s.Total++
	s.Mapped++
}

// CountUnchanged records a non-empty cell that kept its value.
func (s *Stats) CountUnchanged() {
	s.Total++
	s.Unchanged++
}

// Add folds other into s. Column lists are concatenated.
func (s *Stats) Add(other Stats) {
	s.Total += other.Total
	s.Mapped += other.Mapped
	s.Unchanged += other.Unchanged
	s.Empty += other.Empty
	s.Columns = append(s.Columns, other.Columns...)
}

// Valid reports whether the category counters sum to Total.
func (s Stats) Valid() bool {
	return s.Total == s.Mapped+s.Unchanged+s.Empty
}

// Classify applies MapCell to v and reports the mapped text, whether it
// differs from the original text, and whether v was empty. It is the shared
// per-cell step of every mapping pass.
func (t *Table) Classify(v Value) (mapped string, changed, empty bool) {
	if v.IsEmpty() {
		return "", false, true
	}
	mapped = t.MapCell(v)
	return mapped, mapped != v.String(), false
}
