package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// SaveRequest describes a new version of a station table.
type SaveRequest struct {
	Station string
	Entries []roster.Entry
	Author  string
	Note    string
	// Replace stores Entries as the whole table. Otherwise they are merged
	// over the latest version: existing codes keep their position, new codes
	// are appended.
	Replace bool
}

// SaveMapping stores a new version of a station table and marks it latest.
func (s *Store) SaveMapping(ctx context.Context, req SaveRequest) (*Version, error) {
	station, err := NormalizeStation(req.Station)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entries := req.Entries
	if !req.Replace {
		base, _, err := loadLatest(ctx, tx, station)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, err
		default:
			entries = mergeEntries(base, req.Entries)
		}
	}
	if len(entries) == 0 {
		return nil, ErrEmptyMapping
	}

	var number int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO station_counters (station, last_number) VALUES (?, 1)
		 ON CONFLICT(station) DO UPDATE SET last_number = last_number + 1
		 RETURNING last_number`,
		station,
	).Scan(&number)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate version number: %w", err)
	}

	v := &Version{
		ID:         generateID(),
		Station:    station,
		Number:     number,
		Author:     req.Author,
		Note:       req.Note,
		EntryCount: len(entries),
		CreatedAt:  s.now(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO mapping_versions (id, station, number, author, note, entry_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Station, v.Number, v.Author, v.Note, v.EntryCount, formatTime(v.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO mapping_entries (version_id, position, code, description) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, v.ID, i, e.Code, e.Description); err != nil {
			return nil, fmt.Errorf("failed to insert entry %q: %w", e.Code, err)
		}
	}

	detail := fmt.Sprintf("%d entries", v.EntryCount)
	if req.Replace {
		detail += " (replace)"
	}
	if err := s.audit(ctx, tx, station, ActionSaved, v.Number, req.Author, detail); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit version: %w", err)
	}

	s.logger.Info("mapping saved",
		"station", station,
		"version", v.Number,
		"entries", v.EntryCount,
		"replace", req.Replace,
	)
	return v, nil
}

// LoadMapping returns the latest version of a station table.
func (s *Store) LoadMapping(ctx context.Context, station string) ([]roster.Entry, *Version, error) {
	station, err := NormalizeStation(station)
	if err != nil {
		return nil, nil, err
	}
	return loadLatest(ctx, s.db, station)
}

// LoadMappingVersion returns a specific version of a station table.
func (s *Store) LoadMappingVersion(ctx context.Context, station string, number int) ([]roster.Entry, *Version, error) {
	station, err := NormalizeStation(station)
	if err != nil {
		return nil, nil, err
	}
	v, err := scanVersion(s.db.QueryRowContext(ctx,
		`SELECT id, station, number, author, note, entry_count, created_at
		 FROM mapping_versions WHERE station = ? AND number = ?`,
		station, number,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s version %d", ErrNotFound, station, number)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get version: %w", err)
	}
	entries, err := loadEntries(ctx, s.db, v.ID)
	if err != nil {
		return nil, nil, err
	}
	return entries, v, nil
}

// LoadWithFallback returns the station's latest table, or the fallback
// station's when the station has none.
func (s *Store) LoadWithFallback(ctx context.Context, station, fallback string) ([]roster.Entry, *Version, error) {
	entries, v, err := s.LoadMapping(ctx, station)
	if err == nil {
		return entries, v, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	requested, _ := NormalizeStation(station)
	fb, ferr := NormalizeStation(fallback)
	if ferr != nil || fb == requested {
		return nil, nil, fmt.Errorf("%w for station %s", ErrNoMappings, requested)
	}

	entries, v, err = s.LoadMapping(ctx, fb)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, fmt.Errorf("%w for station %s or fallback %s", ErrNoMappings, requested, fb)
	}
	if err != nil {
		return nil, nil, err
	}
	s.logger.Warn("station has no mapping, using fallback",
		"station", requested,
		"fallback", fb,
		"version", v.Number,
	)
	return entries, v, nil
}

// MappingExists reports whether the station has at least one version.
func (s *Store) MappingExists(ctx context.Context, station string) (bool, error) {
	station, err := NormalizeStation(station)
	if err != nil {
		return false, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mapping_versions WHERE station = ?`, station,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count versions: %w", err)
	}
	return n > 0, nil
}

// ListVersions returns all versions of a station, newest first.
func (s *Store) ListVersions(ctx context.Context, station string) ([]Version, error) {
	station, err := NormalizeStation(station)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, station, number, author, note, entry_count, created_at
		 FROM mapping_versions WHERE station = ? ORDER BY number DESC`,
		station,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// Stations lists every station that has at least one stored version.
func (s *Store) Stations(ctx context.Context) ([]StationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.station, c.versions, v.number, v.created_at
		 FROM mapping_versions v
		 JOIN (SELECT station, COUNT(*) AS versions, MAX(number) AS latest
		       FROM mapping_versions GROUP BY station) c
		   ON v.station = c.station AND v.number = c.latest
		 ORDER BY v.station`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StationSummary
	for rows.Next() {
		var (
			st      StationSummary
			updated string
		)
		if err := rows.Scan(&st.Station, &st.Versions, &st.Latest, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		if st.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// DeleteMapping removes one version. It reports false when the version did
// not exist.
func (s *Store) DeleteMapping(ctx context.Context, station string, number int, actor string) (bool, error) {
	station, err := NormalizeStation(station)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM mapping_entries WHERE version_id IN
		 (SELECT id FROM mapping_versions WHERE station = ? AND number = ?)`,
		station, number,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete entries: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM mapping_versions WHERE station = ? AND number = ?`, station, number)
	if err != nil {
		return false, fmt.Errorf("failed to delete version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete version: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := s.audit(ctx, tx, station, ActionDeleted, number, actor, ""); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}

	s.logger.Info("mapping version deleted", "station", station, "version", number)
	return true, nil
}

func loadLatest(ctx context.Context, q querier, station string) ([]roster.Entry, *Version, error) {
	v, err := scanVersion(q.QueryRowContext(ctx,
		`SELECT id, station, number, author, note, entry_count, created_at
		 FROM mapping_versions WHERE station = ? ORDER BY number DESC LIMIT 1`,
		station,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: station %s", ErrNotFound, station)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest version: %w", err)
	}
	entries, err := loadEntries(ctx, q, v.ID)
	if err != nil {
		return nil, nil, err
	}
	return entries, v, nil
}

func loadEntries(ctx context.Context, q querier, versionID string) ([]roster.Entry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT code, description FROM mapping_entries WHERE version_id = ? ORDER BY position`,
		versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []roster.Entry
	for rows.Next() {
		var e roster.Entry
		if err := rows.Scan(&e.Code, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*Version, error) {
	var (
		v       Version
		created string
	)
	if err := row.Scan(&v.ID, &v.Station, &v.Number, &v.Author, &v.Note, &v.EntryCount, &created); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	v.CreatedAt = t
	return &v, nil
}

// mergeEntries overlays updates on base: codes already in base keep their
// position with the new description, unseen codes are appended in order.
func mergeEntries(base, updates []roster.Entry) []roster.Entry {
	out := make([]roster.Entry, len(base), len(base)+len(updates))
	copy(out, base)
	pos := make(map[string]int, len(base))
	for i, e := range out {
		pos[e.Code] = i
	}
	for _, e := range updates {
		if i, ok := pos[e.Code]; ok {
			out[i].Description = e.Description
			continue
		}
		pos[e.Code] = len(out)
		out = append(out, e)
	}
	return out
}
