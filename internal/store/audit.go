package store

import (
	"context"
	"fmt"
)

func (s *Store) audit(ctx context.Context, q querier, station, action string, version int, actor, detail string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO audit_log (station, action, version_number, actor, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		station, action, version, actor, detail, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// AuditLog returns audit entries newest first. An empty station returns
// entries for every station; limit <= 0 means no limit.
func (s *Store) AuditLog(ctx context.Context, station string, limit int) ([]AuditEntry, error) {
	query := `SELECT id, station, action, version_number, actor, detail, created_at FROM audit_log`
	var args []any
	if station != "" {
		st, err := NormalizeStation(station)
		if err != nil {
			return nil, err
		}
		query += ` WHERE station = ?`
		args = append(args, st)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AuditEntry
	for rows.Next() {
		var (
			e       AuditEntry
			created string
		)
		if err := rows.Scan(&e.ID, &e.Station, &e.Action, &e.Version, &e.Actor, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
