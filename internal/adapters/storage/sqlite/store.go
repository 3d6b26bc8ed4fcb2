package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/domain/snapshot"
)

// Store implements ports.StatePort on SQLite.
type Store struct {
	conn *Connection
	db   *sql.DB
}

var _ ports.StatePort = (*Store)(nil)

// Open opens (and migrates) the database at path and returns a store over it.
func Open(path string) (*Store, error) {
	conn, err := NewConnection(path)
	if err != nil {
		return nil, err
	}
	if err := conn.Open(); err != nil {
		return nil, err
	}
	db, err := conn.DB()
	if err != nil {
		return nil, err
	}
	return &Store{conn: conn, db: db}, nil
}

// SaveSnapshot stores the snapshot as a JSON document.
func (s *Store) SaveSnapshot(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot is nil")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, taken_at, data) VALUES (?, ?, ?)`,
		snap.ID, snap.TakenAt.UnixNano(), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the snapshot with the newest taken_at.
func (s *Store) LatestSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots ORDER BY taken_at DESC, seq DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

// PruneSnapshots keeps the newest keep rows.
func (s *Store) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE seq NOT IN (
			SELECT seq FROM snapshots ORDER BY taken_at DESC, seq DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// AppendAlert inserts the alert. A re-appended ID replaces the stored row.
func (s *Store) AppendAlert(ctx context.Context, a alert.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, ts, level, type, message, data) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		a.ID, a.Timestamp.UnixNano(), string(a.Level), a.Type, a.Message, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to append alert: %w", err)
	}
	return nil
}

// AlertsSince returns alerts at or after since, oldest first.
func (s *Store) AlertsSince(ctx context.Context, since time.Time) ([]alert.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM alerts WHERE ts >= ? ORDER BY ts ASC, seq ASC`,
		sinceNanos(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		var a alert.Alert
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("parse alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PruneAlerts deletes alerts older than before.
func (s *Store) PruneAlerts(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE ts < ?`, sinceNanos(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune alerts: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// UnixNano is undefined outside roughly 1678..2262; the zero time means "everything".
func sinceNanos(t time.Time) int64 {
	if t.IsZero() || t.Year() < 1700 {
		return 0
	}
	return t.UnixNano()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}
