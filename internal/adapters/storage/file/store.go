// Package file persists snapshots as JSON files and alerts as one JSONL file per day.
//
// Layout under the data directory:
//
//	snapshots/snapshot-20260314-100000.000000000-1a2b3c4d.json
//	alerts/alerts-2026-03-14.jsonl
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/domain/snapshot"
)

const (
	snapshotDir    = "snapshots"
	alertDir       = "alerts"
	snapshotPrefix = "snapshot-"
	alertPrefix    = "alerts-"
	snapshotLayout = "20060102-150405.000000000"
	dayLayout      = "2006-01-02"
)

// Store implements ports.StatePort on the local filesystem.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ ports.StatePort = (*Store)(nil)

// New creates the directory layout under dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	for _, sub := range []string{snapshotDir, alertDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", sub, err)
		}
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

func snapshotName(snap *snapshot.Snapshot) string {
	id := snap.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return snapshotPrefix + snap.TakenAt.UTC().Format(snapshotLayout) + "-" + id + ".json"
}

// SaveSnapshot writes the snapshot atomically through a temp file and rename.
func (s *Store) SaveSnapshot(_ context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot is nil")
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	final := filepath.Join(s.dir, snapshotDir, snapshotName(snap))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// snapshotFiles returns snapshot file names, oldest first.
func (s *Store) snapshotFiles() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, snapshotDir))
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// LatestSnapshot loads the newest snapshot file.
func (s *Store) LatestSnapshot(_ context.Context) (*snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.snapshotFiles()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, domainerrors.ErrSnapshotNotFound
	}

	path := filepath.Join(s.dir, snapshotDir, names[len(names)-1])
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", filepath.Base(path), err)
	}
	return &snap, nil
}

// PruneSnapshots deletes all but the newest keep snapshot files.
func (s *Store) PruneSnapshots(_ context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.snapshotFiles()
	if err != nil {
		return 0, err
	}
	if keep < 0 || len(names) <= keep {
		return 0, nil
	}

	removed := 0
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(s.dir, snapshotDir, name)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

func alertFile(day time.Time) string {
	return alertPrefix + day.UTC().Format(dayLayout) + ".jsonl"
}

// AppendAlert appends one JSON line to the file of the alert's day.
func (s *Store) AppendAlert(_ context.Context, a alert.Alert) error {
	line, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, alertDir, alertFile(a.Timestamp))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open alert file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append alert: %w", err)
	}
	return f.Close()
}

type dayFile struct {
	name string
	day  time.Time
}

func (s *Store) alertFiles() ([]dayFile, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, alertDir))
	if err != nil {
		return nil, err
	}

	var files []dayFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, alertPrefix) || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		day, err := time.Parse(dayLayout, strings.TrimSuffix(strings.TrimPrefix(name, alertPrefix), ".jsonl"))
		if err != nil {
			continue // not ours
		}
		files = append(files, dayFile{name: name, day: day})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].day.Before(files[j].day) })
	return files, nil
}

// AlertsSince reads every day file that can hold alerts at or after since.
// Malformed lines are skipped.
func (s *Store) AlertsSince(_ context.Context, since time.Time) ([]alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.alertFiles()
	if err != nil {
		return nil, err
	}

	sinceDay := since.UTC().Truncate(24 * time.Hour)
	var out []alert.Alert
	for _, f := range files {
		if f.day.Before(sinceDay) {
			continue
		}
		alerts, err := readAlertFile(filepath.Join(s.dir, alertDir, f.name))
		if err != nil {
			return nil, err
		}
		for _, a := range alerts {
			if !a.Timestamp.Before(since) {
				out = append(out, a)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func readAlertFile(path string) ([]alert.Alert, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open alert file: %w", err)
	}
	defer f.Close()

	var alerts []alert.Alert
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var a alert.Alert
		if err := json.Unmarshal(scanner.Bytes(), &a); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read alert file: %w", err)
	}
	return alerts, nil
}

// PruneAlerts deletes day files whose whole day lies before the cutoff.
// It returns the number of files deleted.
func (s *Store) PruneAlerts(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.alertFiles()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range files {
		if !f.day.Add(24 * time.Hour).After(before) {
			if err := os.Remove(filepath.Join(s.dir, alertDir, f.name)); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("remove %s: %w", f.name, err)
			}
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op; files are closed after every write.
func (s *Store) Close() error { return nil }
