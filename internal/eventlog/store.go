// Package eventlog persists per-cut event-key logs in SQLite so runs can be
// listed, inspected and cross-validated against each other.
package eventlog

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/cutflow/internal/cuttree"
)

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("run not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	label       TEXT NOT NULL,
	root        TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_keys (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	cut         TEXT NOT NULL,
	run         INTEGER NOT NULL,
	lumi        INTEGER NOT NULL,
	evt         INTEGER NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_event_keys_run_cut ON event_keys(run_id, cut);
`
// #endregion schema

// #region types
// RunInfo describes one persisted run.
type RunInfo struct {
	ID        string
	Label     string
	Root      string
	CreatedAt time.Time
	Events    int
}

// CutCount is the number of stored keys for one cut of a run.
type CutCount struct {
	Cut    string
	Events int
}

// DiffResult lists the keys of one cut that appear in only one of two runs.
// Duplicates are compared as multisets.
type DiffResult struct {
	OnlyA  []cuttree.EventKey
	OnlyB  []cuttree.EventKey
	Common int
}

// Equal reports whether both runs selected the same keys.
func (d DiffResult) Equal() bool { return len(d.OnlyA) == 0 && len(d.OnlyB) == 0 }

// #endregion types

// #region store
// Store manages event-key logs in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion store

// #region save
// SaveTree stores every cut's event log under a new run ID in one transaction.
func (s *Store) SaveTree(label string, tree *cuttree.Tree) (RunInfo, error) {
	info := RunInfo{
		ID:        uuid.New().String(),
		Label:     label,
		Root:      tree.Root().Name(),
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return RunInfo{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, label, root, created_at) VALUES (?, ?, ?, ?)`,
		info.ID, info.Label, info.Root, info.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return RunInfo{}, fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO event_keys (run_id, cut, run, lumi, evt) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return RunInfo{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var insertErr error
	tree.Walk(func(n *cuttree.Node) bool {
		for _, k := range n.Events() {
			// evt is stored bit-for-bit as a signed 64-bit integer.
			if _, err := stmt.Exec(info.ID, n.Name(), k.Run, k.Lumi, int64(k.Evt)); err != nil {
				insertErr = fmt.Errorf("insert key %s for %s: %w", k, n.Name(), err)
				return false
			}
			info.Events++
		}
		return true
	})
	if insertErr != nil {
		return RunInfo{}, insertErr
	}

	if err := tx.Commit(); err != nil {
		return RunInfo{}, fmt.Errorf("commit: %w", err)
	}
	return info, nil
}
// #endregion save

// #region read
// Run returns one run's metadata.
func (s *Store) Run(runID string) (RunInfo, error) {
	var (
		info    RunInfo
		created string
	)
	err := s.db.QueryRow(
		`SELECT r.run_id, r.label, r.root, r.created_at,
		        (SELECT COUNT(*) FROM event_keys e WHERE e.run_id = r.run_id)
		 FROM runs r WHERE r.run_id = ?`, runID,
	).Scan(&info.ID, &info.Label, &info.Root, &created, &info.Events)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return RunInfo{}, fmt.Errorf("query run: %w", err)
	}
	info.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return RunInfo{}, fmt.Errorf("parse created_at: %w", err)
	}
	return info, nil
}

// Runs lists all runs, oldest first.
func (s *Store) Runs() ([]RunInfo, error) {
	rows, err := s.db.Query(
		`SELECT r.run_id, r.label, r.root, r.created_at,
		        (SELECT COUNT(*) FROM event_keys e WHERE e.run_id = r.run_id)
		 FROM runs r ORDER BY r.rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			info    RunInfo
			created string
		)
		if err := rows.Scan(&info.ID, &info.Label, &info.Root, &created, &info.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if info.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Cuts returns the number of stored keys per cut of a run, by cut name.
func (s *Store) Cuts(runID string) ([]CutCount, error) {
	if _, err := s.Run(runID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT cut, COUNT(*) FROM event_keys WHERE run_id = ? GROUP BY cut ORDER BY cut`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cuts: %w", err)
	}
	defer rows.Close()

	var out []CutCount
	for rows.Next() {
		var c CutCount
		if err := rows.Scan(&c.Cut, &c.Events); err != nil {
			return nil, fmt.Errorf("scan cut: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Events returns the keys stored for one cut of a run, sorted by run, lumi, evt.
func (s *Store) Events(runID, cut string) ([]cuttree.EventKey, error) {
	if _, err := s.Run(runID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT run, lumi, evt FROM event_keys WHERE run_id = ? AND cut = ? ORDER BY id`, runID, cut,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []cuttree.EventKey
	for rows.Next() {
		var (
			k   cuttree.EventKey
			evt int64
		)
		if err := rows.Scan(&k.Run, &k.Lumi, &evt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		k.Evt = uint64(evt)
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, cuttree.EventKey.Compare)
	return out, nil
}

// Delete removes a run and its keys.
func (s *Store) Delete(runID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM event_keys WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
// #endregion read

// #region diff
// Diff compares the keys one cut selected in two runs.
func (s *Store) Diff(runA, runB, cut string) (DiffResult, error) {
	a, err := s.Events(runA, cut)
	if err != nil {
		return DiffResult{}, err
	}
	b, err := s.Events(runB, cut)
	if err != nil {
		return DiffResult{}, err
	}
	return DiffKeys(a, b), nil
}

// DiffKeys compares two key multisets. The results are sorted.
func DiffKeys(a, b []cuttree.EventKey) DiffResult {
	counts := make(map[cuttree.EventKey]int, len(b))
	for _, k := range b {
		counts[k]++
	}
	var res DiffResult
	for _, k := range a {
		if counts[k] > 0 {
			counts[k]--
			res.Common++
			continue
		}
		res.OnlyA = append(res.OnlyA, k)
	}
	for k, n := range counts {
		for ; n > 0; n-- {
			res.OnlyB = append(res.OnlyB, k)
		}
	}
	slices.SortStableFunc(res.OnlyA, cuttree.EventKey.Compare)
	slices.SortStableFunc(res.OnlyB, cuttree.EventKey.Compare)
	return res
}
// #endregion diff
