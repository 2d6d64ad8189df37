// Package archive persists compact graph snapshots per revision in SQLite,
// so diffs can reach back past the live revision and across restarts.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrUnknownRevision reports a lookup for a revision that was never
// snapshotted.
var ErrUnknownRevision = errors.New("unknown revision")

// Store is the snapshot data access layer.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a snapshot database at path with WAL mode enabled.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate archive: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS snapshots (
  revision    INTEGER PRIMARY KEY,
  engine_id   TEXT NOT NULL,
  created_at  TIMESTAMP NOT NULL,
  graph       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_engine ON snapshots(engine_id);
`

// Snapshot is one archived revision.
type Snapshot struct {
	Revision  uint64
	EngineID  string
	CreatedAt time.Time
	Graph     string // compact serialization
}

// Save stores a snapshot. Saving the same revision again overwrites it: the
// engine snapshots at most once per revision, so a re-save is a retry.
func (s *Store) Save(snap Snapshot) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO snapshots (revision, engine_id, created_at, graph) VALUES (?, ?, ?, ?)`,
		int64(snap.Revision), snap.EngineID, snap.CreatedAt.UTC(), snap.Graph,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %d: %w", snap.Revision, err)
	}
	return nil
}

// Load returns the snapshot for a revision. Fails with ErrUnknownRevision
// when absent.
func (s *Store) Load(revision uint64) (*Snapshot, error) {
	row := s.db.QueryRow(
		`SELECT revision, engine_id, created_at, graph FROM snapshots WHERE revision = ?`,
		int64(revision),
	)
	var snap Snapshot
	var rev int64
	if err := row.Scan(&rev, &snap.EngineID, &snap.CreatedAt, &snap.Graph); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load snapshot %d: %w", revision, ErrUnknownRevision)
		}
		return nil, fmt.Errorf("load snapshot %d: %w", revision, err)
	}
	snap.Revision = uint64(rev)
	return &snap, nil
}

// Revisions lists archived revisions in ascending order.
func (s *Store) Revisions() ([]uint64, error) {
	rows, err := s.db.Query(`SELECT revision FROM snapshots ORDER BY revision ASC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var rev int64
		if err := rows.Scan(&rev); err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		out = append(out, uint64(rev))
	}
	return out, rows.Err()
}

// Prune deletes all snapshots older than keep revisions back from the
// newest. A keep of zero clears everything.
func (s *Store) Prune(keep int) error {
	_, err := s.db.Exec(
		`DELETE FROM snapshots WHERE revision NOT IN (
		   SELECT revision FROM snapshots ORDER BY revision DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}
