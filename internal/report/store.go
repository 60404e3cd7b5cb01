package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store keeps outcomes in a sqlite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the sqlite database at path. ":memory:" gives a private
// in-memory store.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: single writer

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS diagnoses (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id       TEXT NOT NULL,
		job_id       TEXT NOT NULL,
		candidate_id TEXT NOT NULL,
		idx          TEXT NOT NULL,
		interviewed  INTEGER NOT NULL DEFAULT 0,
		satisfied    INTEGER NOT NULL,
		unsatisfied  TEXT NOT NULL DEFAULT '[]',
		advisory     TEXT NOT NULL DEFAULT '[]',
		calls        INTEGER NOT NULL DEFAULT 0,
		error        TEXT NOT NULL DEFAULT '',
		diagnosed_at TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS diagnoses_pair ON diagnoses (job_id, candidate_id)`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, o Outcome) error {
	unsatisfied, err := encodeList(o.Unsatisfied)
	if err != nil {
		return err
	}
	advisory, err := encodeList(o.Advisory)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO diagnoses (run_id, job_id, candidate_id, idx, interviewed, satisfied, unsatisfied, advisory, calls, error, diagnosed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.JobID, o.CandidateID, o.Index, o.Interviewed, o.Satisfied, unsatisfied, advisory, o.Calls, o.Error,
		o.DiagnosedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: record %s/%s: %w", o.JobID, o.CandidateID, err)
	}
	return nil
}

// Diagnosed returns the pairs that already have an outcome without error.
func (s *Store) Diagnosed(ctx context.Context) (map[Key]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT job_id, candidate_id FROM diagnoses WHERE error = ''`)
	if err != nil {
		return nil, fmt.Errorf("store: query diagnosed pairs: %w", err)
	}
	defer rows.Close()

	done := make(map[Key]struct{})
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.JobID, &k.CandidateID); err != nil {
			return nil, fmt.Errorf("store: scan pair: %w", err)
		}
		done[k] = struct{}{}
	}
	return done, rows.Err()
}

// Outcomes returns the outcomes of a run in insertion order. An empty runID returns all runs.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	query := `SELECT run_id, job_id, candidate_id, idx, interviewed, satisfied, unsatisfied, advisory, calls, error, diagnosed_at
		FROM diagnoses`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o                     Outcome
			unsatisfied, advisory string
			at                    string
		)
		if err := rows.Scan(&o.RunID, &o.JobID, &o.CandidateID, &o.Index, &o.Interviewed, &o.Satisfied,
			&unsatisfied, &advisory, &o.Calls, &o.Error, &at); err != nil {
			return nil, fmt.Errorf("store: scan outcome: %w", err)
		}
		if err := json.Unmarshal([]byte(unsatisfied), &o.Unsatisfied); err != nil {
			return nil, fmt.Errorf("store: decode unsatisfied: %w", err)
		}
		if err := json.Unmarshal([]byte(advisory), &o.Advisory); err != nil {
			return nil, fmt.Errorf("store: decode advisory: %w", err)
		}
		if o.DiagnosedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("store: decode diagnosed_at: %w", err)
		}
		if len(o.Unsatisfied) == 0 {
			o.Unsatisfied = nil
		}
		if len(o.Advisory) == 0 {
			o.Advisory = nil
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("store: encode list: %w", err)
	}
	return string(raw), nil
}
