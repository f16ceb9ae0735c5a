// Package sqlite is a database/sql implementation of runstore.Store.
// It works with any SQLite driver; tests use modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parley-ai/parley/runstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	question    TEXT NOT NULL,
	answer      TEXT NOT NULL DEFAULT '',
	tools_used  TEXT NOT NULL DEFAULT '[]',
	tool_runs   TEXT NOT NULL DEFAULT '[]',
	transcript  TEXT NOT NULL DEFAULT '[]',
	turns       INTEGER NOT NULL DEFAULT 0,
	confidence  REAL NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	version     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at DESC);
`

// Store persists records in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ runstore.Store = (*Store)(nil)

// Open creates the schema if needed and returns a Store over db. The caller
// owns db and closes it.
func Open(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create runs schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(ctx context.Context, rec runstore.Record) error {
	toolsUsed, err := json.Marshal(rec.ToolsUsed)
	if err != nil {
		return fmt.Errorf("encode tools_used: %w", err)
	}
	toolRuns, err := json.Marshal(rec.ToolRuns)
	if err != nil {
		return fmt.Errorf("encode tool_runs: %w", err)
	}
	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	if rec.Version == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO runs (id, question, answer, tools_used, tool_runs, transcript, turns, confidence, created_at, updated_at, version)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			rec.ID, rec.Question, rec.Answer, string(toolsUsed), string(toolRuns), string(transcript),
			rec.Turns, rec.Confidence, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
		if err != nil {
			if exists, checkErr := s.exists(ctx, rec.ID); checkErr == nil && exists {
				return fmt.Errorf("%w: run %q already exists", runstore.ErrVersionConflict, rec.ID)
			}
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET question = ?, answer = ?, tools_used = ?, tool_runs = ?, transcript = ?,
		 turns = ?, confidence = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		rec.Question, rec.Answer, string(toolsUsed), string(toolRuns), string(transcript),
		rec.Turns, rec.Confidence, rec.UpdatedAt.UTC(), rec.ID, rec.Version)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: run %q version %d is stale", runstore.ErrVersionConflict, rec.ID, rec.Version)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (runstore.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question, answer, tools_used, tool_runs, transcript, turns, confidence, created_at, updated_at, version
		 FROM runs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return runstore.Record{}, runstore.ErrNotFound
	}
	return rec, err
}

func (s *Store) List(ctx context.Context, limit int) ([]runstore.Record, error) {
	q := `SELECT id, question, answer, tools_used, tool_runs, transcript, turns, confidence, created_at, updated_at, version
	      FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []runstore.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (runstore.Record, error) {
	var rec runstore.Record
	var toolsUsed, toolRuns, transcript string
	var createdAt, updatedAt time.Time
	err := row.Scan(&rec.ID, &rec.Question, &rec.Answer, &toolsUsed, &toolRuns, &transcript,
		&rec.Turns, &rec.Confidence, &createdAt, &updatedAt, &rec.Version)
	if err != nil {
		return runstore.Record{}, err
	}
	rec.CreatedAt = createdAt.UTC()
	rec.UpdatedAt = updatedAt.UTC()
	if err := json.Unmarshal([]byte(toolsUsed), &rec.ToolsUsed); err != nil {
		return runstore.Record{}, fmt.Errorf("decode tools_used: %w", err)
	}
	if err := json.Unmarshal([]byte(toolRuns), &rec.ToolRuns); err != nil {
		return runstore.Record{}, fmt.Errorf("decode tool_runs: %w", err)
	}
	if err := json.Unmarshal([]byte(transcript), &rec.Transcript); err != nil {
		return runstore.Record{}, fmt.Errorf("decode transcript: %w", err)
	}
	return rec, nil
}
