// Package session persists per-session transcripts in SQLite and records
// turn outcomes (transcript, usage, opportunistic fact capture).
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcript (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT NOT NULL,
	role        TEXT NOT NULL,
	text        TEXT NOT NULL,
	metadata    TEXT,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript(session_key, id);
`

// Store is the SQLite-backed transcript store. Implements types.Transcripts.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the transcript database under the workspace.
func Open(workspace string) (*Store, error) {
	dir := filepath.Join(workspace, ".nova")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "sessions.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create transcript schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendTurn adds one transcript row.
func (s *Store) AppendTurn(sessionKey string, entry types.TranscriptEntry) error {
	var meta []byte
	if len(entry.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(entry.Metadata); err != nil {
			return fmt.Errorf("failed to encode transcript metadata: %w", err)
		}
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO transcript (session_key, role, text, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionKey, entry.Role, entry.Text, nullable(meta), ts,
	)
	if err != nil {
		return fmt.Errorf("failed to append transcript turn: %w", err)
	}
	return nil
}

// Recent returns the last limit entries for the session in chronological
// order.
func (s *Store) Recent(sessionKey string, limit int) ([]types.TranscriptEntry, error) {
	rows, err := s.db.Query(
		`SELECT role, text, metadata, created_at FROM (
			SELECT id, role, text, metadata, created_at FROM transcript
			WHERE session_key = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		sessionKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var entries []types.TranscriptEntry
	for rows.Next() {
		var entry types.TranscriptEntry
		var meta sql.NullString
		if err := rows.Scan(&entry.Role, &entry.Text, &meta, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &entry.Metadata); err != nil {
				logging.SessionError("corrupt transcript metadata skipped: %v", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LimitTurns deletes the oldest rows beyond max for the session.
func (s *Store) LimitTurns(sessionKey string, max int) error {
	_, err := s.db.Exec(
		`DELETE FROM transcript WHERE session_key = ? AND id NOT IN (
			SELECT id FROM transcript WHERE session_key = ? ORDER BY id DESC LIMIT ?
		)`,
		sessionKey, sessionKey, max,
	)
	if err != nil {
		return fmt.Errorf("failed to trim transcript: %w", err)
	}
	return nil
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
