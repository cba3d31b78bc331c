package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It keeps one row per conversation thread in a single-file database.
// Designed for:
//   - Development and testing with zero setup
//   - Single-process deployments requiring persistence across restarts
//
// The database uses WAL mode so reads don't block the single writer.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter is the database file location, or ":memory:" for an
// in-memory database. The store creates the file and schema on first use.
//
// Example:
//
//	st, err := store.NewSQLiteStore[State]("./maintgraph.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	const table = `
		CREATE TABLE IF NOT EXISTS thread_checkpoints (
			thread_id TEXT NOT NULL PRIMARY KEY,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			pending_node TEXT NOT NULL DEFAULT '',
			payload TEXT,
			updated_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create thread_checkpoints table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_checkpoints_pending ON thread_checkpoints(pending_node, updated_at)"); err != nil {
		return fmt.Errorf("failed to create idx_checkpoints_pending: %w", err)
	}

	return nil
}

// Save overwrites the checkpoint for cp.ThreadID.
func (s *SQLiteStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	var payload any
	if cp.Payload != nil {
		payload = string(cp.Payload)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO thread_checkpoints (thread_id, step, node_id, state, pending_node, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			step = excluded.step,
			node_id = excluded.node_id,
			state = excluded.state,
			pending_node = excluded.pending_node,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, cp.ThreadID, cp.Step, cp.NodeID, string(stateJSON), cp.PendingNode, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// Load retrieves the checkpoint for a thread.
func (s *SQLiteStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var (
		cp        Checkpoint[S]
		stateJSON string
		payload   sql.NullString
	)

	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, step, node_id, state, pending_node, payload, updated_at
		FROM thread_checkpoints WHERE thread_id = ?
	`, threadID)

	err := row.Scan(&cp.ThreadID, &cp.Step, &cp.NodeID, &stateJSON, &cp.PendingNode, &payload, &cp.UpdatedAt)
	if err == sql.ErrNoRows {
		return cp, ErrNotFound
	}
	if err != nil {
		return cp, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return cp, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if payload.Valid {
		cp.Payload = json.RawMessage(payload.String)
	}

	return cp, nil
}

// Delete removes a thread's checkpoint.
func (s *SQLiteStore[S]) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM thread_checkpoints WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// SweepSuspended deletes suspended checkpoints older than olderThan.
func (s *SQLiteStore[S]) SweepSuspended(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM thread_checkpoints WHERE pending_node != '' AND updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep suspended checkpoints: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept checkpoints: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore[S]) Close() error {
	return s.db.Close()
}
