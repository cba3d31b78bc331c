package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL implementation of Store[S].
//
// Use it when suspended conversations must be resumable from a different
// process than the one that suspended them: the checkpoint row is the only
// coordination point between the two.
//
// The DSN must include parseTime=true so TIMESTAMP columns scan into
// time.Time, e.g.:
//
//	user:pass@tcp(localhost:3306)/maintgraph?parseTime=true
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db *sql.DB
}

// NewMySQLStore creates a new MySQL-backed store and ensures the schema.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *MySQLStore[S]) createTables(ctx context.Context) error {
	const table = `
		CREATE TABLE IF NOT EXISTS thread_checkpoints (
			thread_id VARCHAR(191) NOT NULL PRIMARY KEY,
			step INT NOT NULL,
			node_id VARCHAR(191) NOT NULL,
			state JSON NOT NULL,
			pending_node VARCHAR(191) NOT NULL DEFAULT '',
			payload JSON,
			updated_at TIMESTAMP(6) NOT NULL,
			INDEX idx_checkpoints_pending (pending_node, updated_at)
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create thread_checkpoints table: %w", err)
	}
	return nil
}

// Save overwrites the checkpoint for cp.ThreadID.
func (s *MySQLStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
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
		ON DUPLICATE KEY UPDATE
			step = VALUES(step),
			node_id = VALUES(node_id),
			state = VALUES(state),
			pending_node = VALUES(pending_node),
			payload = VALUES(payload),
			updated_at = VALUES(updated_at)
	`, cp.ThreadID, cp.Step, cp.NodeID, string(stateJSON), cp.PendingNode, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// Load retrieves the checkpoint for a thread.
func (s *MySQLStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
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
func (s *MySQLStore[S]) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM thread_checkpoints WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// SweepSuspended deletes suspended checkpoints older than olderThan.
func (s *MySQLStore[S]) SweepSuspended(ctx context.Context, olderThan time.Duration) (int, error) {
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
func (s *MySQLStore[S]) Close() error {
	return s.db.Close()
}
