package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates the action log.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseOpenFailed, err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("%w: %w", ErrInitializeSchemaFailed, err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		plugin TEXT NOT NULL DEFAULT '',
		node_id TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_actions_session ON actions(session_id);
	CREATE INDEX IF NOT EXISTS idx_actions_node ON actions(node_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a new record to the log.
func (s *SQLiteStore) Append(ctx context.Context, r Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO actions (session_id, action_type, plugin, node_id, timestamp, payload) VALUES (?, ?, ?, ?, ?, ?)",
		r.SessionID, r.Type, r.Plugin, r.NodeID, r.Timestamp.UnixMilli(), []byte(r.Payload),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrAppendFailed, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrAppendFailed, err)
	}
	return seq, nil
}

const selectColumns = "SELECT id, session_id, action_type, plugin, node_id, timestamp, payload FROM actions"

// Recent returns the newest records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ByNode returns the records about one node, oldest first.
func (s *SQLiteStore) ByNode(ctx context.Context, nodeID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectColumns+" WHERE node_id = ? ORDER BY id", nodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountByType counts the records of one session per action type.
func (s *SQLiteStore) CountByType(ctx context.Context, sessionID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT action_type, COUNT(*) FROM actions WHERE session_id = ? GROUP BY action_type",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
		}
		counts[typ] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return counts, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		var timestampMillis int64
		var payload []byte

		if err := rows.Scan(&r.Seq, &r.SessionID, &r.Type, &r.Plugin, &r.NodeID, &timestampMillis, &payload); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
		}
		r.Timestamp = time.UnixMilli(timestampMillis)
		r.Payload = payload
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
