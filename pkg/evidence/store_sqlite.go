package evidence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// sortableTime keeps fixed-width timestamps so ORDER BY on text is chronological.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore persists terminal task snapshots in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) a store at path. Use ":memory:" for tests.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS evidence_tasks (
        task_id TEXT PRIMARY KEY,
        trip_id TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL,
        payload JSON NOT NULL,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_evidence_tasks_trip ON evidence_tasks (trip_id, status, updated_at);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("migrate evidence store: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, t Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.TaskID, err)
	}
	query := `INSERT INTO evidence_tasks (task_id, trip_id, status, payload, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(task_id) DO UPDATE SET
            status = excluded.status,
            payload = excluded.payload,
            updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		t.TaskID, t.TripID, string(t.Status), string(payload),
		t.CreatedAt.UTC().Format(sortableTime), t.UpdatedAt.UTC().Format(sortableTime),
	)
	if err != nil {
		return fmt.Errorf("failed to persist task %s: %w", t.TaskID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, taskID string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM evidence_tasks WHERE task_id = ?`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrTaskNotFound
	}
	return t, err
}

func (s *SQLiteStore) LatestCompleted(ctx context.Context, tripID string) (Task, bool, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT payload FROM evidence_tasks
        WHERE trip_id = ? AND status = ?
        ORDER BY updated_at DESC
        LIMIT 1`, tripID, string(StatusCompleted))
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, err
	}
	return t, true, nil
}

func scanTask(row *sql.Row) (Task, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		return Task{}, err
	}
	var t Task
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	return t, nil
}
