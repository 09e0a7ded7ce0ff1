// Package taskstore is a reference implementation of collab.TaskStore
// backed by SQLite, for projects that want a self-contained store rather
// than an external issue tracker.
//
// Grounded in the teacher's internal/daemon/db package: sql.Open with the
// pure-Go modernc.org/sqlite driver, WAL + foreign_keys pragmas on Open,
// and a migrate() that issues idempotent CREATE TABLE IF NOT EXISTS
// statements.
package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opensprint/core/internal/model"
)

// Store is a SQLite-backed collab.TaskStore.
type Store struct {
	conn *sql.DB
}

// Open opens or creates a SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("taskstore: open: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("taskstore: wal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("taskstore: foreign keys: %w", err)
	}
	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("taskstore: migrate: %w", err)
	}
	return s, nil
}

// CloseDB releases the underlying database connection. Not part of
// collab.TaskStore (whose Close marks a task done) — call this once at
// shutdown.
func (s *Store) CloseDB() error { return s.conn.Close() }

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS tasks (
	id                   TEXT PRIMARY KEY,
	project_id           TEXT NOT NULL,
	title                TEXT NOT NULL,
	status               TEXT NOT NULL,
	priority             INTEGER NOT NULL DEFAULT 0,
	labels_json          TEXT NOT NULL DEFAULT '[]',
	cumulative_attempts  INTEGER NOT NULL DEFAULT 0,
	epic_id              TEXT,
	last_exec_summary    TEXT,
	block_reason         TEXT,
	conflict_files_json  TEXT NOT NULL DEFAULT '[]',
	assignee             TEXT,
	merge_stage          TEXT,
	created_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS task_comments (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id     TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	body        TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);
`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *Store) Show(ctx context.Context, taskID string) (model.Task, error) {
	var t model.Task
	var labelsJSON, conflictJSON string
	row := s.conn.QueryRowContext(ctx, `SELECT id, title, status, priority, labels_json, cumulative_attempts,
		COALESCE(epic_id,''), COALESCE(last_exec_summary,''), COALESCE(block_reason,''), conflict_files_json,
		COALESCE(assignee,''), created_at FROM tasks WHERE id = ?`, taskID)
	var createdAt time.Time
	if err := row.Scan(&t.ID, &t.Title, &t.Status, &t.Priority, &labelsJSON, &t.CumulativeAttempts,
		&t.EpicID, &t.LastExecSummary, &t.BlockReason, &conflictJSON, &t.Assignee, &createdAt); err != nil {
		return model.Task{}, fmt.Errorf("taskstore: show %s: %w", taskID, err)
	}
	t.CreatedAt = createdAt
	json.Unmarshal([]byte(labelsJSON), &t.Labels)
	json.Unmarshal([]byte(conflictJSON), &t.ConflictFiles)
	return t, nil
}

func (s *Store) ListAll(ctx context.Context, projectID string) ([]model.Task, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id FROM tasks WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	tasks := make([]model.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.Show(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *Store) Update(ctx context.Context, taskID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	var sets []string
	var args []any
	for col, val := range fields {
		dbCol, ok := fieldColumns[col]
		if !ok {
			continue
		}
		sets = append(sets, dbCol+" = ?")
		args = append(args, val)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, taskID)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(sets, ", "))
	_, err := s.conn.ExecContext(ctx, query, args...)
	return err
}

var fieldColumns = map[string]string{
	"status":      "status",
	"assignee":    "assignee",
	"blockReason": "block_reason",
	"priority":    "priority",
}

func (s *Store) Comment(ctx context.Context, taskID, body string) error {
	_, err := s.conn.ExecContext(ctx, `INSERT INTO task_comments (task_id, body, created_at) VALUES (?, ?, ?)`,
		taskID, body, time.Now())
	return err
}

func (s *Store) Close(ctx context.Context, taskID, summary string) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE tasks SET status = ?, last_exec_summary = ?, assignee = '' WHERE id = ?`,
		model.TaskClosed, summary, taskID)
	return err
}

func (s *Store) SetCumulativeAttempts(ctx context.Context, taskID string, n int) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE tasks SET cumulative_attempts = ? WHERE id = ?`, n, taskID)
	return err
}

func (s *Store) SetConflictFiles(ctx context.Context, taskID string, files []string) error {
	data, err := json.Marshal(files)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, `UPDATE tasks SET conflict_files_json = ? WHERE id = ?`, string(data), taskID)
	return err
}

func (s *Store) SetMergeStage(ctx context.Context, taskID, stage string) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE tasks SET merge_stage = ? WHERE id = ?`, stage, taskID)
	return err
}

func (s *Store) GetCumulativeAttemptsFromIssue(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT cumulative_attempts FROM tasks WHERE id = ?`, taskID).Scan(&n)
	return n, err
}

func (s *Store) ListInProgressWithAgentAssignee(ctx context.Context, projectID string) ([]model.Task, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id FROM tasks WHERE project_id = ? AND status = ? AND assignee != ''`,
		projectID, model.TaskInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	tasks := make([]model.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.Show(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Create inserts a new task row. Not part of collab.TaskStore (tasks are
// normally created by the external project service). Rows it inserts carry
// an empty project_id, so ListAll and ListInProgressWithAgentAssignee
// return them only when called with projectID "".
func (s *Store) Create(ctx context.Context, t model.Task) error {
	labelsJSON, _ := json.Marshal(t.Labels)
	conflictJSON, _ := json.Marshal(t.ConflictFiles)
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.conn.ExecContext(ctx, `INSERT INTO tasks
		(id, project_id, title, status, priority, labels_json, cumulative_attempts, epic_id, conflict_files_json, assignee, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, "", t.Title, t.Status, t.Priority, string(labelsJSON), t.CumulativeAttempts, t.EpicID,
		string(conflictJSON), t.Assignee, createdAt)
	return err
}
