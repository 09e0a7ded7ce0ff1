// Package archive implements the Session Archive (C4): a durable,
// per-attempt record of a coding attempt's inputs, outputs, diffs, test
// results and failure reason, with 95th-percentile truncation so a single
// runaway agent transcript can't blow out storage.
//
// Grounded in the teacher's internal/daemon/db package: sql.Open with the
// pure-Go modernc.org/sqlite driver, WAL pragma on Open, and a migrate()
// that issues an idempotent CREATE TABLE IF NOT EXISTS — the same pattern
// internal/taskstore uses for tasks, generalized here from run/unit/event
// tables to a single sessions table keyed by (task_id, attempt).
package archive

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/opensprint/core/internal/model"
)

// DefaultCap is the truncation threshold used when a project has no prior
// sessions to compute a percentile from (≈ 100 KiB).
const DefaultCap = 100 * 1024

// TruncationMarker is appended to any field truncated by the policy.
const TruncationMarker = "\n\n... [truncated]"

// Archive persists Sessions in a SQLite database rooted at dir.
type Archive struct {
	conn *sql.DB
}

// New opens (creating if absent) a SQLite database at <dir>/archive.db and
// runs migrations.
func New(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", filepath.Join(dir, "archive.db"))
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("archive: wal mode: %w", err)
	}
	a := &Archive{conn: conn}
	if err := a.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return a, nil
}

// CloseDB releases the underlying database connection.
func (a *Archive) CloseDB() error { return a.conn.Close() }

func (a *Archive) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	task_id        TEXT NOT NULL,
	attempt        INTEGER NOT NULL,
	agent_type     TEXT,
	model          TEXT,
	started_at     DATETIME,
	ended_at       DATETIME,
	status         TEXT,
	output_log     TEXT NOT NULL DEFAULT '',
	branch         TEXT,
	diff           TEXT NOT NULL DEFAULT '',
	test_results   TEXT,
	failure_reason TEXT,
	summary        TEXT,
	PRIMARY KEY (task_id, attempt)
);
`
	_, err := a.conn.Exec(schema)
	return err
}

// CreateSession allocates storage for a new session; it is a no-op insert
// ahead of the terminal write performed by ArchiveSession, mirroring the
// spec's createSession(repo, fields) which "allocates an identifier" before
// the attempt completes.
func (a *Archive) CreateSession(taskID string, attempt int) error {
	_, err := a.conn.Exec(`INSERT OR IGNORE INTO sessions (task_id, attempt) VALUES (?, ?)`, taskID, attempt)
	return err
}

// ArchiveSession applies the truncation policy to OutputLog and Diff using
// the 95th percentile of prior sessions for this project (or DefaultCap if
// none exist), then persists the session record.
func (a *Archive) ArchiveSession(sess model.Session) error {
	outputCap, diffCap, err := a.thresholds()
	if err != nil {
		return err
	}

	sess.OutputLog = truncate(sess.OutputLog, outputCap)
	sess.Diff = truncate(sess.Diff, diffCap)

	_, err = a.conn.Exec(`INSERT INTO sessions
		(task_id, attempt, agent_type, model, started_at, ended_at, status, output_log, branch, diff, test_results, failure_reason, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id, attempt) DO UPDATE SET
			agent_type=excluded.agent_type, model=excluded.model, started_at=excluded.started_at,
			ended_at=excluded.ended_at, status=excluded.status, output_log=excluded.output_log,
			branch=excluded.branch, diff=excluded.diff, test_results=excluded.test_results,
			failure_reason=excluded.failure_reason, summary=excluded.summary`,
		sess.TaskID, sess.Attempt, sess.AgentType, sess.Model, sess.StartedAt, sess.EndedAt, sess.Status,
		sess.OutputLog, sess.Branch, sess.Diff, sess.TestResults, sess.FailureReason, sess.Summary)
	return err
}

// thresholds computes the 95th-percentile size of outputLog and gitDiff
// across every previously archived session in this project.
func (a *Archive) thresholds() (outputCap, diffCap int, err error) {
	sessions, err := a.all()
	if err != nil {
		return 0, 0, err
	}
	if len(sessions) == 0 {
		return DefaultCap, DefaultCap, nil
	}

	outputs := make([]int, 0, len(sessions))
	diffs := make([]int, 0, len(sessions))
	for _, s := range sessions {
		outputs = append(outputs, len(s.OutputLog))
		diffs = append(diffs, len(s.Diff))
	}
	return percentile95(outputs), percentile95(diffs), nil
}

// percentile95 returns the nearest-rank 95th percentile of sizes: the
// smallest value at or above which only the top 5% of samples fall. Uses
// ceiling rather than truncation so small sample counts don't collapse to
// the minimum — with two prior samples {100, 500}, truncating
// int(1*0.95)=0 would wrongly cap at the minimum (100); ceiling gives
// index 1, the maximum (500), matching any standard nearest-rank
// definition for n=2.
func percentile95(sizes []int) int {
	sorted := append([]int(nil), sizes...)
	sort.Ints(sorted)
	idx := int(math.Ceil(float64(len(sorted)-1) * 0.95))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// truncate shortens s so that, with TruncationMarker appended, the result
// is no longer than cap.
func truncate(s string, cap int) string {
	if len(s) <= cap {
		return s
	}
	keep := cap - len(TruncationMarker)
	if keep < 0 {
		keep = 0
	}
	return s[:keep] + TruncationMarker
}

// all loads every archived session, in no particular order.
func (a *Archive) all() ([]model.Session, error) {
	rows, err := a.conn.Query(`SELECT task_id, attempt, COALESCE(agent_type,''), COALESCE(model,''),
		started_at, ended_at, COALESCE(status,''), output_log, COALESCE(branch,''), diff,
		COALESCE(test_results,''), COALESCE(failure_reason,''), COALESCE(summary,'') FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		var startedAt, endedAt sql.NullTime
		if err := rows.Scan(&s.TaskID, &s.Attempt, &s.AgentType, &s.Model, &startedAt, &endedAt,
			&s.Status, &s.OutputLog, &s.Branch, &s.Diff, &s.TestResults, &s.FailureReason, &s.Summary); err != nil {
			return nil, err
		}
		s.StartedAt = startedAt.Time
		s.EndedAt = endedAt.Time
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ByTask returns every session for taskID ordered by attempt ascending.
func (a *Archive) ByTask(taskID string) ([]model.Session, error) {
	all, err := a.all()
	if err != nil {
		return nil, err
	}
	var out []model.Session
	for _, s := range all {
		if s.TaskID == taskID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attempt < out[j].Attempt })
	return out, nil
}
