// Package heartbeat implements the Heartbeat Registry (C1): liveness of
// worktree-bound agents via filesystem-visible heartbeat files with a
// staleness policy.
//
// Grounded in the teacher's filesystem-polling idiom used by
// git.IsRebaseInProgress/IsMergeInProgress (stat a well-known path, no
// locking) and in the zombie-detection sweep of the quorum-ai
// RecoveryManager (FindZombieWorkflows over a staleness threshold).
package heartbeat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// StaleThreshold is how old a heartbeat may be before its worktree is
// considered orphaned.
const StaleThreshold = 2 * time.Minute

// NewInstanceID mints a correlation ID for one agent-process lifetime.
func NewInstanceID() string { return uuid.NewString() }

// FileName is the heartbeat file written inside every worktree.
const FileName = ".opensprint-heartbeat.json"

// Record is the liveness payload written by an agent. InstanceID
// distinguishes one agent-process lifetime from another for the same task:
// if a worktree is recovered and the task re-admitted without its attempt
// counter changing (a crash mid-attempt), the new process's heartbeats
// carry a fresh InstanceID, giving logs and the Session Archive a
// correlation key finer-grained than taskId alone.
type Record struct {
	TaskID     string    `json:"taskId"`
	InstanceID string    `json:"instanceId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// StaleEntry identifies a worktree whose heartbeat is missing or stale.
type StaleEntry struct {
	TaskID string
	Path   string
}

// Write atomically persists a heartbeat record into the worktree at path,
// via temp-file + rename so readers never observe a partial write.
// instanceID should be stable for the lifetime of the writing process (see
// NewInstanceID) so repeated ticks of the same attempt carry the same ID.
func Write(worktreePath, taskID, instanceID string, now time.Time) error {
	rec := Record{TaskID: taskID, InstanceID: instanceID, UpdatedAt: now}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	dest := filepath.Join(worktreePath, FileName)
	tmp, err := os.CreateTemp(worktreePath, ".heartbeat-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dest)
}

// Read loads the heartbeat record from a worktree. A missing file is not
// an error here — callers use IsFresh to decide staleness, and an absent
// record is always stale.
func Read(worktreePath string) (Record, bool, error) {
	data, err := os.ReadFile(filepath.Join(worktreePath, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// IsFresh reports whether a record is within the staleness threshold as of
// now. An absence (found=false) is always stale.
func IsFresh(rec Record, found bool, now time.Time) bool {
	if !found {
		return false
	}
	return now.Sub(rec.UpdatedAt) < StaleThreshold
}

// FindStale walks base/*/<heartbeat file> and returns every worktree whose
// heartbeat is missing or stale. The directory name under base is taken as
// the task identifier, matching the worktree layout <base>/<taskId>.
func FindStale(base string, now time.Time) ([]StaleEntry, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var stale []StaleEntry
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		taskID := ent.Name()
		path := filepath.Join(base, taskID)
		rec, found, err := Read(path)
		if err != nil {
			return nil, err
		}
		if !IsFresh(rec, found, now) {
			stale = append(stale, StaleEntry{TaskID: taskID, Path: path})
		}
	}
	return stale, nil
}
