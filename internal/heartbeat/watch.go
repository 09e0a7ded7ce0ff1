package heartbeat

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher triggers on writes to any worktree's heartbeat file under a
// base directory, so the orphan-recovery sweep can run promptly instead
// of waiting for the next poll tick. It supplements, rather than
// replaces, the polling sweep: fsnotify only tells us something changed
// under base, not that a heartbeat went stale, so callers still run
// FindStale on every signal.
type Watcher struct {
	w      *fsnotify.Watcher
	Events <-chan struct{}
}

// Watch starts watching base (and any worktree directories already
// present under it) for heartbeat file writes. The returned Watcher must
// be closed by the caller. base not existing yet is not an error — the
// scheduler's polling ticker still covers recovery until it appears.
func Watch(base string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					close(out)
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case _, ok := <-fw.Errors:
				if !ok {
					close(out)
					return
				}
			}
		}
	}()

	_ = fw.Add(base)
	if entries, err := os.ReadDir(base); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				_ = fw.Add(filepath.Join(base, e.Name()))
			}
		}
	}

	return &Watcher{w: fw, Events: out}, nil
}

// AddWorktree starts watching a newly created worktree directory. Safe to
// call even when the underlying watcher has already been closed; errors
// are not fatal since the polling sweep still covers this worktree.
func (w *Watcher) AddWorktree(path string) {
	if w == nil {
		return
	}
	_ = w.w.Add(path)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	return w.w.Close()
}
