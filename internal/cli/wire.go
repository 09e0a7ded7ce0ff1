package cli

import (
	"fmt"
	"path/filepath"

	"github.com/opensprint/core/internal/agentrunner"
	"github.com/opensprint/core/internal/collab"
	"github.com/opensprint/core/internal/config"
	"github.com/opensprint/core/internal/escalate"
	"github.com/opensprint/core/internal/gitops"
	"github.com/opensprint/core/internal/notify"
	"github.com/opensprint/core/internal/runtime"
	"github.com/opensprint/core/internal/taskstore"
)

// wired bundles a runtime.Project with the collaborators it owns, so the
// caller can close them on shutdown.
type wired struct {
	project *runtime.Project
	store   *taskstore.Store
}

// wireProject loads a project's .opensprint.yaml, opens its SQLite
// TaskStore, and assembles a runtime.Project over the agentrunner/notify
// ambient collaborators.
func wireProject(a *App) (*wired, error) {
	f, err := config.Load(filepath.Join(a.repoPath, config.FileName))
	if err != nil {
		return nil, fmt.Errorf("cli: load config: %w", err)
	}
	if f.RepoPath == "" {
		f.RepoPath = a.repoPath
	}
	project := config.ToProject(projectID(a.repoPath), f)

	store, err := taskstore.Open(a.dbPath)
	if err != nil {
		return nil, fmt.Errorf("cli: open task store: %w", err)
	}

	notifier, err := notify.FromConfig(escalate.Config{Backends: []string{"terminal"}})
	if err != nil {
		store.CloseDB()
		return nil, fmt.Errorf("cli: wire notifier: %w", err)
	}

	deps := runtime.Deps{
		TaskStore:    store,
		AgentRunner:  func() collab.AgentRunner { return agentrunner.New() },
		MergerAgent:  &agentrunner.MergerRunner{},
		Notify:       notifier,
		Linker:       gitops.NoopDependencyLinker{},
		ArchiveDir:   a.archiveDir,
		WorktreeBase: a.worktreeBase,
		EventLog:     a.eventLog,
	}

	p, err := runtime.New(project, deps)
	if err != nil {
		store.CloseDB()
		return nil, fmt.Errorf("cli: wire runtime: %w", err)
	}

	return &wired{project: p, store: store}, nil
}

func (w *wired) Close() {
	w.store.CloseDB()
}

// projectID derives a stable project identifier from its repository path.
func projectID(repoPath string) string {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return filepath.Base(repoPath)
	}
	return filepath.Base(abs)
}
