// Package cli wires the execution core into a cobra command tree: run
// starts a project's cooperative loop, status reports or watches it.
//
// Grounded in the teacher's internal/cli package (App holding the root
// cobra.Command plus lazily-initialized config/version state, New/
// SetVersion/Execute as the cmd/choo entrypoint contract).
package cli

import (
	"github.com/spf13/cobra"
)

// App is the CLI application: a cobra root command plus the flags every
// subcommand reads to wire a runtime.Project.
type App struct {
	rootCmd *cobra.Command

	repoPath     string
	dbPath       string
	archiveDir   string
	worktreeBase string
	eventLog     string
	metricsAddr  string
	verbose      bool

	version string
	commit  string
	date    string
}

// New creates the CLI application and registers its subcommands.
func New() *App {
	app := &App{}
	app.setupRootCmd()
	app.rootCmd.AddCommand(newRunCmd(app))
	app.rootCmd.AddCommand(newStatusCmd(app))
	app.rootCmd.AddCommand(NewVersionCmd(app))
	return app
}

// Execute runs the CLI application.
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string reported by the version command.
func (a *App) SetVersion(version, commit, date string) {
	a.version = version
	a.commit = commit
	a.date = date
}

func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:           "opensprint",
		Short:         "Parallel task execution orchestrator",
		Long:          "opensprint admits ready tasks into isolated git worktrees, runs a coding agent in each, and merges successful attempts onto main one at a time.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := a.rootCmd.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&a.repoPath, "repo", ".", "path to the git repository being orchestrated")
	flags.StringVar(&a.dbPath, "db", ".opensprint.db", "path to the built-in SQLite task store")
	flags.StringVar(&a.archiveDir, "archive-dir", ".opensprint-archive", "directory the Session Archive writes into")
	flags.StringVar(&a.worktreeBase, "worktree-base", "", "directory task worktrees are checked out under (default: a temp dir)")
	flags.StringVar(&a.eventLog, "event-log", "", "path to an append-only JSON-lines event log (default: disabled)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on (default: disabled)")
}
