package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/opensprint/core/internal/cli/tui"
)

func newStatusCmd(a *App) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report or watch a project's scheduler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wireProject(a)
			if err != nil {
				return err
			}
			defer w.Close()

			if !watch {
				st := w.project.Scheduler().Status()
				fmt.Fprintf(cmd.OutOrStdout(), "active: %d  queued: %d  done: %d  failed: %d\n",
					st.Active, st.QueueDepth, st.TotalDone, st.TotalFailed)
				return nil
			}

			return watchStatus(cmd, a, w)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "open a live dashboard fed by the Event Log's live event fan-out")
	return cmd
}

// watchStatus runs the project's cooperative loop in the background and
// renders its Event Log as a live bubbletea dashboard until the user quits.
func watchStatus(cmd *cobra.Command, a *App, w *wired) error {
	model := tui.NewModel(projectID(a.repoPath))
	program := tea.NewProgram(model)

	bridge := tui.NewBridge(program)
	unsubscribe := w.project.Bus().Subscribe(bridge.Handler())
	defer unsubscribe()

	ctx := cmd.Context()
	go w.project.Run(ctx)

	_, err := program.Run()
	return err
}
