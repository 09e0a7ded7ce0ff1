package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newRunCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the project's cooperative scheduling loop",
		Long:  "run wires the task store, git toolkit, and agent runner for one project and blocks, admitting ready tasks and driving each through coding, review, and merge until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wireProject(a)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx, cancel := context.WithCancel(cmd.Context())

			handler := NewSignalHandler(cancel)
			handler.Start()
			defer handler.Stop()

			if a.metricsAddr != "" {
				go serveMetrics(ctx, a.metricsAddr)
			}

			w.project.Run(ctx)
			return nil
		},
	}
}
