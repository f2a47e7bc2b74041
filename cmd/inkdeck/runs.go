// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newRunsCommand creates the `inkdeck runs` command.
func newRunsCommand(app *App) *cobra.Command {
	var limit int

	runsCmd := &cobra.Command{
		Use:   "runs <node-id>",
		Short: "Show run history for a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Service(cmd.Context())
			if err != nil {
				return err
			}

			runs, err := svc.GetRunsForNode(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("No runs recorded."))
				return nil
			}

			fmt.Fprintln(app.stdout, TitleStyle.Render("Runs for ")+IDStyle.Render(args[0]))
			for _, run := range runs {
				duration := ""
				if run.DurationMS != nil {
					duration = fmt.Sprintf("%dms", *run.DurationMS)
				}
				fmt.Fprintf(app.stdout, "%s  %s  %s  %s\n",
					IDStyle.Render(run.ID),
					statusStyle(string(run.Status)).Render(fmt.Sprintf("%-9s", run.Status)),
					run.StartedAt.Local().Format(time.DateTime),
					SubtitleStyle.Render(duration))
			}
			return nil
		},
	}

	runsCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show (0 = all)")

	return runsCmd
}
