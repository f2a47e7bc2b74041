// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkdeck/inkdeck/internal/ledger"
)

// newLogsCommand creates the `inkdeck logs` command.
func newLogsCommand(app *App) *cobra.Command {
	var timestamps bool

	logsCmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Show the recorded output of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Service(cmd.Context())
			if err != nil {
				return err
			}

			run, err := svc.GetRun(cmd.Context(), args[0])
			if errors.Is(err, ledger.ErrRunNotFound) {
				return fmt.Errorf("no run with id %s", args[0])
			}
			if err != nil {
				return err
			}

			entries, err := svc.GetRunLogs(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				prefix := ""
				if timestamps {
					prefix = SubtitleStyle.Render(entry.Timestamp.Local().Format(time.TimeOnly)) + " "
				}
				printLogEntryPrefixed(app, prefix, entry)
			}

			fmt.Fprintf(app.stderr, "%s\n", statusStyle(string(run.Status)).Render(string(run.Status)))
			return nil
		},
	}

	logsCmd.Flags().BoolVar(&timestamps, "timestamps", false, "prefix each line with its capture time")

	return logsCmd
}

func printLogEntryPrefixed(app *App, prefix string, entry ledger.LogEntry) {
	if entry.Level == ledger.LevelError {
		fmt.Fprintf(app.stderr, "%s%s\n", prefix, ErrorStyle.Render(entry.Message))
		return
	}
	fmt.Fprintf(app.stdout, "%s%s\n", prefix, entry.Message)
}
