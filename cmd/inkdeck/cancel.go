// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inkdeck/inkdeck/internal/launcher"
)

// newCancelCommand creates the `inkdeck cancel` command.
func newCancelCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a live run",
		Long: `Cancel a live run.

The run's process is killed and the run finalizes with the cancelled
status. Runs that already finished cannot be cancelled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Service(cmd.Context())
			if err != nil {
				return err
			}

			err = svc.CancelRun(args[0])
			if errors.Is(err, launcher.ErrRunNotRunning) {
				return fmt.Errorf("run %s is not running", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s\n", WarningStyle.Render("Cancelled"), IDStyle.Render(args[0]))
			return nil
		},
	}
}
