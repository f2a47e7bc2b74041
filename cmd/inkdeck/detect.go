// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDetectCommand creates the `inkdeck detect` command.
func newDetectCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "List Python interpreters on this host",
		Long: `List Python interpreters on this host.

Interpreters are discovered from the search path (and the py launcher on
Windows), validated, and listed newest first. The default entry is used
when creating environments without an explicit base interpreter.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Service(cmd.Context())
			if err != nil {
				return err
			}

			interpreters := svc.DetectInterpreters(cmd.Context())
			if len(interpreters) == 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("No Python interpreters found."))
				return nil
			}

			fmt.Fprintln(app.stdout, TitleStyle.Render("Python interpreters"))
			for _, in := range interpreters {
				marker := "  "
				if in.Default {
					marker = SuccessStyle.Render("* ")
				}
				fmt.Fprintf(app.stdout, "%s%s  %s\n",
					marker, SuccessStyle.Render(in.Version), SubtitleStyle.Render(in.Path))
			}
			return nil
		},
	}
}
