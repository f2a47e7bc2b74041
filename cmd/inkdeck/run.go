// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkdeck/inkdeck/internal/binding"
	"github.com/inkdeck/inkdeck/internal/exec"
	"github.com/inkdeck/inkdeck/internal/ledger"
	"github.com/inkdeck/inkdeck/internal/script"
)

// newRunCommand creates the `inkdeck run` command.
func newRunCommand(app *App) *cobra.Command {
	var (
		lang          string
		nodeID        string
		code          string
		file          string
		console       string
		pythonVersion string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a script and tail its output",
		Long: `Execute a script and tail its output.

The script comes from --code or --file. Python scripts resolve their
environment through the node's binding, provisioning a managed virtual
environment on first use. Output is streamed line by line until the run
reaches a terminal status; pressing Ctrl-C cancels the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Service(cmd.Context())
			if err != nil {
				return err
			}

			source, err := scriptSource(code, file)
			if err != nil {
				return err
			}

			// Print every log line as it is appended. Delivery is
			// synchronous and ordered, and this process owns exactly one
			// run, so no filtering is needed.
			logSub := svc.SubscribeLogs(func(ev ledger.LogEvent) {
				printLogEntry(app, ev.Entry)
			})
			defer logSub.Cancel()

			statusCh := make(chan ledger.StatusEvent, 4)
			statusSub := svc.SubscribeStatus(func(ev ledger.StatusEvent) {
				select {
				case statusCh <- ev:
				default:
				}
			})
			defer statusSub.Cancel()

			run, err := svc.RunScript(cmd.Context(), exec.RunOptions{
				NodeID:   nodeID,
				Language: script.Language(lang),
				Source:   source,
				Console:  script.ConsoleMode(console),
				Defaults: binding.Defaults{PythonVersion: pythonVersion},
			})
			if err != nil {
				return err
			}

			final := run
			if !run.Status.Terminal() {
				fmt.Fprintf(app.stderr, "%s %s\n", SubtitleStyle.Render("run"), IDStyle.Render(run.ID))
				final, err = awaitRun(cmd, app, svc, run.ID, statusCh)
				if err != nil {
					return err
				}
			}

			return renderOutcome(app, final)
		},
	}

	runCmd.Flags().StringVar(&lang, "lang", "", "script language: python, shell, or powershell")
	runCmd.Flags().StringVar(&nodeID, "node", "", "document node the script belongs to")
	runCmd.Flags().StringVar(&code, "code", "", "script source text")
	runCmd.Flags().StringVar(&file, "file", "", "read script source from a file")
	runCmd.Flags().StringVar(&console, "console", "", "console mode: captured, terminal, or hidden")
	runCmd.Flags().StringVar(&pythonVersion, "python-version", "", "preferred python version prefix, e.g. 3.11")
	_ = runCmd.MarkFlagRequired("lang")
	_ = runCmd.MarkFlagRequired("node")

	return runCmd
}

// scriptSource resolves the script text from the --code/--file pair.
func scriptSource(code, file string) (string, error) {
	switch {
	case code != "" && file != "":
		return "", fmt.Errorf("--code and --file are mutually exclusive")
	case code != "":
		return code, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("one of --code or --file is required")
	}
}

// awaitRun blocks until runID finalizes. A canceled command context (for
// example Ctrl-C) cancels the run and keeps waiting for the cancelled
// status to come through.
func awaitRun(cmd *cobra.Command, app *App, svc *exec.Service, runID string, statusCh <-chan ledger.StatusEvent) (*ledger.Run, error) {
	// Lookups may run after the command context is canceled, so they use
	// their own context.
	lookup := func() (*ledger.Run, error) {
		return svc.GetRun(context.Background(), runID)
	}

	interrupt := cmd.Context().Done()
	var deadline <-chan time.Time

	for {
		select {
		case ev := <-statusCh:
			if ev.RunID != runID {
				continue
			}
			return lookup()
		case <-interrupt:
			fmt.Fprintln(app.stderr, WarningStyle.Render("Cancelling..."))
			if err := svc.CancelRun(runID); err != nil {
				return lookup()
			}
			// The kill is delivered; wait (bounded) for finalization.
			interrupt = nil
			deadline = time.After(10 * time.Second)
		case <-deadline:
			return lookup()
		}
	}
}

// printLogEntry renders one captured line: stdout lines plain, stderr and
// failure narration in the error style.
func printLogEntry(app *App, entry ledger.LogEntry) {
	if entry.Level == ledger.LevelError {
		fmt.Fprintln(app.stderr, ErrorStyle.Render(entry.Message))
		return
	}
	fmt.Fprintln(app.stdout, entry.Message)
}

// renderOutcome prints the terminal status line and maps failures to the
// process exit code.
func renderOutcome(app *App, run *ledger.Run) error {
	style := statusStyle(string(run.Status))
	suffix := ""
	if run.DurationMS != nil {
		suffix = SubtitleStyle.Render(fmt.Sprintf(" (%dms)", *run.DurationMS))
	}
	fmt.Fprintf(app.stderr, "%s%s\n", style.Render(string(run.Status)), suffix)

	switch run.Status {
	case ledger.StatusFailed:
		code := 1
		if run.ExitCode != nil && *run.ExitCode != 0 {
			code = *run.ExitCode
		}
		return &ExitError{Code: code}
	case ledger.StatusCancelled:
		return &ExitError{Code: 130}
	default:
		return nil
	}
}
