// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/inkdeck/inkdeck/internal/config"
	"github.com/inkdeck/inkdeck/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output.
	verbose bool
	// cfgFile allows specifying a custom config file.
	cfgFile string
)

// newRootCommand builds the full command tree around one App.
func newRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "inkdeck",
		Short: "Run scripts from your documents",
		Long: TitleStyle.Render("inkdeck") + SubtitleStyle.Render(" - script execution for document nodes") + `

inkdeck executes python, shell, and powershell scripts attached to
document nodes. Python scripts run inside managed virtual environments
that are provisioned on demand; every run is recorded with its full
output, and live runs can be cancelled.

` + SubtitleStyle.Render("Examples:") + `
  inkdeck detect                     List Python interpreters on this host
  inkdeck env create --name data     Create a managed environment
  inkdeck run --lang python --node doc-1 --code 'print("hi")'
  inkdeck runs doc-1                 Show run history for a node
  inkdeck cancel <run-id>            Cancel a live run`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogging(cmd.Context(), app)
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/inkdeck/config.cue)")

	rootCmd.AddCommand(newEnvCommand(app))
	rootCmd.AddCommand(newDetectCommand(app))
	rootCmd.AddCommand(newRunCommand(app))
	rootCmd.AddCommand(newRunsCommand(app))
	rootCmd.AddCommand(newLogsCommand(app))
	rootCmd.AddCommand(newCancelCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute builds the command tree and runs it. This is called by
// main.main().
func Execute() {
	app := NewApp()
	defer app.Close()

	if err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// initLogging installs the process-wide slog handler. Internal packages
// log through slog; the charm handler renders those records for the
// terminal. Config load failures fall back to defaults with a warning:
// logging must come up even when the config file is broken.
func initLogging(ctx context.Context, app *App) {
	level := charmlog.InfoLevel

	cfg, _, err := app.Config(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
	} else {
		switch cfg.LogLevel {
		case config.LogLevelDebug:
			level = charmlog.DebugLevel
		case config.LogLevelWarn:
			level = charmlog.WarnLevel
		case config.LogLevelError:
			level = charmlog.ErrorLevel
		}
	}
	if verbose {
		level = charmlog.DebugLevel
	}

	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:           level,
		ReportTimestamp: false,
	})
	slog.SetDefault(slog.New(handler))
}

// formatErrorForDisplay formats an error for user display. ActionableError
// values render with their suggestions; verbose mode shows the cause chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
