// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/inkdeck/inkdeck/internal/config"
)

// newConfigCommand creates the `inkdeck config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage inkdeck configuration",
		Long: `Manage inkdeck configuration.

Configuration is stored in:
  - Linux: ~/.config/inkdeck/config.cue
  - macOS: ~/Library/Application Support/inkdeck/config.cue
  - Windows: %APPDATA%\inkdeck\config.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := app.Config(cmd.Context())
			if err != nil {
				return err
			}

			keyStyle := IDStyle
			valueStyle := SuccessStyle

			fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
			fmt.Fprintln(app.stdout)
			if path != "" {
				fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("Config file"), path)
			} else {
				fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
			}
			fmt.Fprintln(app.stdout)

			fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("data_dir"), valueStyle.Render(cfg.DataDir))
			fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("environments_dir"), valueStyle.Render(cfg.EnvironmentsDir))
			fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("database_path"), valueStyle.Render(cfg.DatabasePath))
			shell := cfg.DefaultShell
			if shell == "" {
				shell = "(from $SHELL)"
			}
			fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("default_shell"), valueStyle.Render(shell))
			fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("log_level"), valueStyle.Render(string(cfg.LogLevel)))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt))
			return nil
		},
	})

	return cfgCmd
}
