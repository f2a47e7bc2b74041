// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkdeck/inkdeck/internal/envstore"
)

// newEnvCommand creates the `inkdeck env` command tree.
func newEnvCommand(app *App) *cobra.Command {
	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Manage Python environments",
		Long: `Manage Python environments.

Managed environments are virtual environments owned by inkdeck: created
from a base interpreter, packages installed through pip, and deleted
together with their directory tree. Unmanaged environments register an
existing interpreter without touching the filesystem.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	envCmd.AddCommand(newEnvListCommand(app))
	envCmd.AddCommand(newEnvCreateCommand(app))
	envCmd.AddCommand(newEnvUpdateCommand(app))
	envCmd.AddCommand(newEnvDeleteCommand(app))
	envCmd.AddCommand(newEnvExportCommand(app))
	envCmd.AddCommand(newEnvImportCommand(app))

	return envCmd
}

func newEnvListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered environments",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Service(cmd.Context())
			if err != nil {
				return err
			}
			envs, err := svc.ListEnvironments(cmd.Context())
			if err != nil {
				return err
			}
			if len(envs) == 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("No environments registered."))
				return nil
			}

			fmt.Fprintln(app.stdout, TitleStyle.Render("Environments"))
			for _, env := range envs {
				kind := "unmanaged"
				if env.Managed {
					kind = "managed"
				}
				fmt.Fprintf(app.stdout, "%s  %s  %s  %s\n",
					IDStyle.Render(env.ID),
					env.Name,
					SuccessStyle.Render("Python "+env.PythonVersion),
					SubtitleStyle.Render(kind))
				if len(env.Packages) > 0 {
					fmt.Fprintf(app.stdout, "    packages: %s\n", strings.Join(envstore.PinSpecs(env.Packages), ", "))
				}
			}
			return nil
		},
	}
}

func newEnvCreateCommand(app *App) *cobra.Command {
	var (
		name      string
		python    string
		packages  []string
		envVars   []string
		workDir   string
		unmanaged bool
	)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new environment",
		Long: `Create a new environment.

Without --python, the newest interpreter discovered on the host is used
as the base. With --unmanaged, the given interpreter is registered as-is
and no virtual environment is created.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Service(cmd.Context())
			if err != nil {
				return err
			}

			if python == "" {
				python = defaultInterpreter(cmd.Context(), app)
				if python == "" {
					return fmt.Errorf("no python interpreter found; pass one with --python")
				}
			}

			specs, err := parsePackageSpecs(packages)
			if err != nil {
				return err
			}
			vars, err := parseEnvVars(envVars)
			if err != nil {
				return err
			}

			env, err := svc.CreateEnvironment(cmd.Context(), envstore.CreateOptions{
				Name:       name,
				PythonPath: python,
				Packages:   specs,
				EnvVars:    vars,
				WorkingDir: workDir,
				Managed:    !unmanaged,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(app.stdout, "%s %s (%s, Python %s)\n",
				SuccessStyle.Render("Created"), env.Name, IDStyle.Render(env.ID), env.PythonVersion)
			return nil
		},
	}

	createCmd.Flags().StringVar(&name, "name", "", "environment name")
	createCmd.Flags().StringVar(&python, "python", "", "base interpreter path (default: newest discovered)")
	createCmd.Flags().StringArrayVar(&packages, "package", nil, "package to install, name or name==version (repeatable)")
	createCmd.Flags().StringArrayVar(&envVars, "env", nil, "environment variable KEY=VALUE (repeatable)")
	createCmd.Flags().StringVar(&workDir, "workdir", "", "working directory for runs")
	createCmd.Flags().BoolVar(&unmanaged, "unmanaged", false, "register an existing interpreter without creating a venv")
	_ = createCmd.MarkFlagRequired("name")

	return createCmd
}

func newEnvUpdateCommand(app *App) *cobra.Command {
	var (
		name        string
		packages    []string
		envVars     []string
		workDir     string
		description string
	)

	updateCmd := &cobra.Command{
		Use:   "update <env-id>",
		Short: "Update an environment",
		Long: `Update an environment.

Only the flags you pass change; everything else keeps its stored value.
Changing --package on a managed environment reinstalls the package set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Service(cmd.Context())
			if err != nil {
				return err
			}

			var opts envstore.UpdateOptions
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("package") {
				specs, err := parsePackageSpecs(packages)
				if err != nil {
					return err
				}
				opts.Packages = &specs
			}
			if cmd.Flags().Changed("env") {
				vars, err := parseEnvVars(envVars)
				if err != nil {
					return err
				}
				opts.EnvVars = &vars
			}
			if cmd.Flags().Changed("workdir") {
				opts.WorkingDir = &workDir
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}

			env, err := svc.UpdateEnvironment(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Updated"), IDStyle.Render(env.ID))
			return nil
		},
	}

	updateCmd.Flags().StringVar(&name, "name", "", "environment name")
	updateCmd.Flags().StringArrayVar(&packages, "package", nil, "replacement package set (repeatable)")
	updateCmd.Flags().StringArrayVar(&envVars, "env", nil, "replacement environment variables (repeatable)")
	updateCmd.Flags().StringVar(&workDir, "workdir", "", "working directory for runs")
	updateCmd.Flags().StringVar(&description, "description", "", "free-form description")

	return updateCmd
}

func newEnvDeleteCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <env-id>",
		Short: "Delete an environment",
		Long: `Delete an environment.

Managed environments lose their on-disk virtual environment as well.
Deleting an unknown id is not an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Service(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.DeleteEnvironment(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Deleted"), IDStyle.Render(args[0]))
			return nil
		},
	}
}

func newEnvExportCommand(app *App) *cobra.Command {
	var output string

	exportCmd := &cobra.Command{
		Use:   "export <env-id>",
		Short: "Export an environment manifest as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Service(cmd.Context())
			if err != nil {
				return err
			}
			data, err := svc.Environments().ExportManifest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output == "" {
				fmt.Fprint(app.stdout, string(data))
				return nil
			}
			return os.WriteFile(output, data, 0o644)
		},
		Args: cobra.ExactArgs(1),
	}

	exportCmd.Flags().StringVarP(&output, "output", "o", "", "write the manifest to a file instead of stdout")

	return exportCmd
}

func newEnvImportCommand(app *App) *cobra.Command {
	var python string

	importCmd := &cobra.Command{
		Use:   "import <manifest.toml>",
		Short: "Create a managed environment from a TOML manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Service(cmd.Context())
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			if python == "" {
				python = defaultInterpreter(cmd.Context(), app)
				if python == "" {
					return fmt.Errorf("no python interpreter found; pass one with --python")
				}
			}

			env, err := svc.Environments().ImportManifest(cmd.Context(), data, python)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s (%s, Python %s)\n",
				SuccessStyle.Render("Imported"), env.Name, IDStyle.Render(env.ID), env.PythonVersion)
			return nil
		},
	}

	importCmd.Flags().StringVar(&python, "python", "", "base interpreter path (default: newest discovered)")

	return importCmd
}

// defaultInterpreter returns the path of the default discovered
// interpreter, or empty when the host has none.
func defaultInterpreter(ctx context.Context, app *App) string {
	svc, err := app.Service(ctx)
	if err != nil {
		return ""
	}
	for _, in := range svc.DetectInterpreters(ctx) {
		if in.Default {
			return in.Path
		}
	}
	return ""
}

// parsePackageSpecs converts CLI package arguments ("name" or
// "name==version") into specs.
func parsePackageSpecs(args []string) ([]envstore.PackageSpec, error) {
	var specs []envstore.PackageSpec
	for _, arg := range args {
		name, version, _ := strings.Cut(arg, "==")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid package spec %q", arg)
		}
		specs = append(specs, envstore.PackageSpec{Name: name, Version: strings.TrimSpace(version)})
	}
	return specs, nil
}

// parseEnvVars converts KEY=VALUE arguments into a map.
func parseEnvVars(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid environment variable %q (want KEY=VALUE)", arg)
		}
		vars[key] = value
	}
	return vars, nil
}
