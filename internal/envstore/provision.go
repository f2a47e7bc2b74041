// SPDX-License-Identifier: MPL-2.0

package envstore

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/inkdeck/inkdeck/internal/issue"
	"github.com/inkdeck/inkdeck/internal/platform"
)

var versionRe = regexp.MustCompile(`Python\s+(\d+(?:\.\d+)*)`)

type (
	// RunFunc runs an executable to completion and returns its combined
	// output. Provisioning subprocesses block the calling goroutine.
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// provisioner materializes managed venvs and installs packages into
	// them using blocking subprocesses of the base interpreter.
	provisioner struct {
		run  RunFunc
		goos string
	}

	materializedEnv struct {
		pythonPath string
		version    string
	}
)

func newProvisioner() *provisioner {
	return &provisioner{
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		goos: platform.Current(),
	}
}

// materialize creates <root>/<id> as a venv of basePython, verifies the
// produced interpreter, and installs packages into it. On any failure the
// partially built tree is removed and an error carrying the subprocess
// output is returned.
func (p *provisioner) materialize(ctx context.Context, root, id, basePython string, packages []PackageSpec) (*materializedEnv, error) {
	dir := envDir(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, issue.NewContext().
			WithOperation("create environment directory").
			WithResource(dir).
			Wrap(err).
			Build()
	}

	fail := func(err error) (*materializedEnv, error) {
		// Cleanup is best effort; the create error is the one that matters.
		_ = os.RemoveAll(dir)
		return nil, err
	}

	if out, err := p.run(ctx, basePython, "-m", "venv", dir); err != nil {
		return fail(issue.NewContext().
			WithOperation("create virtual environment").
			WithResource(dir).
			WithSuggestion("Check that the interpreter ships the venv module").
			Wrap(fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))).
			Build())
	}

	pythonPath := platform.VenvPython(dir, p.goos)
	if err := verifyExecutable(pythonPath, p.goos); err != nil {
		return fail(issue.NewContext().
			WithOperation("verify environment interpreter").
			WithResource(pythonPath).
			Wrap(err).
			Build())
	}

	version, err := p.probeVersion(ctx, pythonPath)
	if err != nil {
		return fail(err)
	}

	if len(packages) > 0 {
		if err := p.installPackages(ctx, pythonPath, packages); err != nil {
			return fail(err)
		}
	}

	return &materializedEnv{pythonPath: pythonPath, version: version}, nil
}

// installPackages runs pip inside the environment with the pinned specs.
func (p *provisioner) installPackages(ctx context.Context, pythonPath string, packages []PackageSpec) error {
	args := append([]string{"-m", "pip", "install", "--no-input"}, PinSpecs(packages)...)
	if out, err := p.run(ctx, pythonPath, args...); err != nil {
		return issue.NewContext().
			WithOperation("install packages").
			WithResource(pythonPath).
			WithSuggestion("Check the package names and version constraints").
			Wrap(fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))).
			Build()
	}
	return nil
}

// probeVersion asks the interpreter for its version string.
func (p *provisioner) probeVersion(ctx context.Context, pythonPath string) (string, error) {
	out, err := p.run(ctx, pythonPath, "--version")
	if err != nil {
		return "", issue.NewContext().
			WithOperation("query interpreter version").
			WithResource(pythonPath).
			Wrap(fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))).
			Build()
	}
	m := versionRe.FindSubmatch(out)
	if m == nil {
		return "", issue.NewContext().
			WithOperation("query interpreter version").
			WithResource(pythonPath).
			Wrap(fmt.Errorf("unrecognized version output %q", strings.TrimSpace(string(out)))).
			Build()
	}
	return string(m[1]), nil
}

// verifyExecutable checks the produced interpreter exists and is runnable.
func verifyExecutable(path, goos string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("interpreter missing after venv creation: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("interpreter path %s is a directory", path)
	}
	if goos != platform.Windows && info.Mode()&0o111 == 0 {
		return fmt.Errorf("interpreter %s is not executable", path)
	}
	return nil
}

func envDir(root, id string) string {
	return filepath.Join(root, id)
}
