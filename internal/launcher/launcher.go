// SPDX-License-Identifier: MPL-2.0

// Package launcher spawns one OS process per run, wires its output into the
// run ledger, and finalizes the run exactly once when the process ends.
//
// Launch returns as soon as the run is accepted: pre-flight failures come
// back as already-failed runs, and a started process is observed through
// the ledger's event feeds or by polling. The only way to intervene in a
// live run is Cancel, which kills the process and finalizes the run as
// cancelled.
package launcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/inkdeck/inkdeck/internal/command"
	"github.com/inkdeck/inkdeck/internal/envstore"
	"github.com/inkdeck/inkdeck/internal/ledger"
	"github.com/inkdeck/inkdeck/internal/platform"
	"github.com/inkdeck/inkdeck/internal/script"
)

type (
	// Options describes one launch request.
	Options struct {
		// NodeID is the document the script belongs to.
		NodeID string
		// Language selects the interpreter family.
		Language script.Language
		// Source is the script text; it is materialized into a temp file.
		Source string
		// Console selects how output is surfaced. Zero value means
		// ConsoleCaptured.
		Console script.ConsoleMode
		// Env is the resolved environment for python runs; nil for
		// shell/powershell runs against ambient interpreters.
		Env *envstore.Environment
	}

	// Launcher spawns and tracks script processes.
	Launcher struct {
		ledger   *ledger.Ledger
		registry *Registry

		// defaultShell, when set, overrides $SHELL for shell scripts.
		defaultShell string

		// goos and environ are swappable for tests.
		goos    string
		environ func() []string
	}
)

// New creates a launcher writing through the given ledger.
func New(led *ledger.Ledger) *Launcher {
	return &Launcher{
		ledger:   led,
		registry: NewRegistry(),
		goos:     platform.Current(),
		environ:  os.Environ,
	}
}

// SetDefaultShell overrides $SHELL for shell scripts. An empty value
// restores environment-based resolution.
func (l *Launcher) SetDefaultShell(shell string) {
	l.defaultShell = shell
}

// Registry exposes the live-run registry (for Cancel and liveness checks).
func (l *Launcher) Registry() *Registry {
	return l.registry
}

// Cancel kills the live process of runID; the run finalizes as cancelled
// once the process exits. Returns ErrRunNotRunning for unknown or already
// finished runs.
func (l *Launcher) Cancel(runID string) error {
	return l.registry.Cancel(runID)
}

// Launch accepts a run, performs pre-flight validation, and starts the
// process. The returned run is in the running state when a process was
// started, or already failed when pre-flight validation rejected the
// request. An error is returned only for malformed requests that were
// never accepted as runs.
func (l *Launcher) Launch(ctx context.Context, opts Options) (*ledger.Run, error) {
	if err := opts.Language.Validate(); err != nil {
		return nil, err
	}
	console := opts.Console
	if console == "" {
		console = script.ConsoleCaptured
	}
	if err := console.Validate(); err != nil {
		return nil, err
	}

	envID := ""
	if opts.Env != nil {
		envID = opts.Env.ID
	}
	run, err := l.ledger.StartRun(ctx, opts.NodeID, envID)
	if err != nil {
		return nil, err
	}

	// Everything from here on is recorded into the run, never returned.
	if console == script.ConsoleTerminal && l.goos != platform.Windows {
		return l.reject(ctx, run, "terminal console mode is only supported on Windows")
	}
	if err := script.CheckShellSyntax(opts.Language, opts.Source); err != nil {
		return l.reject(ctx, run, err.Error())
	}

	tempDir, scriptPath, err := materialize(opts.Language, opts.Source)
	if err != nil {
		return l.reject(ctx, run, fmt.Sprintf("failed to materialize script: %v", err))
	}

	environ := l.environ()
	shell := l.defaultShell
	if shell == "" {
		shell = userShell(environ)
	}
	resolverOpts := command.Options{UserShell: shell}
	interpreterDir := ""
	var overlay map[string]string
	workDir := tempDir
	if opts.Env != nil {
		resolverOpts.PythonPath = opts.Env.PythonPath
		// Shell runs may carry an environment for its env vars alone;
		// only a real interpreter path contributes a PATH entry.
		if opts.Env.PythonPath != "" {
			interpreterDir = filepath.Dir(opts.Env.PythonPath)
		}
		overlay = opts.Env.EnvVars
		if opts.Env.WorkingDir != "" {
			workDir = opts.Env.WorkingDir
		}
	}

	inv, err := command.Resolve(opts.Language, scriptPath, l.goos, resolverOpts)
	if err != nil {
		cleanupTemp(tempDir)
		return l.reject(ctx, run, err.Error())
	}

	cmd := l.buildCmd(inv, console)
	cmd.Dir = workDir
	cmd.Env = buildEnv(environ, interpreterDir, overlay)

	var scanners sync.WaitGroup
	if console.Captures() {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			cleanupTemp(tempDir)
			return l.reject(ctx, run, fmt.Sprintf("failed to open stdout pipe: %v", err))
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			cleanupTemp(tempDir)
			return l.reject(ctx, run, fmt.Sprintf("failed to open stderr pipe: %v", err))
		}
		scanners.Add(2)
		go l.scanStream(run.ID, stdout, ledger.LevelInfo, &scanners)
		go l.scanStream(run.ID, stderr, ledger.LevelError, &scanners)
	}

	if err := cmd.Start(); err != nil {
		cleanupTemp(tempDir)
		return l.reject(ctx, run, fmt.Sprintf("failed to start process: %v", err))
	}

	l.registry.add(run.ID, cmd)
	go l.await(run.ID, cmd, &scanners, tempDir)

	return run, nil
}

// reject finalizes a just-accepted run as failed before any process was
// spawned, narrating the reason into its log.
func (l *Launcher) reject(ctx context.Context, run *ledger.Run, reason string) (*ledger.Run, error) {
	if err := l.ledger.Append(ctx, run.ID, ledger.LevelError, reason); err != nil {
		slog.Warn("failed to append rejection log", "run", run.ID, "error", err)
	}
	if _, err := l.ledger.Finalize(ctx, run.ID, ledger.StatusFailed, nil, reason); err != nil {
		slog.Warn("failed to finalize rejected run", "run", run.ID, "error", err)
	}
	final, err := l.ledger.Run(ctx, run.ID)
	if err != nil {
		return run, nil //nolint:nilerr // the accepted run is still the result
	}
	return final, nil
}

// buildCmd wraps the invocation for the requested console mode. Terminal
// mode opens a visible console window via the Windows shell; its stdio is
// not captured and completion is inferred from the wrapper's exit alone.
func (l *Launcher) buildCmd(inv command.Invocation, console script.ConsoleMode) *exec.Cmd {
	if console == script.ConsoleTerminal {
		args := append([]string{"/c", "start", "/wait", inv.Path}, inv.Args...)
		return exec.Command("cmd", args...)
	}
	return exec.Command(inv.Path, inv.Args...)
}

// scanStream appends one log entry per non-empty output line.
func (l *Launcher) scanStream(runID string, r io.Reader, level ledger.LogLevel, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := l.ledger.Append(context.Background(), runID, level, line); err != nil {
			slog.Warn("failed to append output line", "run", runID, "error", err)
		}
	}
}

// await joins the output scanners, waits for the process, and finalizes the
// run exactly once. The scanner join is what guarantees every log entry is
// appended before the terminal status event.
func (l *Launcher) await(runID string, cmd *exec.Cmd, scanners *sync.WaitGroup, tempDir string) {
	scanners.Wait()
	waitErr := cmd.Wait()

	ctx := context.Background()
	l.registry.finalize(runID, func(cancelled bool) {
		switch {
		case cancelled:
			reason := "run cancelled by user"
			if err := l.ledger.Append(ctx, runID, ledger.LevelError, reason); err != nil {
				slog.Warn("failed to append cancel log", "run", runID, "error", err)
			}
			code := exitCode(cmd, waitErr)
			if _, err := l.ledger.Finalize(ctx, runID, ledger.StatusCancelled, code, reason); err != nil {
				slog.Warn("failed to finalize cancelled run", "run", runID, "error", err)
			}

		case waitErr == nil:
			code := 0
			if _, err := l.ledger.Finalize(ctx, runID, ledger.StatusSucceeded, &code, ""); err != nil {
				slog.Warn("failed to finalize run", "run", runID, "error", err)
			}

		default:
			code := exitCode(cmd, waitErr)
			reason := fmt.Sprintf("process failed: %v", waitErr)
			if code != nil {
				reason = fmt.Sprintf("process exited with code %d", *code)
			}
			if err := l.ledger.Append(ctx, runID, ledger.LevelError, reason); err != nil {
				slog.Warn("failed to append exit log", "run", runID, "error", err)
			}
			if _, err := l.ledger.Finalize(ctx, runID, ledger.StatusFailed, code, reason); err != nil {
				slog.Warn("failed to finalize run", "run", runID, "error", err)
			}
		}
	})

	cleanupTemp(tempDir)
}

// exitCode extracts the process exit code when one exists.
func exitCode(cmd *exec.Cmd, waitErr error) *int {
	if cmd.ProcessState == nil {
		return nil
	}
	code := cmd.ProcessState.ExitCode()
	if code < 0 && waitErr != nil {
		// Killed by signal; there is no meaningful exit code.
		return nil
	}
	return &code
}

// materialize writes the script source into a fresh temp directory and
// returns both paths.
func materialize(lang script.Language, source string) (tempDir, scriptPath string, err error) {
	tempDir, err = os.MkdirTemp("", "inkdeck-run-")
	if err != nil {
		return "", "", err
	}
	scriptPath = filepath.Join(tempDir, "script."+lang.FileExt())
	if err := os.WriteFile(scriptPath, []byte(source), 0o700); err != nil {
		cleanupTemp(tempDir)
		return "", "", err
	}
	return tempDir, scriptPath, nil
}

// cleanupTemp removes the run's temp directory. Failures are logged only;
// they never surface to the caller or block finalization.
func cleanupTemp(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to remove run temp directory", "dir", dir, "error", err)
	}
}
