// SPDX-License-Identifier: MPL-2.0

package exec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkdeck/inkdeck/internal/binding"
	"github.com/inkdeck/inkdeck/internal/envstore"
	"github.com/inkdeck/inkdeck/internal/interpreter"
	"github.com/inkdeck/inkdeck/internal/ledger"
	"github.com/inkdeck/inkdeck/internal/script"
	"github.com/inkdeck/inkdeck/internal/store"
	"github.com/inkdeck/inkdeck/internal/testutil"
)

// fakeProvisioner answers the python subprocesses with a venv layout that
// defers actual execution to /bin/sh, so python runs work end to end
// without a real interpreter.
func fakeProvisioner(t *testing.T) envstore.RunFunc {
	t.Helper()
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		if len(args) >= 1 && args[0] == "--version" {
			return []byte("Python 3.11.4"), nil
		}
		if len(args) >= 3 && args[0] == "-m" && args[1] == "venv" {
			binDir := filepath.Join(args[2], "bin")
			if err := os.MkdirAll(binDir, 0o755); err != nil {
				return nil, err
			}
			// The fake interpreter runs its script argument as shell,
			// ignoring python flags.
			fake := "#!/bin/sh\nfor a in \"$@\"; do last=$a; done\nexec sh \"$last\"\n"
			return nil, os.WriteFile(filepath.Join(binDir, "python"), []byte(fake), 0o755)
		}
		if len(args) >= 2 && args[0] == "-m" && args[1] == "pip" {
			return []byte("ok"), nil
		}
		return nil, errors.New("unexpected invocation")
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	testutil.RequirePosix(t)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := New(st, t.TempDir())
	svc.Environments().SetRunner(fakeProvisioner(t))
	svc.SetDetector(fakeDetector(t, "3.11.4"))
	return svc
}

// fakeDetector reports exactly one interpreter at the given version,
// backed by a stub executable so the path scan finds it.
func fakeDetector(t *testing.T, version string) *interpreter.Detector {
	t.Helper()
	dir := t.TempDir()
	stub := filepath.Join(dir, "python3")
	require.NoError(t, os.WriteFile(stub, []byte("#!/bin/sh\n"), 0o755))

	return &interpreter.Detector{
		Environ: func() []string { return []string{"PATH=" + dir} },
		RunOutput: func(_ context.Context, name string, args ...string) ([]byte, error) {
			if len(args) == 1 && args[0] == "--version" {
				return []byte("Python " + version), nil
			}
			return nil, errors.New("unexpected invocation")
		},
	}
}

func awaitTerminal(t *testing.T, svc *Service, runID string) *ledger.Run {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		run, err := svc.GetRun(context.Background(), runID)
		require.NoError(t, err)
		if run.Status.Terminal() {
			return run
		}
		select {
		case <-deadline:
			t.Fatalf("run %s did not finalize", runID)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestRunScript_ShellEndToEnd(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	run, err := svc.RunScript(ctx, RunOptions{
		NodeID:   "doc-1",
		Language: script.LanguageShell,
		Source:   "echo hi from shell",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRunning, run.Status)

	final := awaitTerminal(t, svc, run.ID)
	assert.Equal(t, ledger.StatusSucceeded, final.Status)

	// The binding records the most recent run.
	s, err := svc.GetNodeSettings(ctx, "doc-1", script.LanguageShell)
	require.NoError(t, err)
	assert.Equal(t, run.ID, s.LastRunID)
}

func TestRunScript_PythonProvisionsEnvironment(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	run, err := svc.RunScript(ctx, RunOptions{
		NodeID:   "doc-1",
		Language: script.LanguagePython,
		Source:   "echo pretend python",
		Defaults: binding.Defaults{PythonVersion: "3.11"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, run.EnvID, "python runs must carry their environment")

	final := awaitTerminal(t, svc, run.ID)
	assert.Equal(t, ledger.StatusSucceeded, final.Status)

	env, err := svc.GetEnvironment(ctx, run.EnvID)
	require.NoError(t, err)
	assert.True(t, env.Managed)
	assert.Equal(t, "3.11.4", env.PythonVersion)

	// A second run reuses the pinned environment instead of creating
	// another one.
	run2, err := svc.RunScript(ctx, RunOptions{
		NodeID:   "doc-1",
		Language: script.LanguagePython,
		Source:   "echo again",
		Defaults: binding.Defaults{PythonVersion: "3.11"},
	})
	require.NoError(t, err)
	assert.Equal(t, run.EnvID, run2.EnvID)
	awaitTerminal(t, svc, run2.ID)

	envs, err := svc.ListEnvironments(ctx)
	require.NoError(t, err)
	assert.Len(t, envs, 1)
}

func TestRunScript_PythonWithoutInterpreters(t *testing.T) {
	svc := newTestService(t)

	// Discovery that finds nothing: empty search path, nothing answers.
	svc.SetDetector(&interpreter.Detector{
		Environ:   func() []string { return nil },
		RunOutput: func(context.Context, string, ...string) ([]byte, error) { return nil, errors.New("nope") },
	})

	_, err := svc.RunScript(context.Background(), RunOptions{
		NodeID:   "doc-1",
		Language: script.LanguagePython,
		Source:   "print(1)",
		Defaults: binding.Defaults{PythonVersion: "3.99"},
	})
	assert.ErrorIs(t, err, binding.ErrNoInterpreters)
}

func TestCancelRun_Unknown(t *testing.T) {
	svc := newTestService(t)
	err := svc.CancelRun("missing")
	assert.Error(t, err)
}

func TestRunScript_RunHistory(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run, err := svc.RunScript(ctx, RunOptions{
			NodeID:   "doc-1",
			Language: script.LanguageShell,
			Source:   "true",
		})
		require.NoError(t, err)
		awaitTerminal(t, svc, run.ID)
	}

	runs, err := svc.GetRunsForNode(ctx, "doc-1", 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
