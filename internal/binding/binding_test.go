// SPDX-License-Identifier: MPL-2.0

package binding

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkdeck/inkdeck/internal/envstore"
	"github.com/inkdeck/inkdeck/internal/interpreter"
	"github.com/inkdeck/inkdeck/internal/script"
	"github.com/inkdeck/inkdeck/internal/store"
	"github.com/inkdeck/inkdeck/internal/testutil"
)

// fakeRun answers the provisioning subprocesses with a venv layout and a
// fixed interpreter version.
func fakeRun(version string) envstore.RunFunc {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		if len(args) >= 1 && args[0] == "--version" {
			return []byte("Python " + version), nil
		}
		if len(args) >= 3 && args[0] == "-m" && args[1] == "venv" {
			binDir := filepath.Join(args[2], "bin")
			if err := os.MkdirAll(binDir, 0o755); err != nil {
				return nil, err
			}
			return nil, os.WriteFile(filepath.Join(binDir, "python"), []byte("#!/bin/sh\n"), 0o755)
		}
		if len(args) >= 2 && args[0] == "-m" && args[1] == "pip" {
			return []byte("ok"), nil
		}
		return nil, errors.New("unexpected invocation")
	}
}

func newTestManager(t *testing.T, pythonVersion string) (*Manager, *envstore.Store) {
	t.Helper()
	testutil.RequirePosix(t)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	envs := envstore.New(st, t.TempDir())
	envs.SetRunner(fakeRun(pythonVersion))
	return New(st, envs), envs
}

func TestSettings_DefaultWhenUnset(t *testing.T) {
	m, _ := newTestManager(t, "3.11.4")

	s, err := m.Settings(context.Background(), "node-1", script.LanguagePython)
	require.NoError(t, err)
	assert.True(t, s.AutoDetect)
	assert.Empty(t, s.EnvID)
	assert.Empty(t, s.LastRunID)
}

func TestSetSettings_Upsert(t *testing.T) {
	m, _ := newTestManager(t, "3.11.4")
	ctx := context.Background()

	require.NoError(t, m.SetSettings(ctx, "node-1", script.LanguagePython, "env-a", false))
	require.NoError(t, m.SetSettings(ctx, "node-1", script.LanguagePython, "env-b", true))

	s, err := m.Settings(ctx, "node-1", script.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, "env-b", s.EnvID, "second upsert replaces the first")
	assert.True(t, s.AutoDetect)
}

func TestSetSettings_PerLanguageIndependence(t *testing.T) {
	m, _ := newTestManager(t, "3.11.4")
	ctx := context.Background()

	require.NoError(t, m.SetSettings(ctx, "node-1", script.LanguagePython, "env-py", false))
	require.NoError(t, m.SetSettings(ctx, "node-1", script.LanguageShell, "", true))

	py, err := m.Settings(ctx, "node-1", script.LanguagePython)
	require.NoError(t, err)
	sh, err := m.Settings(ctx, "node-1", script.LanguageShell)
	require.NoError(t, err)

	assert.Equal(t, "env-py", py.EnvID)
	assert.Empty(t, sh.EnvID)
}

func TestRecordRun_PreservesEnvPreference(t *testing.T) {
	m, _ := newTestManager(t, "3.11.4")
	ctx := context.Background()

	require.NoError(t, m.SetSettings(ctx, "node-1", script.LanguagePython, "env-a", false))
	require.NoError(t, m.RecordRun(ctx, "node-1", script.LanguagePython, "run-1"))

	s, err := m.Settings(ctx, "node-1", script.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, "env-a", s.EnvID)
	assert.False(t, s.AutoDetect)
	assert.Equal(t, "run-1", s.LastRunID)
}

func TestEnsureEnvironment_CreatesFromInterpreter(t *testing.T) {
	// Scenario: no binding, defaults targeting 3.11, one interpreter at
	// 3.11.4 -> a managed environment is created and pinned.
	m, _ := newTestManager(t, "3.11.4")
	ctx := context.Background()

	env, err := m.EnsureEnvironment(ctx, "node-1",
		Defaults{PythonVersion: "3.11"},
		[]interpreter.Interpreter{{Path: "/usr/bin/python3", Version: "3.11.4"}})
	require.NoError(t, err)

	assert.True(t, env.Managed)
	assert.True(t, strings.HasPrefix(env.PythonVersion, "3.11"))

	s, err := m.Settings(ctx, "node-1", script.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, env.ID, s.EnvID)
	assert.False(t, s.AutoDetect, "auto-detect is cleared by the pin")
}

func TestEnsureEnvironment_PinnedWins(t *testing.T) {
	m, envs := newTestManager(t, "3.11.4")
	ctx := context.Background()

	env, err := envs.Create(ctx, envstore.CreateOptions{
		Name: "pinned", PythonPath: "/usr/bin/python3", Managed: true,
	})
	require.NoError(t, err)
	require.NoError(t, m.SetSettings(ctx, "node-1", script.LanguagePython, env.ID, false))

	got, err := m.EnsureEnvironment(ctx, "node-1", Defaults{PythonVersion: "3.12"}, nil)
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID, "pinned environment wins even over version preference")
}

func TestEnsureEnvironment_DanglingPinFallsBack(t *testing.T) {
	m, envs := newTestManager(t, "3.11.4")
	ctx := context.Background()

	// Pin an environment, then delete it behind the binding's back.
	env, err := envs.Create(ctx, envstore.CreateOptions{
		Name: "doomed", PythonPath: "/usr/bin/python3", Managed: true,
	})
	require.NoError(t, err)
	require.NoError(t, m.SetSettings(ctx, "node-1", script.LanguagePython, env.ID, false))
	require.NoError(t, envs.Delete(ctx, env.ID))

	got, err := m.EnsureEnvironment(ctx, "node-1",
		Defaults{PythonVersion: "3.11"},
		[]interpreter.Interpreter{{Path: "/usr/bin/python3", Version: "3.11.4"}})
	require.NoError(t, err)
	assert.NotEqual(t, env.ID, got.ID, "dangling pin must be replaced")
}

func TestEnsureEnvironment_ReusesVersionMatch(t *testing.T) {
	m, envs := newTestManager(t, "3.11.4")
	ctx := context.Background()

	existing, err := envs.Create(ctx, envstore.CreateOptions{
		Name: "existing", PythonPath: "/usr/bin/python3", Managed: true,
	})
	require.NoError(t, err)

	got, err := m.EnsureEnvironment(ctx, "node-1", Defaults{PythonVersion: "3.11"}, nil)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID, "an existing prefix-matching environment is reused")

	s, err := m.Settings(ctx, "node-1", script.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, s.EnvID)
	assert.False(t, s.AutoDetect)
}

func TestEnsureEnvironment_NoInterpreters(t *testing.T) {
	m, _ := newTestManager(t, "3.11.4")

	_, err := m.EnsureEnvironment(context.Background(), "node-1", Defaults{PythonVersion: "3.11"}, nil)
	assert.ErrorIs(t, err, ErrNoInterpreters)
}

func TestEnsureEnvironment_FallsBackToFirstInterpreter(t *testing.T) {
	m, _ := newTestManager(t, "3.9.2")
	ctx := context.Background()

	// No interpreter matches 3.11; the first available one is used.
	env, err := m.EnsureEnvironment(ctx, "node-1",
		Defaults{PythonVersion: "3.11"},
		[]interpreter.Interpreter{
			{Path: "/usr/bin/python3.9", Version: "3.9.2"},
			{Path: "/usr/bin/python3.8", Version: "3.8.10"},
		})
	require.NoError(t, err)
	assert.Equal(t, "3.9.2", env.PythonVersion)
	assert.Equal(t, "Python 3.9.2", env.Name)
}
