// SPDX-License-Identifier: MPL-2.0

package envstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkdeck/inkdeck/internal/store"
	"github.com/inkdeck/inkdeck/internal/testutil"
)

// fakeRun simulates the python subprocesses the provisioner spawns. It
// records every invocation and materializes a plausible venv layout for
// the -m venv step.
type fakeRun struct {
	calls  [][]string
	venvOK bool
	pipOK  bool
}

func newFakeRun() *fakeRun {
	return &fakeRun{venvOK: true, pipOK: true}
}

func (f *fakeRun) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))

	if len(args) >= 1 && args[0] == "--version" {
		return []byte("Python 3.11.4\n"), nil
	}
	if len(args) >= 2 && args[0] == "-m" && args[1] == "venv" {
		if !f.venvOK {
			return []byte("Error: venv failed horribly"), errors.New("exit status 1")
		}
		dir := args[2]
		binDir := filepath.Join(dir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			return nil, err
		}
		return nil, os.WriteFile(filepath.Join(binDir, "python"), []byte("#!/bin/sh\n"), 0o755)
	}
	if len(args) >= 2 && args[0] == "-m" && args[1] == "pip" {
		if !f.pipOK {
			return []byte("ERROR: No matching distribution found"), errors.New("exit status 1")
		}
		return []byte("Successfully installed"), nil
	}
	return nil, fmt.Errorf("unexpected invocation: %s %v", name, args)
}

// pipCalls returns the requirement specifiers of every pip install call.
func (f *fakeRun) pipCalls() [][]string {
	var out [][]string
	for _, c := range f.calls {
		for i, a := range c {
			if a == "pip" {
				// skip "install --no-input"
				out = append(out, c[i+3:])
				break
			}
		}
	}
	return out
}

func newTestStore(t *testing.T) (*Store, *fakeRun) {
	t.Helper()
	testutil.RequirePosix(t)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := New(st, t.TempDir())
	f := newFakeRun()
	s.SetRunner(f.run)
	return s, f
}

func TestPinSpec(t *testing.T) {
	tests := []struct {
		name string
		spec PackageSpec
		want string
	}{
		{"no version", PackageSpec{Name: "requests"}, "requests"},
		{"latest keyword", PackageSpec{Name: "requests", Version: "latest"}, "requests"},
		{"exact pin synthesized", PackageSpec{Name: "flask", Version: "2.3.0"}, "flask==2.3.0"},
		{"range passed through", PackageSpec{Name: "numpy", Version: ">=1.20,<2"}, "numpy>=1.20,<2"},
		{"wildcard passed through", PackageSpec{Name: "pandas", Version: "1.5.*"}, "pandas1.5.*"},
		{"compatible release passed through", PackageSpec{Name: "django", Version: "~=4.2"}, "django~=4.2"},
		{"exclusion passed through", PackageSpec{Name: "urllib3", Version: "!=2.0.0"}, "urllib3!=2.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PinSpec(tt.spec); got != tt.want {
				t.Errorf("PinSpec(%+v) = %q, want %q", tt.spec, got, tt.want)
			}
		})
	}
}

func TestStore_Create_RoundTrip(t *testing.T) {
	s, f := newTestStore(t)
	ctx := context.Background()

	packages := []PackageSpec{{Name: "a"}, {Name: "b", Version: "1.0"}}
	envVars := map[string]string{"FOO": "bar", "BAZ": "qux"}

	env, err := s.Create(ctx, CreateOptions{
		Name:       "analysis",
		PythonPath: "/usr/bin/python3",
		Packages:   packages,
		EnvVars:    envVars,
		WorkingDir: "/work",
		Managed:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, "3.11.4", env.PythonVersion)
	assert.True(t, env.Managed)
	assert.Contains(t, env.PythonPath, env.ID, "managed interpreter must live inside the per-env directory")

	got, err := s.Get(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, packages, got.Packages)
	assert.Equal(t, envVars, got.EnvVars)
	assert.Equal(t, "/work", got.WorkingDir)

	// pip received exactly the pinned specs.
	pips := f.pipCalls()
	require.Len(t, pips, 1)
	assert.Equal(t, []string{"a", "b==1.0"}, pips[0])
}

func TestStore_Create_VenvFailureAborts(t *testing.T) {
	s, f := newTestStore(t)
	f.venvOK = false
	ctx := context.Background()

	_, err := s.Create(ctx, CreateOptions{Name: "broken", PythonPath: "/usr/bin/python3", Managed: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "venv failed horribly", "subprocess output must surface in the error")

	// No partial environment is registered.
	envs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, envs)
}

func TestStore_Create_PipFailureAborts(t *testing.T) {
	s, f := newTestStore(t)
	f.pipOK = false
	ctx := context.Background()

	_, err := s.Create(ctx, CreateOptions{
		Name:       "broken",
		PythonPath: "/usr/bin/python3",
		Packages:   []PackageSpec{{Name: "nosuchpkg"}},
		Managed:    true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No matching distribution")

	envs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, envs)

	// The partially built tree is gone.
	entries, err := os.ReadDir(filepath.Dir(s.EnvDir("x")))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_Update_ReinstallsChangedPackages(t *testing.T) {
	s, f := newTestStore(t)
	ctx := context.Background()

	env, err := s.Create(ctx, CreateOptions{Name: "env", PythonPath: "/usr/bin/python3", Managed: true})
	require.NoError(t, err)

	newPackages := []PackageSpec{{Name: "requests", Version: "2.31.0"}}
	updated, err := s.Update(ctx, env.ID, UpdateOptions{Packages: &newPackages})
	require.NoError(t, err)
	assert.Equal(t, newPackages, updated.Packages)

	pips := f.pipCalls()
	require.Len(t, pips, 1, "exactly one install, with exactly the new specs")
	assert.Equal(t, []string{"requests==2.31.0"}, pips[0])
}

func TestStore_Update_PartialFields(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	env, err := s.Create(ctx, CreateOptions{
		Name:       "orig",
		PythonPath: "/usr/bin/python3",
		EnvVars:    map[string]string{"KEEP": "me"},
		Managed:    true,
	})
	require.NoError(t, err)

	desc := "updated description"
	updated, err := s.Update(ctx, env.ID, UpdateOptions{Description: &desc})
	require.NoError(t, err)

	assert.Equal(t, "orig", updated.Name, "unset fields keep stored values")
	assert.Equal(t, map[string]string{"KEEP": "me"}, updated.EnvVars)
	assert.Equal(t, desc, updated.Description)
}

func TestStore_Delete_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	env, err := s.Create(ctx, CreateOptions{Name: "gone", PythonPath: "/usr/bin/python3", Managed: true})
	require.NoError(t, err)
	dir := s.EnvDir(env.ID)
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("managed dir missing after create: %v", err)
	}

	require.NoError(t, s.Delete(ctx, env.ID))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "managed tree must be removed")

	// Second delete of the same id has no observable effect.
	require.NoError(t, s.Delete(ctx, env.ID))

	_, err = s.Get(ctx, env.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Get_NotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ManifestRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	env, err := s.Create(ctx, CreateOptions{
		Name:       "shared",
		PythonPath: "/usr/bin/python3",
		Packages:   []PackageSpec{{Name: "httpx", Version: "0.27.0"}},
		EnvVars:    map[string]string{"API_URL": "http://localhost"},
		WorkingDir: "/data",
		Managed:    true,
	})
	require.NoError(t, err)

	data, err := s.ExportManifest(ctx, env.ID)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "httpx"), "manifest mentions packages: %s", data)

	imported, err := s.ImportManifest(ctx, data, "/usr/bin/python3")
	require.NoError(t, err)
	assert.NotEqual(t, env.ID, imported.ID)
	assert.Equal(t, env.Name, imported.Name)
	assert.Equal(t, env.Packages, imported.Packages)
	assert.Equal(t, env.EnvVars, imported.EnvVars)
	assert.Equal(t, env.WorkingDir, imported.WorkingDir)
}
