// SPDX-License-Identifier: MPL-2.0

// Package testutil provides common test helpers: environment variable
// management with automatic restore, and a fake Python interpreter for
// exercising discovery and provisioning without a real installation.
package testutil

import (
	"os"
	"path/filepath"
	goruntime "runtime"
	"testing"
)

// MustSetenv sets the environment variable key to value.
// It returns a cleanup function that restores the original value (or unsets it).
// The test fails immediately if the operation fails.
func MustSetenv(t testing.TB, key, value string) func() {
	t.Helper()
	originalValue, hadValue := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	return func() {
		if hadValue {
			if err := os.Setenv(key, originalValue); err != nil {
				t.Errorf("failed to restore env %s: %v", key, err)
			}
		} else {
			if err := os.Unsetenv(key); err != nil {
				t.Errorf("failed to unset env %s: %v", key, err)
			}
		}
	}
}

// MustUnsetenv unsets the environment variable key.
// It returns a cleanup function that restores the original value (if any).
// The test fails immediately if the operation fails.
func MustUnsetenv(t testing.TB, key string) func() {
	t.Helper()
	originalValue, hadValue := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	return func() {
		if hadValue {
			if err := os.Setenv(key, originalValue); err != nil {
				t.Errorf("failed to restore env %s: %v", key, err)
			}
		}
	}
}

// RequirePosix skips the test on Windows. Used by tests that rely on
// shell-script fakes or POSIX process semantics.
func RequirePosix(t testing.TB) {
	t.Helper()
	if goruntime.GOOS == "windows" {
		t.Skip("skipping: requires a POSIX shell")
	}
}

// FakePython writes an executable shell script into a temp directory that
// mimics the slice of the python CLI this subsystem invokes: --version,
// -m venv <dir>, and -m pip install. The reported version is configurable
// so tests can exercise version matching.
func FakePython(t testing.TB, version string) string {
	t.Helper()
	RequirePosix(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "python3")
	script := `#!/bin/sh
case "$1" in
--version)
  echo "Python ` + version + `"
  ;;
-m)
  case "$2" in
  venv)
    mkdir -p "$3/bin"
    cp "$0" "$3/bin/python"
    chmod +x "$3/bin/python"
    ;;
  pip)
    echo "installed: $@"
    ;;
  esac
  ;;
*)
  # Execute the script file through the shell so tests get real output.
  sh "$1"
  ;;
esac
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake python: %v", err)
	}
	return path
}
