// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"os"
	"strings"
	"testing"

	"github.com/inkdeck/inkdeck/internal/envstore"
)

// testEnv builds a minimal unmanaged environment for launcher tests.
func testEnv(vars map[string]string) *envstore.Environment {
	return &envstore.Environment{ID: "env-test", EnvVars: vars}
}

func envMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

func TestBuildEnv_PrependsInterpreterDir(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/home/u"}
	got := envMap(buildEnv(base, "/envs/e1/bin", nil))

	wantPath := "/envs/e1/bin" + string(os.PathListSeparator) + "/usr/bin"
	if got["PATH"] != wantPath {
		t.Errorf("PATH = %q, want %q", got["PATH"], wantPath)
	}
	if got["HOME"] != "/home/u" {
		t.Errorf("HOME = %q, want inherited value", got["HOME"])
	}
}

func TestBuildEnv_ForcesUnbufferedPython(t *testing.T) {
	got := envMap(buildEnv([]string{"PATH=/usr/bin"}, "", nil))

	if got["PYTHONUNBUFFERED"] != "1" {
		t.Errorf("PYTHONUNBUFFERED = %q, want 1", got["PYTHONUNBUFFERED"])
	}
	if got["PYTHONIOENCODING"] != "utf-8" {
		t.Errorf("PYTHONIOENCODING = %q, want utf-8", got["PYTHONIOENCODING"])
	}
}

func TestBuildEnv_OverlayWinsLast(t *testing.T) {
	base := []string{"PATH=/usr/bin", "LANG=C"}
	got := envMap(buildEnv(base, "", map[string]string{
		"LANG":             "en_US.UTF-8",
		"PYTHONUNBUFFERED": "0",
	}))

	if got["LANG"] != "en_US.UTF-8" {
		t.Errorf("LANG = %q, caller-supplied variables must win", got["LANG"])
	}
	// The overlay is applied after the forced defaults, so a caller can
	// even override those.
	if got["PYTHONUNBUFFERED"] != "0" {
		t.Errorf("PYTHONUNBUFFERED = %q, want caller override 0", got["PYTHONUNBUFFERED"])
	}
}

func TestBuildEnv_NoPathInBase(t *testing.T) {
	got := envMap(buildEnv(nil, "/envs/e1/bin", nil))
	if got["PATH"] != "/envs/e1/bin" {
		t.Errorf("PATH = %q, want just the interpreter dir", got["PATH"])
	}
}

func TestUserShell(t *testing.T) {
	if got := userShell([]string{"SHELL=/bin/zsh", "HOME=/h"}); got != "/bin/zsh" {
		t.Errorf("userShell() = %q, want /bin/zsh", got)
	}
	if got := userShell([]string{"HOME=/h"}); got != "" {
		t.Errorf("userShell() = %q, want empty", got)
	}
}
