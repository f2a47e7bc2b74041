// SPDX-License-Identifier: MPL-2.0

// Package interpreter locates usable Python interpreters on the host.
//
// Candidates are merged from the Windows py launcher (when present) and a
// scan of every directory on the search path, then validated by invoking
// each one with --version. Candidates that fail to respond are dropped
// silently: discovery degrades to an empty list rather than failing.
package interpreter

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/inkdeck/inkdeck/internal/platform"
)

// pathNames are the executable names probed in each search-path directory.
var pathNames = []string{
	"python3", "python",
	"python3.13", "python3.12", "python3.11", "python3.10", "python3.9", "python3.8",
}

var versionRe = regexp.MustCompile(`Python\s+(\d+(?:\.\d+)*)`)

type (
	// Interpreter describes one validated Python installation.
	Interpreter struct {
		// Path is the absolute path of the interpreter executable.
		Path string
		// Version is the parsed version string, e.g. "3.11.4".
		Version string
		// DisplayName is a human-readable label for pickers.
		DisplayName string
		// Default marks the fallback choice when the caller has no
		// preference. Exactly one entry is marked when any exist.
		Default bool
	}

	// Detector discovers interpreters. The zero value uses the real OS;
	// the function fields exist so tests can substitute fixed outputs.
	Detector struct {
		// GOOS overrides the host platform when non-empty.
		GOOS string
		// Environ returns the process environment; defaults to os.Environ.
		Environ func() []string
		// RunOutput runs an executable and returns its combined output.
		// Defaults to exec.CommandContext(...).CombinedOutput.
		RunOutput func(ctx context.Context, name string, args ...string) ([]byte, error)
	}
)

// NewDetector creates a Detector backed by the real OS.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns every usable interpreter, deduplicated by path and sorted
// newest-version-first, with the first entry marked default. It never
// returns an error; a host with no Python yields an empty slice.
func (d *Detector) Detect(ctx context.Context) []Interpreter {
	seen := make(map[string]bool)
	var found []Interpreter

	add := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		if seen[abs] {
			return
		}
		seen[abs] = true

		version, ok := d.probeVersion(ctx, abs)
		if !ok {
			slog.Debug("interpreter candidate did not answer --version", "path", abs)
			return
		}
		found = append(found, Interpreter{
			Path:        abs,
			Version:     version,
			DisplayName: "Python " + version,
		})
	}

	for _, p := range d.launcherCandidates(ctx) {
		add(p)
	}
	for _, p := range d.pathCandidates() {
		add(p)
	}

	sort.SliceStable(found, func(i, j int) bool {
		return CompareVersions(found[i].Version, found[j].Version) > 0
	})
	if len(found) > 0 {
		found[0].Default = true
	}
	return found
}

// launcherCandidates asks the Windows py launcher for registered
// installations. Off Windows, or when the launcher is missing, it
// contributes nothing.
func (d *Detector) launcherCandidates(ctx context.Context) []string {
	if d.goos() != platform.Windows {
		return nil
	}
	out, err := d.runOutput(ctx, "py", "-0p")
	if err != nil {
		slog.Debug("py launcher unavailable", "error", err)
		return nil
	}

	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		// Lines look like " -V:3.11 *  C:\Python311\python.exe".
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		last := fields[len(fields)-1]
		if strings.HasSuffix(strings.ToLower(last), "python.exe") {
			paths = append(paths, last)
		}
	}
	return paths
}

// pathCandidates scans every directory on the search path for known
// interpreter executable names.
func (d *Detector) pathCandidates() []string {
	pathVar := ""
	for _, kv := range d.environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.EqualFold(k, "PATH") {
			pathVar = v
			break
		}
	}

	var paths []string
	for _, dir := range filepath.SplitList(pathVar) {
		if dir == "" {
			continue
		}
		for _, name := range pathNames {
			candidate := filepath.Join(dir, platform.ExeName(name, d.goos()))
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			paths = append(paths, candidate)
		}
	}
	return paths
}

// probeVersion validates a candidate by running it with --version.
func (d *Detector) probeVersion(ctx context.Context, path string) (string, bool) {
	out, err := d.runOutput(ctx, path, "--version")
	if err != nil {
		return "", false
	}
	m := versionRe.FindSubmatch(out)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

func (d *Detector) goos() string {
	if d.GOOS != "" {
		return d.GOOS
	}
	return platform.Current()
}

func (d *Detector) environ() []string {
	if d.Environ != nil {
		return d.Environ()
	}
	return os.Environ()
}

func (d *Detector) runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	if d.RunOutput != nil {
		return d.RunOutput(ctx, name, args...)
	}
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CompareVersions compares two dotted version strings numerically,
// returning -1, 0, or 1. Missing segments compare as zero, so
// "3.11" == "3.11.0".
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var ai, bi int
		if i < len(as) {
			ai, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bi, _ = strconv.Atoi(bs[i])
		}
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
	}
	return 0
}

// MatchesPrefix reports whether version is an exact prefix match of want at
// segment granularity: want "3.11" matches "3.11.4" but not "3.1".
func MatchesPrefix(version, want string) bool {
	if want == "" {
		return false
	}
	vs := strings.Split(version, ".")
	ws := strings.Split(want, ".")
	if len(ws) > len(vs) {
		return false
	}
	for i := range ws {
		if vs[i] != ws[i] {
			return false
		}
	}
	return true
}
