// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"os"
	"sort"
	"strings"
)

// buildEnv assembles the sanitized child environment: the ambient
// environment as the base, the interpreter's directory prepended to the
// search path, unbuffered deterministic Python output, and the
// environment's own variables overlaid last.
func buildEnv(base []string, interpreterDir string, overlay map[string]string) []string {
	env := make(map[string]string, len(base)+len(overlay)+3)
	var order []string
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, seen := env[k]; !seen {
			order = append(order, k)
		}
		env[k] = v
	}

	set := func(k, v string) {
		if _, seen := env[k]; !seen {
			order = append(order, k)
		}
		env[k] = v
	}

	if interpreterDir != "" {
		path := env["PATH"]
		if path == "" {
			set("PATH", interpreterDir)
		} else {
			set("PATH", interpreterDir+string(os.PathListSeparator)+path)
		}
	}

	set("PYTHONUNBUFFERED", "1")
	set("PYTHONIOENCODING", "utf-8")

	overlayKeys := make([]string, 0, len(overlay))
	for k := range overlay {
		overlayKeys = append(overlayKeys, k)
	}
	sort.Strings(overlayKeys)
	for _, k := range overlayKeys {
		set(k, overlay[k])
	}

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+env[k])
	}
	return out
}

// userShell returns the configured shell from the environment slice.
func userShell(environ []string) string {
	for _, kv := range environ {
		if v, ok := strings.CutPrefix(kv, "SHELL="); ok {
			return v
		}
	}
	return ""
}
