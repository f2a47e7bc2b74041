// SPDX-License-Identifier: MPL-2.0

// Package platform centralizes cross-platform concerns: OS name constants
// for runtime.GOOS comparisons and small helpers for platform-dependent
// file naming.
package platform

import (
	"os"
	"path/filepath"
	goruntime "runtime"
)

// OS name constants for runtime.GOOS comparisons.
// Centralizes the string literals to avoid scattered magic strings.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// Current returns the host operating system identifier (runtime.GOOS).
func Current() string {
	return goruntime.GOOS
}

// IsWindows reports whether the host platform is Windows.
func IsWindows() bool {
	return goruntime.GOOS == Windows
}

// ExeName appends the Windows executable suffix to name when targeting
// Windows, and returns name unchanged otherwise.
func ExeName(name, goos string) string {
	if goos == Windows {
		return name + ".exe"
	}
	return name
}

// VenvPython returns the interpreter path produced by `python -m venv`
// inside dir for the given platform: Scripts\python.exe on Windows,
// bin/python elsewhere.
func VenvPython(dir, goos string) string {
	if goos == Windows {
		return filepath.Join(dir, "Scripts", "python.exe")
	}
	return filepath.Join(dir, "bin", "python")
}

// PathListSeparator returns the search-path separator for the host.
func PathListSeparator() string {
	return string(os.PathListSeparator)
}
