// SPDX-License-Identifier: MPL-2.0

// Package command maps (script language, script path, host platform) to the
// executable and argument vector that runs it. The mapping is a pure
// function with no I/O; it encodes all platform branching, so it is unit
// tested independently of process spawning.
package command

import (
	"errors"
	"fmt"

	"github.com/inkdeck/inkdeck/internal/platform"
	"github.com/inkdeck/inkdeck/internal/script"
)

// defaultPosixShell is the fallback when the user has no configured shell.
const defaultPosixShell = "/bin/sh"

var (
	// ErrNoInterpreter is returned when a python invocation is requested
	// without a resolved interpreter path.
	ErrNoInterpreter = errors.New("no interpreter resolved for python script")
)

type (
	// Invocation is a resolved command line: an executable and its
	// argument vector, excluding the executable itself.
	Invocation struct {
		Path string
		Args []string
	}

	// Options carries the caller-specific inputs the mapping depends on.
	Options struct {
		// PythonPath is the resolved environment's interpreter, required
		// for python scripts and ignored otherwise.
		PythonPath string
		// UserShell is the user's configured shell ($SHELL); empty falls
		// back to /bin/sh. Ignored on Windows.
		UserShell string
	}
)

// Resolve builds the invocation for a script of the given language at
// scriptPath on the goos platform.
//
//   - shell: bash on Windows, the user's shell (fallback /bin/sh)
//     elsewhere, with the script path as the sole argument.
//   - powershell: powershell.exe with -NoLogo -NoProfile
//     -ExecutionPolicy Bypass -File on Windows; pwsh with -NoLogo
//     -NoProfile -File elsewhere.
//   - python: the environment's interpreter in isolated mode (-I) with the
//     script path as the sole argument.
func Resolve(lang script.Language, scriptPath, goos string, opts Options) (Invocation, error) {
	if err := lang.Validate(); err != nil {
		return Invocation{}, err
	}

	switch lang {
	case script.LanguageShell:
		if goos == platform.Windows {
			return Invocation{Path: "bash", Args: []string{scriptPath}}, nil
		}
		shell := opts.UserShell
		if shell == "" {
			shell = defaultPosixShell
		}
		return Invocation{Path: shell, Args: []string{scriptPath}}, nil

	case script.LanguagePowerShell:
		if goos == platform.Windows {
			return Invocation{
				Path: "powershell.exe",
				Args: []string{"-NoLogo", "-NoProfile", "-ExecutionPolicy", "Bypass", "-File", scriptPath},
			}, nil
		}
		return Invocation{
			Path: "pwsh",
			Args: []string{"-NoLogo", "-NoProfile", "-File", scriptPath},
		}, nil

	case script.LanguagePython:
		if opts.PythonPath == "" {
			return Invocation{}, ErrNoInterpreter
		}
		return Invocation{Path: opts.PythonPath, Args: []string{"-I", scriptPath}}, nil
	}

	// Unreachable after Validate, kept for exhaustiveness.
	return Invocation{}, fmt.Errorf("unhandled language %q", lang)
}
