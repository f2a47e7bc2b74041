// SPDX-License-Identifier: MPL-2.0

// Package script defines the script languages and console display modes the
// execution subsystem understands, together with their validation rules.
package script

import (
	"errors"
	"fmt"
)

// Language constants for the supported script languages.
const (
	// LanguagePython executes through a resolved interpreter environment.
	LanguagePython Language = "python"
	// LanguageShell executes through the host shell.
	LanguageShell Language = "shell"
	// LanguagePowerShell executes through PowerShell (powershell.exe or pwsh).
	LanguagePowerShell Language = "powershell"
)

// Console mode constants for how a run's output is surfaced.
const (
	// ConsoleCaptured pipes stdout/stderr into the run's log stream.
	ConsoleCaptured ConsoleMode = "captured"
	// ConsoleTerminal opens a visible interactive terminal window
	// (Windows only); output is not captured.
	ConsoleTerminal ConsoleMode = "terminal"
	// ConsoleHidden captures output like ConsoleCaptured without
	// surfacing any UI.
	ConsoleHidden ConsoleMode = "hidden"
)

var (
	// ErrInvalidLanguage is the sentinel error wrapped by InvalidLanguageError.
	ErrInvalidLanguage = errors.New("invalid script language")
	// ErrInvalidConsoleMode is the sentinel error wrapped by InvalidConsoleModeError.
	ErrInvalidConsoleMode = errors.New("invalid console mode")
)

type (
	// Language identifies a supported script language.
	Language string

	// ConsoleMode identifies how a run's output is surfaced.
	ConsoleMode string

	// InvalidLanguageError is returned when a Language value is not one of
	// the supported languages.
	InvalidLanguageError struct {
		Value Language
	}

	// InvalidConsoleModeError is returned when a ConsoleMode value is not
	// one of the defined modes.
	InvalidConsoleModeError struct {
		Value ConsoleMode
	}
)

// Error implements the error interface.
func (e *InvalidLanguageError) Error() string {
	return fmt.Sprintf("invalid script language %q (supported: python, shell, powershell)", string(e.Value))
}

// Unwrap returns ErrInvalidLanguage so callers can use errors.Is for programmatic detection.
func (e *InvalidLanguageError) Unwrap() error { return ErrInvalidLanguage }

// Error implements the error interface.
func (e *InvalidConsoleModeError) Error() string {
	return fmt.Sprintf("invalid console mode %q (supported: captured, terminal, hidden)", string(e.Value))
}

// Unwrap returns ErrInvalidConsoleMode so callers can use errors.Is for programmatic detection.
func (e *InvalidConsoleModeError) Unwrap() error { return ErrInvalidConsoleMode }

// Validate returns an error when the Language is not supported.
func (l Language) Validate() error {
	switch l {
	case LanguagePython, LanguageShell, LanguagePowerShell:
		return nil
	}
	return &InvalidLanguageError{Value: l}
}

// FileExt returns the script file extension for the language, without the dot.
func (l Language) FileExt() string {
	switch l {
	case LanguagePython:
		return "py"
	case LanguagePowerShell:
		return "ps1"
	default:
		return "sh"
	}
}

// String returns the language identifier.
func (l Language) String() string { return string(l) }

// Validate returns an error when the ConsoleMode is not one of the defined modes.
func (m ConsoleMode) Validate() error {
	switch m {
	case ConsoleCaptured, ConsoleTerminal, ConsoleHidden:
		return nil
	}
	return &InvalidConsoleModeError{Value: m}
}

// Captures reports whether the mode pipes child output into the log stream.
func (m ConsoleMode) Captures() bool {
	return m == ConsoleCaptured || m == ConsoleHidden
}

// String returns the console mode identifier.
func (m ConsoleMode) String() string { return string(m) }
