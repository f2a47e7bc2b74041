// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// LogLevelDebug enables all diagnostic output.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn suppresses informational output.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError reports only failures.
	LogLevelError LogLevel = "error"
)

// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
var ErrInvalidLogLevel = errors.New("invalid log level")

type (
	// LogLevel specifies the minimum diagnostic logging level.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not
	// recognized. It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// Config is the loaded inkdeck configuration. Zero-value path fields
	// are resolved to platform defaults by Load.
	Config struct {
		// DataDir is the root directory for inkdeck state.
		DataDir string `mapstructure:"data_dir"`
		// EnvironmentsDir holds managed Python environments.
		EnvironmentsDir string `mapstructure:"environments_dir"`
		// DatabasePath is the SQLite database file.
		DatabasePath string `mapstructure:"database_path"`
		// DefaultShell overrides $SHELL for shell scripts when set.
		DefaultShell string `mapstructure:"default_shell"`
		// LogLevel is the minimum diagnostic logging level.
		LogLevel LogLevel `mapstructure:"log_level"`
	}
)

// Error implements the error interface.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("%s: %q (valid: debug, info, warn, error)", ErrInvalidLogLevel, e.Value)
}

// Unwrap returns the sentinel for errors.Is().
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// Validate checks that the LogLevel is one of the recognized values.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return &InvalidLogLevelError{Value: l}
	}
}

// Slog maps the level to its log/slog equivalent. Unrecognized values
// map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks every field of the loaded configuration.
func (c *Config) Validate() error {
	if err := c.LogLevel.Validate(); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"data_dir":         c.DataDir,
		"environments_dir": c.EnvironmentsDir,
		"database_path":    c.DatabasePath,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("config field %s must not be empty", name)
		}
	}
	return nil
}

// DefaultConfig returns the built-in defaults. Path fields are left
// empty here and resolved against the platform data directory by Load.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: LogLevelInfo,
	}
}
