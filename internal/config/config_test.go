// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Cleanup(Reset)
	SetDataDirOverride(t.TempDir())

	cfg, path, err := Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path != "" {
		t.Errorf("resolved path = %q, want empty (defaults)", path)
	}
	if cfg.LogLevel != LogLevelInfo {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, LogLevelInfo)
	}
	if cfg.EnvironmentsDir != filepath.Join(cfg.DataDir, EnvironmentsDirName) {
		t.Errorf("EnvironmentsDir = %q, want under %q", cfg.EnvironmentsDir, cfg.DataDir)
	}
	if cfg.DatabasePath != filepath.Join(cfg.DataDir, DatabaseFileName) {
		t.Errorf("DatabasePath = %q, want under %q", cfg.DatabasePath, cfg.DataDir)
	}
}

func TestLoad_ReadsConfigFile(t *testing.T) {
	t.Cleanup(Reset)
	SetDataDirOverride(t.TempDir())

	dir := t.TempDir()
	want := writeConfig(t, dir, `
data_dir:      "/srv/inkdeck"
default_shell: "/bin/zsh"
log_level:     "debug"
`)

	cfg, path, err := Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path != want {
		t.Errorf("resolved path = %q, want %q", path, want)
	}
	if cfg.DataDir != "/srv/inkdeck" {
		t.Errorf("DataDir = %q, want /srv/inkdeck", cfg.DataDir)
	}
	if cfg.DefaultShell != "/bin/zsh" {
		t.Errorf("DefaultShell = %q, want /bin/zsh", cfg.DefaultShell)
	}
	if cfg.LogLevel != LogLevelDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	// Unset paths resolve relative to the configured data dir.
	if cfg.DatabasePath != filepath.Join("/srv/inkdeck", DatabaseFileName) {
		t.Errorf("DatabasePath = %q, want under data dir", cfg.DatabasePath)
	}
}

func TestLoad_RejectsInvalidLogLevel(t *testing.T) {
	t.Cleanup(Reset)
	SetDataDirOverride(t.TempDir())

	dir := t.TempDir()
	writeConfig(t, dir, `log_level: "loud"`)

	_, _, err := Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err == nil {
		t.Fatal("Load() error = nil, want schema violation")
	}
}

func TestLoad_RejectsUnknownKey(t *testing.T) {
	t.Cleanup(Reset)
	SetDataDirOverride(t.TempDir())

	dir := t.TempDir()
	writeConfig(t, dir, `databse_path: "/tmp/x.db"`)

	_, _, err := Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err == nil {
		t.Fatal("Load() error = nil, want unknown-field rejection")
	}
}

func TestLoad_RejectsInvalidSyntax(t *testing.T) {
	t.Cleanup(Reset)
	SetDataDirOverride(t.TempDir())

	dir := t.TempDir()
	writeConfig(t, dir, `log_level: `)

	_, _, err := Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	t.Cleanup(Reset)
	SetDataDirOverride(t.TempDir())

	_, _, err := Load(context.Background(), LoadOptions{
		ConfigFilePath: filepath.Join(t.TempDir(), "missing.cue"),
	})
	if err == nil {
		t.Fatal("Load() error = nil, want not-found error")
	}
}

func TestLoad_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Load(ctx, LoadOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestLogLevel_Validate(t *testing.T) {
	tests := []struct {
		level   LogLevel
		wantErr bool
	}{
		{LogLevelDebug, false},
		{LogLevelInfo, false},
		{LogLevelWarn, false},
		{LogLevelError, false},
		{LogLevel("loud"), true},
		{LogLevel(""), true},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			err := tt.level.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLogLevel) {
					t.Errorf("Validate() = %v, want ErrInvalidLogLevel", err)
				}
			} else if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestLogLevel_Slog(t *testing.T) {
	if got := LogLevelDebug.Slog(); got != slog.LevelDebug {
		t.Errorf("debug maps to %v", got)
	}
	if got := LogLevelError.Slog(); got != slog.LevelError {
		t.Errorf("error maps to %v", got)
	}
	if got := LogLevel("bogus").Slog(); got != slog.LevelInfo {
		t.Errorf("unknown level maps to %v, want info", got)
	}
}
