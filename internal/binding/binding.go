// SPDX-License-Identifier: MPL-2.0

// Package binding keeps the per-document, per-language execution
// preference: which environment to use (pinned or auto-detected) and which
// run was most recent. Bindings hold identifiers only; a binding pointing
// at a deleted environment falls back to the auto-detection path.
package binding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkdeck/inkdeck/internal/envstore"
	"github.com/inkdeck/inkdeck/internal/interpreter"
	"github.com/inkdeck/inkdeck/internal/script"
	"github.com/inkdeck/inkdeck/internal/store"
)

// ErrNoInterpreters is returned by EnsureEnvironment when no compatible
// environment exists and no interpreter is available to create one from.
var ErrNoInterpreters = errors.New("no python interpreters available")

type (
	// Settings is the stored binding for one (document, language) pair.
	Settings struct {
		NodeID     string
		Language   script.Language
		EnvID      string
		AutoDetect bool
		LastRunID  string
		UpdatedAt  time.Time
	}

	// Defaults are the caller's provisioning preferences used when
	// EnsureEnvironment must select or create an environment.
	Defaults struct {
		// Name labels an auto-created environment; empty derives one
		// from the interpreter version.
		Name string
		// PythonVersion is the wanted version prefix, e.g. "3.11".
		PythonVersion string
		Packages      []envstore.PackageSpec
		EnvVars       map[string]string
		WorkingDir    string
	}

	// Manager reads and writes bindings and resolves environments for
	// python runs.
	Manager struct {
		db   *sql.DB
		envs *envstore.Store
	}
)

// New creates a binding manager.
func New(st *store.Store, envs *envstore.Store) *Manager {
	return &Manager{db: st.DB(), envs: envs}
}

// Settings returns the binding for (nodeID, lang), defaulting to
// auto-detect with no pinned environment and no last run when unset.
func (m *Manager) Settings(ctx context.Context, nodeID string, lang script.Language) (*Settings, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT env_id, auto_detect, last_run_id, updated_at
		FROM node_bindings WHERE node_id = ? AND language = ?`,
		nodeID, string(lang))

	s := Settings{NodeID: nodeID, Language: lang, AutoDetect: true}
	var envID, lastRunID sql.NullString
	var updatedAt string
	err := row.Scan(&envID, &s.AutoDetect, &lastRunID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read binding: %w", err)
	}
	s.EnvID = envID.String
	s.LastRunID = lastRunID.String
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse binding timestamp: %w", err)
	}
	return &s, nil
}

// SetSettings upserts the environment preference for (nodeID, lang),
// preserving the last-run reference.
func (m *Manager) SetSettings(ctx context.Context, nodeID string, lang script.Language, envID string, autoDetect bool) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO node_bindings (node_id, language, env_id, auto_detect, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id, language) DO UPDATE SET
			env_id = excluded.env_id,
			auto_detect = excluded.auto_detect,
			updated_at = excluded.updated_at`,
		nodeID, string(lang), nullable(envID), autoDetect,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert binding: %w", err)
	}
	return nil
}

// RecordRun upserts the most-recent-run reference for (nodeID, lang),
// preserving the environment preference.
func (m *Manager) RecordRun(ctx context.Context, nodeID string, lang script.Language, runID string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO node_bindings (node_id, language, last_run_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_id, language) DO UPDATE SET
			last_run_id = excluded.last_run_id,
			updated_at = excluded.updated_at`,
		nodeID, string(lang), runID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// EnsureEnvironment resolves the environment a python run on nodeID should
// use, provisioning one when necessary:
//
//  1. A pinned, still-existing environment wins.
//  2. Otherwise any known environment whose version prefix-matches the
//     requested default is pinned and returned.
//  3. Otherwise a managed environment is created from the best available
//     interpreter (version match first, then the first one), pinned, and
//     returned.
//
// Returns ErrNoInterpreters when step 3 has nothing to work with.
func (m *Manager) EnsureEnvironment(ctx context.Context, nodeID string, defaults Defaults, interpreters []interpreter.Interpreter) (*envstore.Environment, error) {
	settings, err := m.Settings(ctx, nodeID, script.LanguagePython)
	if err != nil {
		return nil, err
	}

	if !settings.AutoDetect && settings.EnvID != "" {
		env, err := m.envs.Get(ctx, settings.EnvID)
		if err == nil {
			return env, nil
		}
		if !errors.Is(err, envstore.ErrNotFound) {
			return nil, err
		}
		slog.Warn("pinned environment no longer exists, re-resolving",
			"node", nodeID, "env", settings.EnvID)
	}

	if defaults.PythonVersion != "" {
		envs, err := m.envs.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, env := range envs {
			if interpreter.MatchesPrefix(env.PythonVersion, defaults.PythonVersion) {
				if err := m.SetSettings(ctx, nodeID, script.LanguagePython, env.ID, false); err != nil {
					return nil, err
				}
				return &env, nil
			}
		}
	}

	chosen := chooseInterpreter(interpreters, defaults.PythonVersion)
	if chosen == nil {
		return nil, fmt.Errorf("%w: no environment matches version %q and nothing to create one from",
			ErrNoInterpreters, defaults.PythonVersion)
	}

	name := defaults.Name
	if name == "" {
		name = "Python " + chosen.Version
	}
	env, err := m.envs.Create(ctx, envstore.CreateOptions{
		Name:       name,
		PythonPath: chosen.Path,
		Packages:   defaults.Packages,
		EnvVars:    defaults.EnvVars,
		WorkingDir: defaults.WorkingDir,
		Managed:    true,
	})
	if err != nil {
		return nil, err
	}
	if err := m.SetSettings(ctx, nodeID, script.LanguagePython, env.ID, false); err != nil {
		return nil, err
	}
	return env, nil
}

// chooseInterpreter picks the first version match, falling back to the
// first available interpreter.
func chooseInterpreter(interpreters []interpreter.Interpreter, wantVersion string) *interpreter.Interpreter {
	if len(interpreters) == 0 {
		return nil
	}
	if wantVersion != "" {
		for i := range interpreters {
			if interpreter.MatchesPrefix(interpreters[i].Version, wantVersion) {
				return &interpreters[i]
			}
		}
	}
	return &interpreters[0]
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
