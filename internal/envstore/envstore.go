// SPDX-License-Identifier: MPL-2.0

// Package envstore manages named, versioned Python interpreter environments:
// their registration rows, and for managed environments the on-disk venv
// materialization this store exclusively owns.
package envstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/inkdeck/inkdeck/internal/store"
)

var (
	// ErrNotFound is returned when no environment exists with the given id.
	ErrNotFound = errors.New("environment not found")
)

type (
	// PackageSpec is one requested package: a name and an optional version
	// constraint. An empty or "latest" version installs the newest release.
	PackageSpec struct {
		Name    string `json:"name" toml:"name"`
		Version string `json:"version,omitempty" toml:"version,omitempty"`
	}

	// Environment is an installable, reusable execution context.
	Environment struct {
		ID            string
		Name          string
		PythonPath    string
		PythonVersion string
		// Managed marks environments whose on-disk venv this store owns;
		// deleting a managed environment deletes its directory tree.
		Managed     bool
		Packages    []PackageSpec
		EnvVars     map[string]string
		WorkingDir  string
		Description string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// CreateOptions are the inputs to Create.
	CreateOptions struct {
		Name       string
		// PythonPath is the base interpreter a managed venv is created
		// from, or the executable itself for unmanaged registrations.
		PythonPath string
		Packages   []PackageSpec
		EnvVars    map[string]string
		WorkingDir string
		// Managed requests a venv owned by this store.
		Managed bool
	}

	// UpdateOptions carries the optional fields of Update; nil pointers
	// leave the stored value untouched.
	UpdateOptions struct {
		Name        *string
		Packages    *[]PackageSpec
		EnvVars     *map[string]string
		WorkingDir  *string
		Description *string
	}

	// Store persists environments and provisions managed venvs.
	Store struct {
		db   *sql.DB
		prov *provisioner
		// root is the directory under which managed environments live,
		// one subdirectory per environment id.
		root string
	}
)

// New creates an environment store. root is the managed-environments
// directory; it is created lazily on the first managed Create.
func New(st *store.Store, root string) *Store {
	return &Store{db: st.DB(), prov: newProvisioner(), root: root}
}

// SetRunner substitutes the subprocess runner used for venv creation and
// package installation. Tests use this to avoid spawning real interpreters.
func (s *Store) SetRunner(run RunFunc) {
	s.prov.run = run
}

// List returns all registered environments, newest first.
func (s *Store) List(ctx context.Context) ([]Environment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, python_path, python_version, managed, packages,
		       env_vars, working_dir, description, created_at, updated_at
		FROM environments ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}
	defer rows.Close()

	var envs []Environment
	for rows.Next() {
		env, err := scanEnvironment(rows)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, rows.Err()
}

// Get returns the environment with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Environment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, python_path, python_version, managed, packages,
		       env_vars, working_dir, description, created_at, updated_at
		FROM environments WHERE id = ?`, id)

	env, err := scanEnvironment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &env, nil
}

// Create registers a new environment. For managed environments it allocates
// a fresh directory under the store root, creates a venv there from the
// base interpreter, and installs the requested packages; any provisioning
// failure aborts the whole operation and no environment is registered.
func (s *Store) Create(ctx context.Context, opts CreateOptions) (*Environment, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	env := Environment{
		ID:         id,
		Name:       opts.Name,
		PythonPath: opts.PythonPath,
		Managed:    opts.Managed,
		Packages:   opts.Packages,
		EnvVars:    opts.EnvVars,
		WorkingDir: opts.WorkingDir,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if opts.Managed {
		materialized, err := s.prov.materialize(ctx, s.root, id, opts.PythonPath, opts.Packages)
		if err != nil {
			return nil, err
		}
		env.PythonPath = materialized.pythonPath
		env.PythonVersion = materialized.version
	} else {
		version, err := s.prov.probeVersion(ctx, opts.PythonPath)
		if err != nil {
			return nil, err
		}
		env.PythonVersion = version
	}

	if err := s.insert(ctx, env); err != nil {
		// The row write failed after a successful materialization; take
		// the tree down so no orphan directory survives.
		if opts.Managed {
			s.removeTree(id)
		}
		return nil, err
	}
	return &env, nil
}

// Update merges the provided fields into the stored configuration. When the
// package list changed and the environment is managed, the new list is
// (re)installed into the existing venv in place.
func (s *Store) Update(ctx context.Context, id string, opts UpdateOptions) (*Environment, error) {
	env, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	packagesChanged := false
	if opts.Name != nil {
		env.Name = *opts.Name
	}
	if opts.Packages != nil {
		env.Packages = *opts.Packages
		packagesChanged = true
	}
	if opts.EnvVars != nil {
		env.EnvVars = *opts.EnvVars
	}
	if opts.WorkingDir != nil {
		env.WorkingDir = *opts.WorkingDir
	}
	if opts.Description != nil {
		env.Description = *opts.Description
	}
	env.UpdatedAt = time.Now().UTC()

	if err := s.write(ctx, *env); err != nil {
		return nil, err
	}

	// The configuration write and the reinstall are separate steps; a
	// failed install leaves the stored list ahead of the venv contents
	// until the next successful update.
	if packagesChanged && env.Managed && len(env.Packages) > 0 {
		if err := s.prov.installPackages(ctx, env.PythonPath, env.Packages); err != nil {
			return nil, err
		}
	}

	return env, nil
}

// Delete removes the registration and, for managed environments, the
// directory tree. Filesystem errors during cleanup are logged, not raised;
// deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	env, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM environments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete environment: %w", err)
	}

	if env.Managed {
		s.removeTree(id)
	}
	return nil
}

// EnvDir returns the on-disk directory of a managed environment id.
func (s *Store) EnvDir(id string) string {
	return envDir(s.root, id)
}

func (s *Store) removeTree(id string) {
	dir := envDir(s.root, id)
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to remove managed environment directory", "dir", dir, "error", err)
	}
}

func (s *Store) insert(ctx context.Context, env Environment) error {
	packages, envVars, err := marshalConfig(env)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO environments
			(id, name, python_path, python_version, managed, packages,
			 env_vars, working_dir, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		env.ID, env.Name, env.PythonPath, env.PythonVersion, env.Managed,
		packages, envVars, env.WorkingDir, env.Description,
		env.CreatedAt.Format(time.RFC3339Nano), env.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert environment: %w", err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, env Environment) error {
	packages, envVars, err := marshalConfig(env)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE environments SET
			name = ?, python_path = ?, python_version = ?, managed = ?,
			packages = ?, env_vars = ?, working_dir = ?, description = ?,
			updated_at = ?
		WHERE id = ?`,
		env.Name, env.PythonPath, env.PythonVersion, env.Managed,
		packages, envVars, env.WorkingDir, env.Description,
		env.UpdatedAt.Format(time.RFC3339Nano), env.ID)
	if err != nil {
		return fmt.Errorf("update environment: %w", err)
	}
	return nil
}

func marshalConfig(env Environment) (packages, envVars string, err error) {
	p := env.Packages
	if p == nil {
		p = []PackageSpec{}
	}
	v := env.EnvVars
	if v == nil {
		v = map[string]string{}
	}
	pb, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("marshal packages: %w", err)
	}
	vb, err := json.Marshal(v)
	if err != nil {
		return "", "", fmt.Errorf("marshal env vars: %w", err)
	}
	return string(pb), string(vb), nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEnvironment(row scanner) (Environment, error) {
	var (
		env                  Environment
		packages, envVars    string
		workingDir, desc     sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&env.ID, &env.Name, &env.PythonPath, &env.PythonVersion,
		&env.Managed, &packages, &envVars, &workingDir, &desc, &createdAt, &updatedAt)
	if err != nil {
		return Environment{}, err
	}

	if err := json.Unmarshal([]byte(packages), &env.Packages); err != nil {
		return Environment{}, fmt.Errorf("decode packages for %s: %w", env.ID, err)
	}
	if err := json.Unmarshal([]byte(envVars), &env.EnvVars); err != nil {
		return Environment{}, fmt.Errorf("decode env vars for %s: %w", env.ID, err)
	}
	env.WorkingDir = workingDir.String
	env.Description = desc.String
	if env.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Environment{}, fmt.Errorf("parse created_at for %s: %w", env.ID, err)
	}
	if env.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Environment{}, fmt.Errorf("parse updated_at for %s: %w", env.ID, err)
	}
	return env, nil
}
