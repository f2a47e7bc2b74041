// SPDX-License-Identifier: MPL-2.0

package envstore

import (
	"context"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Manifest is the portable description of an environment: everything needed
// to recreate it on another machine except the interpreter itself.
type Manifest struct {
	Name       string            `toml:"name"`
	Packages   []PackageSpec     `toml:"packages,omitempty"`
	EnvVars    map[string]string `toml:"env_vars,omitempty"`
	WorkingDir string            `toml:"working_dir,omitempty"`
}

// ExportManifest renders the environment's configuration as TOML.
func (s *Store) ExportManifest(ctx context.Context, id string) ([]byte, error) {
	env, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m := Manifest{
		Name:       env.Name,
		Packages:   env.Packages,
		EnvVars:    env.EnvVars,
		WorkingDir: env.WorkingDir,
	}
	out, err := toml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return out, nil
}

// ImportManifest creates a new managed environment from a TOML manifest
// using basePython as the interpreter.
func (s *Store) ImportManifest(ctx context.Context, data []byte, basePython string) (*Environment, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("manifest has no name")
	}
	return s.Create(ctx, CreateOptions{
		Name:       m.Name,
		PythonPath: basePython,
		Packages:   m.Packages,
		EnvVars:    m.EnvVars,
		WorkingDir: m.WorkingDir,
		Managed:    true,
	})
}
