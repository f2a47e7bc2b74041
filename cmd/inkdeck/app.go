// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/inkdeck/inkdeck/internal/config"
	"github.com/inkdeck/inkdeck/internal/exec"
	"github.com/inkdeck/inkdeck/internal/store"
)

// App wires CLI services and shared dependencies. It is the composition
// root for the CLI layer: command handlers load configuration and reach
// the execution service through it, and the database is opened once,
// lazily, on first use.
type App struct {
	stdout io.Writer
	stderr io.Writer

	mu      sync.Mutex
	cfg     *config.Config
	cfgPath string
	st      *store.Store
	svc     *exec.Service
}

// NewApp creates an App writing to the process streams.
func NewApp() *App {
	return &App{stdout: os.Stdout, stderr: os.Stderr}
}

// Config loads (once) and returns the effective configuration. The second
// return value is the config file actually used, empty when running on
// defaults.
func (a *App) Config(ctx context.Context) (*config.Config, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.configLocked(ctx)
}

func (a *App) configLocked(ctx context.Context) (*config.Config, string, error) {
	if a.cfg != nil {
		return a.cfg, a.cfgPath, nil
	}
	cfg, path, err := config.Load(ctx, config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		return nil, "", err
	}
	a.cfg, a.cfgPath = cfg, path
	return cfg, path, nil
}

// Service returns the execution service, opening the database on first
// call.
func (a *App) Service(ctx context.Context) (*exec.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.svc != nil {
		return a.svc, nil
	}

	cfg, _, err := a.configLocked(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	svc := exec.New(st, cfg.EnvironmentsDir)
	if cfg.DefaultShell != "" {
		svc.SetDefaultShell(cfg.DefaultShell)
	}

	a.st, a.svc = st, svc
	return svc, nil
}

// Close releases the database. Safe to call when nothing was opened.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.st == nil {
		return nil
	}
	err := a.st.Close()
	a.st, a.svc = nil, nil
	return err
}
