// SPDX-License-Identifier: MPL-2.0

// Package exec is the caller-facing surface of the execution subsystem. It
// wires interpreter discovery, the environment store, node bindings, the
// process launcher, and the run ledger behind one Service, which is what
// the host application and the CLI talk to.
package exec

import (
	"context"

	"github.com/inkdeck/inkdeck/internal/binding"
	"github.com/inkdeck/inkdeck/internal/envstore"
	"github.com/inkdeck/inkdeck/internal/interpreter"
	"github.com/inkdeck/inkdeck/internal/launcher"
	"github.com/inkdeck/inkdeck/internal/ledger"
	"github.com/inkdeck/inkdeck/internal/pubsub"
	"github.com/inkdeck/inkdeck/internal/script"
	"github.com/inkdeck/inkdeck/internal/store"
)

type (
	// RunOptions describes one script execution request.
	RunOptions struct {
		// NodeID is the owning document.
		NodeID string
		// Language selects the interpreter family.
		Language script.Language
		// Source is the script text to execute.
		Source string
		// Console selects how output is surfaced; zero value captures.
		Console script.ConsoleMode
		// Defaults steer environment auto-provisioning for python runs.
		Defaults binding.Defaults
	}

	// Service is the execution subsystem's caller contract.
	Service struct {
		detector *interpreter.Detector
		envs     *envstore.Store
		bindings *binding.Manager
		ledger   *ledger.Ledger
		launcher *launcher.Launcher
	}
)

// New assembles a Service over the given store. envRoot is the directory
// managed environments materialize under.
func New(st *store.Store, envRoot string) *Service {
	envs := envstore.New(st, envRoot)
	led := ledger.New(st)
	return &Service{
		detector: interpreter.NewDetector(),
		envs:     envs,
		bindings: binding.New(st, envs),
		ledger:   led,
		launcher: launcher.New(led),
	}
}

// Environments exposes the environment store, for callers that need the
// manifest import/export operations directly.
func (s *Service) Environments() *envstore.Store { return s.envs }

// SetDetector substitutes interpreter discovery. Tests use this to supply
// fixed interpreter sets.
func (s *Service) SetDetector(d *interpreter.Detector) { s.detector = d }

// SetDefaultShell overrides $SHELL for shell scripts, typically from
// configuration.
func (s *Service) SetDefaultShell(shell string) { s.launcher.SetDefaultShell(shell) }

// DetectInterpreters returns every usable Python interpreter on the host.
func (s *Service) DetectInterpreters(ctx context.Context) []interpreter.Interpreter {
	return s.detector.Detect(ctx)
}

// ListEnvironments returns all registered environments.
func (s *Service) ListEnvironments(ctx context.Context) ([]envstore.Environment, error) {
	return s.envs.List(ctx)
}

// CreateEnvironment registers (and for managed requests, provisions) an
// environment.
func (s *Service) CreateEnvironment(ctx context.Context, opts envstore.CreateOptions) (*envstore.Environment, error) {
	return s.envs.Create(ctx, opts)
}

// UpdateEnvironment merges the provided fields and reinstalls packages when
// they changed on a managed environment.
func (s *Service) UpdateEnvironment(ctx context.Context, id string, opts envstore.UpdateOptions) (*envstore.Environment, error) {
	return s.envs.Update(ctx, id, opts)
}

// DeleteEnvironment removes the registration and any managed tree.
func (s *Service) DeleteEnvironment(ctx context.Context, id string) error {
	return s.envs.Delete(ctx, id)
}

// GetEnvironment returns one environment, or envstore.ErrNotFound.
func (s *Service) GetEnvironment(ctx context.Context, id string) (*envstore.Environment, error) {
	return s.envs.Get(ctx, id)
}

// GetNodeSettings returns the binding for (nodeID, lang).
func (s *Service) GetNodeSettings(ctx context.Context, nodeID string, lang script.Language) (*binding.Settings, error) {
	return s.bindings.Settings(ctx, nodeID, lang)
}

// SetNodeSettings upserts the environment preference for (nodeID, lang).
func (s *Service) SetNodeSettings(ctx context.Context, nodeID string, lang script.Language, envID string, autoDetect bool) error {
	return s.bindings.SetSettings(ctx, nodeID, lang, envID, autoDetect)
}

// EnsureNodeEnvironment resolves or provisions the environment python runs
// on nodeID should use. When interpreters is nil, discovery runs first.
func (s *Service) EnsureNodeEnvironment(ctx context.Context, nodeID string, defaults binding.Defaults, interpreters []interpreter.Interpreter) (*envstore.Environment, error) {
	if interpreters == nil {
		interpreters = s.detector.Detect(ctx)
	}
	return s.bindings.EnsureEnvironment(ctx, nodeID, defaults, interpreters)
}

// RunScript launches one execution attempt and returns once the run is
// accepted: either running with a live process, or already failed by
// pre-flight validation. Python runs resolve their environment through the
// node binding first; environment provisioning failures are returned as
// errors since no run has been accepted yet.
func (s *Service) RunScript(ctx context.Context, opts RunOptions) (*ledger.Run, error) {
	if err := opts.Language.Validate(); err != nil {
		return nil, err
	}

	var env *envstore.Environment
	if opts.Language == script.LanguagePython {
		resolved, err := s.EnsureNodeEnvironment(ctx, opts.NodeID, opts.Defaults, nil)
		if err != nil {
			return nil, err
		}
		env = resolved
	}

	run, err := s.launcher.Launch(ctx, launcher.Options{
		NodeID:   opts.NodeID,
		Language: opts.Language,
		Source:   opts.Source,
		Console:  opts.Console,
		Env:      env,
	})
	if err != nil {
		return nil, err
	}

	if err := s.bindings.RecordRun(ctx, opts.NodeID, opts.Language, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// CancelRun kills the live process of runID; the run finalizes as
// cancelled. Returns launcher.ErrRunNotRunning for unknown or finished runs.
func (s *Service) CancelRun(runID string) error {
	return s.launcher.Cancel(runID)
}

// GetRun returns one run, or ledger.ErrRunNotFound.
func (s *Service) GetRun(ctx context.Context, runID string) (*ledger.Run, error) {
	return s.ledger.Run(ctx, runID)
}

// GetRunsForNode returns up to limit runs for the node, most recent first.
func (s *Service) GetRunsForNode(ctx context.Context, nodeID string, limit int) ([]ledger.Run, error) {
	return s.ledger.RunsForNode(ctx, nodeID, limit)
}

// GetRunLogs returns the run's log entries in insertion order.
func (s *Service) GetRunLogs(ctx context.Context, runID string) ([]ledger.LogEntry, error) {
	return s.ledger.Logs(ctx, runID)
}

// SubscribeLogs registers a handler for every appended log entry.
func (s *Service) SubscribeLogs(h pubsub.Handler[ledger.LogEvent]) *pubsub.Subscription {
	return s.ledger.SubscribeLogs(h)
}

// SubscribeStatus registers a handler for every run finalization.
func (s *Service) SubscribeStatus(h pubsub.Handler[ledger.StatusEvent]) *pubsub.Subscription {
	return s.ledger.SubscribeStatus(h)
}
