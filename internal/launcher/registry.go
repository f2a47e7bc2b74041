// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"errors"
	"os/exec"
	"sync"
)

// ErrRunNotRunning is returned by Cancel when the run has no live process,
// either because it already finalized or because it never existed.
var ErrRunNotRunning = errors.New("run is not running")

type (
	// liveRun is the in-flight state of one spawned process.
	liveRun struct {
		cmd *exec.Cmd
		// cancelled is set by Cancel before the kill, so the finalizer
		// can distinguish a cancellation from an ordinary failure.
		cancelled bool
	}

	// Registry tracks the live process of every running run. An entry is
	// added when the process starts and removed exactly once, at
	// finalization, under the registry lock; Cancel can therefore never
	// race a finalization into marking a finished run.
	Registry struct {
		mu   sync.Mutex
		live map[string]*liveRun
	}
)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]*liveRun)}
}

// add registers the live process for runID.
func (r *Registry) add(runID string, cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[runID] = &liveRun{cmd: cmd}
}

// finalize runs fn with the run's cancelled flag and removes the entry,
// all under the registry lock. fn performs the (idempotently guarded)
// ledger finalization.
func (r *Registry) finalize(runID string, fn func(cancelled bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.live[runID]
	cancelled := entry != nil && entry.cancelled
	fn(cancelled)
	delete(r.live, runID)
}

// Cancel kills the live process of runID. The run is finalized as cancelled
// by its waiter once the process exits. Returns ErrRunNotRunning when no
// live process exists.
func (r *Registry) Cancel(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.live[runID]
	if !ok {
		return ErrRunNotRunning
	}
	entry.cancelled = true
	if entry.cmd.Process != nil {
		// The process may exit between the lookup and the kill; that
		// late error is indistinguishable from a successful kill here.
		_ = entry.cmd.Process.Kill()
	}
	return nil
}

// Running reports whether runID has a live process.
func (r *Registry) Running(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[runID]
	return ok
}
