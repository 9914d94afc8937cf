package rpc

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/njfio/tau/tauerrors"
)

// Status is a Run's lifecycle status: "running" plus the four terminal
// states.
type Status string

const (
	StatusRunning Status = "running"
)

// Run is one RPC-dispatched unit of work, identified by run_id
// (`run-{request_id}` when started via run.start).
type Run struct {
	RunID            string
	Status           Status
	StartUnixMs      int64
	StreamEventCount int
	TerminalState    TerminalState
	TerminalReason   string

	cancel context.CancelFunc
}

// IsTerminal reports whether the run has settled into one of the four
// terminal states.
func (r *Run) IsTerminal() bool {
	return r.Status != StatusRunning
}

// RunIDFor derives the canonical run id for a run.start request.
func RunIDFor(requestID string) string {
	return "run-" + requestID
}

// Registry is the in-memory map of active and terminal runs, protected
// by a single mutex (per spec §5's "single async mutex" shared-state
// rule, generalized to a regular sync.Mutex for the synchronous
// dispatch path).
type Registry struct {
	mu   sync.Mutex
	runs map[string]*Run

	// statusGroup collapses concurrent run.status lookups for the same
	// run_id (e.g. a client polling while a dispatcher replica also
	// queries) into a single StatusOf call.
	statusGroup singleflight.Group
}

// NewRegistry constructs an empty run registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Run)}
}

// Start registers a new running Run, failing if runID is already known.
func (reg *Registry) Start(runID string, nowUnixMs int64, cancel context.CancelFunc) (*Run, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.runs[runID]; exists {
		return nil, tauerrors.Newf(tauerrors.CodeIdempotencyConflict, "run %q already started", runID)
	}
	run := &Run{RunID: runID, Status: StatusRunning, StartUnixMs: nowUnixMs, cancel: cancel}
	reg.runs[runID] = run
	return run, nil
}

// Get returns the run for runID, or (nil, false) if unknown.
func (reg *Registry) Get(runID string) (*Run, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	run, ok := reg.runs[runID]
	return run, ok
}

// IncrementStream bumps the stream-event counter for an active run.
func (reg *Registry) IncrementStream(runID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if run, ok := reg.runs[runID]; ok {
		run.StreamEventCount++
	}
}

// Transition moves runID from running to the given terminal state. A
// run once terminal cannot transition again; transitioning an unknown
// run is an error.
func (reg *Registry) Transition(runID string, terminal TerminalState, reason string) (*Run, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	run, ok := reg.runs[runID]
	if !ok {
		return nil, tauerrors.Newf(tauerrors.CodeInvalidPayload, "unknown run_id %q", runID)
	}
	if run.IsTerminal() {
		return nil, tauerrors.Newf(tauerrors.CodeIdempotencyConflict, "run %q is already terminal (%s)", runID, run.TerminalState)
	}
	run.Status = Status(terminal)
	run.TerminalState = terminal
	run.TerminalReason = reason
	if run.cancel != nil {
		run.cancel()
	}
	return run, nil
}

// StatusView is the {active, known, status, terminal_state?, reason?}
// payload shape for run.status responses.
type StatusView struct {
	Active        bool
	Known         bool
	Status        Status
	TerminalState TerminalState
	Reason        string
}

// StatusOf builds the StatusView for runID, known=false when unrecognized.
// Concurrent callers for the same run_id share one underlying lookup.
func (reg *Registry) StatusOf(runID string) StatusView {
	view, _, _ := reg.statusGroup.Do(runID, func() (any, error) {
		return reg.statusOfLocked(runID), nil
	})
	return view.(StatusView)
}

func (reg *Registry) statusOfLocked(runID string) StatusView {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	run, ok := reg.runs[runID]
	if !ok {
		return StatusView{Active: false, Known: false}
	}
	return StatusView{
		Active:        !run.IsTerminal(),
		Known:         true,
		Status:        run.Status,
		TerminalState: run.TerminalState,
		Reason:        run.TerminalReason,
	}
}

func (v StatusView) ToPayload() map[string]any {
	payload := map[string]any{"active": v.Active, "known": v.Known}
	if v.Known {
		payload["status"] = string(v.Status)
		if v.TerminalState != "" {
			payload["terminal_state"] = string(v.TerminalState)
		}
		if v.Reason != "" {
			payload["reason"] = v.Reason
		}
	}
	return payload
}
