package rpc

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/njfio/tau/tauerrors"
)

// RunWorker performs the actual work behind a started run (out of
// scope per spec §1 — the embedded LLM client is an external
// collaborator). It should emit stream frames via emit and return once
// its work naturally concludes or ctx is cancelled; the dispatcher
// itself drives the terminal-state transition from an explicit
// run.complete/run.fail/run.timeout/run.cancel frame, not from the
// worker returning.
type RunWorker func(ctx context.Context, runID string, emit func(Frame))

var terminalKindToState = map[Kind]TerminalState{
	KindRunComplete: TerminalCompleted,
	KindRunFail:     TerminalFailed,
	KindRunTimeout:  TerminalTimedOut,
	KindRunCancel:   TerminalCancelled,
}

// Dispatcher implements the single-frame, NDJSON-from-file, and
// NDJSON-serve dispatch modes over a shared Registry.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
	nowMs    func() int64
	worker   RunWorker
}

// NewDispatcher constructs a Dispatcher. worker may be nil (no stream
// events are ever emitted; terminal transitions still work).
func NewDispatcher(logger *zap.Logger, worker RunWorker) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: NewRegistry(),
		logger:   logger,
		nowMs:    func() int64 { return time.Now().UnixMilli() },
		worker:   worker,
	}
}

// Registry exposes the dispatcher's run registry for read-only
// inspection (used by operator diagnostics).
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch evaluates a single frame synchronously, mutating run state
// as needed, and returns its response frame plus an optional after
// callback. The caller MUST invoke after (if non-nil) only once the
// response frame itself has been written/enqueued, so that anything
// after triggers — a spawned run worker's first stream event, or a
// terminal-state echo — is strictly ordered behind it, per §4.4's
// ordering guarantee. emit (may be nil) receives stream frames a
// spawned run worker produces asynchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, frame Frame, emit func(Frame)) (Frame, func()) {
	if frame.SchemaVersion != CurrentSchemaVersion && !(frame.Kind == KindCapabilitiesRequest && frame.SchemaVersion == 0) {
		return NewErrorFrame(frame.RequestID, tauerrors.CodeUnsupportedSchema, "unsupported rpc frame schema_version"), nil
	}

	switch frame.Kind {
	case KindCapabilitiesRequest:
		requested := 0
		if v, ok := frame.Payload["request_schema_version"]; ok {
			requested = toInt(v)
		}
		resp, err := BuildCapabilitiesResponse(frame.RequestID, requested)
		if err != nil {
			return NewErrorFrame(frame.RequestID, tauerrors.CodeOf(err), err.Error()), nil
		}
		return resp, nil

	case KindRunStart:
		prompt, _ := frame.Payload["prompt"].(string)
		if strings.TrimSpace(prompt) == "" {
			return NewErrorFrame(frame.RequestID, tauerrors.CodeInvalidPayload, "run.start requires a non-empty prompt"), nil
		}
		runID := RunIDFor(frame.RequestID)
		runCtx, cancel := context.WithCancel(ctx)
		if _, err := d.registry.Start(runID, d.nowMs(), cancel); err != nil {
			cancel()
			return NewErrorFrame(frame.RequestID, tauerrors.CodeOf(err), err.Error()), nil
		}
		resp := Frame{
			SchemaVersion: CurrentSchemaVersion,
			RequestID:     frame.RequestID,
			Kind:          KindRunAccepted,
			Payload:       map[string]any{"run_id": runID, "status": string(StatusRunning)},
		}
		after := func() {}
		if d.worker != nil {
			after = func() {
				go d.worker(runCtx, runID, func(f Frame) {
					d.registry.IncrementStream(runID)
					if emit != nil {
						emit(f)
					}
				})
			}
		}
		return resp, after

	case KindRunCancel, KindRunComplete, KindRunFail, KindRunTimeout:
		runID, _ := frame.Payload["run_id"].(string)
		reason, _ := frame.Payload["reason"].(string)
		terminal := terminalKindToState[frame.Kind]
		run, err := d.registry.Transition(runID, terminal, reason)
		if err != nil {
			return NewErrorFrame(frame.RequestID, tauerrors.CodeOf(err), err.Error()), nil
		}
		payload := map[string]any{"run_id": run.RunID, "terminal_state": string(terminal)}
		if reason != "" {
			payload["reason"] = reason
		}
		respKind := terminalKindFor[terminal]
		resp := Frame{SchemaVersion: CurrentSchemaVersion, RequestID: frame.RequestID, Kind: respKind, Payload: payload}
		after := func() {
			if emit != nil {
				emit(Frame{SchemaVersion: CurrentSchemaVersion, Kind: respKind, Payload: payload})
			}
		}
		return resp, after

	case KindRunStatus:
		runID, _ := frame.Payload["run_id"].(string)
		view := d.registry.StatusOf(runID)
		return Frame{SchemaVersion: CurrentSchemaVersion, RequestID: frame.RequestID, Kind: KindRunStatusResponse, Payload: view.ToPayload()}, nil

	default:
		return NewErrorFrame(frame.RequestID, tauerrors.CodeUnsupportedKind, "unsupported rpc frame kind "+string(frame.Kind)), nil
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
