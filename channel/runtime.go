package channel

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/njfio/tau/internal/atomicfile"
	"github.com/njfio/tau/tauerrors"
)

// Outcome is the closed tag set a contract evaluator produces for one
// case, per §3.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeMalformedInput   Outcome = "malformed_input"
	OutcomeRetryableFailure Outcome = "retryable_failure"
)

// Case is one unit of work a runtime cycle processes: either a
// fixture-driven ContractCase (ExpectedOutcome set) or a live-polled
// event (ExpectedOutcome empty, no drift check performed).
type Case struct {
	CaseID                   string
	Kind                     EventKind
	EventID                  string
	ConversationID           string
	ExpectedOutcome          Outcome
	ExpectedErrorCode        string
	SimulateRetryableFailure bool
	Payload                  map[string]any
}

// Key computes the case's EventKey.
func (c Case) Key() EventKey {
	return EventKey(string(c.Kind) + ":" + c.EventID)
}

// EvalResult is the pure, deterministic output of evaluating one Case.
type EvalResult struct {
	Outcome      Outcome
	StatusCode   int
	ErrorCode    string
	ResponseBody any
	RoutedKey    string
	ReplyText    string
}

// Evaluator is implemented by each domain's pure contract evaluator
// (gateway, deployment, voice, multi-agent, multi-channel, memory).
type Evaluator interface {
	EvaluateCase(c Case) (EvalResult, error)
}

// RuntimeConfig tunes one runtime's cycle behavior.
type RuntimeConfig struct {
	QueueLimit       int
	QueueRatePerSec  int // admission rate into a cycle; 0 disables backpressure
	RetryMaxAttempts int
	RetryBaseDelayMs int64
	ProcessedKeysCap int
	ClassifyOptions  ClassifyOptions
	Component        string // used in the cycle-events log file name
}

// DefaultRuntimeConfig matches the values used across the testable
// properties of §8.
func DefaultRuntimeConfig(component string) RuntimeConfig {
	return RuntimeConfig{
		QueueLimit:       64,
		QueueRatePerSec:  0,
		RetryMaxAttempts: 2,
		RetryBaseDelayMs: 0,
		ProcessedKeysCap: 4096,
		ClassifyOptions:  DefaultClassifyOptions(),
		Component:        component,
	}
}

// RuntimeState is the persisted, per-runtime JSON state described in §3.
type RuntimeState struct {
	SchemaVersion int                        `json:"schema_version"`
	ProcessedKeys *ProcessedKeyFIFO          `json:"processed_event_keys"`
	Routed        map[string]json.RawMessage `json:"routed"`
	Health        TransportHealthSnapshot    `json:"health"`
}

// CycleReport is the one line appended to <component>-events.jsonl at
// the end of every cycle.
type CycleReport struct {
	TimestampUnixMs int          `json:"timestamp_unix_ms"`
	HealthState     HealthState  `json:"health_state"`
	HealthReason    string       `json:"health_reason"`
	ReasonCodes     []ReasonCode `json:"reason_codes"`
	Discovered      int          `json:"discovered"`
	Queued          int          `json:"queued"`
	Applied         int          `json:"applied_cases"`
	Malformed       int          `json:"malformed_cases"`
	Failed          int          `json:"failed_cases"`
	Duplicates      int          `json:"duplicate_skips"`
	RetryAttempts   int          `json:"retry_attempts"`
	FailureStreak   int          `json:"failure_streak"`
}

// Runtime wraps one component's state directory and drives run_once.
type Runtime struct {
	stateDir string
	config   RuntimeConfig
	logger   *zap.Logger
	nowMs    func() int64
	sleep    func(time.Duration)

	// admission throttles how many cases a single cycle may pull off the
	// queue per second, so a burst of inbound events can't starve the
	// channel store's writers. Nil when QueueRatePerSec is unset.
	admission *rate.Limiter
}

// NewRuntime constructs a Runtime rooted at stateDir.
func NewRuntime(stateDir string, config RuntimeConfig, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	var admission *rate.Limiter
	if config.QueueRatePerSec > 0 {
		burst := config.QueueRatePerSec
		if config.QueueLimit > burst {
			burst = config.QueueLimit
		}
		admission = rate.NewLimiter(rate.Limit(config.QueueRatePerSec), burst)
	}
	return &Runtime{
		stateDir:  stateDir,
		config:    config,
		logger:    logger,
		nowMs:     func() int64 { return time.Now().UnixMilli() },
		sleep:     time.Sleep,
		admission: admission,
	}
}

func (r *Runtime) statePath() string {
	return r.stateDir + "/state.json"
}

func (r *Runtime) eventsLogPath() string {
	return r.stateDir + "/" + r.config.Component + "-events.jsonl"
}

// LoadState loads persisted RuntimeState, tolerating a missing file by
// returning a fresh empty state.
func (r *Runtime) LoadState() (*RuntimeState, error) {
	var state RuntimeState
	err := atomicfile.ReadJSON(r.statePath(), &state)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r.emptyState(), nil
		}
		return nil, err
	}
	if state.ProcessedKeys == nil {
		state.ProcessedKeys = NewProcessedKeyFIFO(r.config.ProcessedKeysCap)
	}
	state.ProcessedKeys.SetCapacity(r.config.ProcessedKeysCap)
	if state.Routed == nil {
		state.Routed = map[string]json.RawMessage{}
	}
	return &state, nil
}

func (r *Runtime) emptyState() *RuntimeState {
	return &RuntimeState{
		SchemaVersion: CurrentSchemaVersion,
		ProcessedKeys: NewProcessedKeyFIFO(r.config.ProcessedKeysCap),
		Routed:        map[string]json.RawMessage{},
	}
}

// CaseHandler persists the side effects of one evaluated case to the
// channel store and is supplied by the concrete runtime (gateway,
// deployment, ...), which knows how to map a Case+EvalResult to a
// conversation's Store.
type CaseHandler interface {
	OnSuccess(ctx context.Context, c Case, result EvalResult) (routedKey string, routedValue any, err error)
	OnMalformed(ctx context.Context, c Case, result EvalResult) error
}

// RunOnce executes one full cycle of §4.3's algorithm.
func (r *Runtime) RunOnce(ctx context.Context, cases []Case, evaluator Evaluator, handler CaseHandler, state *RuntimeState) (CycleReport, error) {
	start := r.nowMs()

	sort.SliceStable(cases, func(i, j int) bool { return cases[i].CaseID < cases[j].CaseID })

	discovered := len(cases)
	queued := discovered
	if r.config.QueueLimit > 0 && queued > r.config.QueueLimit {
		queued = r.config.QueueLimit
		cases = cases[:queued]
	}

	if r.admission != nil && queued > 0 {
		// Block admission of this cycle's cases until the configured
		// ingestion rate allows it, rather than failing the cycle outright.
		if err := r.admission.WaitN(ctx, queued); err != nil {
			return CycleReport{}, tauerrors.New(tauerrors.CodeRetryableFailure, "queue admission wait failed").WithCause(err)
		}
	}

	summary := CycleSummary{Discovered: discovered, Queued: queued}

	for _, c := range cases {
		key := c.Key()
		if state.ProcessedKeys.Contains(key) {
			summary.DuplicateSkips++
			continue
		}

		result, attempts, retryAttempts, err := r.evaluateWithRetry(evaluator, c)
		if err != nil {
			return CycleReport{}, err
		}
		summary.RetryAttempts += retryAttempts

		if c.ExpectedOutcome != "" && result.Outcome != c.ExpectedOutcome {
			return CycleReport{}, tauerrors.Newf(tauerrors.CodeUnsupportedOutcome,
				"contract drift on case %q: expected outcome %q, evaluator produced %q", c.CaseID, c.ExpectedOutcome, result.Outcome)
		}

		switch result.Outcome {
		case OutcomeSuccess:
			summary.AppliedCases++
			if handler != nil {
				routedKey, routedValue, herr := handler.OnSuccess(ctx, c, result)
				if herr != nil {
					return CycleReport{}, herr
				}
				if routedKey != "" {
					encoded, merr := json.Marshal(routedValue)
					if merr != nil {
						return CycleReport{}, merr
					}
					state.Routed[routedKey] = encoded
					summary.RoutedCasesUpserted++
				}
			}
			state.ProcessedKeys.Append(key)

		case OutcomeMalformedInput:
			summary.MalformedCases++
			if handler != nil {
				if herr := handler.OnMalformed(ctx, c, result); herr != nil {
					return CycleReport{}, herr
				}
			}
			state.ProcessedKeys.Append(key)

		case OutcomeRetryableFailure:
			summary.RetryableFailures += attempts
			summary.FailedCases++
			// no processed-key append: eligible for re-evaluation next cycle

		default:
			return CycleReport{}, tauerrors.Newf(tauerrors.CodeUnsupportedOutcome, "unsupported evaluator outcome %q", result.Outcome)
		}
	}

	elapsed := r.nowMs() - start
	newStreak := summary.NextFailureStreak(state.Health.FailureStreak)

	state.Health = TransportHealthSnapshot{
		UpdatedUnixMs:       r.nowMs(),
		CycleDurationMs:     elapsed,
		QueueDepth:          summary.QueueDepth(),
		ActiveRuns:          0,
		FailureStreak:       newStreak,
		LastCycleDiscovered: summary.Discovered,
		LastCycleProcessed:  summary.LastCycleProcessed(),
		LastCycleCompleted:  summary.AppliedCases,
		LastCycleFailed:     summary.FailedCases,
		LastCycleDuplicates: summary.DuplicateSkips,
	}

	classification := Classify(state.Health, r.config.ClassifyOptions)
	reasonCodes := summary.ReasonCodes()

	if err := atomicfile.WriteJSON(r.statePath(), state); err != nil {
		return CycleReport{}, err
	}

	report := CycleReport{
		TimestampUnixMs: int(r.nowMs()),
		HealthState:     classification.State,
		HealthReason:    classification.Reason,
		ReasonCodes:     reasonCodes,
		Discovered:      summary.Discovered,
		Queued:          summary.Queued,
		Applied:         summary.AppliedCases,
		Malformed:       summary.MalformedCases,
		Failed:          summary.FailedCases,
		Duplicates:      summary.DuplicateSkips,
		RetryAttempts:   summary.RetryAttempts,
		FailureStreak:   newStreak,
	}

	encoded, err := json.Marshal(report)
	if err != nil {
		return CycleReport{}, err
	}
	if err := atomicfile.AppendLine(r.eventsLogPath(), encoded); err != nil {
		return CycleReport{}, err
	}

	return report, nil
}

// evaluateWithRetry applies exponential backoff
// base_delay_ms * 2^(attempt-1) with saturation, retrying a
// retryable_failure outcome up to retry_max_attempts, per §4.3 step 6.
// It returns the final result, the total number of attempts made, and
// the number of those attempts that were retries (attempts-1, floored
// at 0).
func (r *Runtime) evaluateWithRetry(evaluator Evaluator, c Case) (EvalResult, int, int, error) {
	maxAttempts := r.config.RetryMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var result EvalResult
	var err error
	attempts := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := saturatingBackoff(r.config.RetryBaseDelayMs, attempt-1)
			if delay > 0 {
				r.sleep(time.Duration(delay) * time.Millisecond)
			}
		}
		result, err = evaluator.EvaluateCase(c)
		attempts++
		if err != nil {
			return EvalResult{}, attempts, attempts - 1, err
		}
		if result.Outcome != OutcomeRetryableFailure {
			break
		}
	}

	retryAttempts := attempts - 1
	if retryAttempts < 0 {
		retryAttempts = 0
	}
	return result, attempts, retryAttempts, nil
}

// saturatingBackoff computes base_delay_ms * 2^shift, saturating at
// math.MaxInt64 instead of overflowing.
func saturatingBackoff(baseDelayMs int64, shift int) int64 {
	if baseDelayMs <= 0 {
		return 0
	}
	if shift >= 63 {
		return math.MaxInt64
	}
	multiplier := int64(1) << uint(shift)
	if baseDelayMs > math.MaxInt64/multiplier {
		return math.MaxInt64
	}
	return baseDelayMs * multiplier
}
