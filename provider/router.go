package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Router implements the Provider Fallback Router contract of §4.2:
// complete/complete_with_stream iterate an ordered route list, cloning
// the request and substituting each route's model, protected by a
// per-route circuit breaker.
type Router struct {
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	routes   []Route
	breakers map[int]*routeBreaker
}

// NewRouter constructs a Router over routes in the given fallback order.
// Each route gets its own breaker at config (DefaultBreakerConfig if
// zero-valued).
func NewRouter(routes []Route, config BreakerConfig, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		logger:   logger,
		now:      time.Now,
		routes:   routes,
		breakers: make(map[int]*routeBreaker, len(routes)),
	}
	for i := range routes {
		r.breakers[i] = newRouteBreaker(config)
	}
	return r
}

// Complete implements complete(request) from §4.2.
func (r *Router) Complete(ctx context.Context, req CompletionRequest, sink EventSink) (CompletionResponse, error) {
	resp, _, err := r.dispatch(ctx, req, sink, nil)
	return resp, err
}

// CompleteWithStream implements complete_with_stream(request, on_delta)
// from §4.2. Deltas are only forwarded to onDelta once the owning route
// is confirmed as the one that ultimately succeeds; deltas buffered from
// a route that later fails are discarded so they never leak past the
// router boundary.
func (r *Router) CompleteWithStream(ctx context.Context, req CompletionRequest, onDelta func(Delta), sink EventSink) (CompletionResponse, error) {
	resp, _, err := r.dispatch(ctx, req, sink, onDelta)
	return resp, err
}

func (r *Router) dispatch(ctx context.Context, req CompletionRequest, sink EventSink, onDelta func(Delta)) (CompletionResponse, int, error) {
	r.mu.Lock()
	routes := append([]Route(nil), r.routes...)
	r.mu.Unlock()

	if len(routes) == 0 {
		return CompletionResponse{}, -1, &ErrAllRoutesOpen{}
	}

	allOpen := true
	now := r.now()
	for i := range routes {
		if !r.breakers[i].isOpen(now) {
			allOpen = false
			break
		}
	}
	if allOpen {
		return CompletionResponse{}, -1, &ErrAllRoutesOpen{}
	}

	var lastErr error
	for i, route := range routes {
		now := r.now()
		if r.breakers[i].isOpen(now) {
			emit(sink, Event{Kind: EventCircuitSkip, Provider: route.Provider, Model: route.Model})
			continue
		}

		callReq := req
		callReq.Model = route.Model

		var (
			resp    CompletionResponse
			callErr error
		)
		if onDelta != nil {
			buffered := make([]Delta, 0, 8)
			resp, callErr = route.Client.CompleteStream(ctx, callReq, func(d Delta) {
				buffered = append(buffered, d)
			})
			if callErr == nil {
				for _, d := range buffered {
					onDelta(d)
				}
			}
		} else {
			resp, callErr = route.Client.Complete(ctx, callReq)
		}

		if callErr == nil {
			r.breakers[i].recordSuccess()
			return resp, i, nil
		}

		var routeErr *RouteError
		if !errors.As(callErr, &routeErr) {
			return CompletionResponse{}, -1, callErr
		}

		if !isRetryable(routeErr) {
			return CompletionResponse{}, -1, callErr
		}

		lastErr = &fallbackError{from: route, err: routeErr}
		if opened := r.breakers[i].recordFailure(now); opened {
			emit(sink, Event{Kind: EventCircuitOpened, Provider: route.Provider, Model: route.Model})
		}

		if i+1 < len(routes) {
			emit(sink, Event{
				Kind:          EventFallback,
				FromModel:     route.Model,
				ToModel:       routes[i+1].Model,
				ErrorKind:     string(routeErr.Kind),
				Status:        routeErr.Status,
				FallbackIndex: i + 1,
			})
		}
	}

	if lastErr == nil {
		return CompletionResponse{}, -1, &ErrAllRoutesOpen{}
	}
	return CompletionResponse{}, -1, lastErr
}

type fallbackError struct {
	from Route
	err  *RouteError
}

func (e *fallbackError) Error() string {
	return "all fallback routes exhausted, last error on " + e.from.Model + ": " + e.err.Error()
}

func (e *fallbackError) Unwrap() error { return e.err }
