package provider

import "fmt"

// ErrorKind classifies a route-call failure for the retryable/non-retryable
// split described in §4.2 and the EventFallback payload's error_kind.
type ErrorKind string

const (
	ErrorKindHTTPStatus       ErrorKind = "http_status"
	ErrorKindTransportTimeout ErrorKind = "transport_timeout"
	ErrorKindTransportConnect ErrorKind = "transport_connect"
	ErrorKindTransportBody    ErrorKind = "transport_body"
	ErrorKindTransportRequest ErrorKind = "transport_request"
	ErrorKindClient           ErrorKind = "client_error"
)

// RouteError is the error shape a Client implementation returns. Status
// is only meaningful when Kind == ErrorKindHTTPStatus.
type RouteError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *RouteError) Error() string {
	if e.Kind == ErrorKindHTTPStatus {
		return fmt.Sprintf("route call failed: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("route call failed: %s: %s", e.Kind, e.Message)
}

var retryableStatuses = map[int]bool{
	408: true, 409: true, 425: true, 429: true,
}

// isRetryable implements the retryable-error predicate of §4.2: HTTP
// 408/409/425/429/>=500, or any transport-level error.
func isRetryable(err *RouteError) bool {
	switch err.Kind {
	case ErrorKindHTTPStatus:
		return retryableStatuses[err.Status] || err.Status >= 500
	case ErrorKindTransportTimeout, ErrorKindTransportConnect, ErrorKindTransportBody, ErrorKindTransportRequest:
		return true
	default:
		return false
	}
}

// ErrAllRoutesOpen is returned when every configured route's circuit is
// currently open; the router fails fast instead of surfacing the last
// provider's error.
type ErrAllRoutesOpen struct{}

func (e *ErrAllRoutesOpen) Error() string {
	return "all provider routes are circuit-open"
}
