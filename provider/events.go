package provider

// EventKind enumerates the structured events the fallback router emits.
type EventKind string

const (
	EventCircuitOpened EventKind = "provider_circuit_opened"
	EventCircuitSkip   EventKind = "provider_circuit_skip"
	EventFallback      EventKind = "provider_fallback"
)

// Event is a structured, side-channel notification the router emits as
// it walks the route list. Fields mirrors the named payload shapes in
// §4.2 (from_model/to_model/error_kind/status/fallback_index for
// EventFallback; provider/model for circuit events).
type Event struct {
	Kind          EventKind
	Provider      string
	Model         string
	FromModel     string
	ToModel       string
	ErrorKind     string
	Status        int
	FallbackIndex int
}

// EventSink receives router events. Nil is a valid no-op sink.
type EventSink func(Event)

func emit(sink EventSink, ev Event) {
	if sink != nil {
		sink(ev)
	}
}
