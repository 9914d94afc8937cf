package channel

import "sync"

// EventKey is a transport-scoped idempotency token of the form "kind:id",
// globally unique per (transport, conversation_id).
type EventKey string

// ProcessedKeyFIFO is a bounded FIFO of processed EventKeys: once full,
// appending a new key evicts the oldest. Re-observing a key already in
// the FIFO short-circuits the caller as a duplicate skip.
type ProcessedKeyFIFO struct {
	mu      sync.Mutex
	cap     int
	order   []EventKey
	present map[EventKey]struct{}
}

// NewProcessedKeyFIFO constructs a FIFO capped at capacity entries.
func NewProcessedKeyFIFO(capacity int) *ProcessedKeyFIFO {
	if capacity <= 0 {
		capacity = 1
	}
	return &ProcessedKeyFIFO{
		cap:     capacity,
		order:   make([]EventKey, 0, capacity),
		present: make(map[EventKey]struct{}, capacity),
	}
}

// Contains reports whether key has already been processed.
func (f *ProcessedKeyFIFO) Contains(key EventKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.present[key]
	return ok
}

// Append records key as processed, evicting the oldest entry if the FIFO
// is at capacity. Appending an already-present key is a no-op (it does
// not move the key's position).
func (f *ProcessedKeyFIFO) Append(key EventKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.present[key]; ok {
		return
	}
	if len(f.order) >= f.cap {
		oldest := f.order[0]
		f.order = f.order[1:]
		delete(f.present, oldest)
	}
	f.order = append(f.order, key)
	f.present[key] = struct{}{}
}

// Keys returns a snapshot of the currently retained keys, oldest first.
func (f *ProcessedKeyFIFO) Keys() []EventKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]EventKey, len(f.order))
	copy(out, f.order)
	return out
}

// Len returns the number of retained keys.
func (f *ProcessedKeyFIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

// MarshalJSON renders the FIFO as a plain ordered array of keys so it
// round-trips through RuntimeState's JSON shape.
func (f *ProcessedKeyFIFO) MarshalJSON() ([]byte, error) {
	return marshalKeys(f.Keys())
}

// UnmarshalJSON restores the FIFO from a plain ordered array of keys.
// The capacity must be set afterwards via SetCapacity by the caller that
// knows the configured cap (RuntimeState does this on load).
func (f *ProcessedKeyFIFO) UnmarshalJSON(data []byte) error {
	keys, err := unmarshalKeys(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cap == 0 {
		f.cap = max(1, len(keys))
	}
	f.order = append([]EventKey(nil), keys...)
	f.present = make(map[EventKey]struct{}, len(keys))
	for _, k := range keys {
		f.present[k] = struct{}{}
	}
	return nil
}

// SetCapacity updates the FIFO's retention cap, trimming the oldest
// entries immediately if the new cap is smaller than the current size.
func (f *ProcessedKeyFIFO) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = 1
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cap = capacity
	for len(f.order) > f.cap {
		oldest := f.order[0]
		f.order = f.order[1:]
		delete(f.present, oldest)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
