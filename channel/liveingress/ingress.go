package liveingress

import (
	"encoding/json"
	"path/filepath"

	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/internal/atomicfile"
)

// IngressResult is what Ingest returns: the normalized event plus where
// it was appended.
type IngressResult struct {
	Event   channel.InboundEvent
	LogPath string
}

// Ingest parses a raw provider payload for transport, normalizes it
// into a canonical InboundEvent, and appends it to
// <ingressDir>/<transport>.ndjson. The raw payload is appended
// regardless of replay, matching §8's "re-ingesting the same raw
// payload twice appends two lines" property.
func Ingest(ingressDir string, transport channel.Transport, raw json.RawMessage) (IngressResult, error) {
	parser, err := ParserFor(transport)
	if err != nil {
		return IngressResult{}, err
	}

	event, err := parser.Parse(raw)
	if err != nil {
		return IngressResult{}, err
	}

	logPath := filepath.Join(ingressDir, string(transport)+".ndjson")
	encoded, err := json.Marshal(event)
	if err != nil {
		return IngressResult{}, err
	}
	if err := atomicfile.AppendLine(logPath, encoded); err != nil {
		return IngressResult{}, err
	}

	return IngressResult{Event: event, LogPath: logPath}, nil
}
