// Package channel implements the Channel Runtime Framework of
// specification §4.3: the canonical event envelope, idempotency keys,
// the per-conversation channel store, and the shared run_once cycle
// skeleton every channel runtime (gateway, deployment, voice,
// multi-agent, multi-channel, memory, GitHub issues) is built from.
package channel

import (
	"strings"

	"github.com/njfio/tau/tauerrors"
)

// CurrentSchemaVersion is the only InboundEvent schema version this
// implementation accepts.
const CurrentSchemaVersion = 1

// Transport is the closed tag set of ingress transports.
type Transport string

const (
	TransportGateway    Transport = "gateway"
	TransportDeployment Transport = "deployment"
	TransportVoice      Transport = "voice"
	TransportMultiAgent Transport = "multi_agent"
	TransportMemory     Transport = "memory"
	TransportGitHub     Transport = "github"
	TransportTelegram   Transport = "telegram"
	TransportDiscord    Transport = "discord"
	TransportWhatsApp   Transport = "whatsapp"
	TransportSlack      Transport = "slack"
)

// EventKind is the closed tag set of inbound event kinds.
type EventKind string

const (
	EventKindMessage EventKind = "message"
	EventKindCommand EventKind = "command"
)

// Attachment is one ordered attachment carried on an InboundEvent.
type Attachment struct {
	AttachmentID string `json:"attachment_id"`
	URL          string `json:"url,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
}

// MetadataValue is a tagged scalar: exactly one of the fields is set,
// mirroring the free-form metadata map's "string to tagged scalar" shape.
type MetadataValue struct {
	Str  *string  `json:"str,omitempty"`
	Int  *int64   `json:"int,omitempty"`
	Bool *bool    `json:"bool,omitempty"`
	Num  *float64 `json:"num,omitempty"`
}

// StringMetadata constructs a string-tagged MetadataValue.
func StringMetadata(v string) MetadataValue { return MetadataValue{Str: &v} }

// InboundEvent is the canonical normalized event every channel ingests.
type InboundEvent struct {
	SchemaVersion  int                      `json:"schema_version"`
	Transport      Transport                `json:"transport"`
	EventKind      EventKind                `json:"event_kind"`
	EventID        string                   `json:"event_id"`
	ConversationID string                   `json:"conversation_id"`
	ThreadID       string                   `json:"thread_id,omitempty"`
	ActorID        string                   `json:"actor_id"`
	ActorDisplay   string                   `json:"actor_display,omitempty"`
	TimestampMs    uint64                   `json:"timestamp_ms"`
	Text           string                   `json:"text"`
	Attachments    []Attachment             `json:"attachments,omitempty"`
	Metadata       map[string]MetadataValue `json:"metadata,omitempty"`
}

// Validate enforces the InboundEvent invariants of §3: either non-empty
// trimmed text or at least one attachment, and a supported schema
// version.
func (e *InboundEvent) Validate() error {
	if e.SchemaVersion != CurrentSchemaVersion {
		return tauerrors.Newf(tauerrors.CodeUnsupportedSchema, "unsupported inbound event schema version %d", e.SchemaVersion)
	}
	if strings.TrimSpace(e.Text) == "" && len(e.Attachments) == 0 {
		return tauerrors.New(tauerrors.CodeMissingField, "inbound event must carry non-empty text or at least one attachment")
	}
	return nil
}

// Key computes the event's EventKey: "{event_kind}:{event_id}".
func (e *InboundEvent) Key() EventKey {
	return EventKey(string(e.EventKind) + ":" + e.EventID)
}

// DetectCommand sets EventKind to EventKindCommand when text starts with
// "/", else EventKindMessage. Matches the live-ingress parser contract.
func (e *InboundEvent) DetectCommand() {
	if strings.HasPrefix(strings.TrimSpace(e.Text), "/") {
		e.EventKind = EventKindCommand
	} else {
		e.EventKind = EventKindMessage
	}
}
