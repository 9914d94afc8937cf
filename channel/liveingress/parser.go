// Package liveingress implements the multi-channel live ingress of
// spec §4.2: transport-specific parsers that normalize raw provider
// payloads (Telegram/Discord/WhatsApp wire shapes) into the canonical
// channel.InboundEvent, append them to a per-transport NDJSON ingress
// log, and surface a closed parse-error reason-code set on failure.
package liveingress

import (
	"encoding/json"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/tauerrors"
)

// ParseErrorCode is the closed reason-code set a parser can fail with.
type ParseErrorCode string

const (
	ParseErrorUnsupportedSchema ParseErrorCode = "unsupported_schema_version"
	ParseErrorMalformedPayload  ParseErrorCode = "malformed_provider_payload"
	ParseErrorEmptyEvent        ParseErrorCode = "empty_text_and_no_attachment"
	ParseErrorUnknownTransport  ParseErrorCode = "unknown_transport"
)

// Parser normalizes one transport's raw provider payload into a
// canonical InboundEvent.
type Parser interface {
	Transport() channel.Transport
	Parse(raw json.RawMessage) (channel.InboundEvent, error)
}

// ParserFor resolves the Parser registered for a transport.
func ParserFor(transport channel.Transport) (Parser, error) {
	switch transport {
	case channel.TransportTelegram:
		return TelegramParser{}, nil
	case channel.TransportDiscord:
		return DiscordParser{}, nil
	case channel.TransportWhatsApp:
		return WhatsAppParser{}, nil
	case channel.TransportSlack:
		return SlackParser{}, nil
	default:
		return nil, tauerrors.Newf(tauerrors.CodeUnsupportedKind, "unknown_transport: %s", transport)
	}
}

func finalize(e channel.InboundEvent) (channel.InboundEvent, error) {
	e.SchemaVersion = channel.CurrentSchemaVersion
	e.DetectCommand()
	if err := e.Validate(); err != nil {
		return channel.InboundEvent{}, err
	}
	return e, nil
}

// telegramUpdate is an alias of the library's full tgbotapi.Update type;
// decoding through the library's own type keeps the wire-shape
// mapping grounded on its JSON tags rather than a hand-rolled schema.
type telegramUpdate = tgbotapi.Update

// TelegramParser maps Telegram Bot API update payloads onto the
// canonical envelope.
type TelegramParser struct{}

func (TelegramParser) Transport() channel.Transport { return channel.TransportTelegram }

func (TelegramParser) Parse(raw json.RawMessage) (channel.InboundEvent, error) {
	var update telegramUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return channel.InboundEvent{}, tauerrors.New(tauerrors.CodeParseFailure, "malformed_provider_payload: "+err.Error())
	}
	if update.Message == nil {
		return channel.InboundEvent{}, tauerrors.New(tauerrors.CodeParseFailure, "malformed_provider_payload: telegram update carries no message")
	}
	msg := update.Message

	var attachments []channel.Attachment
	if msg.Document != nil {
		attachments = append(attachments, channel.Attachment{
			AttachmentID: msg.Document.FileID,
			FileName:     msg.Document.FileName,
			ContentType:  msg.Document.MimeType,
			SizeBytes:    int64(msg.Document.FileSize),
		})
	}
	if len(msg.Photo) > 0 {
		largest := msg.Photo[len(msg.Photo)-1]
		attachments = append(attachments, channel.Attachment{
			AttachmentID: largest.FileID,
			ContentType:  "image/*",
			SizeBytes:    int64(largest.FileSize),
		})
	}

	actorID := ""
	actorDisplay := ""
	if msg.From != nil {
		actorID = strconv.FormatInt(msg.From.ID, 10)
		actorDisplay = msg.From.UserName
		if actorDisplay == "" {
			actorDisplay = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		}
	}

	return finalize(channel.InboundEvent{
		Transport:      channel.TransportTelegram,
		EventID:        strconv.Itoa(update.UpdateID),
		ConversationID: strconv.FormatInt(msg.Chat.ID, 10),
		ActorID:        actorID,
		ActorDisplay:   actorDisplay,
		TimestampMs:    uint64(msg.Date) * 1000,
		Text:           msg.Text,
		Attachments:    attachments,
	})
}

// discordMessage is the minimal Discord gateway MESSAGE_CREATE payload
// shape this parser understands.
type discordAttachment struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type discordMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"author"`
	Attachments []discordAttachment `json:"attachments"`
}

// DiscordParser maps Discord gateway message-create payloads onto the
// canonical envelope.
type DiscordParser struct{}

func (DiscordParser) Transport() channel.Transport { return channel.TransportDiscord }

func (DiscordParser) Parse(raw json.RawMessage) (channel.InboundEvent, error) {
	var msg discordMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return channel.InboundEvent{}, tauerrors.New(tauerrors.CodeParseFailure, "malformed_provider_payload: "+err.Error())
	}
	if msg.ID == "" || msg.ChannelID == "" {
		return channel.InboundEvent{}, tauerrors.New(tauerrors.CodeParseFailure, "malformed_provider_payload: discord message missing id/channel_id")
	}

	attachments := make([]channel.Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		attachments = append(attachments, channel.Attachment{
			AttachmentID: a.ID,
			URL:          a.URL,
			FileName:     a.Filename,
			ContentType:  a.ContentType,
			SizeBytes:    a.Size,
		})
	}

	return finalize(channel.InboundEvent{
		Transport:      channel.TransportDiscord,
		EventID:        msg.ID,
		ConversationID: msg.ChannelID,
		ActorID:        msg.Author.ID,
		ActorDisplay:   msg.Author.Username,
		Text:           msg.Content,
		Attachments:    attachments,
	})
}

// whatsAppMessage is the minimal WhatsApp Business webhook message
// shape this parser understands.
type whatsAppMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Document struct {
		ID       string `json:"id"`
		MimeType string `json:"mime_type"`
		Filename string `json:"filename"`
	} `json:"document"`
}

// WhatsAppParser maps WhatsApp Business webhook message payloads onto
// the canonical envelope.
type WhatsAppParser struct{}

func (WhatsAppParser) Transport() channel.Transport { return channel.TransportWhatsApp }

func (WhatsAppParser) Parse(raw json.RawMessage) (channel.InboundEvent, error) {
	var msg whatsAppMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return channel.InboundEvent{}, tauerrors.New(tauerrors.CodeParseFailure, "malformed_provider_payload: "+err.Error())
	}
	if msg.ID == "" || msg.From == "" {
		return channel.InboundEvent{}, tauerrors.New(tauerrors.CodeParseFailure, "malformed_provider_payload: whatsapp message missing id/from")
	}

	var attachments []channel.Attachment
	if msg.Document.ID != "" {
		attachments = append(attachments, channel.Attachment{
			AttachmentID: msg.Document.ID,
			FileName:     msg.Document.Filename,
			ContentType:  msg.Document.MimeType,
		})
	}

	var timestampMs uint64
	if ts, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
		timestampMs = uint64(ts) * 1000
	}

	return finalize(channel.InboundEvent{
		Transport:      channel.TransportWhatsApp,
		EventID:        msg.ID,
		ConversationID: msg.From,
		ActorID:        msg.From,
		TimestampMs:    timestampMs,
		Text:           msg.Text.Body,
		Attachments:    attachments,
	})
}

// slackEventCallback is the minimal Slack Events API event_callback
// envelope this parser understands, covering the message subtype.
type slackEventCallback struct {
	TeamID string `json:"team_id"`
	Event  struct {
		Type      string `json:"type"`
		Channel   string `json:"channel"`
		User      string `json:"user"`
		Text      string `json:"text"`
		Timestamp string `json:"ts"`
		Files     []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Mimetype string `json:"mimetype"`
			Size     int64  `json:"size"`
			URLPriv  string `json:"url_private"`
		} `json:"files"`
	} `json:"event"`
}

// SlackParser maps Slack Events API event_callback payloads onto the
// canonical envelope.
type SlackParser struct{}

func (SlackParser) Transport() channel.Transport { return channel.TransportSlack }

func (SlackParser) Parse(raw json.RawMessage) (channel.InboundEvent, error) {
	var cb slackEventCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return channel.InboundEvent{}, tauerrors.New(tauerrors.CodeParseFailure, "malformed_provider_payload: "+err.Error())
	}
	if cb.Event.Channel == "" || cb.Event.Timestamp == "" {
		return channel.InboundEvent{}, tauerrors.New(tauerrors.CodeParseFailure, "malformed_provider_payload: slack event missing channel/ts")
	}

	attachments := make([]channel.Attachment, 0, len(cb.Event.Files))
	for _, f := range cb.Event.Files {
		attachments = append(attachments, channel.Attachment{
			AttachmentID: f.ID,
			FileName:     f.Name,
			ContentType:  f.Mimetype,
			SizeBytes:    f.Size,
			URL:          f.URLPriv,
		})
	}

	var timestampMs uint64
	if seconds, _, ok := strings.Cut(cb.Event.Timestamp, "."); ok || cb.Event.Timestamp != "" {
		if v, err := strconv.ParseFloat(seconds, 64); err == nil {
			timestampMs = uint64(v * 1000)
		}
	}

	return finalize(channel.InboundEvent{
		Transport:      channel.TransportSlack,
		EventID:        cb.Event.Timestamp,
		ConversationID: cb.Event.Channel,
		ActorID:        cb.Event.User,
		TimestampMs:    timestampMs,
		Text:           cb.Event.Text,
		Attachments:    attachments,
	})
}
