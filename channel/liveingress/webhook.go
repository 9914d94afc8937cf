package liveingress

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/njfio/tau/channel"
)

var webhookUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebhookReceiver upgrades a Discord/WhatsApp-style streaming webhook
// connection to a websocket and ingests every JSON frame it carries,
// one raw provider payload per message.
type WebhookReceiver struct {
	IngressDir string
	Transport  channel.Transport
	OnIngested func(IngressResult)
	OnError    func(error)
}

// ServeHTTP upgrades the request and reads frames until the peer
// disconnects or the request context is canceled.
func (r *WebhookReceiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := webhookUpgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("webhook upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	r.readLoop(req.Context(), conn)
}

func (r *WebhookReceiver) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if r.OnError != nil {
				r.OnError(err)
			}
			return
		}

		var probe json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			if r.OnError != nil {
				r.OnError(err)
			}
			continue
		}

		result, err := Ingest(r.IngressDir, r.Transport, probe)
		if err != nil {
			if r.OnError != nil {
				r.OnError(err)
			}
			continue
		}
		if r.OnIngested != nil {
			r.OnIngested(result)
		}
	}
}
