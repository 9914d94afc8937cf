package rpc

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/njfio/tau/tauerrors"
)

// WebSocketTransport serves the Dispatcher's frame protocol over an
// upgraded websocket connection, as an alternative to the stdin/stdout
// NDJSON transport ServeNDJSON implements for the CLI. Each inbound
// text message is one frame; each outbound message (synchronous
// response or asynchronous stream event) is written back as its own
// text message in the same order ServeNDJSON guarantees.
type WebSocketTransport struct {
	Dispatcher *Dispatcher
}

// ServeHTTP upgrades the request to a websocket and serves frames on it
// until the peer disconnects or the request context is canceled.
func (t *WebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "transport closed")

	ctx := r.Context()
	if err := t.serve(ctx, conn); err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (t *WebSocketTransport) serve(ctx context.Context, conn *websocket.Conn) error {
	write := func(f Frame) error {
		data, err := f.Encode()
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, data)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			_ = write(NewErrorFrame("", tauerrors.CodeOf(perr), perr.Error()))
			continue
		}

		resp, after := t.Dispatcher.Dispatch(ctx, frame, func(streamFrame Frame) {
			_ = write(streamFrame)
		})
		if err := write(resp); err != nil {
			return err
		}
		if after != nil {
			after()
		}
	}
}
