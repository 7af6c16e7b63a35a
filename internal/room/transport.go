package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/ridetrack/ridetrack/internal/protocol"
)

// WebsocketTransport is the production Transport: one websocket
// connection with a reader goroutine feeding a buffered event channel.
// When the channel is full the event is dropped and logged rather than
// blocking the reader.
type WebsocketTransport struct {
	conn   *websocket.Conn
	events chan protocol.ChatEvent
	logger *slog.Logger
	done   chan struct{}
}

// Dial connects to the realtime channel endpoint.
func Dial(ctx context.Context, wsURL string, logger *slog.Logger) (*WebsocketTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, response, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if response != nil {
			logger.Warn("websocket handshake rejected", "status", response.Status)
		}
		return nil, fmt.Errorf("room: dial %s: %w", wsURL, err)
	}

	transport := &WebsocketTransport{
		conn:   conn,
		events: make(chan protocol.ChatEvent, 64),
		logger: logger,
		done:   make(chan struct{}),
	}
	go transport.readLoop()
	return transport, nil
}

func (t *WebsocketTransport) readLoop() {
	defer close(t.done)
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Debug("realtime channel closed")
			} else {
				t.logger.Warn("realtime channel read failed", "error", err)
			}
			return
		}

		var envelope protocol.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			t.logger.Warn("unparseable realtime frame", "error", err)
			continue
		}
		if envelope.Event != protocol.EventMessage {
			continue
		}
		var event protocol.ChatEvent
		if err := json.Unmarshal(envelope.Data, &event); err != nil {
			t.logger.Warn("unparseable chat event", "error", err)
			continue
		}

		select {
		case t.events <- event:
		default:
			t.logger.Warn("event channel full, dropping chat event")
		}
	}
}

// Emit sends one event frame.
func (t *WebsocketTransport) Emit(event string, data any) error {
	envelope, err := protocol.NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("room: failed to encode %s event: %w", event, err)
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("room: failed to encode frame: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("room: failed to write %s event: %w", event, err)
	}
	return nil
}

// Events returns the inbound chat event channel.
func (t *WebsocketTransport) Events() <-chan protocol.ChatEvent {
	return t.events
}

// Done is closed when the reader goroutine exits.
func (t *WebsocketTransport) Done() <-chan struct{} {
	return t.done
}

// Close sends a close frame best-effort and tears down the connection.
func (t *WebsocketTransport) Close() error {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := t.conn.WriteMessage(websocket.CloseMessage, message); err != nil {
		t.logger.Debug("close frame not delivered", "error", err)
	}
	return t.conn.Close()
}

// OfflineTransport stands in when the realtime channel is unreachable.
// Emits fail (callers log and carry on) and no events ever arrive, so
// chat silently no-ops while the rest of the client keeps working.
type OfflineTransport struct{}

func (OfflineTransport) Emit(event string, data any) error {
	return fmt.Errorf("room: realtime channel unavailable")
}

// Events returns nil; receiving from a nil channel blocks forever, which
// is exactly what Drain's non-blocking select wants.
func (OfflineTransport) Events() <-chan protocol.ChatEvent { return nil }

func (OfflineTransport) Close() error { return nil }
