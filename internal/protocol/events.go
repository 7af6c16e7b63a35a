package protocol

import "encoding/json"

// Envelope is the frame exchanged over the realtime channel. Every frame
// names an event and carries its payload as raw JSON, decoded by whoever
// knows the event type.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

const (
	EventJoin    = "join"
	EventMessage = "message"
	EventLeave   = "leave"
)

// JoinPayload announces entry into a room.
type JoinPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// LeavePayload announces departure from a room. The server also infers
// departure from a dropped connection; this is the explicit signal.
type LeavePayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// MessagePayload is an outbound chat message scoped to a room.
type MessagePayload struct {
	Room     string `json:"room"`
	Msg      string `json:"msg"`
	Username string `json:"username"`
}

// ChatEvent is an inbound chat line. A username-bearing event is an
// attributed user message; without a username it is a system notice
// (join/leave announcement). Room may be empty: the deployed transport
// only delivers events for rooms the client joined and omits the field.
type ChatEvent struct {
	Room     string `json:"room,omitempty"`
	Username string `json:"username,omitempty"`
	Msg      string `json:"msg"`
}

// System reports whether the event is a system notice rather than an
// attributed user message.
func (e ChatEvent) System() bool { return e.Username == "" }

// NewEnvelope marshals data into an Envelope for the given event.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}
