// Package room manages the single active realtime room: a chat channel
// scoped to one group, keyed "group_<id>". At most one room is active at
// any time; the coordinator's state guard enforces it.
package room

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ridetrack/ridetrack/internal/protocol"
)

var (
	ErrAlreadyInRoom = errors.New("room: already in a room")
	ErrNotInRoom     = errors.New("room: not in a room")
	ErrEmptyMessage  = errors.New("room: message text is empty")
)

// Transport carries events to and from the realtime channel. Emit is
// fire-and-forget from the coordinator's point of view; inbound events
// arrive on Events from a reader goroutine.
type Transport interface {
	Emit(event string, data any) error
	Events() <-chan protocol.ChatEvent
	Close() error
}

// KeyForGroup derives the room key for a group's chat channel.
func KeyForGroup(groupID int) string {
	return fmt.Sprintf("group_%d", groupID)
}

// Coordinator is a two-state machine: Idle, or InRoom for exactly one
// group. It mediates outbound join/leave/message events and filters
// inbound chat events into the current transcript.
type Coordinator struct {
	transport Transport
	logger    *slog.Logger

	roomKey    string
	groupID    int
	username   string
	transcript []protocol.ChatEvent
}

func NewCoordinator(transport Transport, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{transport: transport, logger: logger}
}

// InRoom reports whether a room is active.
func (c *Coordinator) InRoom() bool { return c.roomKey != "" }

// Active returns the active room's group id, or false when idle.
func (c *Coordinator) Active() (groupID int, ok bool) {
	return c.groupID, c.roomKey != ""
}

// Join enters the room for a group. Legal only from Idle. The join event
// is emitted best-effort: a transport failure is logged and the room is
// still entered, matching the channel's fire-and-forget contract. Any
// previously displayed transcript is cleared.
func (c *Coordinator) Join(groupID int, username string) error {
	if c.roomKey != "" {
		return ErrAlreadyInRoom
	}
	key := KeyForGroup(groupID)
	if err := c.transport.Emit(protocol.EventJoin, protocol.JoinPayload{Username: username, Room: key}); err != nil {
		c.logger.Warn("join event not delivered", "room", key, "error", err)
	}
	c.roomKey = key
	c.groupID = groupID
	c.username = username
	c.transcript = nil
	return nil
}

// Leave exits the active room. Legal only from InRoom. The explicit leave
// event is defensive: the server also infers departure from a dropped
// connection, so a delivery failure only gets logged.
func (c *Coordinator) Leave() error {
	if c.roomKey == "" {
		return ErrNotInRoom
	}
	if err := c.transport.Emit(protocol.EventLeave, protocol.LeavePayload{Username: c.username, Room: c.roomKey}); err != nil {
		c.logger.Warn("leave event not delivered", "room", c.roomKey, "error", err)
	}
	c.roomKey = ""
	c.groupID = 0
	c.username = ""
	return nil
}

// SendMessage emits a chat message to the active room. The message is not
// appended locally; it renders only when its echo arrives, so ordering is
// entirely transport-determined.
func (c *Coordinator) SendMessage(text string) error {
	if c.roomKey == "" {
		return ErrNotInRoom
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return c.transport.Emit(protocol.EventMessage, protocol.MessagePayload{
		Room:     c.roomKey,
		Msg:      text,
		Username: c.username,
	})
}

// Receive appends an inbound event to the transcript. Events are dropped
// while idle, and dropped when they carry a room key that does not match
// the active room; events without a room key are trusted, since the
// transport only delivers for joined rooms. Returns whether the event was
// kept.
func (c *Coordinator) Receive(event protocol.ChatEvent) bool {
	if c.roomKey == "" {
		return false
	}
	if event.Room != "" && event.Room != c.roomKey {
		c.logger.Debug("dropping cross-room event", "event_room", event.Room, "active_room", c.roomKey)
		return false
	}
	c.transcript = append(c.transcript, event)
	return true
}

// Drain pulls every event currently queued by the transport into the
// transcript without blocking.
func (c *Coordinator) Drain() {
	for {
		select {
		case event := <-c.transport.Events():
			c.Receive(event)
		default:
			return
		}
	}
}

// Transcript returns the chat lines received since the room was joined.
func (c *Coordinator) Transcript() []protocol.ChatEvent {
	return c.transcript
}
