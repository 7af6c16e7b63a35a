package directory

import "github.com/ridetrack/ridetrack/internal/api"

// GroupAction is the single action a group card offers the user. The
// three states are mutually exclusive: creator wins over membership.
type GroupAction int

const (
	// GroupActionCreator: the user created this group; no join/leave action.
	GroupActionCreator GroupAction = iota
	// GroupActionLeave: the user is a member and may leave.
	GroupActionLeave
	// GroupActionJoin: the user is not a member and may join.
	GroupActionJoin
)

// GroupActionFor derives the action state for one group. Creator status
// is checked before membership, so a creator never sees join or leave
// even if the membership set disagrees.
func GroupActionFor(creatorUsername, username string, isMember bool) GroupAction {
	if username != "" && creatorUsername == username {
		return GroupActionCreator
	}
	if isMember {
		return GroupActionLeave
	}
	return GroupActionJoin
}

// ConnectionAction is the allowed next step for a rider relationship.
type ConnectionAction int

const (
	// ConnectionActionSend: no relationship yet, a request may be sent.
	ConnectionActionSend ConnectionAction = iota
	// ConnectionActionAwait: request already sent, waiting on the other side.
	ConnectionActionAwait
	// ConnectionActionAccept: the other rider sent a request to accept.
	ConnectionActionAccept
	// ConnectionActionConnected: mutual connection established, nothing to do.
	ConnectionActionConnected
	// ConnectionActionNone: unrecognized server status, offer nothing.
	ConnectionActionNone
)

// ConnectionActionFor maps a server-reported status to the allowed action.
func ConnectionActionFor(status api.ConnectionStatus) ConnectionAction {
	switch status {
	case api.ConnectionNone:
		return ConnectionActionSend
	case api.ConnectionSent:
		return ConnectionActionAwait
	case api.ConnectionReceived:
		return ConnectionActionAccept
	case api.ConnectionAccepted:
		return ConnectionActionConnected
	default:
		return ConnectionActionNone
	}
}
