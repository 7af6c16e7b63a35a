package app

// View identifies the single visible top-level view. Exactly one is
// active; entering a view implies hiding all others.
type View int

const (
	ViewAuth View = iota
	ViewProfile
	ViewGroups
	ViewRiders
	ViewConnections
	ViewSingleGroup
	ViewMap
)

func (v View) String() string {
	switch v {
	case ViewAuth:
		return "auth"
	case ViewProfile:
		return "profile"
	case ViewGroups:
		return "groups"
	case ViewRiders:
		return "riders"
	case ViewConnections:
		return "connections"
	case ViewSingleGroup:
		return "single-group"
	case ViewMap:
		return "map"
	default:
		return "unknown"
	}
}

// roomView reports whether the view requires the realtime room to be
// joined. The room coordinator state and the current view must agree:
// a room is active if and only if one of these is showing.
func (v View) roomView() bool {
	return v == ViewSingleGroup || v == ViewMap
}

// navigable reports whether the view can be entered directly from the
// nav bar. SingleGroup is reachable only through the group-detail flow
// and Map only through an active ride.
func (v View) navigable() bool {
	switch v {
	case ViewProfile, ViewGroups, ViewRiders, ViewConnections:
		return true
	default:
		return false
	}
}
