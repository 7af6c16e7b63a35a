// Package directory holds the client's derived state: the authenticated
// profile and the last-fetched listings. Every listing is replaced
// wholesale on a successful fetch; nothing is patched incrementally, so
// the cache can never drift from server truth.
package directory

import "github.com/ridetrack/ridetrack/internal/api"

// LoadState tracks whether a listing reflects a successful fetch. A
// failed fetch is rendered as an explicit "could not load" placeholder,
// never as stale or silently empty content.
type LoadState int

const (
	NotLoaded LoadState = iota
	Loaded
	LoadFailed
)

// Cache owns the profile and directory snapshots.
type Cache struct {
	profile *api.Profile
	joined  map[int]struct{}

	groups      []api.Group
	groupsState LoadState

	riders      []api.Rider
	ridersState LoadState

	connections      *api.ConnectionBundle
	connectionsState LoadState
}

func NewCache() *Cache {
	return &Cache{}
}

// SetProfile replaces the profile wholesale and re-derives the joined
// group set from it.
func (c *Cache) SetProfile(profile *api.Profile) {
	c.profile = profile
	c.joined = make(map[int]struct{}, len(profile.JoinedGroups))
	for _, id := range profile.JoinedGroups {
		c.joined[id] = struct{}{}
	}
}

// Profile returns the cached profile, or nil when logged out or before
// the first successful fetch.
func (c *Cache) Profile() *api.Profile {
	return c.profile
}

// Username returns the authenticated username, empty when no profile is
// cached.
func (c *Cache) Username() string {
	if c.profile == nil {
		return ""
	}
	return c.profile.Username
}

// IsMember reports whether the authenticated user belongs to the group.
func (c *Cache) IsMember(groupID int) bool {
	_, ok := c.joined[groupID]
	return ok
}

func (c *Cache) SetGroups(groups []api.Group) {
	c.groups = groups
	c.groupsState = Loaded
}

func (c *Cache) SetGroupsFailed() {
	c.groups = nil
	c.groupsState = LoadFailed
}

func (c *Cache) Groups() ([]api.Group, LoadState) {
	return c.groups, c.groupsState
}

func (c *Cache) SetRiders(riders []api.Rider) {
	c.riders = riders
	c.ridersState = Loaded
}

func (c *Cache) SetRidersFailed() {
	c.riders = nil
	c.ridersState = LoadFailed
}

func (c *Cache) Riders() ([]api.Rider, LoadState) {
	return c.riders, c.ridersState
}

func (c *Cache) SetConnections(bundle *api.ConnectionBundle) {
	c.connections = bundle
	c.connectionsState = Loaded
}

func (c *Cache) SetConnectionsFailed() {
	c.connections = nil
	c.connectionsState = LoadFailed
}

func (c *Cache) Connections() (*api.ConnectionBundle, LoadState) {
	return c.connections, c.connectionsState
}

// GroupAction derives the action for a group listing entry from the
// cached profile.
func (c *Cache) GroupAction(group api.Group) GroupAction {
	return GroupActionFor(group.CreatorUsername, c.Username(), c.IsMember(group.ID))
}

// Clear drops everything. Called on logout and on forced auth failure;
// no render after Clear may show previously cached data.
func (c *Cache) Clear() {
	c.profile = nil
	c.joined = nil
	c.groups = nil
	c.groupsState = NotLoaded
	c.riders = nil
	c.ridersState = NotLoaded
	c.connections = nil
	c.connectionsState = NotLoaded
}
