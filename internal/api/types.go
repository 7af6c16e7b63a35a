package api

// Request and response shapes of the RideTrack backend. Optional text
// fields decode to the empty string when the server sends null; the
// renderer substitutes its own placeholder.

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Profile is the authenticated user's record, refreshed wholesale on every
// fetch. JoinedGroups is the authoritative membership list.
type Profile struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	City         string `json:"city"`
	BikeModel    string `json:"bike_model"`
	Bio          string `json:"bio"`
	RidingStyle  string `json:"riding_style"`
	JoinedGroups []int  `json:"joined_groups"`
}

// ProfileUpdate is the mutable subset of Profile. The caller must re-fetch
// the profile afterwards; the update response is not trusted as new state.
type ProfileUpdate struct {
	City        string `json:"city"`
	BikeModel   string `json:"bike_model"`
	Bio         string `json:"bio"`
	RidingStyle string `json:"riding_style,omitempty"`
}

// Group is one entry of the public group listing. Membership is not
// stored here; it is derived from Profile.JoinedGroups.
type Group struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	CreatorUsername string `json:"creator_username"`
	ActiveRideID    *int   `json:"active_ride_id"`
}

// Member is a group member as listed in a GroupDetail.
type Member struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// GroupDetail is the per-group view, fetched lazily and never cached
// across views.
type GroupDetail struct {
	ID              int      `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	CreatorUsername string   `json:"creator_username"`
	ActiveRideID    *int     `json:"active_ride_id"`
	Members         []Member `json:"members"`
}

// ConnectionStatus is the server-reported relationship between the
// authenticated user and another rider.
type ConnectionStatus string

const (
	ConnectionNone     ConnectionStatus = "none"
	ConnectionSent     ConnectionStatus = "sent"
	ConnectionReceived ConnectionStatus = "received"
	ConnectionAccepted ConnectionStatus = "accepted"
)

// Rider is one entry of the rider directory.
type Rider struct {
	ID               int              `json:"id"`
	Username         string           `json:"username"`
	City             string           `json:"city"`
	BikeModel        string           `json:"bike_model"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
}

// ConnectionBundle is a full snapshot of the user's connection state,
// replaced wholesale on each fetch.
type ConnectionBundle struct {
	ReceivedRequests []Rider `json:"received_requests"`
	Connections      []Rider `json:"connections"`
	SentRequests     []Rider `json:"sent_requests"`
}
