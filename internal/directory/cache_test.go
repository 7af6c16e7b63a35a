package directory

import (
	"testing"

	"github.com/ridetrack/ridetrack/internal/api"
)

func testProfile() *api.Profile {
	return &api.Profile{
		ID:           1,
		Username:     "alice",
		Email:        "alice@example.com",
		JoinedGroups: []int{3, 7},
	}
}

func TestCacheProfileReplacement(t *testing.T) {
	cache := NewCache()
	cache.SetProfile(testProfile())

	if !cache.IsMember(7) || !cache.IsMember(3) {
		t.Fatal("membership not derived from joined_groups")
	}
	if cache.IsMember(5) {
		t.Fatal("unexpected membership for group 5")
	}

	// A re-fetch replaces the membership set wholesale.
	updated := testProfile()
	updated.JoinedGroups = []int{5}
	cache.SetProfile(updated)
	if cache.IsMember(7) {
		t.Fatal("stale membership for group 7 after profile replacement")
	}
	if !cache.IsMember(5) {
		t.Fatal("missing membership for group 5 after profile replacement")
	}
}

func TestCacheGroupActionDerivation(t *testing.T) {
	cache := NewCache()
	cache.SetProfile(testProfile())

	groups := []api.Group{
		{ID: 1, Name: "Own", CreatorUsername: "alice"},
		{ID: 3, Name: "Joined", CreatorUsername: "bob"},
		{ID: 9, Name: "Other", CreatorUsername: "bob"},
	}
	cache.SetGroups(groups)

	wants := []GroupAction{GroupActionCreator, GroupActionLeave, GroupActionJoin}
	cached, state := cache.Groups()
	if state != Loaded {
		t.Fatalf("groups state = %v, want Loaded", state)
	}
	for i, group := range cached {
		if got := cache.GroupAction(group); got != wants[i] {
			t.Errorf("GroupAction(%s) = %v, want %v", group.Name, got, wants[i])
		}
	}

	// Deriving twice with no intervening mutation is stable.
	for i, group := range cached {
		if got := cache.GroupAction(group); got != wants[i] {
			t.Errorf("second derivation for %s = %v, want %v", group.Name, got, wants[i])
		}
	}
}

func TestCacheClear(t *testing.T) {
	cache := NewCache()
	cache.SetProfile(testProfile())
	cache.SetGroups([]api.Group{{ID: 1, Name: "G"}})
	cache.SetRiders([]api.Rider{{ID: 2, Username: "bob"}})
	cache.SetConnections(&api.ConnectionBundle{})

	cache.Clear()

	if cache.Profile() != nil {
		t.Fatal("profile survived Clear")
	}
	if cache.Username() != "" {
		t.Fatal("username survived Clear")
	}
	if cache.IsMember(3) {
		t.Fatal("membership survived Clear")
	}
	if _, state := cache.Groups(); state != NotLoaded {
		t.Fatal("group listing state survived Clear")
	}
	if _, state := cache.Riders(); state != NotLoaded {
		t.Fatal("rider listing state survived Clear")
	}
	if _, state := cache.Connections(); state != NotLoaded {
		t.Fatal("connections state survived Clear")
	}
}

func TestCacheFailedFetchIsExplicit(t *testing.T) {
	cache := NewCache()
	cache.SetGroups([]api.Group{{ID: 1, Name: "G"}})
	cache.SetGroupsFailed()

	groups, state := cache.Groups()
	if state != LoadFailed {
		t.Fatalf("groups state = %v, want LoadFailed", state)
	}
	if len(groups) != 0 {
		t.Fatal("failed fetch left stale groups behind")
	}
}
