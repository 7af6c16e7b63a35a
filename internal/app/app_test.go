package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ridetrack/ridetrack/internal/api"
	"github.com/ridetrack/ridetrack/internal/apitest"
	"github.com/ridetrack/ridetrack/internal/protocol"
	"github.com/ridetrack/ridetrack/internal/room"
	"github.com/ridetrack/ridetrack/internal/session"
)

type recordedEmit struct {
	event string
	data  any
}

type fakeTransport struct {
	emits  []recordedEmit
	events chan protocol.ChatEvent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan protocol.ChatEvent, 16)}
}

func (f *fakeTransport) Emit(event string, data any) error {
	f.emits = append(f.emits, recordedEmit{event: event, data: data})
	return nil
}

func (f *fakeTransport) Events() <-chan protocol.ChatEvent { return f.events }
func (f *fakeTransport) Close() error                      { return nil }

type fixture struct {
	server    *apitest.Server
	store     *session.Store
	transport *fakeTransport
	out       *bytes.Buffer
	app       *App
}

func newFixture(t *testing.T, input string) *fixture {
	t.Helper()
	server := apitest.New()
	httpServer := httptest.NewServer(server.Router())
	t.Cleanup(httpServer.Close)

	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := api.NewClient(api.ClientConfig{BaseURL: httpServer.URL, Tokens: store, Logger: logger})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	transport := newFakeTransport()
	out := &bytes.Buffer{}
	application := New(Options{
		API:     client,
		Session: store,
		Rooms:   room.NewCoordinator(transport, logger),
		Logger:  logger,
		Input:   strings.NewReader(input),
		Output:  out,
	})
	return &fixture{server: server, store: store, transport: transport, out: out, app: application}
}

// seedAlice creates the standard test account and returns its id.
func (f *fixture) seedAlice() int {
	return f.server.AddUser(apitest.SeedUser{
		Username: "alice", Email: "alice@example.com", Password: "secret", City: "Pune",
	})
}

func (f *fixture) loginAlice(t *testing.T) {
	t.Helper()
	f.app.login(context.Background(), "alice@example.com", "secret")
	if f.app.View() != ViewProfile {
		t.Fatalf("view after login = %v, want Profile (notice %q)", f.app.View(), f.app.notice)
	}
}

// rendered draws the current view and returns the output since the last
// call.
func (f *fixture) rendered() string {
	f.out.Reset()
	f.app.render()
	return f.out.String()
}

func TestLoginLandsOnProfile(t *testing.T) {
	f := newFixture(t, "")
	f.seedAlice()

	f.loginAlice(t)

	if _, ok := f.store.Token(); !ok {
		t.Error("session token not persisted after login")
	}
	screen := f.rendered()
	if !strings.Contains(screen, "Login successful!") {
		t.Errorf("missing login notice:\n%s", screen)
	}
	if !strings.Contains(screen, "alice") || !strings.Contains(screen, "Pune") {
		t.Errorf("profile fields missing:\n%s", screen)
	}
	// Unset optional fields show the placeholder, never an empty cell.
	if !strings.Contains(screen, "Not set") {
		t.Errorf("placeholder for unset fields missing:\n%s", screen)
	}
}

func TestLoginFailureStaysOnAuth(t *testing.T) {
	f := newFixture(t, "")
	f.seedAlice()

	f.app.login(context.Background(), "alice@example.com", "wrong")

	if f.app.View() != ViewAuth {
		t.Errorf("view = %v, want Auth", f.app.View())
	}
	if f.app.notice != "Invalid email or password" {
		t.Errorf("notice = %q, want the server message verbatim", f.app.notice)
	}
	if _, ok := f.store.Token(); ok {
		t.Error("token stored despite failed login")
	}
}

func TestStartRestoresSession(t *testing.T) {
	f := newFixture(t, "")
	userID := f.seedAlice()
	if err := f.store.SetToken(f.server.TokenFor(userID)); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}

	f.app.Start(context.Background())

	if f.app.View() != ViewProfile {
		t.Errorf("view = %v, want Profile", f.app.View())
	}
	if f.app.cache.Username() != "alice" {
		t.Errorf("cached username = %q", f.app.cache.Username())
	}
}

func TestStartWithStaleToken(t *testing.T) {
	f := newFixture(t, "")
	f.seedAlice()
	if err := f.store.SetToken("no-longer-valid"); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}

	f.app.Start(context.Background())

	if f.app.View() != ViewAuth {
		t.Errorf("view = %v, want Auth", f.app.View())
	}
	if f.app.notice != "Your session has expired. Please log in again." {
		t.Errorf("notice = %q", f.app.notice)
	}
	if _, ok := f.store.Token(); ok {
		t.Error("stale token survived the forced logout")
	}
}

func TestJoinGroupRefreshesMembership(t *testing.T) {
	f := newFixture(t, "")
	f.seedAlice()
	creatorID := f.server.AddUser(apitest.SeedUser{Username: "bob", Email: "b@example.com", Password: "x"})
	groupID := f.server.AddGroup("Night Owls", "After dark", creatorID)

	f.loginAlice(t)
	f.app.selectView(context.Background(), ViewGroups)

	before := f.rendered()
	if !strings.Contains(before, "[join") {
		t.Fatalf("join action missing before membership:\n%s", before)
	}

	f.app.joinGroup(context.Background(), groupID)

	if !f.app.cache.IsMember(groupID) {
		t.Error("membership not visible after join and refetch")
	}
	after := f.rendered()
	if !strings.Contains(after, "Successfully joined group 'Night Owls'") {
		t.Errorf("join notice missing:\n%s", after)
	}
	if !strings.Contains(after, "[leave") || strings.Contains(after, "[join") {
		t.Errorf("listing action not flipped to leave:\n%s", after)
	}
}

func TestOpenGroupEntersRoomAndBackLeaves(t *testing.T) {
	f := newFixture(t, "")
	f.seedAlice()
	creatorID := f.server.AddUser(apitest.SeedUser{Username: "bob", Email: "b@example.com", Password: "x"})
	groupID := f.server.AddGroup("Night Owls", "", creatorID)

	f.loginAlice(t)
	f.app.selectView(context.Background(), ViewGroups)
	f.app.openGroup(context.Background(), groupID)

	if f.app.View() != ViewSingleGroup {
		t.Fatalf("view = %v, want SingleGroup", f.app.View())
	}
	if !f.app.rooms.InRoom() {
		t.Fatal("room not joined on group open")
	}
	join := f.transport.emits[0]
	if join.event != protocol.EventJoin {
		t.Fatalf("first emit = %q, want join", join.event)
	}
	if payload := join.data.(protocol.JoinPayload); payload.Room != room.KeyForGroup(groupID) || payload.Username != "alice" {
		t.Errorf("join payload = %+v", payload)
	}

	f.app.back()

	if f.app.View() != ViewGroups {
		t.Errorf("view after back = %v, want Groups", f.app.View())
	}
	if f.app.rooms.InRoom() {
		t.Error("room still joined after leaving the group view")
	}
	last := f.transport.emits[len(f.transport.emits)-1]
	if last.event != protocol.EventLeave {
		t.Errorf("last emit = %q, want leave", last.event)
	}
}

func TestRideActionsForNonCreator(t *testing.T) {
	f := newFixture(t, "")
	f.seedAlice()
	creatorID := f.server.AddUser(apitest.SeedUser{Username: "bob", Email: "b@example.com", Password: "x"})
	groupID := f.server.AddGroup("Tourers", "", creatorID)
	f.server.AddActiveRide(groupID)

	f.loginAlice(t)
	f.app.selectView(context.Background(), ViewGroups)
	f.app.openGroup(context.Background(), groupID)

	screen := f.rendered()
	if !strings.Contains(screen, "Join Active Ride") {
		t.Errorf("active ride action missing:\n%s", screen)
	}
	if strings.Contains(screen, "Start a New Ride") {
		t.Errorf("start action offered to a non-creator with a ride running:\n%s", screen)
	}
}

func TestStartRideForbiddenForNonCreator(t *testing.T) {
	f := newFixture(t, "")
	f.seedAlice()
	creatorID := f.server.AddUser(apitest.SeedUser{Username: "bob", Email: "b@example.com", Password: "x"})
	groupID := f.server.AddGroup("Tourers", "", creatorID)

	f.loginAlice(t)
	f.app.selectView(context.Background(), ViewGroups)
	f.app.openGroup(context.Background(), groupID)
	f.app.startRide(context.Background())

	if f.app.notice != "Only the group creator can start a ride." {
		t.Errorf("notice = %q, want the server refusal verbatim", f.app.notice)
	}
	if f.app.View() != ViewSingleGroup {
		t.Errorf("view = %v, refusal must not navigate", f.app.View())
	}
}

func TestCreatorRideLifecycle(t *testing.T) {
	f := newFixture(t, "")
	userID := f.seedAlice()
	groupID := f.server.AddGroup("My Crew", "", userID)
	f.server.AddMember(groupID, userID)

	f.loginAlice(t)
	f.app.selectView(context.Background(), ViewGroups)
	f.app.openGroup(context.Background(), groupID)

	screen := f.rendered()
	if !strings.Contains(screen, "Start a New Ride") {
		t.Fatalf("creator start action missing:\n%s", screen)
	}

	f.app.startRide(context.Background())
	if f.app.detail.ActiveRideID == nil {
		t.Fatal("detail not refreshed with the new ride")
	}
	if !strings.Contains(f.rendered(), "Join Active Ride") {
		t.Error("ride action not flipped after start")
	}

	f.app.joinRide()
	if f.app.View() != ViewMap {
		t.Fatalf("view = %v, want Map", f.app.View())
	}
	if !f.app.rooms.InRoom() {
		t.Error("chat room dropped on entering the ride")
	}
	if !strings.Contains(f.rendered(), "End Ride") {
		t.Error("creator end action missing on the map view")
	}

	f.app.endRide(context.Background())
	if f.app.View() != ViewSingleGroup {
		t.Errorf("view after end = %v, want SingleGroup", f.app.View())
	}
	if f.app.detail.ActiveRideID != nil {
		t.Error("ride still active after end")
	}
}

func TestJoinRideWithoutActiveRide(t *testing.T) {
	f := newFixture(t, "")
	userID := f.seedAlice()
	groupID := f.server.AddGroup("My Crew", "", userID)

	f.loginAlice(t)
	f.app.selectView(context.Background(), ViewGroups)
	f.app.openGroup(context.Background(), groupID)
	f.app.joinRide()

	if f.app.View() != ViewSingleGroup {
		t.Errorf("view = %v, want SingleGroup", f.app.View())
	}
	if f.app.notice != "No active ride for this group." {
		t.Errorf("notice = %q", f.app.notice)
	}
}

func TestChatRendersOnEchoOnly(t *testing.T) {
	f := newFixture(t, "")
	f.seedAlice()
	creatorID := f.server.AddUser(apitest.SeedUser{Username: "bob", Email: "b@example.com", Password: "x"})
	groupID := f.server.AddGroup("Night Owls", "", creatorID)

	f.loginAlice(t)
	f.app.selectView(context.Background(), ViewGroups)
	f.app.openGroup(context.Background(), groupID)

	f.app.sendChat("rolling out at 6")
	if strings.Contains(f.rendered(), "rolling out at 6") {
		t.Error("message rendered before its echo arrived")
	}

	key := room.KeyForGroup(groupID)
	f.transport.events <- protocol.ChatEvent{Room: key, Msg: "alice has joined the chat."}
	f.transport.events <- protocol.ChatEvent{Room: key, Username: "alice", Msg: "rolling out at 6"}
	f.transport.events <- protocol.ChatEvent{Room: "group_999", Username: "eve", Msg: "other room"}
	f.app.rooms.Drain()

	screen := f.rendered()
	if !strings.Contains(screen, "alice has joined the chat.") {
		t.Errorf("announcement missing:\n%s", screen)
	}
	if !strings.Contains(screen, "rolling out at 6") {
		t.Errorf("echoed message missing:\n%s", screen)
	}
	if strings.Contains(screen, "other room") {
		t.Errorf("cross-room event rendered:\n%s", screen)
	}
}

func TestAuthFailureDuringNavForcesLogout(t *testing.T) {
	f := newFixture(t, "")
	f.seedAlice()
	f.loginAlice(t)

	f.server.RevokeAllTokens()
	f.app.selectView(context.Background(), ViewRiders)

	if f.app.View() != ViewAuth {
		t.Errorf("view = %v, want Auth", f.app.View())
	}
	if f.app.cache.Profile() != nil {
		t.Error("profile still cached after forced logout")
	}
	if _, ok := f.store.Token(); ok {
		t.Error("revoked token still stored")
	}
	if f.app.notice != "Your session has expired. Please log in again." {
		t.Errorf("notice = %q", f.app.notice)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	f := newFixture(t, "")
	userID := f.seedAlice()
	groupID := f.server.AddGroup("My Crew", "", userID)

	f.loginAlice(t)
	f.app.selectView(context.Background(), ViewGroups)
	f.app.openGroup(context.Background(), groupID)
	f.app.logout()

	if f.app.View() != ViewAuth {
		t.Errorf("view = %v, want Auth", f.app.View())
	}
	if f.app.rooms.InRoom() {
		t.Error("room survived logout")
	}
	if f.app.cache.Profile() != nil || f.app.detail != nil {
		t.Error("cached state survived logout")
	}
	if _, ok := f.store.Token(); ok {
		t.Error("token survived logout")
	}
	if f.app.notice != "You have been logged out." {
		t.Errorf("notice = %q", f.app.notice)
	}
}

func TestConnectionsAcceptFlow(t *testing.T) {
	f := newFixture(t, "")
	alice := f.seedAlice()
	bob := f.server.AddUser(apitest.SeedUser{Username: "bob", Email: "b@example.com", Password: "x"})
	f.server.AddConnection(bob, alice, "pending")

	f.loginAlice(t)
	f.app.selectView(context.Background(), ViewConnections)

	screen := f.rendered()
	if !strings.Contains(screen, "bob") || !strings.Contains(screen, "[accept") {
		t.Fatalf("pending request missing:\n%s", screen)
	}

	f.app.acceptConnection(context.Background(), bob)

	bundle, _ := f.app.cache.Connections()
	if len(bundle.Connections) != 1 || bundle.Connections[0].Username != "bob" {
		t.Errorf("Connections = %+v after accept", bundle.Connections)
	}
	if len(bundle.ReceivedRequests) != 0 {
		t.Errorf("request still pending after accept: %+v", bundle.ReceivedRequests)
	}
	if f.app.notice != "Connection request accepted." {
		t.Errorf("notice = %q", f.app.notice)
	}
}

func TestProfileEditRefetches(t *testing.T) {
	f := newFixture(t, "")
	f.seedAlice()
	f.loginAlice(t)

	f.app.updateProfile(context.Background(), api.ProfileUpdate{
		City: "Pune", BikeModel: "RE Himalayan", Bio: "Weekend tourer",
	})

	profile := f.app.cache.Profile()
	if profile.BikeModel != "RE Himalayan" || profile.Bio != "Weekend tourer" {
		t.Errorf("profile not refetched after update: %+v", profile)
	}
	if f.app.notice != "Profile updated successfully" {
		t.Errorf("notice = %q", f.app.notice)
	}
}

// TestScriptedSession drives Run with a full keystroke script: login,
// browse groups, open one, chat, back out, log out, exit.
func TestScriptedSession(t *testing.T) {
	script := strings.Join([]string{
		"1",                 // login
		"alice@example.com", // email prompt
		"secret",            // password prompt
		"2",                 // profile -> groups
		"view 1",
		"see you at the pass",
		"[[back]]",
		"logout",
		"3", // exit
	}, "\n") + "\n"

	f := newFixture(t, script)
	userID := f.seedAlice()
	f.server.AddGroup("Night Owls", "", userID)

	if err := f.app.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	output := f.out.String()
	for _, want := range []string{
		"--- RideTrack ---",
		"Login successful!",
		"--- Ride Groups ---",
		"--- Night Owls ---",
		"You have been logged out.",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("session output missing %q", want)
		}
	}
	if f.app.rooms.InRoom() {
		t.Error("room still joined after the session")
	}
	if _, ok := f.store.Token(); ok {
		t.Error("token survived the scripted logout")
	}

	// The chat line went out on the transport even though no echo came
	// back to render.
	var sawMessage bool
	for _, emit := range f.transport.emits {
		if emit.event == protocol.EventMessage {
			payload := emit.data.(protocol.MessagePayload)
			if payload.Msg == "see you at the pass" {
				sawMessage = true
			}
		}
	}
	if !sawMessage {
		t.Error("chat message never emitted")
	}
}

func TestRunStopsOnEOF(t *testing.T) {
	f := newFixture(t, "")
	if err := f.app.Run(context.Background()); err != nil {
		t.Fatalf("Run on EOF = %v, want nil", err)
	}
}
