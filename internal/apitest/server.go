// Package apitest provides an in-memory RideTrack backend for tests:
// every REST endpoint the client consumes, with the real backend's
// status codes and message strings, plus a websocket hub delivering
// room-scoped chat events and join/leave announcements.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/ridetrack/ridetrack/internal/protocol"
)

type userRecord struct {
	id           int
	username     string
	email        string
	passwordHash []byte
	city         string
	bikeModel    string
	bio          string
	ridingStyle  string
}

type groupRecord struct {
	id          int
	name        string
	description string
	creatorID   int
}

type connectionRecord struct {
	requesterID int
	receiverID  int
	status      string // "pending" or "accepted"
}

type rideRecord struct {
	id      int
	groupID int
	active  bool
}

// Server is the fake backend. Create with New, serve via Router (usually
// under httptest.NewServer), and seed state through the Seed helpers.
type Server struct {
	mu          sync.Mutex
	users       map[int]*userRecord
	tokens      map[string]int
	groups      map[int]*groupRecord
	members     map[int]map[int]struct{}
	connections []*connectionRecord
	rides       []*rideRecord
	nextUserID  int
	nextGroupID int
	nextRideID  int

	hub    *hub
	router chi.Router
}

func New() *Server {
	s := &Server{
		users:       make(map[int]*userRecord),
		tokens:      make(map[string]int),
		groups:      make(map[int]*groupRecord),
		members:     make(map[int]map[int]struct{}),
		nextUserID:  1,
		nextGroupID: 1,
		nextRideID:  1,
		hub:         newHub(),
	}

	r := chi.NewRouter()
	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Get("/profile", s.handleGetProfile)
	r.Put("/profile", s.handleUpdateProfile)
	r.Get("/groups", s.handleListGroups)
	r.Post("/groups", s.handleCreateGroup)
	r.Get("/groups/{groupID}", s.handleGroupDetail)
	r.Post("/groups/{groupID}/join", s.handleJoinGroup)
	r.Post("/groups/{groupID}/leave", s.handleLeaveGroup)
	r.Post("/groups/{groupID}/start_ride", s.handleStartRide)
	r.Post("/groups/{groupID}/end_ride", s.handleEndRide)
	r.Get("/users", s.handleListUsers)
	r.Get("/connections", s.handleConnections)
	r.Post("/connections/send/{userID}", s.handleSendConnection)
	r.Post("/connections/accept/{userID}", s.handleAcceptConnection)
	r.Get("/ws", s.hub.handleWebsocket)
	s.router = r
	return s
}

// Router returns the HTTP handler for the fake backend.
func (s *Server) Router() http.Handler { return s.router }

// ---- seeding -------------------------------------------------------------

// SeedUser describes an account to create directly in the store.
type SeedUser struct {
	Username    string
	Email       string
	Password    string
	City        string
	BikeModel   string
	Bio         string
	RidingStyle string
}

// AddUser creates an account and returns its id.
func (s *Server) AddUser(u SeedUser) int {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("apitest: bcrypt: %v", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextUserID
	s.nextUserID++
	s.users[id] = &userRecord{
		id: id, username: u.Username, email: u.Email, passwordHash: hash,
		city: u.City, bikeModel: u.BikeModel, bio: u.Bio, ridingStyle: u.RidingStyle,
	}
	return id
}

// AddGroup creates a group and returns its id.
func (s *Server) AddGroup(name, description string, creatorID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextGroupID
	s.nextGroupID++
	s.groups[id] = &groupRecord{id: id, name: name, description: description, creatorID: creatorID}
	s.members[id] = make(map[int]struct{})
	return id
}

// AddMember records group membership directly.
func (s *Server) AddMember(groupID, userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[groupID][userID] = struct{}{}
}

// AddConnection records a connection row directly. Status is "pending"
// or "accepted".
func (s *Server) AddConnection(requesterID, receiverID int, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections = append(s.connections, &connectionRecord{requesterID: requesterID, receiverID: receiverID, status: status})
}

// AddActiveRide starts a ride for a group directly and returns the ride id.
func (s *Server) AddActiveRide(groupID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextRideID
	s.nextRideID++
	s.rides = append(s.rides, &rideRecord{id: id, groupID: groupID, active: true})
	return id
}

// TokenFor mints a valid session token for a user.
func (s *Server) TokenFor(userID int) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
	return token
}

// RevokeAllTokens invalidates every session, so the next authenticated
// call gets a 401. Used to exercise forced-logout paths.
func (s *Server) RevokeAllTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]int)
}

// ---- helpers -------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// authenticate resolves the bearer token. Callers hold no lock.
func (s *Server) authenticate(r *http.Request) (*userRecord, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.tokens[token]
	if !ok {
		return nil, false
	}
	user, ok := s.users[userID]
	return user, ok
}

func (s *Server) activeRideLocked(groupID int) *rideRecord {
	for _, ride := range s.rides {
		if ride.groupID == groupID && ride.active {
			return ride
		}
	}
	return nil
}

func groupIDParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "groupID"))
	return id, err == nil
}

// ---- handlers ------------------------------------------------------------

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		City     string `json:"city"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	s.mu.Lock()
	for _, user := range s.users {
		if user.email == body.Email || user.username == body.Username {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, "Email or username already in use")
			return
		}
	}
	s.mu.Unlock()

	s.AddUser(SeedUser{Username: body.Username, Email: body.Email, Password: body.Password, City: body.City})
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User created successfully!"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing email or password")
		return
	}
	s.mu.Lock()
	var match *userRecord
	for _, user := range s.users {
		if user.email == body.Email {
			match = user
			break
		}
	}
	s.mu.Unlock()
	if match == nil || bcrypt.CompareHashAndPassword(match.passwordHash, []byte(body.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": s.TokenFor(match.id)})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	s.mu.Lock()
	joined := []int{}
	for groupID, members := range s.members {
		if _, isMember := members[user.id]; isMember {
			joined = append(joined, groupID)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"id": user.id, "username": user.username, "email": user.email,
		"city": user.city, "bike_model": user.bikeModel, "bio": user.bio,
		"riding_style": user.ridingStyle, "joined_groups": joined,
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	// Only keys present in the body are applied, like the real backend.
	var body struct {
		City        *string `json:"city"`
		BikeModel   *string `json:"bike_model"`
		Bio         *string `json:"bio"`
		RidingStyle *string `json:"riding_style"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	s.mu.Lock()
	if body.City != nil {
		user.city = *body.City
	}
	if body.BikeModel != nil {
		user.bikeModel = *body.BikeModel
	}
	if body.Bio != nil {
		user.bio = *body.Bio
	}
	if body.RidingStyle != nil {
		user.ridingStyle = *body.RidingStyle
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Profile updated successfully"})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []map[string]any{}
	for id := 1; id < s.nextGroupID; id++ {
		group, ok := s.groups[id]
		if !ok {
			continue
		}
		creator := "Unknown"
		if user, ok := s.users[group.creatorID]; ok {
			creator = user.username
		}
		entry := map[string]any{
			"id": group.id, "name": group.name, "description": group.description,
			"creator_username": creator,
		}
		if ride := s.activeRideLocked(group.id); ride != nil {
			entry["active_ride_id"] = ride.id
		}
		list = append(list, entry)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "Group name is required")
		return
	}
	s.AddGroup(body.Name, body.Description, user.id)
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": fmt.Sprintf("Group '%s' created successfully!", body.Name),
	})
}

func (s *Server) handleGroupDetail(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	creator := "Unknown"
	if user, ok := s.users[group.creatorID]; ok {
		creator = user.username
	}
	members := []map[string]any{}
	for userID := range s.members[groupID] {
		if user, ok := s.users[userID]; ok {
			members = append(members, map[string]any{"id": user.id, "username": user.username})
		}
	}
	detail := map[string]any{
		"id": group.id, "name": group.name, "description": group.description,
		"creator_username": creator, "members": members,
	}
	if ride := s.activeRideLocked(groupID); ride != nil {
		detail["active_ride_id"] = ride.id
	} else {
		detail["active_ride_id"] = nil
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	groupID, ok := groupIDParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	if _, isMember := s.members[groupID][user.id]; isMember {
		writeJSON(w, http.StatusOK, map[string]string{"message": "You are already a member of this group"})
		return
	}
	s.members[groupID][user.id] = struct{}{}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Successfully joined group '%s'", group.name),
	})
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	groupID, ok := groupIDParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	if _, isMember := s.members[groupID][user.id]; !isMember {
		writeError(w, http.StatusBadRequest, "You are not a member of this group")
		return
	}
	delete(s.members[groupID], user.id)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Successfully left group '%s'", group.name),
	})
}

func (s *Server) handleStartRide(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	groupID, ok := groupIDParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	if group.creatorID != user.id {
		writeError(w, http.StatusForbidden, "Only the group creator can start a ride.")
		return
	}
	if s.activeRideLocked(groupID) != nil {
		writeError(w, http.StatusConflict, "A ride is already active for this group.")
		return
	}
	rideID := s.nextRideID
	s.nextRideID++
	s.rides = append(s.rides, &rideRecord{id: rideID, groupID: groupID, active: true})
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Ride started successfully!", "ride_id": rideID,
	})
}

func (s *Server) handleEndRide(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	groupID, ok := groupIDParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	if group.creatorID != user.id {
		writeError(w, http.StatusForbidden, "Only the group creator can end a ride.")
		return
	}
	ride := s.activeRideLocked(groupID)
	if ride == nil {
		writeError(w, http.StatusNotFound, "No active ride found for this group.")
		return
	}
	ride.active = false
	writeJSON(w, http.StatusOK, map[string]string{"message": "Ride ended successfully."})
}

// connectionStatusLocked computes the status of other relative to user.
func (s *Server) connectionStatusLocked(userID, otherID int) string {
	for _, conn := range s.connections {
		switch {
		case conn.requesterID == userID && conn.receiverID == otherID:
			if conn.status == "pending" {
				return "sent"
			}
			return conn.status
		case conn.requesterID == otherID && conn.receiverID == userID:
			if conn.status == "pending" {
				return "received"
			}
			return conn.status
		}
	}
	return "none"
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []map[string]any{}
	for id := 1; id < s.nextUserID; id++ {
		other, ok := s.users[id]
		if !ok || other.id == user.id {
			continue
		}
		list = append(list, map[string]any{
			"id": other.id, "username": other.username, "city": other.city,
			"bike_model": other.bikeModel, "connection_status": s.connectionStatusLocked(user.id, other.id),
		})
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := func(id int) map[string]any {
		if other, ok := s.users[id]; ok {
			return map[string]any{"id": other.id, "username": other.username}
		}
		return nil
	}
	received, connected, sent := []map[string]any{}, []map[string]any{}, []map[string]any{}
	for _, conn := range s.connections {
		switch {
		case conn.status == "accepted" && conn.requesterID == user.id:
			if e := entry(conn.receiverID); e != nil {
				connected = append(connected, e)
			}
		case conn.status == "accepted" && conn.receiverID == user.id:
			if e := entry(conn.requesterID); e != nil {
				connected = append(connected, e)
			}
		case conn.status == "pending" && conn.requesterID == user.id:
			if e := entry(conn.receiverID); e != nil {
				sent = append(sent, e)
			}
		case conn.status == "pending" && conn.receiverID == user.id:
			if e := entry(conn.requesterID); e != nil {
				received = append(received, e)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"received_requests": received, "connections": connected, "sent_requests": sent,
	})
}

func (s *Server) handleSendConnection(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	receiverID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	if receiverID == user.id {
		writeError(w, http.StatusBadRequest, "You cannot connect with yourself.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.connections {
		if (conn.requesterID == user.id && conn.receiverID == receiverID) ||
			(conn.requesterID == receiverID && conn.receiverID == user.id) {
			writeError(w, http.StatusConflict, "A connection or pending request already exists with this user.")
			return
		}
	}
	s.connections = append(s.connections, &connectionRecord{requesterID: user.id, receiverID: receiverID, status: "pending"})
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Connection request sent."})
}

func (s *Server) handleAcceptConnection(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	requesterID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.connections {
		if conn.requesterID == requesterID && conn.receiverID == user.id && conn.status == "pending" {
			conn.status = "accepted"
			writeJSON(w, http.StatusOK, map[string]string{"message": "Connection request accepted."})
			return
		}
	}
	writeError(w, http.StatusNotFound, "No pending request found from this user.")
}

// ---- websocket hub -------------------------------------------------------

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) send(event protocol.ChatEvent) error {
	envelope, err := protocol.NewEnvelope(protocol.EventMessage, event)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(envelope)
}

// hub tracks which connections joined which rooms and broadcasts
// room-scoped events, the role the production backend's socket layer
// plays.
type hub struct {
	mu       sync.Mutex
	rooms    map[string]map[*wsClient]struct{}
	upgrader websocket.Upgrader
}

func newHub() *hub {
	return &hub{rooms: make(map[string]map[*wsClient]struct{})}
}

func (h *hub) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &wsClient{conn: conn}
	defer h.dropClient(client)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var envelope protocol.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		switch envelope.Event {
		case protocol.EventJoin:
			var payload protocol.JoinPayload
			if json.Unmarshal(envelope.Data, &payload) != nil || payload.Room == "" || payload.Username == "" {
				continue
			}
			h.join(client, payload.Room)
			h.broadcast(payload.Room, protocol.ChatEvent{
				Room: payload.Room,
				Msg:  fmt.Sprintf("%s has joined the chat.", payload.Username),
			})
		case protocol.EventMessage:
			var payload protocol.MessagePayload
			if json.Unmarshal(envelope.Data, &payload) != nil || payload.Room == "" || payload.Msg == "" || payload.Username == "" {
				continue
			}
			h.broadcast(payload.Room, protocol.ChatEvent{
				Room:     payload.Room,
				Username: payload.Username,
				Msg:      payload.Msg,
			})
		case protocol.EventLeave:
			var payload protocol.LeavePayload
			if json.Unmarshal(envelope.Data, &payload) != nil || payload.Room == "" {
				continue
			}
			h.leave(client, payload.Room)
			h.broadcast(payload.Room, protocol.ChatEvent{
				Room: payload.Room,
				Msg:  fmt.Sprintf("%s has left the chat.", payload.Username),
			})
		}
	}
}

func (h *hub) join(client *wsClient, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*wsClient]struct{})
	}
	h.rooms[room][client] = struct{}{}
}

func (h *hub) leave(client *wsClient, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[room], client)
}

func (h *hub) dropClient(client *wsClient) {
	h.mu.Lock()
	for _, members := range h.rooms {
		delete(members, client)
	}
	h.mu.Unlock()
	client.conn.Close()
}

func (h *hub) broadcast(room string, event protocol.ChatEvent) {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		clients = append(clients, client)
	}
	h.mu.Unlock()
	for _, client := range clients {
		// Failed writes are ignored; the read loop notices the dead
		// connection and drops the client.
		_ = client.send(event)
	}
}
