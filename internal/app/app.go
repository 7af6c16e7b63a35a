// Package app is the root controller: it owns the view state machine,
// drives the remote gateway, and keeps the session, directory cache and
// room coordinator mutually consistent. Everything runs on one
// cooperative loop; the websocket reader is the only other goroutine and
// talks to the loop through a buffered channel.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/ridetrack/ridetrack/internal/api"
	"github.com/ridetrack/ridetrack/internal/directory"
	"github.com/ridetrack/ridetrack/internal/room"
	"github.com/ridetrack/ridetrack/internal/session"
)

// Options wires the App's collaborators.
type Options struct {
	API     *api.Client
	Session *session.Store
	Rooms   *room.Coordinator
	Logger  *slog.Logger
	Input   io.Reader
	Output  io.Writer
}

// App holds the whole client state. Not safe for concurrent use; all
// methods run on the loop goroutine.
type App struct {
	api     *api.Client
	session *session.Store
	cache   *directory.Cache
	rooms   *room.Coordinator
	logger  *slog.Logger

	input  io.Reader
	reader *bufio.Reader
	out    io.Writer

	view   View
	notice string
	quit   bool

	// detail is the lazily fetched single-group view, never cached
	// across views. detailGen guards against out-of-order responses:
	// a resolving fetch whose generation is stale is discarded.
	detail    *api.GroupDetail
	detailGen uint64
}

func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	input := opts.Input
	if input == nil {
		input = os.Stdin
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	return &App{
		api:     opts.API,
		session: opts.Session,
		cache:   directory.NewCache(),
		rooms:   opts.Rooms,
		logger:  logger,
		input:   input,
		reader:  bufio.NewReader(input),
		out:     out,
		view:    ViewAuth,
	}
}

// View returns the currently visible view.
func (a *App) View() View { return a.view }

// Start restores a persisted session, if any: a stored token attempts a
// profile fetch; success lands on the profile view and loads the group
// list, any failure clears the session and lands on the auth view.
func (a *App) Start(ctx context.Context) {
	if _, ok := a.session.Token(); !ok {
		a.view = ViewAuth
		return
	}
	if !a.refreshProfile(ctx) {
		a.forceLogout()
		return
	}
	a.loadGroups(ctx)
	a.view = ViewProfile
}

// Run drives the interactive loop until exit or EOF.
func (a *App) Run(ctx context.Context) error {
	for !a.quit {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.rooms.Drain()
		a.render()
		line, err := a.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("app: input: %w", err)
		}
		a.dispatch(ctx, strings.TrimSpace(line))
	}
	return nil
}

// ---- failure policy ------------------------------------------------------

// fail applies the error policy: a 401 forces a logout and a return to
// the auth view, never a notice; everything else surfaces the server's
// message verbatim as a single notice line. Nothing is retried.
func (a *App) fail(err error) {
	if api.IsAuthFailure(err) {
		a.logger.Info("session rejected by backend, logging out")
		a.forceLogout()
		return
	}
	a.logger.Warn("operation failed", "error", err)
	a.notice = api.UserMessage(err)
}

// logoutCommon tears down everything the session implied: active room,
// session token, cached profile and listings, and the detail view.
func (a *App) logoutCommon() {
	if a.rooms.InRoom() {
		if err := a.rooms.Leave(); err != nil {
			a.logger.Warn("room leave on logout", "error", err)
		}
	}
	if err := a.session.Clear(); err != nil {
		a.logger.Warn("session clear", "error", err)
	}
	a.cache.Clear()
	a.detail = nil
	a.view = ViewAuth
}

func (a *App) logout() {
	a.logoutCommon()
	a.notice = "You have been logged out."
}

func (a *App) forceLogout() {
	a.logoutCommon()
	a.notice = "Your session has expired. Please log in again."
}

// ---- auth ----------------------------------------------------------------

func (a *App) login(ctx context.Context, email, password string) {
	if email == "" || password == "" {
		a.notice = "Email and password are required."
		return
	}
	token, err := a.api.Login(ctx, email, password)
	if err != nil {
		// A 401 here means bad credentials, not an expired session, so
		// the general failure policy does not apply.
		a.logger.Warn("login rejected", "error", err)
		a.notice = api.UserMessage(err)
		return
	}
	if err := a.session.SetToken(token); err != nil {
		a.logger.Error("token not persisted", "error", err)
		a.notice = "Could not store the session."
		return
	}
	if !a.refreshProfile(ctx) {
		return
	}
	a.loadGroups(ctx)
	a.view = ViewProfile
	a.notice = "Login successful!"
}

func (a *App) register(ctx context.Context, username, email, password string) {
	if username == "" || email == "" || password == "" {
		a.notice = "Username, email and password are required."
		return
	}
	message, err := a.api.Register(ctx, api.RegisterRequest{Username: username, Email: email, Password: password})
	if err != nil {
		a.fail(err)
		return
	}
	// Registration does not log in; the user logs in explicitly.
	a.notice = message
}

// ---- fetches -------------------------------------------------------------

// refreshProfile re-fetches the profile wholesale, re-deriving group
// membership. Returns false when the fetch failed (the failure policy
// has already run).
func (a *App) refreshProfile(ctx context.Context) bool {
	profile, err := a.api.FetchProfile(ctx)
	if err != nil {
		a.fail(err)
		return false
	}
	a.cache.SetProfile(profile)
	return true
}

func (a *App) loadGroups(ctx context.Context) {
	groups, err := a.api.ListGroups(ctx)
	if err != nil {
		a.cache.SetGroupsFailed()
		a.fail(err)
		return
	}
	a.cache.SetGroups(groups)
}

func (a *App) loadRiders(ctx context.Context) {
	riders, err := a.api.ListRiders(ctx)
	if err != nil {
		a.cache.SetRidersFailed()
		a.fail(err)
		return
	}
	a.cache.SetRiders(riders)
}

func (a *App) loadConnections(ctx context.Context) {
	bundle, err := a.api.ListConnections(ctx)
	if err != nil {
		a.cache.SetConnectionsFailed()
		a.fail(err)
		return
	}
	a.cache.SetConnections(bundle)
}

// ---- view transitions ----------------------------------------------------

// setView is the single transition point. Leaving the room views for a
// non-room view exits the active room, keeping room presence and the
// visible view consistent.
func (a *App) setView(v View) {
	if a.view.roomView() && !v.roomView() && a.rooms.InRoom() {
		if err := a.rooms.Leave(); err != nil {
			a.logger.Warn("room leave on navigation", "error", err)
		}
	}
	a.view = v
}

// selectView handles a nav selection. Riders and Connections always
// refetch on entry; groups and profile render from cache.
func (a *App) selectView(ctx context.Context, v View) {
	if a.cache.Profile() == nil {
		a.view = ViewAuth
		return
	}
	if !v.navigable() {
		a.logger.Warn("illegal nav target", "view", v.String())
		return
	}
	switch v {
	case ViewRiders:
		a.loadRiders(ctx)
	case ViewConnections:
		a.loadConnections(ctx)
	}
	if a.cache.Profile() == nil {
		// The refetch hit an auth failure and forced a logout.
		return
	}
	a.setView(v)
}

// openGroup fetches the group detail and, on success, enters the single
// group view and joins its chat room.
func (a *App) openGroup(ctx context.Context, groupID int) {
	a.detailGen++
	generation := a.detailGen
	detail, err := a.api.FetchGroupDetail(ctx, groupID)
	if err != nil {
		a.fail(err)
		return
	}
	if generation != a.detailGen {
		a.logger.Debug("discarding stale group detail", "group_id", groupID)
		return
	}
	a.detail = detail
	if err := a.rooms.Join(groupID, a.cache.Username()); err != nil {
		a.logger.Error("room join rejected", "group_id", groupID, "error", err)
		a.notice = "Could not open the group chat."
		a.detail = nil
		return
	}
	a.setView(ViewSingleGroup)
}

// refreshDetail re-fetches the open group without touching the room.
func (a *App) refreshDetail(ctx context.Context) {
	if a.detail == nil {
		return
	}
	a.detailGen++
	generation := a.detailGen
	detail, err := a.api.FetchGroupDetail(ctx, a.detail.ID)
	if err != nil {
		a.fail(err)
		return
	}
	if generation != a.detailGen {
		return
	}
	a.detail = detail
}

// back returns from the single-group or map view to the group listing,
// leaving the room on the way out.
func (a *App) back() {
	if !a.view.roomView() {
		return
	}
	a.detail = nil
	a.setView(ViewGroups)
}

// ---- mutations -----------------------------------------------------------

// joinGroup, leaveGroup, createGroup and updateProfile all follow the
// same shape: one mutating call, then a wholesale re-fetch of profile
// and the affected listing. Mutation responses are never trusted as the
// new state.

func (a *App) joinGroup(ctx context.Context, groupID int) {
	message, err := a.api.JoinGroup(ctx, groupID)
	if err != nil {
		a.fail(err)
		return
	}
	a.notice = message
	if a.refreshProfile(ctx) {
		a.loadGroups(ctx)
	}
}

func (a *App) leaveGroup(ctx context.Context, groupID int) {
	message, err := a.api.LeaveGroup(ctx, groupID)
	if err != nil {
		a.fail(err)
		return
	}
	a.notice = message
	if a.refreshProfile(ctx) {
		a.loadGroups(ctx)
	}
}

func (a *App) createGroup(ctx context.Context, name, description string) {
	if name == "" {
		a.notice = "Group name is required."
		return
	}
	message, err := a.api.CreateGroup(ctx, name, description)
	if err != nil {
		a.fail(err)
		return
	}
	a.notice = message
	if a.refreshProfile(ctx) {
		a.loadGroups(ctx)
	}
}

func (a *App) updateProfile(ctx context.Context, update api.ProfileUpdate) {
	message, err := a.api.UpdateProfile(ctx, update)
	if err != nil {
		a.fail(err)
		return
	}
	a.notice = message
	a.refreshProfile(ctx)
}

func (a *App) sendConnection(ctx context.Context, userID int) {
	message, err := a.api.SendConnectionRequest(ctx, userID)
	if err != nil {
		a.fail(err)
		return
	}
	a.notice = message
	a.reloadConnectionView(ctx)
}

func (a *App) acceptConnection(ctx context.Context, userID int) {
	message, err := a.api.AcceptConnectionRequest(ctx, userID)
	if err != nil {
		a.fail(err)
		return
	}
	a.notice = message
	a.reloadConnectionView(ctx)
}

// reloadConnectionView refreshes whichever directory the user is looking
// at after a connection mutation.
func (a *App) reloadConnectionView(ctx context.Context) {
	if a.view == ViewConnections {
		a.loadConnections(ctx)
		return
	}
	a.loadRiders(ctx)
}

// ---- rides ---------------------------------------------------------------

// startRide starts a ride for the open group (creator only, enforced by
// the backend) and re-fetches the detail to observe the new ride id.
func (a *App) startRide(ctx context.Context) {
	if a.detail == nil {
		return
	}
	message, err := a.api.StartRide(ctx, a.detail.ID)
	if err != nil {
		a.fail(err)
		return
	}
	a.notice = message
	a.refreshDetail(ctx)
}

// joinRide enters the map view for the group's active ride. The chat
// room stays joined; no additional room is entered.
func (a *App) joinRide() {
	if a.detail == nil || a.detail.ActiveRideID == nil {
		a.notice = "No active ride for this group."
		return
	}
	a.setView(ViewMap)
}

// endRide ends the active ride (creator only) and drops back to the
// group view with a refreshed detail.
func (a *App) endRide(ctx context.Context) {
	if a.detail == nil {
		return
	}
	message, err := a.api.EndRide(ctx, a.detail.ID)
	if err != nil {
		a.fail(err)
		return
	}
	a.notice = message
	a.refreshDetail(ctx)
	a.setView(ViewSingleGroup)
}

// ---- chat ----------------------------------------------------------------

// sendChat emits a chat message to the active room. The line renders
// only when its echo arrives. An unreachable transport is logged and
// otherwise silent; an empty message is rejected before sending.
func (a *App) sendChat(text string) {
	switch err := a.rooms.SendMessage(text); {
	case err == nil:
	case errors.Is(err, room.ErrEmptyMessage):
		a.notice = "Message text is empty."
	case errors.Is(err, room.ErrNotInRoom):
		a.logger.Error("chat send outside a room")
	default:
		a.logger.Warn("chat message not delivered", "error", err)
	}
}

// ---- input helpers -------------------------------------------------------

func (a *App) prompt(label string) string {
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.reader.ReadString('\n')
	if err != nil {
		return strings.TrimSpace(line)
	}
	return strings.TrimSpace(line)
}

// promptSecret reads without echo when stdin is a terminal, and falls
// back to a plain prompt otherwise (tests, pipes).
func (a *App) promptSecret(label string) string {
	if file, ok := a.input.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fmt.Fprintf(a.out, "%s: ", label)
		raw, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(a.out)
		if err == nil {
			return strings.TrimSpace(string(raw))
		}
		a.logger.Debug("no-echo read failed, falling back", "error", err)
	}
	return a.prompt(label)
}
