package app

import (
	"context"
	"strconv"
	"strings"

	"github.com/ridetrack/ridetrack/internal/api"
)

// dispatch routes one line of input to the active view's handler. Every
// user intent funnels through here into a typed App method; rendering
// never carries behavior.
func (a *App) dispatch(ctx context.Context, input string) {
	a.notice = ""
	switch a.view {
	case ViewAuth:
		a.handleAuthInput(ctx, input)
	case ViewProfile:
		a.handleProfileInput(ctx, input)
	case ViewGroups:
		a.handleGroupsInput(ctx, input)
	case ViewRiders:
		a.handleRidersInput(ctx, input)
	case ViewConnections:
		a.handleConnectionsInput(ctx, input)
	case ViewSingleGroup:
		a.handleSingleGroupInput(ctx, input)
	case ViewMap:
		a.handleMapInput(ctx, input)
	}
}

func (a *App) handleAuthInput(ctx context.Context, input string) {
	switch input {
	case "1":
		email := a.prompt("Email")
		password := a.promptSecret("Password")
		a.login(ctx, email, password)
	case "2":
		username := a.prompt("Username")
		email := a.prompt("Email")
		password := a.promptSecret("Password")
		a.register(ctx, username, email, password)
	case "3":
		a.quit = true
	default:
		a.notice = "Invalid option."
	}
}

func (a *App) handleProfileInput(ctx context.Context, input string) {
	switch input {
	case "1":
		update := api.ProfileUpdate{
			City:      a.prompt("City"),
			BikeModel: a.prompt("Bike model"),
			Bio:       a.prompt("Bio"),
		}
		a.updateProfile(ctx, update)
	case "2":
		a.selectView(ctx, ViewGroups)
	case "3":
		a.selectView(ctx, ViewRiders)
	case "4":
		a.selectView(ctx, ViewConnections)
	case "5":
		a.logout()
	case "6":
		a.quit = true
	default:
		a.notice = "Invalid option."
	}
}

// verbTarget splits inputs of the form "join 7" into a verb and an id.
func verbTarget(input string) (verb string, id int, ok bool) {
	fields := strings.Fields(input)
	if len(fields) != 2 {
		return "", 0, false
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, false
	}
	return fields[0], id, true
}

func (a *App) handleGroupsInput(ctx context.Context, input string) {
	if verb, id, ok := verbTarget(input); ok {
		switch verb {
		case "view":
			a.openGroup(ctx, id)
		case "join":
			a.joinGroup(ctx, id)
		case "leave":
			a.leaveGroup(ctx, id)
		default:
			a.notice = "Invalid option."
		}
		return
	}
	switch input {
	case "create":
		name := a.prompt("Group name")
		description := a.prompt("Description")
		a.createGroup(ctx, name, description)
	case "profile":
		a.selectView(ctx, ViewProfile)
	case "riders":
		a.selectView(ctx, ViewRiders)
	case "connections":
		a.selectView(ctx, ViewConnections)
	case "logout":
		a.logout()
	case "exit":
		a.quit = true
	default:
		a.notice = "Invalid option."
	}
}

func (a *App) handleRidersInput(ctx context.Context, input string) {
	if verb, id, ok := verbTarget(input); ok {
		switch verb {
		case "connect":
			a.sendConnection(ctx, id)
		case "accept":
			a.acceptConnection(ctx, id)
		default:
			a.notice = "Invalid option."
		}
		return
	}
	switch input {
	case "profile":
		a.selectView(ctx, ViewProfile)
	case "groups":
		a.selectView(ctx, ViewGroups)
	case "connections":
		a.selectView(ctx, ViewConnections)
	case "logout":
		a.logout()
	case "exit":
		a.quit = true
	default:
		a.notice = "Invalid option."
	}
}

func (a *App) handleConnectionsInput(ctx context.Context, input string) {
	if verb, id, ok := verbTarget(input); ok && verb == "accept" {
		a.acceptConnection(ctx, id)
		return
	}
	switch input {
	case "profile":
		a.selectView(ctx, ViewProfile)
	case "groups":
		a.selectView(ctx, ViewGroups)
	case "riders":
		a.selectView(ctx, ViewRiders)
	case "logout":
		a.logout()
	case "exit":
		a.quit = true
	default:
		a.notice = "Invalid option."
	}
}

func (a *App) handleSingleGroupInput(ctx context.Context, input string) {
	switch input {
	case "[[back]]":
		a.back()
	case "[[ride]]":
		a.joinRide()
	case "[[start]]":
		a.startRide(ctx)
	case "":
		// Just redraw; an empty chat message is never sent.
	default:
		a.sendChat(input)
	}
}

func (a *App) handleMapInput(ctx context.Context, input string) {
	switch input {
	case "[[back]]":
		a.back()
	case "[[end]]":
		a.endRide(ctx)
	case "":
	default:
		// The chat room is still joined while riding.
		a.sendChat(input)
	}
}
