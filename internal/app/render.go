package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ridetrack/ridetrack/internal/directory"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	actionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	senderStyle = lipgloss.NewStyle().Bold(true)
	systemStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
)

// orNotSet substitutes the placeholder the profile card shows for empty
// optional fields.
func orNotSet(value string) string {
	if value == "" {
		return "Not set"
	}
	return value
}

// render draws the active view. Rendering is a pure function of state;
// no handler logic lives here.
func (a *App) render() {
	if a.notice != "" {
		fmt.Fprintln(a.out, noticeStyle.Render(a.notice))
	}
	var body string
	switch a.view {
	case ViewAuth:
		body = a.renderAuthView()
	case ViewProfile:
		body = a.renderProfileView()
	case ViewGroups:
		body = a.renderGroupsView()
	case ViewRiders:
		body = a.renderRidersView()
	case ViewConnections:
		body = a.renderConnectionsView()
	case ViewSingleGroup:
		body = a.renderSingleGroupView()
	case ViewMap:
		body = a.renderMapView()
	}
	fmt.Fprint(a.out, body)
	fmt.Fprint(a.out, "> ")
}

func (a *App) renderAuthView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- RideTrack ---") + "\n")
	b.WriteString("1. Login\n")
	b.WriteString("2. Register\n")
	b.WriteString("3. Exit\n")
	return b.String()
}

func (a *App) renderProfileView() string {
	profile := a.cache.Profile()
	if profile == nil {
		return mutedStyle.Render("No profile loaded.") + "\n"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- Your Profile ---") + "\n")
	fmt.Fprintf(&b, "Username:   %s\n", profile.Username)
	fmt.Fprintf(&b, "Email:      %s\n", profile.Email)
	fmt.Fprintf(&b, "City:       %s\n", orNotSet(profile.City))
	fmt.Fprintf(&b, "Bike Model: %s\n", orNotSet(profile.BikeModel))
	fmt.Fprintf(&b, "Bio:        %s\n", orNotSet(profile.Bio))
	b.WriteString("\n1. Edit profile  2. Groups  3. Riders  4. Connections  5. Logout  6. Exit\n")
	return b.String()
}

func (a *App) renderGroupsView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- Ride Groups ---") + "\n")
	groups, state := a.cache.Groups()
	switch state {
	case directory.LoadFailed:
		b.WriteString("Could not fetch groups.\n")
	case directory.Loaded:
		if len(groups) == 0 {
			b.WriteString("No groups found. Why not create one?\n")
		}
		for _, group := range groups {
			description := group.Description
			if description == "" {
				description = "No description."
			}
			fmt.Fprintf(&b, "#%d %s\n", group.ID, senderStyle.Render(group.Name))
			fmt.Fprintf(&b, "   %s\n", description)
			fmt.Fprintf(&b, "   %s\n", mutedStyle.Render("Created by: "+group.CreatorUsername))
			switch a.cache.GroupAction(group) {
			case directory.GroupActionCreator:
				fmt.Fprintf(&b, "   %s\n", mutedStyle.Render("(You are the creator)"))
			case directory.GroupActionLeave:
				fmt.Fprintf(&b, "   %s\n", actionStyle.Render(fmt.Sprintf("[leave %d] Leave", group.ID)))
			case directory.GroupActionJoin:
				fmt.Fprintf(&b, "   %s\n", actionStyle.Render(fmt.Sprintf("[join %d] Join", group.ID)))
			}
		}
	}
	b.WriteString("\nCommands: view N, join N, leave N, create, profile, riders, connections, logout, exit\n")
	return b.String()
}

func (a *App) renderRidersView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- Find Riders ---") + "\n")
	riders, state := a.cache.Riders()
	switch state {
	case directory.LoadFailed:
		b.WriteString("Could not fetch riders.\n")
	case directory.Loaded:
		if len(riders) == 0 {
			b.WriteString("No other riders found.\n")
		}
		for _, rider := range riders {
			city := rider.City
			if city == "" {
				city = "City not specified"
			}
			bike := rider.BikeModel
			if bike == "" {
				bike = "Bike not specified"
			}
			fmt.Fprintf(&b, "#%d %s\n", rider.ID, senderStyle.Render(rider.Username))
			fmt.Fprintf(&b, "   %s\n", mutedStyle.Render(city+" · "+bike))
			switch directory.ConnectionActionFor(rider.ConnectionStatus) {
			case directory.ConnectionActionSend:
				fmt.Fprintf(&b, "   %s\n", actionStyle.Render(fmt.Sprintf("[connect %d] Add Connection", rider.ID)))
			case directory.ConnectionActionAwait:
				fmt.Fprintf(&b, "   %s\n", mutedStyle.Render("Request Sent"))
			case directory.ConnectionActionAccept:
				fmt.Fprintf(&b, "   %s\n", actionStyle.Render(fmt.Sprintf("[accept %d] Accept Request", rider.ID)))
			case directory.ConnectionActionConnected:
				fmt.Fprintf(&b, "   %s\n", actionStyle.Render("Connected"))
			}
		}
	}
	b.WriteString("\nCommands: connect N, accept N, profile, groups, connections, logout, exit\n")
	return b.String()
}

func (a *App) renderConnectionsView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- Your Connections ---") + "\n")
	bundle, state := a.cache.Connections()
	switch state {
	case directory.LoadFailed:
		b.WriteString("Could not fetch connections.\n")
	case directory.Loaded:
		b.WriteString(senderStyle.Render("Received Requests") + "\n")
		if len(bundle.ReceivedRequests) == 0 {
			b.WriteString(mutedStyle.Render("None") + "\n")
		}
		for _, rider := range bundle.ReceivedRequests {
			fmt.Fprintf(&b, "#%d %s  %s\n", rider.ID, rider.Username,
				actionStyle.Render(fmt.Sprintf("[accept %d] Accept", rider.ID)))
		}
		b.WriteString(senderStyle.Render("Connections") + "\n")
		if len(bundle.Connections) == 0 {
			b.WriteString(mutedStyle.Render("None") + "\n")
		}
		for _, rider := range bundle.Connections {
			fmt.Fprintf(&b, "#%d %s\n", rider.ID, rider.Username)
		}
		b.WriteString(senderStyle.Render("Sent Requests") + "\n")
		if len(bundle.SentRequests) == 0 {
			b.WriteString(mutedStyle.Render("None") + "\n")
		}
		for _, rider := range bundle.SentRequests {
			fmt.Fprintf(&b, "#%d %s\n", rider.ID, rider.Username)
		}
	}
	b.WriteString("\nCommands: accept N, profile, groups, riders, logout, exit\n")
	return b.String()
}

func (a *App) renderSingleGroupView() string {
	if a.detail == nil {
		return mutedStyle.Render("No group open.") + "\n"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- "+a.detail.Name+" ---") + "\n")
	if a.detail.Description != "" {
		b.WriteString(a.detail.Description + "\n")
	}
	b.WriteString(senderStyle.Render("Members") + "\n")
	for _, member := range a.detail.Members {
		fmt.Fprintf(&b, "  %s\n", member.Username)
	}
	b.WriteString(a.renderRideActions())
	b.WriteString(senderStyle.Render("Chat") + "\n")
	b.WriteString(a.renderTranscript())
	b.WriteString(mutedStyle.Render("Type a message, or [[back]] to return.") + "\n")
	return b.String()
}

// renderRideActions derives the ride controls: an active ride offers
// "Join Active Ride" to everyone; with no active ride, only the creator
// may start one.
func (a *App) renderRideActions() string {
	if a.detail.ActiveRideID != nil {
		return actionStyle.Render("[[ride]] Join Active Ride") + "\n"
	}
	if a.detail.CreatorUsername == a.cache.Username() {
		return actionStyle.Render("[[start]] Start a New Ride") + "\n"
	}
	return ""
}

func (a *App) renderTranscript() string {
	var b strings.Builder
	for _, event := range a.rooms.Transcript() {
		if event.System() {
			b.WriteString(systemStyle.Render(event.Msg) + "\n")
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", senderStyle.Render(event.Username+":"), event.Msg)
	}
	return b.String()
}

func (a *App) renderMapView() string {
	if a.detail == nil {
		return mutedStyle.Render("No ride open.") + "\n"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- Ride: "+a.detail.Name+" ---") + "\n")
	b.WriteString(mutedStyle.Render("Live map rendering is handled by the map component.") + "\n")
	b.WriteString(senderStyle.Render("Chat") + "\n")
	b.WriteString(a.renderTranscript())
	if a.detail.CreatorUsername == a.cache.Username() {
		b.WriteString(actionStyle.Render("[[end]] End Ride") + "\n")
	}
	b.WriteString(mutedStyle.Render("Type a message, or [[back]] to leave the ride.") + "\n")
	return b.String()
}
