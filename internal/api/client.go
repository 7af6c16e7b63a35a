package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// TokenSource supplies the current session token for authenticated
// requests. The second return is false when no session exists.
type TokenSource interface {
	Token() (string, bool)
}

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the root of the RideTrack backend (e.g. "http://127.0.0.1:5000").
	BaseURL string
	// Tokens supplies the session token for authenticated endpoints.
	Tokens TokenSource
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is a typed gateway to the RideTrack REST backend. Every method is
// a single request with no retries; a non-2xx response comes back as a
// *RemoteError carrying the server's message verbatim.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for the given backend.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		tokens:     config.Tokens,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Register creates a new account. Returns the server's confirmation
// message; registration does not log the user in.
func (c *Client) Register(ctx context.Context, request RegisterRequest) (string, error) {
	if request.Username == "" || request.Email == "" || request.Password == "" {
		return "", fmt.Errorf("api: username, email and password are required")
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/register", false, request)
	if err != nil {
		return "", err
	}
	return parseMessage(body)
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", fmt.Errorf("api: email and password are required")
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/login", false, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	var response struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("api: failed to parse login response: %w", err)
	}
	if response.AccessToken == "" {
		return "", fmt.Errorf("api: login response missing access token")
	}
	return response.AccessToken, nil
}

// FetchProfile returns the authenticated user's profile.
func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/profile", true, nil)
	if err != nil {
		return nil, err
	}
	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("api: failed to parse profile: %w", err)
	}
	return &profile, nil
}

// UpdateProfile writes the mutable profile fields. Callers must follow a
// successful update with FetchProfile to re-derive membership truth.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPut, "/profile", true, update)
	if err != nil {
		return "", err
	}
	return parseMessage(body)
}

// ListGroups returns the public group listing.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/groups", false, nil)
	if err != nil {
		return nil, err
	}
	var groups []Group
	if err := json.Unmarshal(body, &groups); err != nil {
		return nil, fmt.Errorf("api: failed to parse group list: %w", err)
	}
	return groups, nil
}

// CreateGroup creates a group owned by the authenticated user.
func (c *Client) CreateGroup(ctx context.Context, name, description string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("api: group name is required")
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/groups", true, map[string]string{
		"name":        name,
		"description": description,
	})
	if err != nil {
		return "", err
	}
	return parseMessage(body)
}

// FetchGroupDetail returns one group with its member list.
func (c *Client) FetchGroupDetail(ctx context.Context, groupID int) (*GroupDetail, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/groups/%d", groupID), false, nil)
	if err != nil {
		return nil, err
	}
	var detail GroupDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("api: failed to parse group detail: %w", err)
	}
	if detail.ID == 0 {
		detail.ID = groupID
	}
	return &detail, nil
}

// JoinGroup adds the authenticated user to a group.
func (c *Client) JoinGroup(ctx context.Context, groupID int) (string, error) {
	return c.groupAction(ctx, groupID, "join")
}

// LeaveGroup removes the authenticated user from a group.
func (c *Client) LeaveGroup(ctx context.Context, groupID int) (string, error) {
	return c.groupAction(ctx, groupID, "leave")
}

// StartRide starts a ride session for a group. Only the creator may do
// this; the backend enforces it.
func (c *Client) StartRide(ctx context.Context, groupID int) (string, error) {
	return c.groupAction(ctx, groupID, "start_ride")
}

// EndRide ends the group's active ride session. Creator only.
func (c *Client) EndRide(ctx context.Context, groupID int) (string, error) {
	return c.groupAction(ctx, groupID, "end_ride")
}

func (c *Client) groupAction(ctx context.Context, groupID int, action string) (string, error) {
	path := fmt.Sprintf("/groups/%d/%s", groupID, action)
	body, err := c.doRequest(ctx, http.MethodPost, path, true, nil)
	if err != nil {
		return "", err
	}
	return parseMessage(body)
}

// ListRiders returns every other rider with their connection status
// relative to the authenticated user.
func (c *Client) ListRiders(ctx context.Context) ([]Rider, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/users", true, nil)
	if err != nil {
		return nil, err
	}
	var riders []Rider
	if err := json.Unmarshal(body, &riders); err != nil {
		return nil, fmt.Errorf("api: failed to parse rider list: %w", err)
	}
	return riders, nil
}

// ListConnections returns the full connection snapshot.
func (c *Client) ListConnections(ctx context.Context) (*ConnectionBundle, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/connections", true, nil)
	if err != nil {
		return nil, err
	}
	var bundle ConnectionBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("api: failed to parse connections: %w", err)
	}
	return &bundle, nil
}

// SendConnectionRequest sends a connection request to another rider.
func (c *Client) SendConnectionRequest(ctx context.Context, userID int) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/connections/send/%d", userID), true, nil)
	if err != nil {
		return "", err
	}
	return parseMessage(body)
}

// AcceptConnectionRequest accepts a pending request from another rider.
func (c *Client) AcceptConnectionRequest(ctx context.Context, userID int) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/connections/accept/%d", userID), true, nil)
	if err != nil {
		return "", err
	}
	return parseMessage(body)
}

// doRequest performs one HTTP request and returns the response body.
// On 2xx, returns the body. On any other status, returns a *RemoteError
// with the server's "error" field. Authenticated requests attach the
// current session token as a bearer header.
func (c *Client) doRequest(ctx context.Context, method, path string, authed bool, requestBody any) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("api: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("api: failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token, ok := "", false
		if c.tokens != nil {
			token, ok = c.tokens.Token()
		}
		if !ok {
			// No session: fail the same way an expired token would, so
			// the caller's auth-failure handling stays in one place.
			return nil, &RemoteError{StatusCode: http.StatusUnauthorized, Message: "Missing session token"}
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("api request", "method", method, "path", path)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("api: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("api: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	remoteErr := &RemoteError{StatusCode: response.StatusCode}
	var errorBody struct {
		Error string `json:"error"`
		Msg   string `json:"msg"`
	}
	if jsonErr := json.Unmarshal(responseBody, &errorBody); jsonErr == nil {
		remoteErr.Message = errorBody.Error
		if remoteErr.Message == "" {
			remoteErr.Message = errorBody.Msg
		}
	}
	if remoteErr.Message == "" {
		remoteErr.Message = strings.TrimSpace(string(responseBody))
	}
	c.logger.Debug("api request failed", "method", method, "path", path, "status", response.StatusCode)
	return nil, remoteErr
}

func parseMessage(body []byte) (string, error) {
	var response struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("api: failed to parse response message: %w", err)
	}
	return response.Message, nil
}
