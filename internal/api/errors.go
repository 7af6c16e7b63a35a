package api

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteError is a non-2xx response from the backend. Message carries the
// server's error text verbatim so the UI can surface it unchanged.
//
//	var remoteErr *RemoteError
//	if errors.As(err, &remoteErr) { ... }
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Message)
}

// IsAuthFailure reports whether err is a 401 from the backend. An auth
// failure must force a logout rather than surface as a notice.
func IsAuthFailure(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusUnauthorized
}

// UserMessage extracts the text a user should see for a failed operation:
// the server's message when the backend answered, a generic line when the
// request never completed.
func UserMessage(err error) string {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) && remoteErr.Message != "" {
		return remoteErr.Message
	}
	return "The server could not be reached."
}
