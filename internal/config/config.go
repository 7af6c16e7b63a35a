package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Config holds all client configuration.
type Config struct {
	// APIURL is the root of the RideTrack REST backend.
	APIURL string
	// WSURL is the realtime channel endpoint. Defaults to the API URL
	// with the scheme switched to websocket and "/ws" appended.
	WSURL string
	// StateDir is where the session token is persisted.
	StateDir string
}

// Load reads configuration from environment variables.
func Load() *Config {
	apiURL := getEnv("RIDETRACK_API_URL", "http://127.0.0.1:5000")
	return &Config{
		APIURL:   apiURL,
		WSURL:    getEnv("RIDETRACK_WS_URL", DeriveWSURL(apiURL)),
		StateDir: getEnv("RIDETRACK_STATE_DIR", defaultStateDir()),
	}
}

// DeriveWSURL maps an HTTP base URL to its websocket endpoint.
func DeriveWSURL(apiURL string) string {
	wsURL := apiURL
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(apiURL, "http://")
	}
	return strings.TrimRight(wsURL, "/") + "/ws"
}

func defaultStateDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".ridetrack"
	}
	return filepath.Join(base, "ridetrack")
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
