package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Default configuration values
const (
	DefaultServer = "localhost:8001"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
)

// Config holds the meet client configuration.
type Config struct {
	// Server is the relay base URL, e.g. http://localhost:8001
	Server *url.URL

	// WebSocketURL is derived from Server
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// Token authenticates history API calls. Optional.
	Token string

	DisplayName string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server      string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	Token       string
	DisplayName string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	server, err := parseServer(firstNonEmpty(opts.Server, "MEET_SERVER", DefaultServer))
	if err != nil {
		return nil, err
	}

	wsURL := *server
	switch server.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimSuffix(server.Path, "/") + "/ws"

	cfg := &Config{
		Server:       server,
		WebSocketURL: wsURL.String(),
		STUNServer:   firstNonEmpty(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer:   firstNonEmpty(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:     firstNonEmpty(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:     firstNonEmpty(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay:   opts.ForceRelay,
		Token:        firstNonEmpty(opts.Token, "MEET_TOKEN", ""),
		DisplayName:  firstNonEmpty(opts.DisplayName, "MEET_NAME", "guest"),
	}

	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// parseServer accepts "host:port", "http://host:port" or "https://host".
func parseServer(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server URL: missing host in %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL: unsupported scheme %q", u.Scheme)
	}
	return u, nil
}

// APIURL joins path onto the relay base URL.
func (c *Config) APIURL(path string) string {
	u := *c.Server
	u.Path = strings.TrimSuffix(c.Server.Path, "/") + path
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Contains(c.TURNServer, "?transport=") {
		return []string{c.TURNServer}
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
