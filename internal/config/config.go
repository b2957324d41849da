// Package config provides configuration types, defaults and validation for huddle.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/huddle/internal/log"
)

// DefaultConfigPath is the project-local config file.
const DefaultConfigPath = ".huddle/config.yaml"

// Config holds all configuration options for huddle.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Auth     AuthConfig      `mapstructure:"auth"`
	Channels []string        `mapstructure:"channels"`
	History  HistoryConfig   `mapstructure:"history"`
	Session  SessionConfig   `mapstructure:"session"`
	Tracing  TracingConfig   `mapstructure:"tracing"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	Flags    map[string]bool `mapstructure:"flags"`
	Debug    bool            `mapstructure:"debug"`
	LogFile  string          `mapstructure:"log_file"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	// URL is the socket server, e.g. wss://chat.example.com/socket.
	URL string `mapstructure:"url"`

	// APIURL is the REST base URL. Derived from URL when empty.
	APIURL string `mapstructure:"api_url"`
}

// APIBase returns APIURL, or the origin of URL with ws(s) mapped to http(s).
func (s ServerConfig) APIBase() string {
	if s.APIURL != "" {
		return strings.TrimSuffix(s.APIURL, "/")
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	return u.Scheme + "://" + u.Host
}

// AuthConfig holds the bearer token and the local username.
type AuthConfig struct {
	Token string `mapstructure:"token"`

	// Username is used when the token does not carry one.
	Username string `mapstructure:"username"`
}

// HistoryConfig controls history pagination.
type HistoryConfig struct {
	Limit int `mapstructure:"limit"`
}

// SessionConfig tunes the realtime session.
type SessionConfig struct {
	BufferSize        int             `mapstructure:"buffer_size"`
	PushTimeout       time.Duration   `mapstructure:"push_timeout"`
	HeartbeatInterval time.Duration   `mapstructure:"heartbeat_interval"`
	ReconnectBackoff  []time.Duration `mapstructure:"reconnect_backoff"`
	TypingInterval    time.Duration   `mapstructure:"typing_interval"`
	RosterTTL         time.Duration   `mapstructure:"roster_ttl"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/huddle/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `mapstructure:"addr"`
}

// UserConfigDir returns ~/.config/huddle, or "" if the home directory is unknown.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "huddle")
}

// DefaultTracesFilePath returns the default trace output path.
func DefaultTracesFilePath() string {
	dir := UserConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Defaults returns the configuration used when no file or flag overrides it.
func Defaults() Config {
	return Config{
		History: HistoryConfig{Limit: 50},
		Session: SessionConfig{
			BufferSize:        100,
			PushTimeout:       10 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			ReconnectBackoff:  []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second},
			TypingInterval:    2 * time.Second,
			RosterTTL:         5 * time.Minute,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate checks the fields required to open a session.
func Validate(c Config) error {
	if err := ValidateServer(c.Server); err != nil {
		return err
	}
	if strings.TrimSpace(c.Auth.Token) == "" {
		return fmt.Errorf("auth.token is required")
	}
	if err := ValidateChannels(c.Channels); err != nil {
		return err
	}
	if c.History.Limit <= 0 || c.History.Limit > 500 {
		return fmt.Errorf("history.limit must be between 1 and 500, got %d", c.History.Limit)
	}
	if err := ValidateSession(c.Session); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// ValidateServer checks server URLs.
func ValidateServer(s ServerConfig) error {
	if s.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("server.url must use ws, wss, http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server.url must include a host")
	}
	if s.APIURL != "" {
		if u, err := url.Parse(s.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("server.api_url must be an http or https URL, got %q", s.APIURL)
		}
	}
	return nil
}

// ValidateChannels checks channel slugs. An empty list is valid.
func ValidateChannels(channels []string) error {
	seen := make(map[string]bool, len(channels))
	for i, slug := range channels {
		if slug == "" {
			return fmt.Errorf("channel %d: slug is required", i)
		}
		if strings.ContainsAny(slug, " \t\n/:") {
			return fmt.Errorf("channel %d: invalid slug %q", i, slug)
		}
		if seen[slug] {
			return fmt.Errorf("channel %d: duplicate slug %q", i, slug)
		}
		seen[slug] = true
	}
	return nil
}

// ValidateSession checks session tuning values.
func ValidateSession(s SessionConfig) error {
	if s.BufferSize <= 0 {
		return fmt.Errorf("session.buffer_size must be positive, got %d", s.BufferSize)
	}
	if s.PushTimeout <= 0 {
		return fmt.Errorf("session.push_timeout must be positive")
	}
	if s.HeartbeatInterval <= 0 {
		return fmt.Errorf("session.heartbeat_interval must be positive")
	}
	for i, d := range s.ReconnectBackoff {
		if d <= 0 {
			return fmt.Errorf("session.reconnect_backoff[%d] must be positive", i)
		}
	}
	if s.TypingInterval < 0 {
		return fmt.Errorf("session.typing_interval must not be negative")
	}
	return nil
}

// ValidateTracing checks tracing configuration.
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the commented config written on first run.
func DefaultConfigTemplate() string {
	return `# huddle configuration

server:
  # Socket server. http(s) URLs are mapped to ws(s).
  url: wss://chat.example.com/socket
  # REST base URL (default: origin of server.url)
  # api_url: https://chat.example.com

auth:
  # Bearer token. Prefer HUDDLE_AUTH_TOKEN in the environment or .env.
  # token: ""
  # Used when the token does not carry a username claim.
  # username: ""

# Channels joined on connect. Edits are picked up while huddle is running.
channels:
  - general

history:
  limit: 50          # messages fetched when entering a channel

session:
  buffer_size: 100             # realtime messages kept per inactive channel
  push_timeout: 10s            # reply timeout for sends, joins and mark-read
  heartbeat_interval: 30s
  reconnect_backoff: [1s, 2s, 5s, 10s]
  typing_interval: 2s          # minimum gap between typing:start pushes
  roster_ttl: 5m               # subscriber roster cache lifetime

# metrics:
#   addr: 127.0.0.1:9464       # serve Prometheus metrics at /metrics

# flags:
#   status-presence: true      # global presence from the status topic
#   auto-join-invites: true    # join channels announced by channel_added

# tracing:
#   enabled: false
#   exporter: file             # none, file, stdout, otlp
#   file_path: ~/.config/huddle/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
