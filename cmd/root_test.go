package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/huddle/internal/config"
)

func loadTestConfig(t *testing.T, yaml string) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	v := viper.New()
	setDefaults(v, config.Defaults())
	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	var c config.Config
	require.NoError(t, v.Unmarshal(&c))
	return c
}

func TestConfig_FileOverridesDefaults(t *testing.T) {
	c := loadTestConfig(t, `
server:
  url: wss://chat.example.com/socket
auth:
  token: secret
channels: [general, random]
session:
  push_timeout: 5s
  reconnect_backoff: [500ms, 1s]
flags:
  status-presence: false
`)
	require.Equal(t, "wss://chat.example.com/socket", c.Server.URL)
	require.Equal(t, "https://chat.example.com", c.Server.APIBase())
	require.Equal(t, []string{"general", "random"}, c.Channels)
	require.Equal(t, 5*time.Second, c.Session.PushTimeout)
	require.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, c.Session.ReconnectBackoff)
	require.False(t, c.Flags["status-presence"])

	// Untouched keys keep their defaults.
	require.Equal(t, 50, c.History.Limit)
	require.Equal(t, 30*time.Second, c.Session.HeartbeatInterval)
	require.NoError(t, config.Validate(c))
}

func TestConfig_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("HUDDLE_AUTH_TOKEN", "from-env")
	t.Setenv("HUDDLE_SERVER_URL", "ws://localhost:4000/socket")

	c := loadTestConfig(t, "auth:\n  token: from-file\n")
	require.Equal(t, "from-env", c.Auth.Token)
	require.Equal(t, "ws://localhost:4000/socket", c.Server.URL)
	require.Equal(t, "http://localhost:4000", c.Server.APIBase())
}

func TestConfig_MissingServerFailsValidation(t *testing.T) {
	c := loadTestConfig(t, "auth:\n  token: t\n")
	require.ErrorContains(t, config.Validate(c), "server.url")
}

func TestDiffChannels(t *testing.T) {
	tests := []struct {
		name        string
		subscribed  []string
		listed      []string
		keep        string
		wantAdded   []string
		wantRemoved []string
	}{
		{
			name:       "new channels are added",
			subscribed: []string{"general"},
			listed:     []string{"general", "random", "random"},
			wantAdded:  []string{"random"},
		},
		{
			name:        "unlisted channels are removed",
			subscribed:  []string{"general", "random"},
			listed:      []string{"general"},
			wantRemoved: []string{"random"},
		},
		{
			name:       "active channel is kept",
			subscribed: []string{"general", "random"},
			listed:     []string{"random"},
			keep:       "general",
		},
		{
			name:       "empty slugs are ignored",
			subscribed: nil,
			listed:     []string{""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, removed := diffChannels(tt.subscribed, tt.listed, tt.keep)
			require.Equal(t, tt.wantAdded, added)
			require.Equal(t, tt.wantRemoved, removed)
		})
	}
}
