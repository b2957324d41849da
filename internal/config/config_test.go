package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Server.URL = "wss://chat.test/socket"
	cfg.Auth.Token = "tok"
	cfg.Channels = []string{"general", "random"}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, 50, cfg.History.Limit)
	require.Equal(t, 100, cfg.Session.BufferSize)
	require.Equal(t, 10*time.Second, cfg.Session.PushTimeout)
	require.Equal(t, 30*time.Second, cfg.Session.HeartbeatInterval)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}, cfg.Session.ReconnectBackoff)
	require.Equal(t, 2*time.Second, cfg.Session.TypingInterval)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "file", cfg.Tracing.Exporter)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing url", mutate: func(c *Config) { c.Server.URL = "" }, wantErr: "server.url is required"},
		{name: "bad scheme", mutate: func(c *Config) { c.Server.URL = "ftp://chat.test" }, wantErr: "must use ws"},
		{name: "no host", mutate: func(c *Config) { c.Server.URL = "wss:///socket" }, wantErr: "must include a host"},
		{name: "bad api url", mutate: func(c *Config) { c.Server.APIURL = "ws://chat.test" }, wantErr: "server.api_url"},
		{name: "missing token", mutate: func(c *Config) { c.Auth.Token = " " }, wantErr: "auth.token is required"},
		{name: "empty slug", mutate: func(c *Config) { c.Channels = []string{""} }, wantErr: "channel 0: slug is required"},
		{name: "slug with space", mutate: func(c *Config) { c.Channels = []string{"a b"} }, wantErr: "invalid slug"},
		{name: "duplicate slug", mutate: func(c *Config) { c.Channels = []string{"a", "a"} }, wantErr: "channel 1: duplicate slug"},
		{name: "zero limit", mutate: func(c *Config) { c.History.Limit = 0 }, wantErr: "history.limit"},
		{name: "zero buffer", mutate: func(c *Config) { c.Session.BufferSize = 0 }, wantErr: "session.buffer_size"},
		{name: "zero push timeout", mutate: func(c *Config) { c.Session.PushTimeout = 0 }, wantErr: "session.push_timeout"},
		{name: "bad backoff", mutate: func(c *Config) { c.Session.ReconnectBackoff = []time.Duration{time.Second, 0} }, wantErr: "reconnect_backoff[1]"},
		{name: "bad sample rate", mutate: func(c *Config) { c.Tracing.SampleRate = 2 }, wantErr: "sample_rate"},
		{name: "bad exporter", mutate: func(c *Config) { c.Tracing.Exporter = "zipkin" }, wantErr: "tracing.exporter"},
		{name: "file exporter without path", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.FilePath = ""
		}, wantErr: "tracing.file_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerConfig_APIBase(t *testing.T) {
	require.Equal(t, "https://chat.test", ServerConfig{URL: "wss://chat.test/socket"}.APIBase())
	require.Equal(t, "http://localhost:4000", ServerConfig{URL: "ws://localhost:4000/socket"}.APIBase())
	require.Equal(t, "https://api.test", ServerConfig{URL: "wss://chat.test", APIURL: "https://api.test/"}.APIBase())
	require.Equal(t, "", ServerConfig{URL: "::bad"}.APIBase())
}

func TestWriteDefaultConfig_LoadsWithViper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	require.Equal(t, "wss://chat.example.com/socket", cfg.Server.URL)
	require.Equal(t, []string{"general"}, cfg.Channels)
	require.Equal(t, 50, cfg.History.Limit)
	require.Equal(t, 10*time.Second, cfg.Session.PushTimeout)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}, cfg.Session.ReconnectBackoff)
	require.Equal(t, 5*time.Minute, cfg.Session.RosterTTL)
}
