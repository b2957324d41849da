package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func readChannels(t *testing.T, path string) []string {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v.GetStringSlice("channels")
}

func TestSaveChannels_CreatesNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, SaveChannels(path, []string{"general", "random"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "channels:")
	require.Equal(t, []string{"general", "random"}, readChannels(t, path))
}

func TestSaveChannels_PreservesOtherConfigAndComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	initial := `# my server
server:
  url: wss://chat.test/socket # prod
channels:
  - general
history:
  limit: 20
`
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	require.NoError(t, SaveChannels(path, []string{"general", "ops"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# my server")
	require.Contains(t, string(data), "# prod")
	require.Contains(t, string(data), "limit: 20")
	require.Equal(t, []string{"general", "ops"}, readChannels(t, path))
}

func TestSaveChannels_AppendsMissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  url: wss://chat.test\n"), 0o600))

	require.NoError(t, SaveChannels(path, []string{"general"}))
	require.Equal(t, []string{"general"}, readChannels(t, path))
}

func TestSaveChannels_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	err := SaveChannels(path, []string{"general"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "parsing config")
}

func TestAddChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	existing := []string{"general"}

	require.NoError(t, AddChannel(path, "random", existing))
	require.Equal(t, []string{"general", "random"}, readChannels(t, path))
	require.Equal(t, []string{"general"}, existing)

	untouched := filepath.Join(t.TempDir(), "untouched.yaml")
	require.NoError(t, AddChannel(untouched, "general", existing))
	_, err := os.Stat(untouched)
	require.True(t, os.IsNotExist(err))

	require.Error(t, AddChannel(path, "bad slug", existing))
}

func TestRemoveChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	existing := []string{"general", "random", "ops"}

	require.NoError(t, RemoveChannel(path, "random", existing))
	require.Equal(t, []string{"general", "ops"}, readChannels(t, path))
	require.Equal(t, []string{"general", "random", "ops"}, existing)

	require.Error(t, RemoveChannel(path, "missing", existing))
}
