package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/gorelay/pkg/datastore"
)

func TestLoadConfigFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	data := `
listen_addr: "127.0.0.1:7000"
server_name: irc.example.net
flood_burst: 5
flood_interval: 2s
channels:
  - "#general"
  - "#ops"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, LoadConfigFile(path, &cfg))

	want := DefaultConfig()
	want.ListenAddr = "127.0.0.1:7000"
	want.ServerName = "irc.example.net"
	want.FloodBurst = 5
	want.FloodInterval = 2 * time.Second
	want.Channels = []string{"#general", "#ops"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), &cfg))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("listen_addr: [unterminated"), 0o600))
	require.Error(t, LoadConfigFile(bad, &cfg))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RELAY_SERVER_NAME":    "relay.test",
		"RELAY_MAILBOX_SIZE":   "8",
		"RELAY_WEBSOCKET":      "true",
		"RELAY_CHANNELS":       "#a, #b,,",
		"RELAY_WRITE_TIMEOUT":  "3s",
		"RELAY_FLOOD_INTERVAL": "500ms",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, applyEnv(lookup, &cfg))
	require.Equal(t, "relay.test", cfg.ServerName)
	require.Equal(t, 8, cfg.MailboxSize)
	require.True(t, cfg.WebSocket)
	require.Equal(t, ChannelList{"#a", "#b"}, cfg.Channels)
	require.Equal(t, 3*time.Second, cfg.WriteTimeout)
	require.Equal(t, 500*time.Millisecond, cfg.FloodInterval)
	require.Equal(t, ":6667", cfg.ListenAddr)
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	for key, value := range map[string]string{
		"RELAY_MAILBOX_SIZE":  "lots",
		"RELAY_WEBSOCKET":     "maybe",
		"RELAY_WRITE_TIMEOUT": "soon",
	} {
		lookup := func(k string) (string, bool) {
			if k == key {
				return value, true
			}
			return "", false
		}
		cfg := DefaultConfig()
		err := applyEnv(lookup, &cfg)
		require.Error(t, err, key)
		require.Contains(t, err.Error(), key)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RELAY_SERVER_NAME=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("RELAY_SERVER_NAME") })

	cfg := DefaultConfig()
	require.NoError(t, LoadEnv(path, &cfg))
	require.Equal(t, "from-dotenv", cfg.ServerName)
}

func TestSanitize(t *testing.T) {
	got := Config{FloodBurst: -1}.sanitize()
	def := DefaultConfig()
	require.Equal(t, def.ListenAddr, got.ListenAddr)
	require.Equal(t, def.ServerName, got.ServerName)
	require.Equal(t, def.MailboxSize, got.MailboxSize)
	require.Equal(t, def.MaxLineLength, got.MaxLineLength)
	require.Equal(t, def.WriteTimeout, got.WriteTimeout)
	require.Zero(t, got.FloodBurst)
}

func TestExportChannelsYAML(t *testing.T) {
	ctx := context.Background()
	st := datastore.NewMemoryWithClock(func() time.Time {
		return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	})
	for _, name := range []string{"#go", "#rust"} {
		_, _, err := st.EnsureChannel(ctx, name)
		require.NoError(t, err)
	}

	data, err := ExportChannelsYAML(ctx, st)
	require.NoError(t, err)

	want := `
channels:
  - name: "#go"
    created_at: "2026-01-02T03:04:05Z"
  - name: "#rust"
    created_at: "2026-01-02T03:04:05Z"
`
	require.YAMLEq(t, want, string(data))
}

func TestExportLoadsBackAsConfig(t *testing.T) {
	ctx := context.Background()
	st := datastore.NewMemory()
	for _, name := range []string{"#go", "#rust"} {
		_, _, err := st.EnsureChannel(ctx, name)
		require.NoError(t, err)
	}
	data, err := ExportChannelsYAML(ctx, st)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "channels.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg := DefaultConfig()
	require.NoError(t, LoadConfigFile(path, &cfg))
	require.Equal(t, ChannelList{"#go", "#rust"}, cfg.Channels)
}

func TestChannelListForms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	data := `
channels:
  - "#plain"
  - name: "#catalogued"
    created_at: "2026-01-02T03:04:05Z"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	cfg := DefaultConfig()
	require.NoError(t, LoadConfigFile(path, &cfg))
	require.Equal(t, ChannelList{"#plain", "#catalogued"}, cfg.Channels)

	for name, bad := range map[string]string{
		"not a list": "channels: \"#go\"\n",
		"no name":    "channels:\n  - created_at: x\n",
	} {
		require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))
		cfg := DefaultConfig()
		require.Error(t, LoadConfigFile(path, &cfg), name)
	}
}
