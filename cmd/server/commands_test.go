package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/gorelay/pkg/datastore"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	require.Equal(t, "gorelay dev\n", out.String())
}

func TestExportChannels(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	st, err := datastore.NewSQLStore(dbPath)
	require.NoError(t, err)
	_, _, err = st.EnsureChannel(context.Background(), "#go")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"export-channels", "--db", dbPath, "--log-level", "error"})

	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "#go")
	require.Contains(t, out.String(), "created_at:")
}

func TestExportChannelsNeedsDatabase(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"export-channels", "--log-level", "error"})

	require.ErrorContains(t, root.Execute(), "no database configured")
}

func TestLoadConfigLayering(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server_name: from-file\nlisten_addr: \":7001\"\n"), 0o600))
	envPath := filepath.Join(dir, "relay.env")
	require.NoError(t, os.WriteFile(envPath, []byte("RELAY_LISTEN_ADDR=:7002\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("RELAY_LISTEN_ADDR") })

	root := newRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags([]string{
		"--config", cfgPath,
		"--env-file", envPath,
		"--mailbox-size", "7",
	}))

	opts := &options{configFile: cfgPath, envFile: envPath}
	opts.cfg.MailboxSize = 7
	cfg, err := loadConfig(serve, opts)
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.ServerName) // file
	require.Equal(t, ":7002", cfg.ListenAddr)     // env beats file
	require.Equal(t, 7, cfg.MailboxSize)          // flag beats both
}
