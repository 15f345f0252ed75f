package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/gorelay/pkg/datastore"
	"github.com/NicolasHaas/gorelay/pkg/logging"
	"github.com/NicolasHaas/gorelay/pkg/server"
	"github.com/NicolasHaas/gorelay/pkg/version"
)

type options struct {
	configFile string
	envFile    string
	logLevel   string
	logFormat  string

	// overrides, applied only when the flag was set
	cfg server.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{cfg: server.DefaultConfig()}

	root := &cobra.Command{
		Use:           "gorelay",
		Short:         "Line-oriented multi-client chat relay",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return logging.Setup(logging.Options{Level: opts.logLevel, Format: opts.logFormat})
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("gorelay %s\n", version.Full()))

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "YAML config file")
	pf.StringVar(&opts.envFile, "env-file", "", "dotenv file loaded before RELAY_* variables")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level: "+logging.LevelNames())
	pf.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&opts.cfg.DBPath, "db", opts.cfg.DBPath, "SQLite database file (empty = in-memory)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	for _, c := range []*cobra.Command{root, serve} {
		f := c.Flags()
		f.StringVar(&opts.cfg.ListenAddr, "listen", opts.cfg.ListenAddr, "TCP bind address")
		f.StringVar(&opts.cfg.ServerName, "server-name", opts.cfg.ServerName, "Server name used in replies")
		f.StringVar(&opts.cfg.HTTPAddr, "http", opts.cfg.HTTPAddr, "Admin HTTP bind address for /metrics (empty to disable)")
		f.BoolVar(&opts.cfg.WebSocket, "websocket", opts.cfg.WebSocket, "Serve the /ws gateway on the admin HTTP address")
		f.IntVar(&opts.cfg.MailboxSize, "mailbox-size", opts.cfg.MailboxSize, "Outbound queue length per connection")
		f.IntVar(&opts.cfg.FloodBurst, "flood-burst", opts.cfg.FloodBurst, "Lines allowed per flood interval (0 = unlimited)")
		f.DurationVar(&opts.cfg.FloodInterval, "flood-interval", opts.cfg.FloodInterval, "Flood control refill interval")
		f.StringSliceVar((*[]string)(&opts.cfg.Channels), "channel", nil, "Channel to declare at startup (repeatable)")
	}

	root.AddCommand(serve, newExportChannelsCmd(opts), newVersionCmd())
	return root
}

// loadConfig layers defaults, the YAML file, the environment and finally
// the flags that were set explicitly.
func loadConfig(cmd *cobra.Command, opts *options) (server.Config, error) {
	cfg := server.DefaultConfig()
	if opts.configFile != "" {
		if err := server.LoadConfigFile(opts.configFile, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := server.LoadEnv(opts.envFile, &cfg); err != nil {
		return cfg, err
	}

	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("db") {
		cfg.DBPath = opts.cfg.DBPath
	}
	if changed("listen") {
		cfg.ListenAddr = opts.cfg.ListenAddr
	}
	if changed("server-name") {
		cfg.ServerName = opts.cfg.ServerName
	}
	if changed("http") {
		cfg.HTTPAddr = opts.cfg.HTTPAddr
	}
	if changed("websocket") {
		cfg.WebSocket = opts.cfg.WebSocket
	}
	if changed("mailbox-size") {
		cfg.MailboxSize = opts.cfg.MailboxSize
	}
	if changed("flood-burst") {
		cfg.FloodBurst = opts.cfg.FloodBurst
	}
	if changed("flood-interval") {
		cfg.FloodInterval = opts.cfg.FloodInterval
	}
	if changed("channel") {
		cfg.Channels = append(cfg.Channels, opts.cfg.Channels...)
	}
	return cfg, nil
}

func openStore(path string) (datastore.DataStore, error) {
	if path == "" {
		slog.Info("no database configured, channel catalog is in-memory")
		return datastore.NewMemory(), nil
	}
	return datastore.NewSQLStore(path)
}

func runServe(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	st, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}

	slog.Info("starting gorelay", "version", version.String())
	srv := server.New(cfg, server.Dependencies{Store: st})
	return srv.Run()
}

func newExportChannelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export-channels",
		Short: "Print the channel catalog as YAML and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("export-channels: no database configured (use --db)")
			}
			st, err := datastore.NewSQLStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			data, err := server.ExportChannelsYAML(ctx, st)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gorelay %s\n", version.Full())
		},
	}
}
