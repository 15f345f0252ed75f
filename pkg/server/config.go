package server

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/gorelay/pkg/datastore"
	"github.com/NicolasHaas/gorelay/pkg/protocol"
)

// Config holds server configuration.
type Config struct {
	ListenAddr     string        `yaml:"listen_addr"`     // TCP bind address (e.g. ":6667")
	ServerName     string        `yaml:"server_name"`     // prefix of server replies and sender labels
	MailboxSize    int           `yaml:"mailbox_size"`    // per-connection outbound queue length
	MaxLineLength  int           `yaml:"max_line_length"` // inbound lines are truncated past this
	WriteTimeout   time.Duration `yaml:"write_timeout"`   // per-record socket write deadline
	FloodBurst     int           `yaml:"flood_burst"`     // lines allowed per FloodInterval (0 = unlimited)
	FloodInterval  time.Duration `yaml:"flood_interval"`
	DBPath         string        `yaml:"db_path"`   // SQLite database path (empty = in-memory)
	HTTPAddr       string        `yaml:"http_addr"` // admin/metrics HTTP bind address (empty = disabled)
	WebSocket      bool          `yaml:"websocket"` // serve the /ws line gateway on HTTPAddr
	AllowedOrigins []string      `yaml:"allowed_origins,omitempty"`
	Channels       ChannelList   `yaml:"channels,omitempty"` // declared at startup
	MetricsLog     time.Duration `yaml:"metrics_log"`        // periodic metrics log interval (0 = off)
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    fmt.Sprintf(":%d", protocol.DefaultPort),
		ServerName:    "localhost",
		MailboxSize:   DefaultMailboxSize,
		MaxLineLength: protocol.MaxLineLength,
		WriteTimeout:  10 * time.Second,
		FloodBurst:    20,
		FloodInterval: 10 * time.Second,
		MetricsLog:    60 * time.Second,
	}
}

// sanitize replaces unusable zero values with defaults.
func (c Config) sanitize() Config {
	def := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.ServerName == "" {
		c.ServerName = def.ServerName
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = def.MailboxSize
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = def.MaxLineLength
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.FloodBurst < 0 {
		c.FloodBurst = 0
	}
	return c
}

// LoadConfigFile overlays the YAML file at path onto cfg. Keys missing from
// the file keep their current value.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return fmt.Errorf("server: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("server: parse config %s: %w", path, err)
	}
	return nil
}

// LoadEnv loads envFile (if set) into the process environment and then
// applies RELAY_* variables to cfg.
func LoadEnv(envFile string, cfg *Config) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("server: load env file: %w", err)
		}
	}
	return applyEnv(os.LookupEnv, cfg)
}

func applyEnv(lookup func(string) (string, bool), cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("server: %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("server: %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("RELAY_LISTEN_ADDR", &cfg.ListenAddr)
	str("RELAY_SERVER_NAME", &cfg.ServerName)
	str("RELAY_DB_PATH", &cfg.DBPath)
	str("RELAY_HTTP_ADDR", &cfg.HTTPAddr)
	if v, ok := lookup("RELAY_WEBSOCKET"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("server: RELAY_WEBSOCKET: %w", err)
		}
		cfg.WebSocket = b
	}
	if v, ok := lookup("RELAY_CHANNELS"); ok {
		cfg.Channels = splitList(v)
	}
	if v, ok := lookup("RELAY_ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitList(v)
	}

	for _, f := range []func() error{
		func() error { return num("RELAY_MAILBOX_SIZE", &cfg.MailboxSize) },
		func() error { return num("RELAY_MAX_LINE_LENGTH", &cfg.MaxLineLength) },
		func() error { return num("RELAY_FLOOD_BURST", &cfg.FloodBurst) },
		func() error { return dur("RELAY_FLOOD_INTERVAL", &cfg.FloodInterval) },
		func() error { return dur("RELAY_WRITE_TIMEOUT", &cfg.WriteTimeout) },
		func() error { return dur("RELAY_METRICS_LOG", &cfg.MetricsLog) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ChannelList is the channels key of a config file. Entries are either
// plain names or catalog entries as written by ExportChannelsYAML, so an
// export loads back as a config.
type ChannelList []string

// UnmarshalYAML accepts "#go" as well as {name: "#go", created_at: ...}.
func (l *ChannelList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("server: line %d: channels must be a list", value.Line)
	}
	out := make(ChannelList, 0, len(value.Content))
	for _, item := range value.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, item.Value)
		case yaml.MappingNode:
			var entry ChannelYAML
			if err := item.Decode(&entry); err != nil {
				return err
			}
			if entry.Name == "" {
				return fmt.Errorf("server: line %d: channel entry without name", item.Line)
			}
			out = append(out, entry.Name)
		default:
			return fmt.Errorf("server: line %d: unexpected channel entry", item.Line)
		}
	}
	*l = out
	return nil
}

// ChannelsExport is the YAML document written by ExportChannelsYAML. It
// is itself a valid config file.
type ChannelsExport struct {
	Channels []ChannelYAML `yaml:"channels"`
}

// ChannelYAML is one catalogued channel.
type ChannelYAML struct {
	Name      string `yaml:"name"`
	CreatedAt string `yaml:"created_at"`
}

// ExportChannelsYAML exports the channel catalog as YAML.
func ExportChannelsYAML(ctx context.Context, st datastore.ChannelReadProvider) ([]byte, error) {
	channels, err := st.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("server: export channels: %w", err)
	}
	export := ChannelsExport{Channels: make([]ChannelYAML, 0, len(channels))}
	for _, ch := range channels {
		export.Channels = append(export.Channels, ChannelYAML{
			Name:      ch.Name,
			CreatedAt: ch.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	return yaml.Marshal(&export)
}
