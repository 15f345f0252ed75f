package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NicolasHaas/gorelay/pkg/datastore"
	"github.com/NicolasHaas/gorelay/pkg/logging"
	"github.com/NicolasHaas/gorelay/pkg/model"
)

// DefaultSendTimeout bounds fan-out that happens outside a live connection
// context, such as QUIT notices sent during cleanup.
const DefaultSendTimeout = 5 * time.Second

// Hub is the process-wide state shared by every connection: both registries,
// the metrics and the datastore. It is built once and handed to each
// connection so tests can run isolated instances side by side.
type Hub struct {
	host        string
	conns       *ConnectionRegistry
	channels    *ChannelRegistry
	metrics     *Metrics
	store       datastore.DataStore
	sendTimeout time.Duration
}

// NewHub creates a Hub. A nil store falls back to an in-memory one and a
// nil metrics value gets a fresh set of counters.
func NewHub(host string, store datastore.DataStore, metrics *Metrics) *Hub {
	if store == nil {
		store = datastore.NewMemory()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Hub{
		host:        host,
		conns:       NewConnectionRegistry(),
		channels:    NewChannelRegistry(),
		metrics:     metrics,
		store:       store,
		sendTimeout: DefaultSendTimeout,
	}
}

// Host is the server name used in reply prefixes and sender labels.
func (h *Hub) Host() string { return h.host }

// Connections returns the connection registry.
func (h *Hub) Connections() *ConnectionRegistry { return h.conns }

// Channels returns the channel registry.
func (h *Hub) Channels() *ChannelRegistry { return h.channels }

// Metrics returns the shared counters.
func (h *Hub) Metrics() *Metrics { return h.metrics }

// Store returns the datastore.
func (h *Hub) Store() datastore.DataStore { return h.store }

// Register records a new connection and returns its unauthenticated
// Session. The audit record is opened best effort: a datastore failure is
// logged and never refuses the connection.
func (h *Hub) Register(ctx context.Context, id, addr, transport string, mb *Mailbox) *Session {
	h.conns.Register(addr, mb)

	rec := &model.ConnectionRecord{
		ID:         id,
		RemoteAddr: addr,
		Transport:  transport,
	}
	if err := h.store.OpenConnection(ctx, rec); err != nil {
		slog.Warn("connection audit open failed", "conn", id, "err", err)
	}

	return &Session{
		hub:       h,
		id:        id,
		addr:      addr,
		transport: transport,
		mb:        mb,
		log:       logging.ForConn(id, addr),
	}
}

// Preload declares the catalogued channels plus extra names so they exist
// (empty) before anyone joins. Extra names are catalogued as well.
func (h *Hub) Preload(ctx context.Context, extra []string) error {
	for _, name := range extra {
		if _, _, err := h.store.EnsureChannel(ctx, name); err != nil {
			return fmt.Errorf("server: preload channel %q: %w", name, err)
		}
	}

	channels, err := h.store.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("server: preload channels: %w", err)
	}
	for _, ch := range channels {
		h.channels.Declare(ch.Name)
	}
	slog.Info("channels preloaded", "count", len(channels))
	return nil
}

// catalogChannel records a channel created by a JOIN.
func (h *Hub) catalogChannel(ctx context.Context, name string) {
	created, err := h.ensureChannel(ctx, name)
	if err != nil {
		slog.Warn("channel catalog write failed", "channel", name, "err", err)
		return
	}
	if created {
		slog.Debug("channel catalogued", "channel", name)
	}
}

func (h *Hub) ensureChannel(ctx context.Context, name string) (bool, error) {
	_, created, err := h.store.EnsureChannel(ctx, name)
	return created, err
}

// sendContext bounds sends made after the connection context is gone.
func (h *Hub) sendContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.sendTimeout)
}
