package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime connections accepted (all transports)
	ActiveConnections atomic.Int64 // currently open connections
	TotalDisconnects  atomic.Int64 // connections that ended, for any reason
	AcceptErrors      atomic.Int64 // transient accept failures

	// Registration counters
	Registrations      atomic.Int64 // welcome records sent
	NicknameCollisions atomic.Int64 // NICK rejected because the name was taken

	// Message counters
	MessagesRelayed   atomic.Int64 // PRIVMSG records queued for recipients
	UnknownRecipients atomic.Int64 // PRIVMSG targets with no owner
	MalformedLines    atomic.Int64 // lines ignored by the router
	FloodDrops        atomic.Int64 // lines dropped by the flood limiter

	// Channel counters
	ChannelJoins    atomic.Int64 // new memberships
	ChannelsCreated atomic.Int64 // channels created by a JOIN during this run
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	TotalDisconnects  int64 `json:"total_disconnects"`
	AcceptErrors      int64 `json:"accept_errors"`

	Registrations      int64 `json:"registrations"`
	NicknameCollisions int64 `json:"nickname_collisions"`

	MessagesRelayed   int64 `json:"messages_relayed"`
	UnknownRecipients int64 `json:"unknown_recipients"`
	MalformedLines    int64 `json:"malformed_lines"`
	FloodDrops        int64 `json:"flood_drops"`

	ChannelJoins    int64 `json:"channel_joins"`
	ChannelsCreated int64 `json:"channels_created"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:             uptime.Truncate(time.Second).String(),
		UptimeSeconds:      int64(uptime.Seconds()),
		ActiveConnections:  m.ActiveConnections.Load(),
		TotalConnections:   m.TotalConnections.Load(),
		TotalDisconnects:   m.TotalDisconnects.Load(),
		AcceptErrors:       m.AcceptErrors.Load(),
		Registrations:      m.Registrations.Load(),
		NicknameCollisions: m.NicknameCollisions.Load(),
		MessagesRelayed:    m.MessagesRelayed.Load(),
		UnknownRecipients:  m.UnknownRecipients.Load(),
		MalformedLines:     m.MalformedLines.Load(),
		FloodDrops:         m.FloodDrops.Load(),
		ChannelJoins:       m.ChannelJoins.Load(),
		ChannelsCreated:    m.ChannelsCreated.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"registrations", s.Registrations,
		"messages", s.MessagesRelayed,
		"joins", s.ChannelJoins,
		"flood_drops", s.FloodDrops,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
