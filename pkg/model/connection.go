package model

import "time"

// ConnectionRecord is one entry of the connection audit log.
type ConnectionRecord struct {
	ID             string    `json:"id"` // ULID assigned at accept time
	RemoteAddr     string    `json:"remote_addr"`
	Transport      string    `json:"transport"` // "tcp" or "ws"
	Nickname       string    `json:"nickname,omitempty"`
	ConnectedAt    time.Time `json:"connected_at"`
	DisconnectedAt time.Time `json:"disconnected_at,omitzero"`
}

// Open reports whether the connection has not been closed yet.
func (r *ConnectionRecord) Open() bool {
	return r.DisconnectedAt.IsZero()
}
