// Package datastore persists the channel catalog and the connection audit
// log. Message bodies are never stored.
package datastore

import (
	"context"
	"time"

	"github.com/NicolasHaas/gorelay/pkg/model"
)

// DataStore defines the persistence interface used by the relay.
// Implementations are the SQLite store and an in-memory store for tests.
type DataStore interface {
	Close() error

	ChannelReadProvider
	ChannelWriteProvider

	ConnectionReadProvider
	ConnectionWriteProvider
}

// Compile-time checks.
var (
	_ DataStore = (*SQLStore)(nil)
	_ DataStore = (*MemoryStore)(nil)
)

type ChannelReadProvider interface {
	// ListChannels returns every catalogued channel ordered by ID.
	ListChannels(ctx context.Context) ([]model.Channel, error)

	// GetChannelByName returns (nil, nil) if the channel is unknown.
	GetChannelByName(ctx context.Context, name string) (*model.Channel, error)
}

type ChannelWriteProvider interface {
	// EnsureChannel records a channel if it is not catalogued yet. The
	// bool is true when a new entry was created.
	EnsureChannel(ctx context.Context, name string) (*model.Channel, bool, error)
}

type ConnectionReadProvider interface {
	// GetConnection returns (nil, nil) if id is unknown.
	GetConnection(ctx context.Context, id string) (*model.ConnectionRecord, error)

	// ListConnections returns the most recent records first. A limit of
	// zero or less returns all records.
	ListConnections(ctx context.Context, limit int) ([]model.ConnectionRecord, error)
}

type ConnectionWriteProvider interface {
	OpenConnection(ctx context.Context, rec *model.ConnectionRecord) error
	SetConnectionNickname(ctx context.Context, id, nickname string) error
	CloseConnection(ctx context.Context, id string, at time.Time) error
}
