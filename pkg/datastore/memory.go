package datastore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/gorelay/pkg/model"
)

// MemoryStore provides an in-memory DataStore for tests and for running
// without a database file. It mirrors SQLStore validation.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextChannelID  int64
	channelsByName map[string]*model.Channel
	connections    map[string]*model.ConnectionRecord
	order          []string // connection IDs in insertion order
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:            now,
		nextChannelID:  1,
		channelsByName: make(map[string]*model.Channel),
		connections:    make(map[string]*model.ConnectionRecord),
	}
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }

// ---- Channels ----

func (m *MemoryStore) EnsureChannel(_ context.Context, name string) (*model.Channel, bool, error) {
	if err := model.ValidateChannelName(name); err != nil {
		return nil, false, fmt.Errorf("datastore: ensure channel: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.channelsByName[name]; ok {
		cp := *ch
		return &cp, false, nil
	}
	ch := &model.Channel{ID: m.nextChannelID, Name: name, CreatedAt: m.now()}
	m.nextChannelID++
	m.channelsByName[name] = ch
	cp := *ch
	return &cp, true, nil
}

func (m *MemoryStore) GetChannelByName(_ context.Context, name string) (*model.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.channelsByName[name]
	if !ok {
		return nil, nil
	}
	cp := *ch
	return &cp, nil
}

func (m *MemoryStore) ListChannels(_ context.Context) ([]model.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	channels := make([]model.Channel, 0, len(m.channelsByName))
	for _, ch := range m.channelsByName {
		channels = append(channels, *ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })
	return channels, nil
}

// ---- Connections ----

func (m *MemoryStore) OpenConnection(_ context.Context, rec *model.ConnectionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("datastore: open connection: empty id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connections[rec.ID]; exists {
		return fmt.Errorf("datastore: open connection: duplicate id %q", rec.ID)
	}
	if rec.ConnectedAt.IsZero() {
		rec.ConnectedAt = m.now()
	}
	if rec.Transport == "" {
		rec.Transport = "tcp"
	}
	cp := *rec
	m.connections[rec.ID] = &cp
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *MemoryStore) SetConnectionNickname(_ context.Context, id, nickname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.connections[id]; ok {
		rec.Nickname = nickname
	}
	return nil
}

func (m *MemoryStore) CloseConnection(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.connections[id]; ok && rec.DisconnectedAt.IsZero() {
		rec.DisconnectedAt = at.UTC()
	}
	return nil
}

func (m *MemoryStore) GetConnection(_ context.Context, id string) (*model.ConnectionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.connections[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) ListConnections(_ context.Context, limit int) ([]model.ConnectionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]model.ConnectionRecord, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if limit > 0 && len(records) == limit {
			break
		}
		records = append(records, *m.connections[m.order[i]])
	}
	return records, nil
}
