package server

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/NicolasHaas/gorelay/pkg/protocol"
)

// ConnectionRegistry maps connection addresses and claimed nicknames to
// mailboxes. Its mutex guards plain map work only: no send, write or other
// blocking call happens while it is held.
type ConnectionRegistry struct {
	mu    sync.Mutex
	addrs map[string]*Mailbox // remote address -> mailbox
	nicks map[string]*Mailbox // nickname -> mailbox
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		addrs: make(map[string]*Mailbox),
		nicks: make(map[string]*Mailbox),
	}
}

// Register records the mailbox of a newly accepted connection.
func (r *ConnectionRegistry) Register(addr string, mb *Mailbox) {
	r.mu.Lock()
	r.addrs[addr] = mb
	r.mu.Unlock()
}

// Unregister removes the address entry and every nickname owned by mb,
// returning the released nicknames.
func (r *ConnectionRegistry) Unregister(addr string, mb *Mailbox) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.addrs[addr] == mb {
		delete(r.addrs, addr)
	}
	var released []string
	for nick, owner := range r.nicks {
		if owner == mb {
			delete(r.nicks, nick)
			released = append(released, nick)
		}
	}
	return released
}

// ClaimNickname gives mb exclusive use of nick. It returns false, changing
// nothing, when nick is already claimed by anyone (mb included).
func (r *ConnectionRegistry) ClaimNickname(mb *Mailbox, nick string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.nicks[nick]; taken {
		return false
	}
	r.nicks[nick] = mb
	return true
}

// ReleaseNickname frees nick if, and only if, it is owned by mb.
func (r *ConnectionRegistry) ReleaseNickname(mb *Mailbox, nick string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nicks[nick] != mb {
		return false
	}
	delete(r.nicks, nick)
	return true
}

// Lookup returns the mailbox that owns nick.
func (r *ConnectionRegistry) Lookup(nick string) (*Mailbox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mb, ok := r.nicks[nick]
	return mb, ok
}

// Count returns the number of registered connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.addrs)
}

// Nicknames returns the claimed nicknames, sorted.
func (r *ConnectionRegistry) Nicknames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	nicks := make([]string, 0, len(r.nicks))
	for nick := range r.nicks {
		nicks = append(nicks, nick)
	}
	sort.Strings(nicks)
	return nicks
}

type delivery struct {
	nick   string
	target *Mailbox
}

// resolve snapshots the mailboxes for nicks under the lock. Unknown
// nicknames are returned separately.
func (r *ConnectionRegistry) resolve(nicks []string) (found []delivery, missing []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, nick := range nicks {
		if mb, ok := r.nicks[nick]; ok {
			found = append(found, delivery{nick: nick, target: mb})
		} else {
			missing = append(missing, nick)
		}
	}
	return found, missing
}

// Deliver relays message from sender to each nickname as
// "<sender> PRIVMSG <nick> <message>". Unknown nicknames are skipped and
// returned; the call itself never fails. It returns after every record
// has been queued.
func (r *ConnectionRegistry) Deliver(ctx context.Context, sender, message string, nicks []string) (delivered int, skipped []string) {
	found, skipped := r.resolve(nicks)
	for _, d := range found {
		if send(ctx, d, protocol.PrivMsg(sender, d.nick, message)) {
			delivered++
		}
	}
	return delivered, skipped
}

// SendTo queues the same record for every nickname, returning how many
// mailboxes accepted it.
func (r *ConnectionRegistry) SendTo(ctx context.Context, nicks []string, record string) int {
	found, _ := r.resolve(nicks)
	n := 0
	for _, d := range found {
		if send(ctx, d, record) {
			n++
		}
	}
	return n
}

// Broadcast queues record for every registered connection, whether or not
// it has a nickname.
func (r *ConnectionRegistry) Broadcast(ctx context.Context, record string) int {
	r.mu.Lock()
	targets := make([]*Mailbox, 0, len(r.addrs))
	for _, mb := range r.addrs {
		targets = append(targets, mb)
	}
	r.mu.Unlock()

	n := 0
	for _, mb := range targets {
		if mb.Send(ctx, record) == nil {
			n++
		}
	}
	return n
}

func send(ctx context.Context, d delivery, record string) bool {
	err := d.target.Send(ctx, record)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrMailboxClosed):
		// recipient disconnected between lookup and send
		return false
	default:
		slog.Debug("delivery abandoned", "nick", d.nick, "err", err)
		return false
	}
}
