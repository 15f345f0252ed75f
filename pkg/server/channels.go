package server

import (
	"sort"
	"sync"
)

// ChannelRegistry maps channel names to their member nicknames. Channels
// are created on first join and never deleted, even when empty.
//
// Join observes the post-join member list atomically with respect to other
// joins, but returns it as a snapshot: callers fan out to members after the
// lock is released, so the lock is never held across a mailbox send.
type ChannelRegistry struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // channel -> set of nicknames
}

// NewChannelRegistry creates an empty registry.
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		members: make(map[string]map[string]struct{}),
	}
}

// Declare creates an empty channel. It reports whether the channel is new.
func (cr *ChannelRegistry) Declare(channel string) bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if _, ok := cr.members[channel]; ok {
		return false
	}
	cr.members[channel] = make(map[string]struct{})
	return true
}

// JoinResult describes the outcome of a Join.
type JoinResult struct {
	Members []string // sorted snapshot taken right after the join
	Added   bool     // nick was not a member before
	Created bool     // channel did not exist before
}

// Join adds nick to channel, creating the channel if needed. Joining twice
// is a no-op apart from the returned snapshot.
func (cr *ChannelRegistry) Join(channel, nick string) JoinResult {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	var res JoinResult
	set, ok := cr.members[channel]
	if !ok {
		set = make(map[string]struct{})
		cr.members[channel] = set
		res.Created = true
	}
	if _, member := set[nick]; !member {
		set[nick] = struct{}{}
		res.Added = true
	}
	res.Members = sortedKeys(set)
	return res
}

// Members returns a sorted snapshot of channel's members. Unknown channels
// yield an empty slice.
func (cr *ChannelRegistry) Members(channel string) []string {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return sortedKeys(cr.members[channel])
}

// Exists reports whether channel has been created.
func (cr *ChannelRegistry) Exists(channel string) bool {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	_, ok := cr.members[channel]
	return ok
}

// Peers returns every nickname sharing at least one channel with nick,
// excluding nick itself.
func (cr *ChannelRegistry) Peers(nick string) []string {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	peers := make(map[string]struct{})
	for _, set := range cr.members {
		if _, ok := set[nick]; !ok {
			continue
		}
		for member := range set {
			if member != nick {
				peers[member] = struct{}{}
			}
		}
	}
	return sortedKeys(peers)
}

// RemoveNick drops nick from every channel and returns the channels it
// left. The channels themselves remain.
func (cr *ChannelRegistry) RemoveNick(nick string) []string {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	var left []string
	for channel, set := range cr.members {
		if _, ok := set[nick]; ok {
			delete(set, nick)
			left = append(left, channel)
		}
	}
	sort.Strings(left)
	return left
}

// RenameNick replaces oldNick with newNick in every channel.
func (cr *ChannelRegistry) RenameNick(oldNick, newNick string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	for _, set := range cr.members {
		if _, ok := set[oldNick]; ok {
			delete(set, oldNick)
			set[newNick] = struct{}{}
		}
	}
}

// Names returns all channel names, sorted.
func (cr *ChannelRegistry) Names() []string {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	names := make([]string, 0, len(cr.members))
	for name := range cr.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MemberCounts returns channel name -> number of members.
func (cr *ChannelRegistry) MemberCounts() map[string]int {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	counts := make(map[string]int, len(cr.members))
	for name, set := range cr.members {
		counts[name] = len(set)
	}
	return counts
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
