package chathub

import (
	"sync"
	"time"
)

// PresenceRegistry is the single source of truth for "is this user reachable
// right now". It owns a mutex-guarded map of identity to the set of live
// channels for that identity; a user is online while at least one channel is
// registered. Nothing here is persisted: the registry is rebuilt by clients
// reconnecting after a restart.
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[string]map[string]Client // userID -> connID -> client
	since   map[string]time.Time         // userID -> first-channel time
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		entries: make(map[string]map[string]Client),
		since:   make(map[string]time.Time),
	}
}

// Register adds a channel for the client's identity and reports whether it
// was the identity's first live channel (i.e. the user just came online).
func (r *PresenceRegistry) Register(c Client) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.entries[c.GetUserID()]
	if !ok {
		conns = make(map[string]Client)
		r.entries[c.GetUserID()] = conns
		r.since[c.GetUserID()] = time.Now()
		first = true
	}
	conns[c.GetConnID()] = c
	return first
}

// Unregister removes one channel. removed reports whether the channel was
// actually registered (a double unregister is a no-op); last reports whether
// it was the identity's final channel, i.e. the user just went offline.
func (r *PresenceRegistry) Unregister(c Client) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.entries[c.GetUserID()]
	if !ok {
		return false, false
	}
	if _, ok := conns[c.GetConnID()]; !ok {
		return false, false
	}
	delete(conns, c.GetConnID())
	if len(conns) == 0 {
		delete(r.entries, c.GetUserID())
		delete(r.since, c.GetUserID())
		return true, true
	}
	return true, false
}

// IsOnline reports whether the identity holds at least one live channel.
func (r *PresenceRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[userID]) > 0
}

// ClientsFor returns a snapshot of the identity's live channels.
func (r *PresenceRegistry) ClientsFor(userID string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.entries[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// OnlineSince returns when the identity's first channel registered, or the
// zero time if offline.
func (r *PresenceRegistry) OnlineSince(userID string) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.since[userID]
}

// OnlineUsers returns a snapshot of every online identity.
func (r *PresenceRegistry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}
