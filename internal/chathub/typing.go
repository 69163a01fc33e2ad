package chathub

import (
	"sync"
	"time"
)

// TypingTracker holds the transient per-conversation set of users currently
// typing. Nothing is persisted and everything is lost on restart by design.
// Marks carry a timestamp so a defensive sweep can clear indicators left
// behind by an unclean disconnect.
type TypingTracker struct {
	mu     sync.Mutex
	typing map[string]map[string]time.Time // conversationID -> userID -> marked at

	now func() time.Time
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{
		typing: make(map[string]map[string]time.Time),
		now:    time.Now,
	}
}

// Start marks the user as typing in the conversation and reports whether the
// mark is new. A repeated start refreshes the timestamp without counting as
// a change, so peers are not re-notified.
func (t *TypingTracker) Start(conversationID, userID string) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.typing[conversationID]
	if !ok {
		users = make(map[string]time.Time)
		t.typing[conversationID] = users
	}
	_, already := users[userID]
	users[userID] = t.now()
	return !already
}

// Stop clears the user's typing mark and reports whether one existed.
// Stopping an identity that was never marked is a no-op.
func (t *TypingTracker) Stop(conversationID, userID string) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remove(conversationID, userID)
}

// ClearIdentity removes the identity's mark from every conversation and
// returns the conversations that held one, so the caller can emit synthetic
// stop-typing broadcasts on disconnect.
func (t *TypingTracker) ClearIdentity(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var cleared []string
	for convID, users := range t.typing {
		if _, ok := users[userID]; ok {
			t.remove(convID, userID)
			cleared = append(cleared, convID)
		}
	}
	return cleared
}

// Expire clears marks older than ttl and returns the (conversation, user)
// pairs that were dropped.
func (t *TypingTracker) Expire(ttl time.Duration) map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-ttl)
	expired := make(map[string][]string)
	for convID, users := range t.typing {
		for userID, at := range users {
			if at.Before(cutoff) {
				t.remove(convID, userID)
				expired[convID] = append(expired[convID], userID)
			}
		}
	}
	return expired
}

// TypingIn returns a snapshot of who is typing in the conversation.
func (t *TypingTracker) TypingIn(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.typing[conversationID]
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	return out
}

// remove must be called with the lock held.
func (t *TypingTracker) remove(conversationID, userID string) bool {
	users, ok := t.typing[conversationID]
	if !ok {
		return false
	}
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.typing, conversationID)
	}
	return true
}
