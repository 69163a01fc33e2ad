package ratelimit

import (
	"testing"
	"time"

	"peerbay/backend/internal/config"

	"github.com/stretchr/testify/assert"
)

func fixedClock(start time.Time) (*time.Time, func() time.Time) {
	now := start
	return &now, func() time.Time { return now }
}

func newTestLimiter(limit int, window time.Duration) (*Limiter, *time.Time) {
	l := NewLimiter(map[string]config.RatePolicy{
		"send": {Limit: limit, Window: window},
	})
	clock, nowFn := fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))
	l.now = nowFn
	return l, clock
}

func TestLimiter_RejectsOverLimitUntilWindowResets(t *testing.T) {
	l, clock := newTestLimiter(2, 10*time.Second)

	ok, _ := l.Allow("alice", "send")
	assert.True(t, ok)
	ok, _ = l.Allow("alice", "send")
	assert.True(t, ok)

	// Third inside the window is rejected with a positive retry hint.
	*clock = clock.Add(3 * time.Second)
	ok, retryAfter := l.Allow("alice", "send")
	assert.False(t, ok)
	assert.Equal(t, 7*time.Second, retryAfter)

	// Once the window has elapsed the next attempt opens a fresh one.
	*clock = clock.Add(8 * time.Second)
	ok, retryAfter = l.Allow("alice", "send")
	assert.True(t, ok)
	assert.Zero(t, retryAfter)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	ok, _ := l.Allow("alice", "send")
	assert.True(t, ok)
	ok, _ = l.Allow("alice", "send")
	assert.False(t, ok, "alice exhausted her window")

	// A different identity has its own window.
	ok, _ = l.Allow("bob", "send")
	assert.True(t, ok)
}

func TestLimiter_UnknownKindAlwaysAllowed(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	for i := 0; i < 10; i++ {
		ok, _ := l.Allow("alice", "unthrottled")
		assert.True(t, ok)
	}
}

func TestLimiter_SweepDropsExpiredWindows(t *testing.T) {
	l, clock := newTestLimiter(5, 10*time.Second)

	l.Allow("alice", "send")
	l.Allow("bob", "send")
	assert.Len(t, l.windows, 2)

	// Still inside the window: nothing to collect.
	*clock = clock.Add(5 * time.Second)
	assert.Equal(t, 0, l.sweep())

	*clock = clock.Add(10 * time.Second)
	assert.Equal(t, 2, l.sweep())
	assert.Empty(t, l.windows)
}
