// Package ratelimit implements a sliding-window counter per (user, action)
// key. The first action for a key opens a window; further actions inside the
// window count against the limit and are rejected once it is reached; a new
// window starts as soon as the old one has elapsed.
package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"

	"peerbay/backend/internal/config"
)

type window struct {
	start time.Time
	count int
}

// Limiter guards high-frequency actions. It owns its window map; all access
// goes through Allow and the background sweep.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	policies map[string]config.RatePolicy

	now func() time.Time // swappable for tests
}

// NewLimiter builds a limiter with the given per-kind policies.
func NewLimiter(policies map[string]config.RatePolicy) *Limiter {
	return &Limiter{
		windows:  make(map[string]*window),
		policies: policies,
		now:      time.Now,
	}
}

// Allow records one attempted action and reports whether it is within the
// window limit. When rejected, retryAfter tells the caller how long until the
// current window expires. Unknown action kinds are always allowed.
func (l *Limiter) Allow(userID, kind string) (ok bool, retryAfter time.Duration) {
	policy, found := l.policies[kind]
	if !found || policy.Limit <= 0 {
		return true, 0
	}

	key := userID + ":" + kind
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[key]
	if !exists || now.Sub(w.start) >= policy.Window {
		l.windows[key] = &window{start: now, count: 1}
		return true, 0
	}

	if w.count >= policy.Limit {
		return false, policy.Window - now.Sub(w.start)
	}
	w.count++
	return true, 0
}

// RunSweeper periodically discards fully expired windows to bound memory.
// It blocks until ctx is cancelled.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := l.sweep()
			if removed > 0 {
				log.Printf("Rate limiter sweep removed %d expired windows", removed)
			}
		}
	}
}

func (l *Limiter) sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var maxWindow time.Duration
	for _, p := range l.policies {
		if p.Window > maxWindow {
			maxWindow = p.Window
		}
	}

	removed := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= maxWindow {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}
