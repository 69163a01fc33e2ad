package calls

import (
	"sync"
	"time"

	"peerbay/backend/internal/models"
)

// HistoryRing is the bounded in-memory log of terminated calls. It backs the
// fast "recent calls" lookups; the durable copy lives in the call_history
// table and is what auditing reads. Nothing in-flight depends on the ring.
type HistoryRing struct {
	mu      sync.RWMutex
	records []*models.CallHistoryRecord
	max     int
}

func NewHistoryRing(max int) *HistoryRing {
	if max < 1 {
		max = 1
	}
	return &HistoryRing{max: max}
}

// Add appends a terminated call, evicting the oldest entry once full.
func (r *HistoryRing) Add(rec *models.CallHistoryRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)
	if len(r.records) > r.max {
		r.records = r.records[len(r.records)-r.max:]
	}
}

// ForUser returns the user's terminated calls newer than since, most recent
// first.
func (r *HistoryRing) ForUser(userID string, since time.Time) []*models.CallHistoryRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.CallHistoryRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if rec.EndedAt.Before(since) {
			continue
		}
		if rec.CallerID == userID || rec.CalleeID == userID {
			out = append(out, rec)
		}
	}
	return out
}

// Find returns the record for a callID, or nil.
func (r *HistoryRing) Find(callID string) *models.CallHistoryRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].CallID == callID {
			return r.records[i]
		}
	}
	return nil
}

// Purge drops entries that ended before the cutoff and returns how many were
// removed.
func (r *HistoryRing) Purge(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0]
	removed := 0
	for _, rec := range r.records {
		if rec.EndedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return removed
}

// Len returns the number of retained records.
func (r *HistoryRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
