package calls

import (
	"fmt"
	"testing"
	"time"

	"peerbay/backend/internal/models"

	"github.com/stretchr/testify/assert"
)

func historyRecord(callID, caller, callee string, endedAt time.Time) *models.CallHistoryRecord {
	return &models.CallHistoryRecord{
		CallID:   callID,
		CallerID: caller,
		CalleeID: callee,
		Status:   models.CallEnded,
		EndedAt:  endedAt,
	}
}

func TestHistoryRing_EvictsOldestWhenFull(t *testing.T) {
	ring := NewHistoryRing(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		ring.Add(historyRecord(fmt.Sprintf("call%d", i), "alice", "bob", now))
	}

	assert.Equal(t, 3, ring.Len())
	assert.Nil(t, ring.Find("call0"))
	assert.Nil(t, ring.Find("call1"))
	assert.NotNil(t, ring.Find("call4"))
}

func TestHistoryRing_ForUserNewestFirst(t *testing.T) {
	ring := NewHistoryRing(10)
	now := time.Now()

	ring.Add(historyRecord("old", "alice", "bob", now.Add(-2*time.Hour)))
	ring.Add(historyRecord("mid", "carol", "alice", now.Add(-time.Hour)))
	ring.Add(historyRecord("new", "alice", "dave", now))
	ring.Add(historyRecord("other", "carol", "dave", now))

	records := ring.ForUser("alice", now.Add(-90*time.Minute))
	if assert.Len(t, records, 2) {
		assert.Equal(t, "new", records[0].CallID)
		assert.Equal(t, "mid", records[1].CallID)
	}
}

func TestHistoryRing_Purge(t *testing.T) {
	ring := NewHistoryRing(10)
	now := time.Now()

	ring.Add(historyRecord("stale1", "alice", "bob", now.Add(-25*time.Hour)))
	ring.Add(historyRecord("stale2", "alice", "bob", now.Add(-30*time.Hour)))
	ring.Add(historyRecord("fresh", "alice", "bob", now))

	removed := ring.Purge(now.Add(-24 * time.Hour))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, ring.Len())
	assert.NotNil(t, ring.Find("fresh"))
}
