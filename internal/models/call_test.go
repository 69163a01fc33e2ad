package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCallStatus_Terminal(t *testing.T) {
	for _, status := range []CallStatus{CallRinging, CallConnecting, CallConnected} {
		assert.False(t, status.Terminal(), string(status))
	}
	for _, status := range []CallStatus{CallEnded, CallRejected, CallFailed, CallDisconnected, CallAbandoned} {
		assert.True(t, status.Terminal(), string(status))
	}
}

func TestCallSession_DurationSeconds(t *testing.T) {
	start := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	session := &CallSession{StartedAt: start, EndedAt: start.Add(time.Minute)}
	assert.Equal(t, 0, session.DurationSeconds(), "a call that never connected has no duration")

	session.ConnectedAt = start.Add(10 * time.Second)
	assert.Equal(t, 50, session.DurationSeconds())
}

func TestCallSession_HistoryRecord(t *testing.T) {
	start := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	session := &CallSession{
		CallID:    "call1",
		CallerID:  "alice",
		CalleeID:  "bob",
		MediaKind: MediaVideo,
		Status:    CallEnded,
		StartedAt: start,
		EndedAt:   start.Add(90 * time.Second),
	}

	rec := session.HistoryRecord()
	assert.Equal(t, "call1", rec.CallID)
	assert.Nil(t, rec.ConnectedAt, "never-connected calls archive without a connect time")
	assert.Equal(t, 0, rec.DurationSec)

	session.ConnectedAt = start.Add(30 * time.Second)
	rec = session.HistoryRecord()
	if assert.NotNil(t, rec.ConnectedAt) {
		assert.Equal(t, session.ConnectedAt, *rec.ConnectedAt)
	}
	assert.Equal(t, 60, rec.DurationSec)
}

func TestConversation_PeerOf(t *testing.T) {
	conv := &Conversation{ID: "conv1", UserAID: "alice", UserBID: "bob"}

	assert.Equal(t, "bob", conv.PeerOf("alice"))
	assert.Equal(t, "alice", conv.PeerOf("bob"))
	assert.Equal(t, "", conv.PeerOf("carol"))
	assert.True(t, conv.HasParticipant("alice"))
	assert.False(t, conv.HasParticipant("carol"))
}
