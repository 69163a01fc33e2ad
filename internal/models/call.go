package models

import (
	"encoding/json"
	"time"
)

// CallStatus is the state of a call session. The machine only moves forward:
// ringing -> connecting -> connected -> ended, with the remaining statuses
// as terminal side exits.
type CallStatus string

const (
	CallRinging      CallStatus = "ringing"
	CallConnecting   CallStatus = "connecting"
	CallConnected    CallStatus = "connected"
	CallEnded        CallStatus = "ended"
	CallRejected     CallStatus = "rejected"
	CallFailed       CallStatus = "failed"
	CallDisconnected CallStatus = "disconnected"
	CallAbandoned    CallStatus = "abandoned"
)

// Terminal reports whether the status is a final one.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallEnded, CallRejected, CallFailed, CallDisconnected, CallAbandoned:
		return true
	}
	return false
}

// MediaKind is the requested call media.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Valid reports whether the kind is one of the two supported medias.
func (k MediaKind) Valid() bool {
	return k == MediaAudio || k == MediaVideo
}

// CallSession is a live call attempt between exactly two users. It exists
// only in process memory while the call is in flight; once terminated it is
// archived as a CallHistoryRecord and dropped from the live set.
type CallSession struct {
	CallID    string     `json:"call_id"`
	CallerID  string     `json:"caller_id"`
	CalleeID  string     `json:"callee_id"`
	MediaKind MediaKind  `json:"media_kind"`
	Status    CallStatus `json:"status"`

	StartedAt   time.Time `json:"started_at"`
	AnsweredAt  time.Time `json:"answered_at,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
	EndedAt     time.Time `json:"ended_at,omitempty"`

	// LastOffer keeps the most recent SDP offer so a late-joining device can
	// be handed the current negotiation state.
	LastOffer json.RawMessage `json:"-"`
}

// HasParticipant reports whether the given user is one of the two parties.
func (s *CallSession) HasParticipant(userID string) bool {
	return s.CallerID == userID || s.CalleeID == userID
}

// PeerOf returns the other party, or "" for a non-participant.
func (s *CallSession) PeerOf(userID string) string {
	switch userID {
	case s.CallerID:
		return s.CalleeID
	case s.CalleeID:
		return s.CallerID
	}
	return ""
}

// DurationSeconds is the connected time in whole seconds, 0 when the call
// never reached connected.
func (s *CallSession) DurationSeconds() int {
	if s.ConnectedAt.IsZero() || s.EndedAt.IsZero() {
		return 0
	}
	d := int(s.EndedAt.Sub(s.ConnectedAt) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// CallHistoryRecord is the durable, append-only copy of a terminated call,
// kept for auditing and the call-log endpoint. Rows older than the retention
// window are purged by the sweeper.
type CallHistoryRecord struct {
	CallID    string     `gorm:"primaryKey" json:"call_id"`
	CallerID  string     `gorm:"type:text;not null;index" json:"caller_id"`
	CalleeID  string     `gorm:"type:text;not null;index" json:"callee_id"`
	MediaKind MediaKind  `gorm:"type:text" json:"media_kind"`
	Status    CallStatus `gorm:"type:text" json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	EndedAt     time.Time  `gorm:"index" json:"ended_at"`
	DurationSec int        `json:"duration_sec"`
}

// HistoryRecord snapshots a terminated session into its archive form.
func (s *CallSession) HistoryRecord() *CallHistoryRecord {
	rec := &CallHistoryRecord{
		CallID:      s.CallID,
		CallerID:    s.CallerID,
		CalleeID:    s.CalleeID,
		MediaKind:   s.MediaKind,
		Status:      s.Status,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		DurationSec: s.DurationSeconds(),
	}
	if !s.ConnectedAt.IsZero() {
		t := s.ConnectedAt
		rec.ConnectedAt = &t
	}
	return rec
}
