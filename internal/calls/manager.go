// Package calls arbitrates peer-to-peer call setup: offer/answer/ICE relay
// between two identities, timeout-driven transitions and the terminated-call
// archive. It handles signaling only; media never passes through here.
package calls

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"peerbay/backend/internal/apperr"
	"peerbay/backend/internal/config"
	"peerbay/backend/internal/models"
	"peerbay/backend/internal/storage"

	"github.com/google/uuid"
)

// Pusher is what the manager needs from the hub: presence lookup and local
// event delivery. Defined here so this package never imports chathub.
type Pusher interface {
	PushToUser(userID string, ev models.Event) bool
	IsOnline(userID string) bool
}

// Options bundle the timing knobs of the state machine.
type Options struct {
	RingingTimeout    time.Duration
	ConnectingTimeout time.Duration
	GraceDelay        time.Duration
	MaxCallAge        time.Duration
	HistoryRetention  time.Duration
	HistoryRingSize   int
}

// DefaultOptions mirror the stock policy constants.
func DefaultOptions() Options {
	return Options{
		RingingTimeout:    config.RingingTimeout,
		ConnectingTimeout: config.ConnectingTimeout,
		GraceDelay:        config.GraceDelay,
		MaxCallAge:        config.MaxCallAge,
		HistoryRetention:  config.HistoryRetention,
		HistoryRingSize:   config.HistoryRingSize,
	}
}

// Manager owns the live call session set. All state mutations happen under
// one mutex; events are pushed and history persisted only after the lock is
// released, so no network or store call ever runs while holding it.
type Manager struct {
	mu           sync.Mutex
	live         map[string]*models.CallSession
	activeByUser map[string]string // userID -> callID of their non-terminal session

	history *HistoryRing
	store   storage.Storage
	pusher  Pusher
	timers  *Scheduler
	opts    Options

	now func() time.Time
}

func NewManager(store storage.Storage, pusher Pusher, opts Options) *Manager {
	return &Manager{
		live:         make(map[string]*models.CallSession),
		activeByUser: make(map[string]string),
		history:      NewHistoryRing(opts.HistoryRingSize),
		store:        store,
		pusher:       pusher,
		timers:       NewScheduler(),
		opts:         opts,
		now:          time.Now,
	}
}

// History exposes the in-memory archive of recently terminated calls.
func (m *Manager) History() *HistoryRing { return m.history }

// LiveSession returns a copy of the live session, or nil. Grace-delayed
// terminated sessions still count as present.
func (m *Manager) LiveSession(callID string) *models.CallSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live[callID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// ActiveCallFor returns the callID of the identity's non-terminal session,
// or "".
func (m *Manager) ActiveCallFor(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeByUser[userID]
}

func timerKey(callID, stage string) string { return callID + ":" + stage }

// Offer creates a new session in ringing and notifies both parties. It fails
// without creating anything when either party is already in a non-terminal
// call or the callee is offline.
func (m *Manager) Offer(callerID, calleeID string, kind models.MediaKind, payload json.RawMessage) error {
	if calleeID == "" {
		return apperr.Validation("callee is required")
	}
	if !kind.Valid() {
		return apperr.Validation("media kind must be audio or video")
	}
	if callerID == calleeID {
		return apperr.Validation("cannot call yourself")
	}
	if !m.pusher.IsOnline(calleeID) {
		return apperr.NotFound("user offline")
	}

	session := &models.CallSession{
		CallID:    uuid.New().String(),
		CallerID:  callerID,
		CalleeID:  calleeID,
		MediaKind: kind,
		Status:    models.CallRinging,
		StartedAt: m.now(),
		LastOffer: payload,
	}

	m.mu.Lock()
	if existing := m.activeByUser[callerID]; existing != "" {
		m.mu.Unlock()
		return apperr.StateConflict("caller already in a call")
	}
	if existing := m.activeByUser[calleeID]; existing != "" {
		m.mu.Unlock()
		return apperr.StateConflict("callee is busy")
	}
	m.live[session.CallID] = session
	m.activeByUser[callerID] = session.CallID
	m.activeByUser[calleeID] = session.CallID
	m.mu.Unlock()

	log.Printf("Call %s: %s -> %s (%s) ringing", session.CallID, callerID, calleeID, kind)

	m.pusher.PushToUser(calleeID, models.Event{
		Type:       models.EventIncomingCall,
		CallID:     session.CallID,
		SenderID:   callerID,
		MediaKind:  kind,
		CallStatus: models.CallRinging,
		Payload:    payload,
	})
	m.pusher.PushToUser(callerID, models.Event{
		Type:        models.EventCallInitiated,
		CallID:      session.CallID,
		RecipientID: calleeID,
		MediaKind:   kind,
		CallStatus:  models.CallRinging,
	})

	callID := session.CallID
	m.timers.Schedule(timerKey(callID, "ringing"), m.opts.RingingTimeout, func() {
		m.expire(callID, models.CallRinging, "ringing timeout")
	})
	return nil
}

// Answer moves a ringing session to connecting and relays the answer payload
// to the caller. Only the designated callee may answer.
func (m *Manager) Answer(calleeID, callID string, payload json.RawMessage) error {
	m.mu.Lock()
	session, ok := m.live[callID]
	if !ok {
		m.mu.Unlock()
		return apperr.NotFound("call not found")
	}
	if session.CalleeID != calleeID {
		m.mu.Unlock()
		return apperr.Authorization("only the callee may answer")
	}
	if session.Status != models.CallRinging {
		m.mu.Unlock()
		return apperr.StateConflict("call is not ringing")
	}
	session.Status = models.CallConnecting
	session.AnsweredAt = m.now()
	callerID := session.CallerID
	m.mu.Unlock()

	m.timers.Cancel(timerKey(callID, "ringing"))

	m.pusher.PushToUser(callerID, models.Event{
		Type:       models.EventCallAnswered,
		CallID:     callID,
		SenderID:   calleeID,
		CallStatus: models.CallConnecting,
		Payload:    payload,
	})

	m.timers.Schedule(timerKey(callID, "connecting"), m.opts.ConnectingTimeout, func() {
		m.expire(callID, models.CallConnecting, "connection timeout")
	})
	return nil
}

// Confirm records that a peer connection was established. The first
// confirmation while connecting moves the session to connected; a repeat
// from the other side is a quiet no-op.
func (m *Manager) Confirm(userID, callID string) error {
	m.mu.Lock()
	session, ok := m.live[callID]
	if !ok {
		m.mu.Unlock()
		return apperr.NotFound("call not found")
	}
	if !session.HasParticipant(userID) {
		m.mu.Unlock()
		return apperr.Authorization("not a participant of this call")
	}
	if session.Status == models.CallConnected {
		m.mu.Unlock()
		return nil
	}
	if session.Status != models.CallConnecting {
		m.mu.Unlock()
		return apperr.StateConflict("call is not connecting")
	}
	session.Status = models.CallConnected
	session.ConnectedAt = m.now()
	callerID, calleeID := session.CallerID, session.CalleeID
	m.mu.Unlock()

	m.timers.Cancel(timerKey(callID, "connecting"))

	ev := models.Event{
		Type:       models.EventCallConnected,
		CallID:     callID,
		CallStatus: models.CallConnected,
	}
	m.pusher.PushToUser(callerID, ev)
	m.pusher.PushToUser(calleeID, ev)
	return nil
}

// Reject declines a ringing call. Only the callee may reject.
func (m *Manager) Reject(calleeID, callID string) error {
	m.mu.Lock()
	session, ok := m.live[callID]
	if !ok {
		m.mu.Unlock()
		return apperr.NotFound("call not found")
	}
	if session.CalleeID != calleeID {
		m.mu.Unlock()
		return apperr.Authorization("only the callee may reject")
	}
	if session.Status != models.CallRinging {
		m.mu.Unlock()
		return apperr.StateConflict("call is not ringing")
	}
	m.terminateLocked(session, models.CallRejected)
	snapshot := *session
	m.removeLocked(callID)
	m.mu.Unlock()

	m.timers.Cancel(timerKey(callID, "ringing"))

	m.pusher.PushToUser(snapshot.CallerID, models.Event{
		Type:       models.EventCallRejected,
		CallID:     callID,
		SenderID:   calleeID,
		CallStatus: models.CallRejected,
	})
	m.archive(&snapshot)
	return nil
}

// End hangs up a connecting or connected call. Either participant may end;
// both are notified with the computed duration. The session stays in the
// live set for a short grace delay so a final straggling event still finds
// it.
func (m *Manager) End(userID, callID string) error {
	m.mu.Lock()
	session, ok := m.live[callID]
	if !ok {
		m.mu.Unlock()
		return apperr.NotFound("call not found")
	}
	if !session.HasParticipant(userID) {
		m.mu.Unlock()
		return apperr.Authorization("not a participant of this call")
	}
	if session.Status != models.CallConnecting && session.Status != models.CallConnected {
		m.mu.Unlock()
		return apperr.StateConflict("call is not in progress")
	}
	m.terminateLocked(session, models.CallEnded)
	snapshot := *session
	m.mu.Unlock()

	m.timers.Cancel(timerKey(callID, "connecting"))

	log.Printf("Call %s ended by %s after %ds", callID, userID, snapshot.DurationSeconds())

	ev := models.Event{
		Type:        models.EventCallEnded,
		CallID:      callID,
		SenderID:    userID,
		CallStatus:  models.CallEnded,
		DurationSec: snapshot.DurationSeconds(),
	}
	m.pusher.PushToUser(snapshot.CallerID, ev)
	m.pusher.PushToUser(snapshot.CalleeID, ev)
	m.archive(&snapshot)

	m.timers.Schedule(timerKey(callID, "remove"), m.opts.GraceDelay, func() {
		m.mu.Lock()
		m.removeLocked(callID)
		m.mu.Unlock()
	})
	return nil
}

// Relay forwards an ICE candidate or mute/video toggle verbatim to the other
// participant. Valid while the session exists (grace delay included); never
// alters the session status.
func (m *Manager) Relay(userID, callID, eventType string, payload json.RawMessage) error {
	m.mu.Lock()
	session, ok := m.live[callID]
	if !ok {
		m.mu.Unlock()
		return apperr.NotFound("call not found")
	}
	if !session.HasParticipant(userID) {
		m.mu.Unlock()
		return apperr.Authorization("not a participant of this call")
	}
	peer := session.PeerOf(userID)
	m.mu.Unlock()

	m.pusher.PushToUser(peer, models.Event{
		Type:     eventType,
		CallID:   callID,
		SenderID: userID,
		Payload:  payload,
	})
	return nil
}

// HandleDisconnect terminates every non-terminal session the identity is a
// party of. Failures are isolated per session so cleanup of one call cannot
// abort cleanup of another.
func (m *Manager) HandleDisconnect(userID string) {
	m.mu.Lock()
	var snapshots []models.CallSession
	for _, session := range m.live {
		if session.Status.Terminal() || !session.HasParticipant(userID) {
			continue
		}
		m.terminateLocked(session, models.CallDisconnected)
		snapshots = append(snapshots, *session)
		m.removeLocked(session.CallID)
	}
	m.mu.Unlock()

	for i := range snapshots {
		snapshot := snapshots[i]
		m.timers.Cancel(timerKey(snapshot.CallID, "ringing"))
		m.timers.Cancel(timerKey(snapshot.CallID, "connecting"))

		log.Printf("Call %s terminated by disconnect of %s", snapshot.CallID, userID)

		m.pusher.PushToUser(snapshot.PeerOf(userID), models.Event{
			Type:        models.EventCallEnded,
			CallID:      snapshot.CallID,
			SenderID:    userID,
			CallStatus:  models.CallDisconnected,
			DurationSec: snapshot.DurationSeconds(),
		})
		m.archive(&snapshot)
	}
}

// expire is the timer callback for ringing/connecting deadlines. It re-checks
// the session state under the lock, so a timer racing a transition is a
// no-op.
func (m *Manager) expire(callID string, expected models.CallStatus, reason string) {
	m.mu.Lock()
	session, ok := m.live[callID]
	if !ok || session.Status != expected {
		m.mu.Unlock()
		return
	}
	m.terminateLocked(session, models.CallFailed)
	snapshot := *session
	m.removeLocked(callID)
	m.mu.Unlock()

	log.Printf("Call %s failed: %s", callID, reason)

	ev := models.Event{
		Type:        models.EventCallFailed,
		CallID:      callID,
		CallStatus:  models.CallFailed,
		Reason:      reason,
		DurationSec: snapshot.DurationSeconds(),
	}
	m.pusher.PushToUser(snapshot.CallerID, ev)
	m.pusher.PushToUser(snapshot.CalleeID, ev)
	m.archive(&snapshot)
}

// RunSweeper is the hourly safety net: live sessions past the max age are
// force-terminated as abandoned, and history beyond the retention window is
// purged from the ring and the table. Blocks until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.timers.Stop()
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep runs one cleanup pass.
func (m *Manager) Sweep() {
	now := m.now()

	m.mu.Lock()
	var abandoned []models.CallSession
	for _, session := range m.live {
		if session.Status.Terminal() {
			continue
		}
		if now.Sub(session.StartedAt) < m.opts.MaxCallAge {
			continue
		}
		m.terminateLocked(session, models.CallAbandoned)
		abandoned = append(abandoned, *session)
		m.removeLocked(session.CallID)
	}
	m.mu.Unlock()

	for i := range abandoned {
		snapshot := abandoned[i]
		m.timers.Cancel(timerKey(snapshot.CallID, "ringing"))
		m.timers.Cancel(timerKey(snapshot.CallID, "connecting"))

		log.Printf("WARNING: Call %s abandoned after exceeding max age", snapshot.CallID)

		ev := models.Event{
			Type:       models.EventCallFailed,
			CallID:     snapshot.CallID,
			CallStatus: models.CallAbandoned,
			Reason:     "call abandoned",
		}
		m.pusher.PushToUser(snapshot.CallerID, ev)
		m.pusher.PushToUser(snapshot.CalleeID, ev)
		m.archive(&snapshot)
	}

	cutoff := now.Add(-m.opts.HistoryRetention)
	if removed := m.history.Purge(cutoff); removed > 0 {
		log.Printf("Call history sweep dropped %d in-memory records", removed)
	}
	if _, err := m.store.PurgeCallRecords(cutoff); err != nil {
		log.Printf("ERROR: Failed to purge call history: %v", err)
	}
}

// terminateLocked applies a terminal status and frees both identities for
// new calls. Must be called with the lock held on a non-terminal session.
func (m *Manager) terminateLocked(session *models.CallSession, status models.CallStatus) {
	session.Status = status
	session.EndedAt = m.now()
	if m.activeByUser[session.CallerID] == session.CallID {
		delete(m.activeByUser, session.CallerID)
	}
	if m.activeByUser[session.CalleeID] == session.CallID {
		delete(m.activeByUser, session.CalleeID)
	}
}

// removeLocked drops the session from the live set. Must be called with the
// lock held.
func (m *Manager) removeLocked(callID string) {
	delete(m.live, callID)
}

// archive writes the terminated session to the in-memory ring and, off the
// caller's goroutine, to the durable call_history table.
func (m *Manager) archive(session *models.CallSession) {
	rec := session.HistoryRecord()
	m.history.Add(rec)
	go func() {
		if err := m.store.SaveCallRecord(rec); err != nil {
			log.Printf("ERROR: Failed to archive call %s: %v", rec.CallID, err)
		}
	}()
}
