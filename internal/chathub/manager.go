package chathub

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"peerbay/backend/internal/apperr"
	"peerbay/backend/internal/config"
	"peerbay/backend/internal/models"
	"peerbay/backend/internal/ratelimit"
	"peerbay/backend/internal/storage"

	"github.com/google/uuid"
)

// CallService is the slice of the call session manager the hub dispatches
// into. It is an interface so the calls package never has to import chathub.
type CallService interface {
	Offer(callerID, calleeID string, kind models.MediaKind, payload json.RawMessage) error
	Answer(calleeID, callID string, payload json.RawMessage) error
	Reject(calleeID, callID string) error
	Confirm(userID, callID string) error
	End(userID, callID string) error
	Relay(userID, callID, eventType string, payload json.RawMessage) error
	HandleDisconnect(userID string)
}

// Hub owns the realtime coordination state: the presence registry, the typing
// tracker and the register/unregister loop. Client events are dispatched on
// the client's own read goroutine, so store calls never run inside the hub
// loop or under a registry lock.
type Hub struct {
	// InstanceID identifies this hub process on the shared Redis channel.
	InstanceID string

	Presence *PresenceRegistry
	Typing   *TypingTracker

	RegisterCh   chan Client
	UnregisterCh chan Client

	Storage   storage.Storage
	Limiter   *ratelimit.Limiter
	Messenger *Messenger
	Calls     CallService

	pubSubCh chan models.Event
}

// NewHub wires the hub with its presence registry, typing tracker and
// messenger. The call service is attached afterwards (it needs the hub as
// its event pusher).
func NewHub(s storage.Storage, limiter *ratelimit.Limiter) *Hub {
	h := &Hub{
		InstanceID:   uuid.New().String(),
		Presence:     NewPresenceRegistry(),
		Typing:       NewTypingTracker(),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Storage:      s,
		Limiter:      limiter,
		pubSubCh:     make(chan models.Event),
	}
	h.Messenger = NewMessenger(s, limiter, h)
	return h
}

// SetCallService attaches the call session manager.
func (h *Hub) SetCallService(cs CallService) {
	h.Calls = cs
}

// Run is the hub's main loop: registrations, disconnect teardown and
// delivery of events fanned out by sibling instances.
func (h *Hub) Run(ctx context.Context) {
	h.startPubSubListener(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.RegisterCh:
			h.handleRegister(client)

		case client := <-h.UnregisterCh:
			h.handleUnregister(client)

		case ev := <-h.pubSubCh:
			h.DeliverFanout(ev)
		}
	}
}

// DeliverFanout hands an event published by a sibling instance to this
// instance's local channels. A message that was persisted undelivered on the
// publishing node but reaches a device here gets its delivered flag flipped
// and the sender acknowledged.
func (h *Hub) DeliverFanout(ev models.Event) {
	if ev.Origin == h.InstanceID {
		return // our own fan-out, already delivered locally
	}
	if ev.RecipientID == "" {
		return
	}
	delivered := h.PushToUser(ev.RecipientID, ev)
	if delivered && ev.Type == models.EventMessage && !ev.Delivered {
		go h.confirmDelivery(ev)
	}
}

// confirmDelivery marks a message delivered after a sibling-published copy
// reached a local device, and routes the delivery confirmation back to the
// sender wherever they are connected.
func (h *Hub) confirmDelivery(ev models.Event) {
	if err := h.Storage.MarkDelivered(ev.MessageID); err != nil {
		log.Printf("WARNING: Failed to mark message %s delivered: %v", ev.MessageID, err)
	}
	ack := models.Event{
		Type:           models.EventMessageDelivered,
		MessageID:      ev.MessageID,
		ConversationID: ev.ConversationID,
		RecipientID:    ev.SenderID,
	}
	h.PushToUser(ev.SenderID, ack)
	h.Fanout(ack)
}

func (h *Hub) handleRegister(client Client) {
	first := h.Presence.Register(client)
	log.Printf("Client registered: user=%s conn=%s", client.GetUserID(), client.GetConnID())
	if first {
		go h.broadcastStatus(client.GetUserID(), true)
	}
}

// handleUnregister tears down every piece of state tied to the identity
// before returning: presence, typing marks and live calls. Call cleanup is
// isolated per session inside the call manager, so one failure cannot leave
// other sessions dangling.
func (h *Hub) handleUnregister(client Client) {
	removed, last := h.Presence.Unregister(client)
	if !removed {
		return
	}
	client.Close()
	log.Printf("Client unregistered: user=%s conn=%s", client.GetUserID(), client.GetConnID())

	if !last {
		return
	}

	userID := client.GetUserID()
	if h.Calls != nil {
		h.Calls.HandleDisconnect(userID)
	}
	for _, convID := range h.Typing.ClearIdentity(userID) {
		go h.broadcastTyping(convID, userID, false)
	}
	go h.broadcastStatus(userID, false)
}

// startPubSubListener subscribes to the shared Redis channel and funnels
// decoded events into the hub loop.
func (h *Hub) startPubSubListener(ctx context.Context) {
	pubsub := h.Storage.SubscribeEvents()
	if pubsub == nil {
		log.Println("WARNING: Event subscription unavailable, cross-instance delivery disabled")
		return
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev models.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("Error unmarshalling Redis event: %v", err)
					continue
				}
				select {
				case h.pubSubCh <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// RunTypingSweeper clears typing marks older than the TTL, covering clients
// that vanished without a socket-level disconnect. Blocks until ctx is done.
func (h *Hub) RunTypingSweeper(ctx context.Context) {
	ticker := time.NewTicker(config.TypingSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for convID, users := range h.Typing.Expire(config.TypingTTL) {
				for _, userID := range users {
					go h.broadcastTyping(convID, userID, false)
				}
			}
		}
	}
}

// --- EventPusher implementation ---

// PushToUser enqueues the event on every local channel of the identity. It
// runs on arbitrary goroutines (client dispatch, call timers, sweepers), so
// each send goes through the client's own TrySend guard; a full buffer or a
// channel mid-shutdown drops the event for that client rather than blocking
// or panicking.
func (h *Hub) PushToUser(userID string, ev models.Event) bool {
	clients := h.Presence.ClientsFor(userID)
	delivered := false
	for _, c := range clients {
		if c.TrySend(ev) {
			delivered = true
		} else {
			log.Printf("WARNING: Dropping %s for user=%s conn=%s (buffer full or closing)", ev.Type, userID, c.GetConnID())
		}
	}
	return delivered
}

// IsOnline reports whether the identity has a live local channel.
func (h *Hub) IsOnline(userID string) bool {
	return h.Presence.IsOnline(userID)
}

// Fanout publishes the event to sibling hub instances via Redis.
func (h *Hub) Fanout(ev models.Event) {
	ev.Origin = h.InstanceID
	if err := h.Storage.PublishEvent(ev); err != nil {
		log.Printf("WARNING: Failed to publish event %s: %v", ev.Type, err)
	}
}

// --- Dispatch ---

// Dispatch routes one inbound client event. It runs on the client's read
// goroutine; any rejection goes back to the originating channel only.
func (h *Hub) Dispatch(c Client, ev models.Event) {
	var err error

	switch ev.Type {
	case models.EventSendMessage:
		err = h.Messenger.SendMessage(c.GetUserID(), ev.RecipientID, ev.ConversationID, ev.Content)
	case models.EventMarkRead:
		err = h.Messenger.MarkRead(c.GetUserID(), ev.MessageID)
	case models.EventDeleteMessage:
		err = h.Messenger.SoftDelete(c.GetUserID(), ev.MessageID)

	case models.EventTypingStart:
		err = h.handleTyping(c.GetUserID(), ev.ConversationID, true)
	case models.EventTypingStop:
		err = h.handleTyping(c.GetUserID(), ev.ConversationID, false)

	case models.EventCallOffer:
		if ok, retryAfter := h.Limiter.Allow(c.GetUserID(), config.ActionCallOffer); !ok {
			err = apperr.RateLimited("too many call offers", retryAfter)
			break
		}
		err = h.Calls.Offer(c.GetUserID(), ev.RecipientID, ev.MediaKind, ev.Payload)
	case models.EventCallAnswer:
		err = h.Calls.Answer(c.GetUserID(), ev.CallID, ev.Payload)
	case models.EventCallReject:
		err = h.Calls.Reject(c.GetUserID(), ev.CallID)
	case models.EventCallConfirm:
		err = h.Calls.Confirm(c.GetUserID(), ev.CallID)
	case models.EventCallEnd:
		err = h.Calls.End(c.GetUserID(), ev.CallID)
	case models.EventCallICE, models.EventCallMute, models.EventCallVideo:
		err = h.Calls.Relay(c.GetUserID(), ev.CallID, ev.Type, ev.Payload)

	default:
		err = apperr.Validation("unknown event type: " + ev.Type)
	}

	if err != nil {
		h.pushErrorTo(c, err)
	}
}

// handleTyping updates the transient typing set and notifies the peer. Only
// a state change broadcasts, so repeated starts and redundant stops stay
// quiet.
func (h *Hub) handleTyping(userID, conversationID string, typing bool) error {
	if conversationID == "" {
		return apperr.Validation("conversation is required")
	}
	conv, err := h.Storage.GetConversationByID(conversationID)
	if err != nil {
		return apperr.Internal("failed to load conversation")
	}
	if conv == nil {
		return apperr.NotFound("conversation not found")
	}
	if !conv.HasParticipant(userID) {
		return apperr.Authorization("not a participant of this conversation")
	}

	var changed bool
	if typing {
		changed = h.Typing.Start(conversationID, userID)
	} else {
		changed = h.Typing.Stop(conversationID, userID)
	}
	if !changed {
		return nil
	}

	peer := conv.PeerOf(userID)
	ev := models.Event{
		Type:           models.EventTyping,
		ConversationID: conversationID,
		UserID:         userID,
		RecipientID:    peer,
		Typing:         typing,
	}
	h.PushToUser(peer, ev)
	h.Fanout(ev)
	return nil
}

// broadcastTyping emits a stop/start typing event on behalf of an identity,
// used for disconnect teardown and TTL expiry.
func (h *Hub) broadcastTyping(conversationID, userID string, typing bool) {
	conv, err := h.Storage.GetConversationByID(conversationID)
	if err != nil || conv == nil {
		return
	}
	peer := conv.PeerOf(userID)
	if peer == "" {
		return
	}
	ev := models.Event{
		Type:           models.EventTyping,
		ConversationID: conversationID,
		UserID:         userID,
		RecipientID:    peer,
		Typing:         typing,
	}
	h.PushToUser(peer, ev)
	h.Fanout(ev)
}

// broadcastStatus tells everyone who shares a conversation with the identity
// that it went online or offline.
func (h *Hub) broadcastStatus(userID string, online bool) {
	convs, err := h.Storage.ListConversationsForUser(userID)
	if err != nil {
		log.Printf("ERROR: Failed to load conversations for status broadcast of %s: %v", userID, err)
		return
	}

	seen := make(map[string]bool)
	for _, conv := range convs {
		peer := conv.PeerOf(userID)
		if peer == "" || seen[peer] {
			continue
		}
		seen[peer] = true
		ev := models.Event{
			Type:        models.EventStatus,
			UserID:      userID,
			RecipientID: peer,
			Online:      online,
		}
		h.PushToUser(peer, ev)
		h.Fanout(ev)
	}
}

// pushErrorTo reports a rejection to the originating channel only.
func (h *Hub) pushErrorTo(c Client, err error) {
	appErr := apperr.From(err)
	ev := models.Event{
		Type:  models.EventError,
		Code:  string(appErr.Code),
		Error: appErr.Message,
	}
	if appErr.RetryAfter > 0 {
		ev.RetryAfterMs = appErr.RetryAfter.Milliseconds()
	}
	if !c.TrySend(ev) {
		log.Printf("WARNING: Dropping error event for user=%s: %s", c.GetUserID(), appErr.Code)
	}
}
