package chathub

import (
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"peerbay/backend/internal/apperr"
	"peerbay/backend/internal/config"
	"peerbay/backend/internal/models"
	"peerbay/backend/internal/ratelimit"
	"peerbay/backend/internal/storage"
)

// EventPusher is what the messenger needs from the hub: local delivery,
// presence lookup and cross-instance fan-out.
type EventPusher interface {
	// PushToUser enqueues the event on every local channel of the identity
	// and reports whether at least one channel received it.
	PushToUser(userID string, ev models.Event) bool
	// IsOnline reports whether the identity is in the presence registry.
	IsOnline(userID string) bool
	// Fanout publishes the event for sibling hub instances.
	Fanout(ev models.Event)
}

// Messenger orchestrates message creation, delivery-state transitions and
// read-receipt propagation. All rejections surface as *apperr.Error to the
// caller and are reported to the acting channel only.
type Messenger struct {
	Store   storage.Storage
	Limiter *ratelimit.Limiter
	Pusher  EventPusher
}

func NewMessenger(store storage.Storage, limiter *ratelimit.Limiter, pusher EventPusher) *Messenger {
	return &Messenger{Store: store, Limiter: limiter, Pusher: pusher}
}

// SendMessage validates, persists and delivers one message. The sender always
// gets a message_ack; a message_delivered follows only when the recipient was
// actually pushed to, so the UI can tell "accepted" from "reached".
func (m *Messenger) SendMessage(senderID, recipientID, conversationID, content string) error {
	if ok, retryAfter := m.Limiter.Allow(senderID, config.ActionMessageSend); !ok {
		return apperr.RateLimited("too many messages", retryAfter)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return apperr.Validation("message content is empty")
	}
	if utf8.RuneCountInString(content) > models.MaxMessageLength {
		return apperr.Validation("message content exceeds the length cap")
	}
	if conversationID == "" {
		// Without a conversation the recipient decides where the message
		// goes; with one, the peer is derived from the conversation itself.
		if recipientID == "" {
			return apperr.Validation("recipient is required")
		}
		if recipientID == senderID {
			return apperr.Validation("cannot message yourself")
		}
	}

	if err := m.checkSenderNotBlocked(senderID); err != nil {
		return err
	}

	conv, err := m.resolveConversation(senderID, recipientID, conversationID)
	if err != nil {
		return err
	}
	recipientID = conv.PeerOf(senderID)

	allowed, err := m.Store.CanReceiveFrom(recipientID, senderID)
	if err != nil {
		log.Printf("ERROR: Permission check failed for %s -> %s: %v", senderID, recipientID, err)
		return apperr.Internal("permission check failed")
	}
	if !allowed {
		return apperr.Authorization("recipient does not accept your messages")
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        content,
		Delivered:      m.Pusher.IsOnline(recipientID),
	}
	if err := m.Store.CreateMessage(msg); err != nil {
		return apperr.Internal("failed to persist message")
	}

	if err := m.Store.TouchLastActivity(conv.ID); err != nil {
		log.Printf("WARNING: Failed to touch conversation %s: %v", conv.ID, err)
	}
	if err := m.Store.IncrementUnread(conv.ID, recipientID); err != nil {
		log.Printf("WARNING: Failed to bump unread for %s in %s: %v", recipientID, conv.ID, err)
	}

	ev := models.Event{
		Type:           models.EventMessage,
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        content,
		Delivered:      msg.Delivered,
		CreatedAt:      msg.CreatedAt.Unix(),
	}

	// Server accepted the message; tell the sender regardless of delivery.
	m.Pusher.PushToUser(senderID, models.Event{
		Type:           models.EventMessageAck,
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		RecipientID:    recipientID,
		Delivered:      msg.Delivered,
	})

	if m.Pusher.PushToUser(recipientID, ev) {
		m.Pusher.PushToUser(senderID, models.Event{
			Type:           models.EventMessageDelivered,
			MessageID:      msg.ID,
			ConversationID: conv.ID,
			RecipientID:    recipientID,
		})
	}
	// Recipient devices attached to sibling instances get the event too.
	m.Pusher.Fanout(ev)

	return nil
}

// checkSenderNotBlocked enforces the admin moderation flag. A sender whose
// account is blocked (and whose block has not yet run out) cannot originate
// messages; an unknown sender is not blocked, their profile simply lives in
// the main application.
func (m *Messenger) checkSenderNotBlocked(senderID string) error {
	user, err := m.Store.GetUserByID(senderID)
	if err != nil {
		log.Printf("ERROR: Failed to load user %s for moderation check: %v", senderID, err)
		return apperr.Internal("moderation check failed")
	}
	if user != nil && user.IsBlocked && !user.BlockExpired(time.Now()) {
		return apperr.Authorization("account is blocked")
	}
	return nil
}

// resolveConversation loads the referenced conversation or finds/creates the
// two-party one for the pair.
func (m *Messenger) resolveConversation(senderID, recipientID, conversationID string) (*models.Conversation, error) {
	if conversationID != "" {
		conv, err := m.Store.GetConversationByID(conversationID)
		if err != nil {
			return nil, apperr.Internal("failed to load conversation")
		}
		if conv == nil {
			return nil, apperr.NotFound("conversation not found")
		}
		if !conv.HasParticipant(senderID) {
			return nil, apperr.Authorization("not a participant of this conversation")
		}
		return conv, nil
	}

	if ok, retryAfter := m.Limiter.Allow(senderID, config.ActionConversationCreate); !ok {
		return nil, apperr.RateLimited("too many new conversations", retryAfter)
	}
	conv, created, err := m.Store.FindOrCreateConversation(senderID, recipientID)
	if err != nil {
		return nil, apperr.Internal("failed to resolve conversation")
	}
	if created {
		log.Printf("Created conversation %s for %s/%s", conv.ID, senderID, recipientID)
	}
	return conv, nil
}

// MarkRead flips the read flag for the true recipient, resets their unread
// counter and notifies the original sender when online.
func (m *Messenger) MarkRead(readerID, messageID string) error {
	msg, err := m.Store.GetMessageByID(messageID)
	if err != nil {
		return apperr.Internal("failed to load message")
	}
	if msg == nil {
		return apperr.NotFound("message not found")
	}
	if msg.RecipientID != readerID {
		return apperr.Authorization("only the recipient may mark a message read")
	}
	if msg.Read {
		return nil // already read, nothing to propagate
	}

	if err := m.Store.MarkRead(messageID); err != nil {
		return apperr.Internal("failed to mark message read")
	}
	if err := m.Store.ResetUnread(msg.ConversationID, readerID); err != nil {
		log.Printf("WARNING: Failed to reset unread for %s in %s: %v", readerID, msg.ConversationID, err)
	}

	receipt := models.Event{
		Type:           models.EventReadReceipt,
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
		SenderID:       readerID,
		RecipientID:    msg.SenderID,
	}
	m.Pusher.PushToUser(msg.SenderID, receipt)
	m.Pusher.Fanout(receipt)
	return nil
}

// SoftDelete marks the message deleted without removing history. Only the
// sender may request it.
func (m *Messenger) SoftDelete(requesterID, messageID string) error {
	msg, err := m.Store.GetMessageByID(messageID)
	if err != nil {
		return apperr.Internal("failed to load message")
	}
	if msg == nil {
		return apperr.NotFound("message not found")
	}
	if msg.SenderID != requesterID {
		return apperr.Authorization("only the sender may delete a message")
	}
	if msg.Deleted {
		return nil
	}

	if err := m.Store.SoftDeleteMessage(messageID); err != nil {
		return apperr.Internal("failed to delete message")
	}

	ev := models.Event{
		Type:           models.EventMessageDeleted,
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
		SenderID:       requesterID,
		RecipientID:    msg.RecipientID,
	}
	m.Pusher.PushToUser(msg.RecipientID, ev)
	m.Pusher.Fanout(ev)
	return nil
}
