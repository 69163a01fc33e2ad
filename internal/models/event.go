package models

import "encoding/json"

// Event type names carried in the Type field, both directions on the channel.
const (
	// Client -> server.
	EventSendMessage   = "send_message"
	EventMarkRead      = "mark_read"
	EventDeleteMessage = "delete_message"
	EventTypingStart   = "typing_start"
	EventTypingStop    = "typing_stop"
	EventCallOffer     = "call_offer"
	EventCallAnswer    = "call_answer"
	EventCallReject    = "call_reject"
	EventCallConfirm   = "call_confirm"
	EventCallEnd       = "call_end"
	EventCallICE       = "call_ice"
	EventCallMute      = "call_mute"
	EventCallVideo     = "call_video"

	// Server -> client.
	EventMessage          = "message"
	EventMessageAck       = "message_ack"
	EventMessageDelivered = "message_delivered"
	EventReadReceipt      = "read_receipt"
	EventMessageDeleted   = "message_deleted"
	EventStatus           = "status"
	EventTyping           = "typing"
	EventIncomingCall     = "incoming_call"
	EventCallInitiated    = "call_initiated"
	EventCallAnswered     = "call_answered"
	EventCallRejected     = "call_rejected"
	EventCallConnected    = "call_connected"
	EventCallEnded        = "call_ended"
	EventCallFailed       = "call_failed"
	EventError            = "error"
)

// Event is the single envelope exchanged over the realtime channel. One flat
// struct with omitempty fields keeps the wire format stable across event
// kinds; Type decides which fields are meaningful.
type Event struct {
	Type string `json:"type"`

	// Message fields.
	MessageID      string `json:"message_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	RecipientID    string `json:"recipient_id,omitempty"`
	Content        string `json:"content,omitempty"`
	Delivered      bool   `json:"delivered,omitempty"`
	CreatedAt      int64  `json:"created_at,omitempty"`

	// Presence / typing fields.
	UserID string `json:"user_id,omitempty"`
	Online bool   `json:"online,omitempty"`
	Typing bool   `json:"typing,omitempty"`

	// Call fields. Payload carries SDP offers/answers, ICE candidates and
	// mute/video toggle bodies verbatim; the core never inspects it.
	CallID      string          `json:"call_id,omitempty"`
	MediaKind   MediaKind       `json:"media_kind,omitempty"`
	CallStatus  CallStatus      `json:"call_status,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	DurationSec int             `json:"duration_sec,omitempty"`
	Reason      string          `json:"reason,omitempty"`

	// Error fields.
	Code         string `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`

	// Origin identifies the hub instance that published the event to Redis,
	// so the publisher does not re-deliver its own fan-out.
	Origin string `json:"origin,omitempty"`
}
