package chathub

import "peerbay/backend/internal/models"

// Client is the interface for one realtime connection. It abstracts the
// underlying transport so the hub can manage every connected device
// uniformly, and so tests can stand in a double for a live socket.
type Client interface {
	// GetUserID returns the authenticated identity bound to the connection.
	GetUserID() string
	// GetConnID returns the unique id of this particular connection. One
	// identity may hold several connections (multi-device presence).
	GetConnID() string

	// TrySend enqueues one outbound event without blocking and reports
	// whether it was accepted. Events enqueued here reach the client in
	// order, drained by a single write pump. A full buffer or a closed
	// client rejects the event; it never panics, so any goroutine may push
	// concurrently with the client shutting down.
	TrySend(ev models.Event) bool

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's connection and associated channels.
	Close()
}
