package handler

import (
	"peerbay/backend/internal/calls"
	"peerbay/backend/internal/chathub"
	"peerbay/backend/internal/storage"
)

// Handler holds the dependencies of the HTTP surface: the hub for WebSocket
// upgrades, the call manager for the recent-call lookups and the store for
// the REST history endpoints.
type Handler struct {
	Hub       *chathub.Hub
	Calls     *calls.Manager
	Storage   storage.Storage
	JWTSecret []byte
}

func NewHandler(hub *chathub.Hub, callMgr *calls.Manager, s storage.Storage, jwtSecret string) *Handler {
	return &Handler{
		Hub:       hub,
		Calls:     callMgr,
		Storage:   s,
		JWTSecret: []byte(jwtSecret),
	}
}
