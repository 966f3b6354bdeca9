package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated HTTP requests to websocket connections
// registered with a Hub.
type Handler struct {
	hub  *Hub
	auth Authenticator
	log  zerolog.Logger
}

func NewHandler(hub *Hub, auth Authenticator, log zerolog.Logger) *Handler {
	return &Handler{hub: hub, auth: auth, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.Authenticate(r)
	if err != nil {
		h.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket auth failed")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(uuid.NewString(), userID, h.hub, conn)
	h.log.Info().Str("client_id", client.id).Str("user_id", userID).Msg("websocket client connected")

	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}
