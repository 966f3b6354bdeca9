// Package ws implements the live-push half of the Session Bridge: a
// connection hub that fans out orchestrator Observer events to every
// client subscribed to a run, adapted from the teacher's workflow/execution
// broadcast hub down to the pipeline's single subscription dimension (run_id).
package ws

import (
	"sync"

	"github.com/rs/zerolog"
)

// Broadcaster is implemented by Hub; the orchestrator's Observer adapter
// depends on this rather than the concrete type.
type Broadcaster interface {
	Broadcast(runID string, event *Event)
}

type broadcastMsg struct {
	runID string
	event *Event
}

// Hub manages websocket client connections and run-scoped broadcasting.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg

	byRunID map[string]map[*Client]bool

	log zerolog.Logger
	mu  sync.RWMutex
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		byRunID:    make(map[string]map[*Client]bool),
		log:        log,
	}
}

// Run is the hub's event loop; call it in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case msg := <-h.broadcast:
			h.broadcastEvent(msg)
		}
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	h.log.Debug().Str("client_id", c.id).Int("total_clients", len(h.clients)).Msg("ws client registered")
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)

	c.subs.mu.RLock()
	for runID := range c.subs.runs {
		if clients, ok := h.byRunID[runID]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.byRunID, runID)
			}
		}
	}
	c.subs.mu.RUnlock()

	h.log.Debug().Str("client_id", c.id).Int("total_clients", len(h.clients)).Msg("ws client unregistered")
}

// Broadcast implements Broadcaster.
func (h *Hub) Broadcast(runID string, event *Event) {
	h.broadcast <- &broadcastMsg{runID: runID, event: event}
}

func (h *Hub) broadcastEvent(msg *broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.byRunID[msg.runID]
	if !ok {
		return
	}
	for c := range clients {
		select {
		case c.send <- msg.event:
		default:
			h.log.Warn().Str("client_id", c.id).Str("event_type", msg.event.Type).Msg("ws send buffer full, dropping event")
		}
	}
}

// Subscribe adds a run subscription for a client.
func (h *Hub) Subscribe(c *Client, runID string) {
	if runID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c.subs.mu.Lock()
	defer c.subs.mu.Unlock()

	c.subs.runs[runID] = true
	if h.byRunID[runID] == nil {
		h.byRunID[runID] = make(map[*Client]bool)
	}
	h.byRunID[runID][c] = true
}

// Unsubscribe removes a run subscription for a client.
func (h *Hub) Unsubscribe(c *Client, runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.subs.mu.Lock()
	defer c.subs.mu.Unlock()

	delete(c.subs.runs, runID)
	if clients, ok := h.byRunID[runID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.byRunID, runID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
