package websocket

import (
	"log/slog"
	"sync"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	"github.com/soporte-labs/ticket-dashboard/internal/core/ports"
)

// Hub maintains the set of active feed clients and broadcasts ticket change
// events to the ones that completed the subscribe handshake.
type Hub struct {
	// clients holds every connected client, subscribed or not
	clients map[*Client]bool

	// Broadcast channel for change events
	broadcast chan domain.ChangeEvent

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// mu protects the clients map
	mu sync.RWMutex

	logger *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new change-feed hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan domain.ChangeEvent, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger.With("component", "feed_hub"),
	}
}

// Broadcast queues a change event for delivery to subscribed clients.
// This method implements the ports.EventBroadcaster interface.
func (h *Hub) Broadcast(event domain.ChangeEvent) error {
	select {
	case h.broadcast <- event:
		return nil
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			"event_type", event.Type,
			"ticket_id", event.TicketID(),
		)
		return nil
	}
}

// Run starts the hub's event loop. This MUST be run as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("feed client connected",
		"remote_addr", client.RemoteAddr(),
		"total_connections", total,
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, exists := h.clients[client]
	if exists {
		delete(h.clients, client)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if !exists {
		return
	}

	client.CloseSend()

	h.logger.Info("feed client disconnected",
		"remote_addr", client.RemoteAddr(),
		"total_connections", total,
	)
}

// broadcastEvent delivers an event to every subscribed client. Events for
// the same client are queued in order; a client that cannot keep up is
// dropped rather than allowed to stall the hub.
func (h *Hub) broadcastEvent(event domain.ChangeEvent) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.Subscribed() {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	h.logger.Debug("broadcasting change event",
		"event_type", event.Type,
		"ticket_id", event.TicketID(),
		"client_count", len(clients),
	)

	for _, client := range clients {
		if !client.QueueEvent(event) {
			h.logger.Warn("client send buffer full, unregistering",
				"remote_addr", client.RemoteAddr(),
			)
			// broadcastEvent runs on the Run goroutine; sending to
			// h.Unregister here would block against ourselves.
			h.unregisterClient(client)
		}
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients that completed the
// subscribe handshake.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for client := range h.clients {
		if client.Subscribed() {
			count++
		}
	}
	return count
}
