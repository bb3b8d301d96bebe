package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// clientSendBuffer bounds the events queued per client before the
	// client counts as slow and is dropped.
	clientSendBuffer = 64

	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Event is one frame on the websocket feed.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub fans recorder events out to websocket subscribers. The feed is
// one-way; slow clients are dropped rather than allowed to stall it.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	clients map[uint64]*feedClient
	nextID  uint64
	closed  bool
	mu      sync.RWMutex

	wg sync.WaitGroup
}

type feedClient struct {
	id   uint64
	conn *websocket.Conn
	send chan Event
}

// NewHub creates an event feed hub with no subscribers.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[uint64]*feedClient),
	}
}

// HandleUpgrade upgrades an HTTP request into a feed subscription and
// serves it until the client disconnects.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.nextID++
	client := &feedClient{
		id:   h.nextID,
		conn: conn,
		send: make(chan Event, clientSendBuffer),
	}
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Event feed client connected",
		slog.Uint64("client_id", client.id),
		slog.String("remote", r.RemoteAddr),
		slog.Int("clients", count))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writeLoop(client)
	}()

	h.readLoop(client)
}

// Broadcast queues one event to every subscriber. Clients whose send buffer
// is full are dropped.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	event := Event{Type: eventType, Payload: payload}

	var slow []*feedClient

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	for _, client := range h.clients {
		select {
		case client.send <- event:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.drop(client, "send buffer full")
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every subscriber and rejects future upgrades.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*feedClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.drop(client, "shutdown")
	}
	h.wg.Wait()
}

// readLoop consumes inbound frames until disconnect. Their content is
// ignored; reading is only needed to notice the connection going away.
func (h *Hub) readLoop(client *feedClient) {
	defer h.drop(client, "disconnect")

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop serializes events to one subscriber and keeps the connection
// alive with pings.
func (h *Hub) writeLoop(client *feedClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-client.send:
			if !ok {
				client.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeTimeout))
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteJSON(event); err != nil {
				client.conn.Close()
				return
			}

		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(writeTimeout)); err != nil {
				client.conn.Close()
				return
			}
		}
	}
}

// drop unregisters a client and closes its connection. Only the first call
// for a client finds it registered; later calls are no-ops.
func (h *Hub) drop(client *feedClient, reason string) {
	h.mu.Lock()
	_, registered := h.clients[client.id]
	if registered {
		delete(h.clients, client.id)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !registered {
		return
	}

	client.conn.Close()
	h.logger.Info("Event feed client dropped",
		slog.Uint64("client_id", client.id),
		slog.String("reason", reason),
		slog.Int("clients", count))
}
