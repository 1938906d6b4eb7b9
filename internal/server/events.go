package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/gestureplc/internal/app"
	"github.com/ayusman/gestureplc/internal/server/api"
)

const (
	// writeWait bounds a single event write to a client.
	writeWait = time.Second
	// clientBuffer is the number of events queued per client before new ones
	// are dropped for that client.
	clientBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// eventClient is one subscriber. Only its writer goroutine writes data frames
// to conn.
type eventClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func newEventClient(conn *websocket.Conn) *eventClient {
	return &eventClient{
		conn: conn,
		send: make(chan []byte, clientBuffer),
		done: make(chan struct{}),
	}
}

func (c *eventClient) writeLoop() {
	defer close(c.done)
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			// Closing the socket ends the reader in ServeHTTP, which unregisters c.
			c.conn.Close()
			return
		}
	}
}

// EventsHandler streams pulse events to WebSocket clients. Broadcast never
// waits on a client socket.
type EventsHandler struct {
	clients map[*eventClient]struct{}
	mu      sync.Mutex
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler() *EventsHandler {
	return &EventsHandler{
		clients: make(map[*eventClient]struct{}),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := newEventClient(conn)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	defer func() {
		h.remove(c)
		<-c.done
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Broadcast queues p for every connected client. A client whose queue is full
// misses the event.
func (h *EventsHandler) Broadcast(p app.Pulse) {
	msg, err := json.Marshal(api.NewPulseResponse(p))
	if err != nil {
		log.Printf("encode pulse event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Printf("Dropping pulse event %s for slow client", p.ID)
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *EventsHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(writeWait))
		c.conn.Close()
	}
}

func (h *EventsHandler) remove(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}
