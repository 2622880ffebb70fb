package progress

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
)

// TopicProcessingProgress is the topic progress events are pushed under.
const TopicProcessingProgress = "processing.progress"

// pushMessage is the envelope written to websocket clients.
type pushMessage struct {
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
}

// Hub fans events out to connected websocket clients. Delivery is at most
// once per client with no redelivery on reconnect; clients treat an event as
// a cue to re-fetch authoritative state, never as authoritative itself.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast writes the event to every connected client. A failed write drops
// that client; nothing is queued or retried.
func (h *Hub) Broadcast(topic string, data interface{}) {
	b, err := json.Marshal(pushMessage{Topic: topic, Data: data})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}
