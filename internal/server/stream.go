package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mangax/internal/cache"
	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Only local front ends are expected; the server binds to loopback by default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans stream messages out to every connected WebSocket client.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	logger  *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{}), logger: logger}
}

// Add registers ws and sends it the welcome message.
func (h *Hub) Add(ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[ws] = struct{}{}
	h.write(ws, []byte(`{"kind":"welcome"}`))
}

func (h *Hub) Remove(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// BroadcastJSON sends v to all clients, dropping the ones that fail.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("could not encode stream message", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		h.write(ws, b)
	}
}

// write sends one message. h.mu must be held.
func (h *Hub) write(ws *websocket.Conn, b []byte) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		h.logger.Debug("dropping stream client", "remote", ws.RemoteAddr(), "err", err)
		_ = ws.Close()
		delete(h.clients, ws)
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client with a normal closure.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	for ws := range h.clients {
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = ws.Close()
		delete(h.clients, ws)
	}
}

type cacheMessage struct {
	Kind  string      `json:"kind"`
	Cache cache.Event `json:"cache"`
}

// cacheBuffer bounds how many cache events wait for delivery before new ones are dropped.
const cacheBuffer = 64

// broadcastCache queues ev for stream clients. It runs on the goroutine that changed the
// cache, so it never waits on a slow client.
func (s *Server) broadcastCache(ev cache.Event) {
	select {
	case s.cacheEvents <- ev:
	default:
		s.logger.Warn("stream backlog full, dropping cache event", "kind", ev.Kind)
	}
}

// forwardCache delivers queued cache events until done is closed.
func (s *Server) forwardCache() {
	for {
		select {
		case ev := <-s.cacheEvents:
			s.hub.BroadcastJSON(cacheMessage{Kind: "cache", Cache: ev})
		case <-s.done:
			return
		}
	}
}

// streamHandler upgrades GET /api/batches/stream and keeps the connection until the client leaves.
type streamHandler struct {
	hub *Hub
}

func (h *streamHandler) Routes() []string {
	return []string{"GET /api/batches/stream"}
}

func (h *streamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	h.hub.Add(ws)
	h.hub.logger.Debug("stream client connected", "remote", ws.RemoteAddr())

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Remove(ws)
	h.hub.logger.Debug("stream client disconnected", "remote", ws.RemoteAddr())
}
