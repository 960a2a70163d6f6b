package webui

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rojolang/webrec-go/pkg/webrec"
)

const (
	writeWait      = 10 * time.Second
	clientSendSize = 64
)

// Message is what the hub pushes to every page.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ClientMessage is what a page sends back.
type ClientMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Granted bool   `json:"granted,omitempty"`
}

// ClientMessageHandler receives every message read from a page.
type ClientMessageHandler func(ClientMessage)

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan Message
	once sync.Once
}

func (c *hubClient) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans controller events out to connected pages over websockets.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *webrec.RecorderLogger

	mu        sync.RWMutex
	clients   map[string]*hubClient
	handlers  []ClientMessageHandler
	onConnect func() []Message
	closed    bool
}

// NewHub accepts same-origin pages, plus allowedOrigins when given. A
// single "*" allows any origin.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		clients: make(map[string]*hubClient),
		logger:  webrec.GetGlobalLogger().WithComponent("Hub"),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// OnConnect sets the messages sent to a page right after it connects.
func (h *Hub) OnConnect(fn func() []Message) {
	h.mu.Lock()
	h.onConnect = fn
	h.mu.Unlock()
}

// AddMessageHandler registers fn for messages read from pages.
func (h *Hub) AddMessageHandler(fn ClientMessageHandler) {
	h.mu.Lock()
	h.handlers = append(h.handlers, fn)
	h.mu.Unlock()
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := &hubClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Message, clientSendSize),
	}

	h.mu.RLock()
	onConnect := h.onConnect
	h.mu.RUnlock()
	if onConnect != nil {
		for _, msg := range onConnect() {
			select {
			case client.send <- msg:
			default:
			}
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client.id] = client
	h.mu.Unlock()

	h.logger.WithField("client_id", client.id).Debug("Page connected")

	go h.writeLoop(client)
	h.readLoop(client)
}

func (h *Hub) readLoop(client *hubClient) {
	defer h.unregister(client)

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).Debug("Websocket read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.WithError(err).Debug("Ignoring malformed page message")
			continue
		}

		h.mu.RLock()
		handlers := append([]ClientMessageHandler(nil), h.handlers...)
		h.mu.RUnlock()
		for _, fn := range handlers {
			fn(msg)
		}
	}
}

func (h *Hub) writeLoop(client *hubClient) {
	defer client.conn.Close()

	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteJSON(msg); err != nil {
			h.logger.WithError(err).Debug("Websocket write error")
			h.unregister(client)
			return
		}
	}
	client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) unregister(client *hubClient) {
	h.mu.Lock()
	_, ok := h.clients[client.id]
	delete(h.clients, client.id)
	h.mu.Unlock()

	if ok {
		client.close()
		h.logger.WithField("client_id", client.id).Debug("Page disconnected")
	}
}

// enqueue drops the client when it cannot keep up.
func (h *Hub) enqueue(client *hubClient, msg Message) {
	select {
	case client.send <- msg:
	default:
		h.logger.WithField("client_id", client.id).Warn("Page too slow, disconnecting")
		go h.unregister(client)
	}
}

// Broadcast sends a message to every connected page.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	msg := Message{Type: msgType, Data: data, Timestamp: time.Now().UnixMilli()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		h.enqueue(client, msg)
	}
}

// Clients is the number of connected pages.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// LevelMonitor returns a level callback suitable for webrec.WithLevelMonitor.
func (h *Hub) LevelMonitor() func(avg, peak float32) {
	return func(avg, peak float32) {
		h.Broadcast("level", gin.H{"avg": avg, "peak": peak})
	}
}

// Close disconnects every page.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*hubClient)
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}
