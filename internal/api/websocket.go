package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub maintains active WebSocket connections and fans out channel
// broadcasts, grounded on the teacher's pkg/api.Hub.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan channelMessage
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        *zap.Logger
}

type channelMessage struct {
	channel string
	payload []byte
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan channelMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// Run services registration and broadcast until ctx-independent shutdown:
// the caller should run this in its own goroutine for the server's
// lifetime.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.IsSubscribed(msg.channel) {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					h.log.Warn("api: websocket client send buffer full, dropping")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastToChannel marshals data and enqueues it for every subscriber of
// channel. Never blocks the caller (the matching hot path must not wait on
// a slow websocket client).
func (h *Hub) BroadcastToChannel(channel string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.Error("api: websocket marshal failed", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- channelMessage{channel: channel, payload: payload}:
	default:
		h.log.Warn("api: websocket broadcast queue full, dropping", zap.String("channel", channel))
	}
}

// Client is one WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subsMu sync.RWMutex
	subs   map[string]bool
}

func (c *Client) IsSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subs[channel]
}

func (c *Client) subscribe(channel string) {
	c.subsMu.Lock()
	c.subs[channel] = true
	c.subsMu.Unlock()
}

func (c *Client) unsubscribe(channel string) {
	c.subsMu.Lock()
	delete(c.subs, channel)
	c.subsMu.Unlock()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}
		switch req.Op {
		case "subscribe":
			for _, ch := range req.Channels {
				c.subscribe(ch)
			}
		case "unsubscribe":
			for _, ch := range req.Channels {
				c.unsubscribe(ch)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("api: websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, 64), subs: make(map[string]bool)}
	s.hub.register <- client
	go client.writePump()
	go client.readPump()
}
