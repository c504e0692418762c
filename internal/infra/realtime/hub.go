// Package realtime serves the platform change feed over websocket. A
// client opens one socket, registers any number of filtered subscriptions
// and receives matching events as JSON frames. The feed has no replay: a
// client that reconnects is expected to refetch before trusting the feed.
package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"livelocal/internal/platform/feed"
	"livelocal/internal/remote"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// ClientFrame is what a connected client sends: subscribe or unsubscribe.
type ClientFrame struct {
	Action string        `json:"action"`
	ID     string        `json:"id"`
	Table  string        `json:"table,omitempty"`
	Filter remote.Filter `json:"filter,omitempty"`
}

// ServerFrame is what the hub pushes back.
type ServerFrame struct {
	Type  string        `json:"type"` // "event" or "ack"
	ID    string        `json:"id"`
	Event *remote.Event `json:"event,omitempty"`
}

// Hub upgrades connections and bridges them to the change bus.
type Hub struct {
	Bus    *feed.Bus
	Logger *slog.Logger

	upgrader websocket.Upgrader
}

func NewHub(bus *feed.Bus, logger *slog.Logger) *Hub {
	return &Hub{
		Bus:    bus,
		Logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket upgrade failed", "error", err)
		}
		return
	}
	conn := &connection{
		hub:    h,
		socket: socket,
		send:   make(chan ServerFrame, sendBuffer),
		done:   make(chan struct{}),
		subs:   make(map[string]remote.Subscription),
	}
	go conn.writePump()
	conn.readPump()
}

type connection struct {
	hub    *Hub
	socket *websocket.Conn

	mu   sync.Mutex
	send chan ServerFrame
	done chan struct{}
	subs map[string]remote.Subscription
}

func (c *connection) readPump() {
	defer c.close()
	c.socket.SetReadLimit(1 << 20)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.hub.Logger != nil {
				c.hub.Logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			if c.hub.Logger != nil {
				c.hub.Logger.Warn("websocket frame decode failed", "error", err)
			}
			continue
		}
		c.handle(frame)
	}
}

func (c *connection) handle(frame ClientFrame) {
	switch frame.Action {
	case "subscribe":
		if frame.ID == "" || frame.Table == "" {
			return
		}
		id := frame.ID
		sub := c.hub.Bus.Subscribe(frame.Table, frame.Filter, func(event remote.Event) {
			e := event
			c.push(ServerFrame{Type: "event", ID: id, Event: &e})
		})
		c.mu.Lock()
		if old, ok := c.subs[id]; ok {
			old.Unsubscribe()
		}
		c.subs[id] = sub
		c.mu.Unlock()
		c.push(ServerFrame{Type: "ack", ID: id})
	case "unsubscribe":
		c.mu.Lock()
		sub, ok := c.subs[frame.ID]
		delete(c.subs, frame.ID)
		c.mu.Unlock()
		if ok {
			sub.Unsubscribe()
		}
	}
}

func (c *connection) push(frame ServerFrame) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		// Slow consumer: drop the frame, the client refetches on gaps.
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *connection) close() {
	c.mu.Lock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	for id, sub := range c.subs {
		sub.Unsubscribe()
		delete(c.subs, id)
	}
	c.mu.Unlock()
	_ = c.socket.Close()
}
