package client

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"livelocal/internal/remote"
)

const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// clientFrame mirrors the hub's inbound frame format.
type clientFrame struct {
	Action string        `json:"action"`
	ID     string        `json:"id"`
	Table  string        `json:"table,omitempty"`
	Filter remote.Filter `json:"filter,omitempty"`
}

// serverFrame mirrors the hub's outbound frame format.
type serverFrame struct {
	Type  string        `json:"type"`
	ID    string        `json:"id"`
	Event *remote.Event `json:"event,omitempty"`
}

type socketSub struct {
	id      string
	table   string
	filter  remote.Filter
	handler remote.EventHandler
}

// socket owns the single realtime connection. It dials lazily on the
// first subscription and re-registers every live subscription after a
// reconnect. Missed events are never replayed; instead every
// re-registered subscription receives a resync event so its owner can
// refetch whatever was committed during the outage.
type socket struct {
	client *Client

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	subs      map[string]*socketSub
	running   bool
	closed    bool
	connected bool
}

func newSocket(c *Client) *socket {
	return &socket{
		client: c,
		subs:   make(map[string]*socketSub),
	}
}

func (s *socket) subscribe(table string, filter remote.Filter, handler remote.EventHandler) (remote.Subscription, error) {
	sub := &socketSub{
		id:      uuid.NewString(),
		table:   table,
		filter:  filter,
		handler: handler,
	}
	s.mu.Lock()
	s.subs[sub.id] = sub
	conn := s.conn
	if !s.running && !s.closed {
		s.running = true
		go s.run()
	}
	s.mu.Unlock()

	if conn != nil {
		s.send(conn, clientFrame{Action: "subscribe", ID: sub.id, Table: table, Filter: filter})
	}
	return remote.UnsubscribeFunc(func() { s.unsubscribe(sub.id) }), nil
}

func (s *socket) unsubscribe(id string) {
	s.mu.Lock()
	delete(s.subs, id)
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		s.send(conn, clientFrame{Action: "unsubscribe", ID: id})
	}
}

func (s *socket) run() {
	backoff := reconnectMin
	for {
		s.mu.Lock()
		if s.closed || len(s.subs) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		conn, err := s.dial()
		if err != nil {
			s.client.logger.Warn("realtime dial failed", "error", err)
			time.Sleep(backoff)
			if backoff *= 2; backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}
		backoff = reconnectMin

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		reconnected := s.connected
		s.connected = true
		pending := make([]*socketSub, 0, len(s.subs))
		for _, sub := range s.subs {
			pending = append(pending, sub)
		}
		s.mu.Unlock()

		for _, sub := range pending {
			s.send(conn, clientFrame{Action: "subscribe", ID: sub.id, Table: sub.table, Filter: sub.filter})
		}
		if reconnected {
			// The feed has no replay, so every subscription that lived
			// through the outage gets told to refetch.
			for _, sub := range pending {
				sub.handler(remote.Event{Type: remote.EventResync, Table: sub.table})
			}
		}

		s.readLoop(conn)

		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close()
	}
}

func (s *socket) dial() (*websocket.Conn, error) {
	url := strings.Replace(s.client.baseURL, "http", "ws", 1) + "/api/v1/realtime"
	header := http.Header{}
	if token := s.client.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	return conn, err
}

func (s *socket) readLoop(conn *websocket.Conn) {
	for {
		var frame serverFrame
		if err := conn.ReadJSON(&frame); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.client.logger.Warn("realtime read failed", "error", err)
			}
			return
		}
		if frame.Type != "event" || frame.Event == nil {
			continue
		}
		s.mu.Lock()
		sub, ok := s.subs[frame.ID]
		s.mu.Unlock()
		if ok {
			sub.handler(*frame.Event)
		}
	}
}

func (s *socket) send(conn *websocket.Conn, frame clientFrame) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		s.client.logger.Warn("realtime write failed", "action", frame.Action, "error", err)
	}
}

func (s *socket) close() {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
