package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Msg is a message sent to clients in an auction room.
type Msg struct {
	Type     string `json:"type"`
	LeagueID string `json:"league_id"`
	Data     any    `json:"data"`
}

// Hub manages per-league WebSocket subscriptions. Team clients and the
// auctioneer console subscribe to a league and receive every committed
// auction transition (started, bid, price_reset, sold, unsold).
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*conn]bool // leagueID -> set of conns
	allConn map[*conn]bool
}

type conn struct {
	ws     *websocket.Conn
	send   chan []byte
	hub    *Hub
	league string
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*conn]bool),
		allConn: make(map[*conn]bool),
	}
}

// Publish sends a message to all subscribers of a league room. The read
// lock is held across the send loop: subscribe and removeConn mutate the
// room map (and removeConn closes send channels) under the write lock,
// so iterating outside it races. Sends are non-blocking, so holding the
// lock here cannot stall the hub behind a slow client.
func (h *Hub) Publish(leagueID, msgType string, data any) {
	msg := Msg{Type: msgType, LeagueID: leagueID, Data: data}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[leagueID] {
		select {
		case c.send <- b:
		default:
			// slow client, drop
		}
	}
}

// HandleWS is the HTTP handler for WebSocket connections.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	c := &conn{
		ws:   wsConn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	h.mu.Lock()
	h.allConn[c] = true
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (c *conn) readPump() {
	defer func() {
		c.hub.removeConn(c)
		c.ws.Close()
	}()
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		// Parse subscription message: {"action":"subscribe","league_id":"..."}
		var sub struct {
			Action   string `json:"action"`
			LeagueID string `json:"league_id"`
		}
		if err := json.Unmarshal(msg, &sub); err != nil {
			continue
		}
		switch sub.Action {
		case "subscribe":
			c.hub.subscribe(c, sub.LeagueID)
		case "unsubscribe":
			c.hub.unsubscribe(c, sub.LeagueID)
		}
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
}

func (h *Hub) subscribe(c *conn, leagueID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// One room per connection; leave the previous one if any
	if c.league != "" {
		if room, ok := h.rooms[c.league]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, c.league)
			}
		}
	}
	c.league = leagueID
	room, ok := h.rooms[leagueID]
	if !ok {
		room = make(map[*conn]bool)
		h.rooms[leagueID] = room
	}
	room[c] = true
}

func (h *Hub) unsubscribe(c *conn, leagueID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[leagueID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, leagueID)
		}
	}
	if c.league == leagueID {
		c.league = ""
	}
}

func (h *Hub) removeConn(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.allConn, c)
	if c.league != "" {
		if room, ok := h.rooms[c.league]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, c.league)
			}
		}
	}
	close(c.send)
}
