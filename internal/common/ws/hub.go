package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/auth"
)

// Room names. The observers room is admin-only; booking and user rooms are
// derived from entity ids.
const RoomObservers = "observers"

func BookingRoom(bookingID string) string { return "booking_" + bookingID }
func UserRoom(userID string) string       { return "user_" + userID }

var ErrRoomForbidden = errors.New("room join refused")

const (
	sendBuffer   = 32
	pingInterval = 30 * time.Second
	writeWait    = 5 * time.Second
)

// Client is one live connection registered with the Hub. Identity is
// attached after the optional auth handshake; an anonymous client stays
// connected but cannot join privileged rooms or publish locations.
type Client struct {
	conn   *websocket.Conn
	send   chan any
	claims *auth.Claims
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, send: make(chan any, sendBuffer)}
}

// SetClaims and Claims are only called from the connection's read goroutine.
func (c *Client) SetClaims(claims *auth.Claims) { c.claims = claims }
func (c *Client) Claims() *auth.Claims          { return c.claims }

// Enqueue queues a direct message for this connection, dropping it if the
// send buffer is full. Must not be called after the client is unregistered.
func (c *Client) Enqueue(event any) {
	select {
	case c.send <- event:
	default:
	}
}

// WritePump drains the send queue onto the wire and keeps the connection
// alive with periodic pings. Exits when the Hub closes the send channel.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Hub is the process-wide broadcast registry: named rooms fanned out to
// subscribed clients plus a per-user index for direct sends. Delivery is
// best-effort and at-most-once; slow consumers have events dropped.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	users map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		users: make(map[string]map[*Client]struct{}),
	}
}

// Register makes the client reachable for direct sends once it carries an
// identity. Call again after authentication to index the user id.
func (h *Hub) Register(c *Client) {
	claims := c.Claims()
	if claims == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[claims.UserID] == nil {
		h.users[claims.UserID] = make(map[*Client]struct{})
	}
	h.users[claims.UserID][c] = struct{}{}
}

// Unregister removes the client from every room and the user index and
// closes its send queue. Safe to call once per connection, on disconnect.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	for userID, conns := range h.users {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, userID)
		}
	}
	close(c.send)
}

// Join subscribes the client to a room. The observers room is restricted to
// administrators; relationship checks for booking rooms are the caller's
// responsibility.
func (h *Hub) Join(c *Client, room string) error {
	if room == RoomObservers && !c.Claims().IsAdmin() {
		return ErrRoomForbidden
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	return nil
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Publish fans the event out to every subscriber of the room. A full send
// queue drops the event for that client rather than blocking the publisher.
func (h *Hub) Publish(room string, event any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		select {
		case c.send <- event:
		default:
		}
	}
}

// SendToUser delivers the event to every connection of the given user.
func (h *Hub) SendToUser(userID string, event any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		select {
		case c.send <- event:
		default:
		}
	}
}
