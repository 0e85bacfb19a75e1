package gateway

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/jibby/internal/logging"
	"github.com/soyeahso/jibby/internal/metrics"
)

// writeWait bounds a single frame write to a slow browser.
const writeWait = 10 * time.Second

// Client is an authenticated WebSocket connection. Room membership is
// owned by the ClientRegistry; the client keeps its own copy so it can
// report and leave its rooms on disconnect.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Socket      *websocket.Conn
	AuthResult  AuthResult
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
	rooms  []string
}

// NewClient wraps a connection that completed the connect handshake.
func NewClient(conn *websocket.Conn, info ClientInfo, authResult AuthResult) *Client {
	return &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		Socket:      conn,
		AuthResult:  authResult,
		ConnectedAt: time.Now(),
	}
}

// Send writes one frame. Writes are serialized per connection.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Socket.WriteJSON(frame)
}

// SendEvent sends a named event.
func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Respond answers reqID with ok=true.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Reject answers reqID with ok=false and a payload, for acks that report
// failure in-band rather than as a protocol error.
func (c *Client) Reject(reqID string, payload any) error {
	f, err := newResponse(reqID, false, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError answers reqID with a protocol error.
func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame blocks for the next frame.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Rooms returns the conversation rooms the client joined, sorted.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.rooms)
}

func (c *Client) addRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, found := slices.BinarySearch(c.rooms, room)
	if found {
		return false
	}
	c.rooms = slices.Insert(c.rooms, i, room)
	return true
}

func (c *Client) dropRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, found := slices.BinarySearch(c.rooms, room)
	if !found {
		return false
	}
	c.rooms = slices.Delete(c.rooms, i, i+1)
	return true
}

// Close closes the socket once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.Socket == nil {
		return nil
	}
	return c.Socket.Close()
}

// ClientRegistry tracks connected clients and the conversation rooms they
// listen on.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client // conversation id → connID → client
	log     *logging.Logger
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		log:     log,
	}
}

// Add registers a client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	metrics.WSConnections.Inc()
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Msg("client connected")
}

// Remove unregisters a client and drops it from every room.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[connID]
	if !ok {
		return
	}
	r.forget(c)
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// forget must be called with r.mu held.
func (r *ClientRegistry) forget(c *Client) {
	for _, room := range c.Rooms() {
		r.unindex(room, c.ConnID)
	}
	delete(r.clients, c.ConnID)
	metrics.WSConnections.Dec()
}

func (r *ClientRegistry) unindex(room, connID string) {
	members := r.rooms[room]
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Join subscribes c to a conversation room.
func (r *ClientRegistry) Join(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !c.addRoom(room) {
		return
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[room] = members
	}
	members[c.ConnID] = c
}

// Leave unsubscribes c from a conversation room.
func (r *ClientRegistry) Leave(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.dropRoom(room) {
		r.unindex(room, c.ConnID)
	}
}

// Members returns how many clients listen on room.
func (r *ClientRegistry) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Get returns a client by connection ID.
func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast sends an event to every connected client.
func (r *ClientRegistry) Broadcast(event string, payload any, seq int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.send(r.clients, event, payload, seq)
}

// BroadcastRoom sends an event to the members of room and returns how many
// clients it addressed.
func (r *ClientRegistry) BroadcastRoom(room, event string, payload any, seq int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	r.send(members, event, payload, seq)
	return len(members)
}

func (r *ClientRegistry) send(to map[string]*Client, event string, payload any, seq int64) {
	for _, c := range to {
		if err := c.SendEvent(event, payload, seq); err != nil {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Str("event", event).Msg("broadcast send failed")
		}
	}
}

// CloseAll disconnects every client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		c.Close()
		r.forget(c)
	}
}
