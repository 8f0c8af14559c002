package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/JuniperReader/core/prefs"
	"github.com/FocuswithJustin/JuniperReader/internal/kvstore"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Frame types on the sync socket.
const (
	FrameSnapshot = "snapshot" // server -> client, once on connect
	FrameChange   = "change"   // server -> client, a change made elsewhere
	FrameSet      = "set"      // client -> server
	FrameAck      = "ack"      // server -> client, reply to set
	FrameError    = "error"    // server -> client
)

// Frame is one sync socket message.
type Frame struct {
	Type      string            `json:"type"`
	Context   string            `json:"context,omitempty"`
	Key       string            `json:"key,omitempty"`
	Value     string            `json:"value,omitempty"`
	Prefs     map[string]string `json:"prefs,omitempty"`
	Persisted *bool             `json:"persisted,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// Client is one connected browsing context.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	ctx  *prefs.Context

	holders    map[prefs.Key]*prefs.Preference
	cancelFeed func()

	mu     sync.Mutex
	send   chan Frame
	closed bool
}

// Hub tracks sync socket clients. Each client is a browsing context on the
// shared store; the store's change feed carries writes between them.
type Hub struct {
	store          kvstore.Store
	allowedOrigins []string
	limiter        *WriteLimiter
	upgrader       websocket.Upgrader

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

// NewHub creates a hub over store. Run must be started before clients
// connect. limiter may be nil.
func NewHub(store kvstore.Store, allowedOrigins []string, limiter *WriteLimiter) *Hub {
	h := &Hub{
		store:          store,
		allowedOrigins: allowedOrigins,
		limiter:        limiter,
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		stop:           make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run handles registration until Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			logging.WebSocketEvent("client_connected", n, "browsing_context", client.ctx.ID())

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			n := len(h.clients)
			h.mu.Unlock()
			if ok {
				client.shutdown()
				logging.WebSocketEvent("client_disconnected", n, "browsing_context", client.ctx.ID())
			}

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.shutdown()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects every client and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn("sync socket origin rejected", "origin", origin)
	return false
}

// ServeHTTP upgrades the request and registers the client. The client may
// name its browsing context with ?context=; otherwise one is assigned.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.stop:
		http.Error(w, "sync hub stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	id := r.URL.Query().Get("context")
	if id == "" {
		id = logging.GetBrowsingContext(r.Context())
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", "error", err)
		return
	}

	doc := prefs.NewDocument()
	prefs.Bootstrap(doc, h.store, prefs.Definitions())
	client := &Client{
		hub:     h,
		conn:    conn,
		ctx:     prefs.NewContextWithDocument(id, h.store, doc),
		holders: make(map[prefs.Key]*prefs.Preference),
		send:    make(chan Frame, sendBuffer),
	}
	for _, def := range prefs.Definitions() {
		client.holders[def.Key] = client.ctx.OpenDefinition(def)
	}
	client.cancelFeed = h.store.Subscribe(client.ctx.ID(), client.onChange)
	client.enqueue(Frame{Type: FrameSnapshot, Context: client.ctx.ID(), Prefs: client.snapshot()})

	select {
	case h.register <- client:
	case <-h.stop:
		client.shutdown()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) snapshot() map[string]string {
	out := make(map[string]string, len(c.holders))
	for k, p := range c.holders {
		out[string(k)] = p.Get()
	}
	return out
}

// onChange forwards a change made by another context. Values outside a
// preference's set are not forwarded.
func (c *Client) onChange(ch kvstore.Change) {
	def, ok := prefs.Lookup(prefs.Key(ch.Key))
	if !ok || !def.Valid(ch.Value) {
		return
	}
	c.enqueue(Frame{Type: FrameChange, Key: ch.Key, Value: ch.Value})
}

// enqueue queues f for the write pump. A client too slow to drain its queue
// is disconnected.
func (c *Client) enqueue(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- f:
	default:
		logging.Warn("sync client send buffer full, disconnecting", "browsing_context", c.ctx.ID())
		go c.conn.Close()
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.cancelFeed != nil {
		c.cancelFeed()
	}
	for _, p := range c.holders {
		p.Close()
	}
	c.ctx.Close()
}

func (c *Client) handle(f Frame) {
	if f.Type != FrameSet {
		c.enqueue(Frame{Type: FrameError, Message: "unsupported frame type " + f.Type})
		return
	}
	def, ok := prefs.LookupName(f.Key)
	if !ok {
		c.enqueue(Frame{Type: FrameError, Key: f.Key, Message: "unknown preference"})
		return
	}
	if ok, wait := c.hub.limiter.Allow("ctx:" + c.ctx.ID()); !ok {
		c.enqueue(Frame{Type: FrameError, Key: f.Key,
			Message: "too many preference writes, retry in " + wait.Round(time.Second).String()})
		return
	}
	p := c.holders[def.Key]
	if err := p.Set(f.Value); err != nil {
		c.enqueue(Frame{Type: FrameError, Key: f.Key, Message: err.Error()})
		return
	}
	persisted := !c.ctx.Degraded()
	c.enqueue(Frame{Type: FrameAck, Key: string(def.Key), Value: p.Get(), Persisted: &persisted})
}

// readPump reads frames from the connection.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error("websocket unexpected close", "error", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.enqueue(Frame{Type: FrameError, Message: "malformed frame"})
			continue
		}
		c.handle(f)
	}
}

// writePump writes queued frames and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
