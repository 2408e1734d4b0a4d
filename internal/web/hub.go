package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	defaultSendBuf = 16
)

// Hub pushes state messages to websocket clients.
// Notify marks the state dirty; Run renders one message per burst of
// notifications and fans it out. Slow clients are disconnected when their
// send buffer fills.
type Hub struct {
	logger *slog.Logger
	render func() ([]byte, error)

	notify     chan struct{}
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{} // closed when Run returns

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	sendBuf int
}

// NewHub creates a hub that renders state messages with render.
// Call Run to start it.
func NewHub(logger *slog.Logger, render func() ([]byte, error)) *Hub {
	return &Hub{
		logger:     logger,
		render:     render,
		notify:     make(chan struct{}, 1),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		clients:    make(map[*wsClient]struct{}),
		sendBuf:    defaultSendBuf,
	}
}

// Notify schedules a broadcast. It never blocks; notifications that arrive
// before the pending one is handled are coalesced.
func (h *Hub) Notify() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run processes hub events until ctx is canceled, then disconnects all
// clients. Clients that connect after Run returns are closed immediately.
// Run must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

			// New clients start from the current state.
			if msg, ok := h.renderState(); ok {
				h.send(c, msg)
			}

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case <-h.notify:
			if h.Clients() == 0 {
				continue
			}
			msg, ok := h.renderState()
			if !ok {
				continue
			}

			h.mu.Lock()
			clients := make([]*wsClient, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.Unlock()

			for _, c := range clients {
				h.send(c, msg)
			}
		}
	}
}

func (h *Hub) renderState() ([]byte, bool) {
	msg, err := h.render()
	if err != nil {
		h.logger.Warn("ws state render failed", "error", err)
		return nil, false
	}
	return msg, true
}

func (h *Hub) send(c *wsClient, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.removeClient(c, "slow_client")
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *wsClient, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		_ = c.conn.Close()
		// Only the hub goroutine closes send, and only once per client.
		close(c.send)
		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

type wsClient struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	logger     *slog.Logger
}

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *wsClient) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Debug("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes queued messages and pings. It exits on write error or
// when send is closed.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound frames so control frames are processed and
// disconnects are noticed, then unregisters the client.
func (c *wsClient) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			select {
			case c.hub.unregister <- c:
			case <-c.hub.done:
			}
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.sendBuf),
		remoteAddr: r.RemoteAddr,
		logger:     h.logger,
	}

	// Pumps outlive the request; the hub and socket errors end them.
	go c.writePump()
	go c.readPump()
	select {
	case h.register <- c:
	case <-h.done:
		// Never registered, so send is still ours to close.
		_ = conn.Close()
		close(c.send)
	}
}
