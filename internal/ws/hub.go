// Package ws pushes order updates over websocket connections. One hub per
// audience (customer, branch, driver); each connection gets its own write
// lock and a ping/pong keepalive.
package ws

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 20 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Logger is the pair of printf-style loggers threaded from main.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Hub holds live connections for one audience, keyed by owner id. A second
// connection for the same owner replaces the first.
type Hub struct {
	audience string
	param    string
	log      Logger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[int64]*websocket.Conn
	locks map[int64]*sync.Mutex
}

func NewHub(audience, param string, log Logger) *Hub {
	return &Hub{
		audience: audience,
		param:    param,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[int64]*websocket.Conn),
		locks: make(map[int64]*sync.Mutex),
	}
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get(h.param), 10, 64)
	if err != nil || id == 0 {
		http.Error(w, "missing "+h.param, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("%s ws upgrade: %v", h.audience, err)
		return
	}

	h.mu.Lock()
	if old, ok := h.conns[id]; ok {
		_ = old.Close()
	}
	h.conns[id] = conn
	if _, ok := h.locks[id]; !ok {
		h.locks[id] = &sync.Mutex{}
	}
	h.mu.Unlock()

	h.log.Infof("%s %d connected", h.audience, id)

	go h.pingLoop(id, conn)
	go h.readLoop(id, conn)
}

// Push sends a payload to one owner's connection, if any.
func (h *Hub) Push(id int64, payload []byte) {
	h.safeWrite(id, func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.TextMessage, payload)
	})
}

func (h *Hub) pingLoop(id int64, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		h.mu.RLock()
		alive := h.conns[id] == conn
		h.mu.RUnlock()
		if !alive {
			return
		}
		h.safeWrite(id, func(c *websocket.Conn) error {
			return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		})
	}
}

func (h *Hub) readLoop(id int64, conn *websocket.Conn) {
	defer h.closeConn(id, conn)

	conn.SetReadLimit(16 << 10)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt == websocket.TextMessage && strings.EqualFold(strings.TrimSpace(string(message)), "ping") {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
		}
	}
}

func (h *Hub) closeConn(id int64, conn *websocket.Conn) {
	_ = conn.Close()
	h.mu.Lock()
	if current, ok := h.conns[id]; ok && current == conn {
		delete(h.conns, id)
		delete(h.locks, id)
	}
	h.mu.Unlock()
}

func (h *Hub) safeWrite(id int64, fn func(*websocket.Conn) error) {
	h.mu.RLock()
	conn := h.conns[id]
	mu := h.locks[id]
	h.mu.RUnlock()
	if conn == nil || mu == nil {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := fn(conn); err != nil {
		h.log.Errorf("%s %d write: %v", h.audience, id, err)
		h.closeConn(id, conn)
	}
}

// Hubs bundles the three audiences and routes notify topics to the right
// hub, making the bundle a notify backend.
type Hubs struct {
	Customer *Hub
	Branch   *Hub
	Driver   *Hub
}

func NewHubs(log Logger) *Hubs {
	return &Hubs{
		Customer: NewHub("customer", "customer_id", log),
		Branch:   NewHub("branch", "branch_id", log),
		Driver:   NewHub("driver", "driver_id", log),
	}
}

// Publish routes a "<audience>:<id>" topic to the matching hub.
func (h *Hubs) Publish(_ context.Context, topic string, payload []byte) {
	parts := strings.SplitN(topic, ":", 2)
	if len(parts) != 2 {
		return
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return
	}
	switch parts[0] {
	case "customer":
		h.Customer.Push(id, payload)
	case "branch":
		h.Branch.Push(id, payload)
	case "driver":
		h.Driver.Push(id, payload)
	}
}
