// Package stream serves the optional live telemetry feed: every poll sample
// broadcast over websockets, plus a JSON status endpoint for checking on the
// device sessions mid-run.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/imaround-world/ifit-zone-log/internal/linkstats"
	"github.com/imaround-world/ifit-zone-log/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SessionStatus is one device session as reported by /status.
type SessionStatus struct {
	Address     string             `json:"address"`
	State       string             `json:"state"`
	Battery     *int               `json:"battery,omitempty"`
	ConnectedAt *time.Time         `json:"connected_at,omitempty"`
	Link        linkstats.Snapshot `json:"link"`
}

// Status is the full /status document. A nil session means the device was
// not discovered at startup.
type Status struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Console   *SessionStatus `json:"console"`
	Strap     *SessionStatus `json:"strap"`
}

// Hub fans every telemetry sample out to the connected websocket clients.
// It satisfies the poll loop's sink contract, so a slow or dead client can
// never stall the tick: such clients are dropped on the spot.
type Hub struct {
	status func() Status

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub wires the feed to a status provider, queried on every /status hit.
func NewHub(status func() Status) *Hub {
	return &Hub{
		status:  status,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// WriteSample broadcasts one sample as a JSON text message.
func (h *Hub) WriteSample(s telemetry.Sample) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.WithError(err).Debug("dropping feed client")
			c.Close()
			delete(h.clients, c)
		}
	}
	return nil
}

func (h *Hub) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.WithField("clients", n).Info("Feed client connected")

	// The feed is one-way. This read loop exists only to notice closes.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status())
}

// RegisterRoutes mounts the feed endpoints on r.
func (h *Hub) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.handleWS)
	r.GET("/status", h.handleStatus)
}

// Serve runs the feed server until the listener fails. Meant for its own
// goroutine; the feed dies with the process, it needs no drain of its own.
func Serve(addr string, h *Hub) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	h.RegisterRoutes(r)
	log.WithField("addr", addr).Info("Live feed listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		log.WithError(err).Error("Live feed server stopped")
	}
}
