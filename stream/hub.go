// Package stream serves the trail field to browsers over websockets.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/slime/field"
	"github.com/pthm-cable/slime/telemetry"
)

const writeTimeout = time.Second

// Frame is one downsampled field snapshot. Cells holds row-major intensities
// in 0..255 (base64 in JSON).
type Frame struct {
	Type   string  `json:"type"`
	Tick   uint64  `json:"tick"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Cells  []uint8 `json:"cells"`
}

// Hello is sent once when a client connects.
type Hello struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Command is a client request. Known types are "pause" and "resume".
type Command struct {
	Type string `json:"type"`
}

// Ack answers a command.
type Ack struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	OK      bool   `json:"ok"`
}

// Control is what pause/resume commands act on.
type Control interface {
	Start()
	Stop()
}

// NewFrame downsamples view by factor and quantizes it against scale.
func NewFrame(tick uint64, view field.View, factor int, scale float32) Frame {
	small := view.Downsample(factor)
	return Frame{
		Type:   "frame",
		Tick:   tick,
		Width:  small.Width(),
		Height: small.Height(),
		Cells:  small.Quantize(nil, scale),
	}
}

// Client is one websocket connection. Writes are serialized.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Send writes v as JSON.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Hub fans frames out to every connected client. Publish never blocks the
// caller; a slow broadcaster only ever sees the newest frame.
type Hub struct {
	log      *slog.Logger
	metrics  *telemetry.Metrics
	control  Control
	upgrader websocket.Upgrader

	width, height int

	frames chan Frame

	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates a hub announcing width×height frames. metrics and control may
// be nil.
func NewHub(width, height int, metrics *telemetry.Metrics, control Control, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:      log,
		metrics:  metrics,
		control:  control,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		width:    width,
		height:   height,
		frames:   make(chan Frame, 1),
		clients:  make(map[*Client]struct{}),
	}
}

// Publish queues f for broadcast, replacing a queued frame not yet sent.
func (h *Hub) Publish(f Frame) {
	for {
		select {
		case h.frames <- f:
			return
		default:
		}
		select {
		case <-h.frames:
		default:
		}
	}
}

// Run broadcasts published frames until ctx is done, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-h.frames:
			h.broadcast(f)
		}
	}
}

func (h *Hub) broadcast(v any) {
	h.mu.Lock()
	list := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		list = append(list, c)
	}
	h.mu.Unlock()

	for _, c := range list {
		if err := c.Send(v); err != nil {
			h.log.Warn("client send failed", "err", err)
			h.remove(c)
		}
	}
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	list := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		list = append(list, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range list {
		c.conn.Close()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request, sends Hello and handles commands until the
// connection drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	client := &Client{conn: conn}
	if !h.add(client) {
		conn.Close()
		return
	}
	defer h.remove(client)

	if err := client.Send(Hello{Type: "config", Width: h.width, Height: h.height}); err != nil {
		return
	}

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		ok := h.handle(cmd)
		if err := client.Send(Ack{Type: "ack", Command: cmd.Type, OK: ok}); err != nil {
			return
		}
	}
}

func (h *Hub) handle(cmd Command) bool {
	if h.control == nil {
		return false
	}
	switch cmd.Type {
	case "pause":
		h.control.Stop()
	case "resume":
		h.control.Start()
	default:
		return false
	}
	return true
}

// ServeMetrics writes the current metric means as a JSON object.
func (h *Hub) ServeMetrics(w http.ResponseWriter, r *http.Request) {
	snap := map[string]float64{}
	if h.metrics != nil {
		snap = h.metrics.Snapshot()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.log.Warn("writing metrics failed", "err", err)
	}
}

// Handler routes /ws and /metrics.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/metrics", h.ServeMetrics)
	return mux
}
