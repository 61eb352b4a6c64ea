// Package stream pushes satellite positions and tracker events to browsers
// over WebSocket. Clients connect via GET /api/v1/stream.
//
// Message format (one JSON object per text message):
//
//	{"type":"clock","now":"2025-01-25T12:00:00Z","scale":1,"paused":false}
//	{"type":"positions","t":"2025-01-25T12:00:00Z","sat":[{"id":"25544","position":[...],"velocity":[...],"category":"ISS"}]}
//	{"type":"evicted","id":"99901","message":"satellite 99901 removed","reason":"..."}
//	{"type":"rejected","id":"99999","message":"could not add satellite 99999"}
//
// The first message is always the clock state. Positions are sent at most
// once per Interval and only when a new snapshot has been published.
package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/star/satviz/internal/clock"
	"github.com/star/satviz/internal/httputil"
	"github.com/star/satviz/internal/metrics"
	"github.com/star/satviz/internal/presentation"
	"github.com/star/satviz/internal/satellite"
	"github.com/star/satviz/internal/tle"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	ConnectRate        float64       // New streams per second per IP; 0 disables pacing.
	Interval           time.Duration // Minimum time between position frames (default: 100ms).
	PingInterval       time.Duration // Keep-alive ping interval (default: 30s).
	EventBuffer        int           // Queued events per client before dropping (default: 16).
	TrustProxy         bool          // Use X-Forwarded-For for the client IP.
	AllowedOrigins     []string      // Empty allows any origin.
}

// DefaultConfig returns the stream defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		ConnectRate:        1,
		Interval:           100 * time.Millisecond,
		PingInterval:       30 * time.Second,
		EventBuffer:        16,
	}
}

// Source is what the hub streams from.
type Source interface {
	Snapshot() *satellite.Snapshot
	Clock() *clock.Clock
}

// Event is a tracker notification pushed to every client.
type Event struct {
	Type    string            `json:"type"`
	ID      tle.CatalogNumber `json:"id"`
	Message string            `json:"message"`
	Reason  string            `json:"reason,omitempty"`
}

// SatellitePosition is one satellite in a positions frame.
type SatellitePosition struct {
	ID       tle.CatalogNumber `json:"id"`
	Position [3]float64        `json:"position"`
	Velocity [3]float64        `json:"velocity"`
	Category string            `json:"category"`
}

// PositionsFrame carries every active satellite for one instant.
type PositionsFrame struct {
	Type string              `json:"type"`
	T    time.Time           `json:"t"`
	Sat  []SatellitePosition `json:"sat"`
}

type clockFrame struct {
	Type string `json:"type"`
	clock.State
}

// Hub manages WebSocket clients. It implements the tracker's Notifier.
type Hub struct {
	source   Source
	config   Config
	limiter  *connLimiter
	upgrader websocket.Upgrader
	logger   *slog.Logger
	dropLog  rate.Sometimes

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a hub streaming from src.
func NewHub(src Source, config Config, logger *slog.Logger) *Hub {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = def.EventBuffer
	}
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = def.MaxConcurrentPerIP
	}
	h := &Hub{
		source:  src,
		config:  config,
		limiter: newConnLimiter(config.MaxConcurrentPerIP, config.ConnectRate, config.MaxConcurrentPerIP),
		logger:  logger.With("component", "stream"),
		dropLog: rate.Sometimes{Interval: 10 * time.Second},
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range h.config.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// SatelliteEvicted broadcasts an eviction notice.
func (h *Hub) SatelliteEvicted(id tle.CatalogNumber, err error) {
	h.broadcast(Event{
		Type:    "evicted",
		ID:      id,
		Message: fmt.Sprintf("satellite %s removed", id),
		Reason:  errString(err),
	})
}

// SatelliteRejected broadcasts a rejection notice.
func (h *Hub) SatelliteRejected(id tle.CatalogNumber, reason string) {
	h.broadcast(Event{
		Type:    "rejected",
		ID:      id,
		Message: fmt.Sprintf("could not add satellite %s", id),
		Reason:  reason,
	})
}

// broadcast queues ev for every client without blocking. Clients whose
// queue is full miss the event.
func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.events <- ev:
		default:
			metrics.IncStreamDropped()
			h.dropLog.Do(func() {
				h.logger.Warn("stream client too slow, dropping events", "remote_ip", c.ip)
			})
		}
	}
}

// ServeHTTP upgrades the request and streams until the client leaves.
// GET /api/v1/stream
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}
	defer h.limiter.release(ip)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug("websocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}
	defer conn.Close()

	c := &client{
		conn:   conn,
		ip:     ip,
		events: make(chan Event, h.config.EventBuffer),
		logger: h.logger,
	}
	h.register(c)
	defer h.unregister(c)

	startTime := time.Now()
	h.logger.Info("stream connected", "remote_ip", ip)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.readLoop(2 * h.config.PingInterval)
	}()

	err = h.writeLoop(c, done)
	h.logger.Info("stream disconnected",
		"remote_ip", ip,
		"duration_seconds", time.Since(startTime).Seconds(),
		"messages_sent", c.messagesSent,
		"bytes_sent", c.bytesSent,
		"error", err,
	)
}

func (h *Hub) writeLoop(c *client, done <-chan struct{}) error {
	if err := c.sendJSON(clockFrame{Type: "clock", State: h.source.Clock().State()}); err != nil {
		return err
	}

	frames := time.NewTicker(h.config.Interval)
	defer frames.Stop()
	pings := time.NewTicker(h.config.PingInterval)
	defer pings.Stop()

	for {
		select {
		case <-done:
			return nil
		case ev := <-c.events:
			if err := c.sendJSON(ev); err != nil {
				return err
			}
		case <-frames.C:
			snap := h.source.Snapshot()
			if snap.Generation == c.lastGeneration || snap.At.IsZero() {
				continue
			}
			c.lastGeneration = snap.Generation
			if err := c.sendJSON(BuildPositionsFrame(snap)); err != nil {
				return err
			}
		case <-pings.C:
			if err := c.sendPing(); err != nil {
				return err
			}
		}
	}
}

// BuildPositionsFrame converts a snapshot into a positions frame. Satellites
// without a position yet are left out.
func BuildPositionsFrame(snap *satellite.Snapshot) PositionsFrame {
	frame := PositionsFrame{Type: "positions", T: snap.At, Sat: []SatellitePosition{}}
	for _, e := range snap.Entities() {
		if _, ok := e.Current(); !ok || e.State() != satellite.Active {
			continue
		}
		v := e.Velocity()
		frame.Sat = append(frame.Sat, SatellitePosition{
			ID:       e.CatalogNumber(),
			Position: e.Position(),
			Velocity: [3]float64{v.X, v.Y, v.Z},
			Category: presentation.CategoryFor(e.CatalogNumber()),
		})
	}
	return frame
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.StreamClientConnected()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	metrics.StreamClientDisconnected()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
