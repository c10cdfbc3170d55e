package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

// Streamer pushes diagnostics reports and status updates to connected
// WebSocket clients, for dashboards that want the tracker's health
// without polling the HTTP status endpoint.
type Streamer struct {
	mu      sync.RWMutex
	clients map[*client]bool

	reports chan types.DiagnosticsReport
	status  chan types.TrackerStatus

	upgrader websocket.Upgrader

	messagesSent  uint64
	clientsServed uint64
}

type client struct {
	conn *websocket.Conn
	send chan streamMessage
	id   string
}

type streamMessage struct {
	Kind   string                   `json:"kind"`
	Report *types.DiagnosticsReport `json:"report,omitempty"`
	Status *types.TrackerStatus     `json:"status,omitempty"`
}

// NewStreamer creates a diagnostics streamer.
func NewStreamer() *Streamer {
	return &Streamer{
		clients: make(map[*client]bool),
		reports: make(chan types.DiagnosticsReport, 32),
		status:  make(chan types.TrackerStatus, 32),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades an inbound request and registers the client.
func (s *Streamer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Error("failed to upgrade diagnostics websocket")
		return
	}

	c := &client{conn: conn, send: make(chan streamMessage, 32), id: r.RemoteAddr}
	s.register(c)
	log.WithField("client", c.id).Info("diagnostics stream client connected")

	ctx, cancel := context.WithCancel(context.Background())
	go s.writePump(ctx, c)
	go s.readPump(ctx, cancel, c)
}

func (s *Streamer) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = true
	s.clientsServed++
}

func (s *Streamer) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// BroadcastReport queues a diagnostics report for delivery, dropping
// the oldest queued report if the buffer is full rather than blocking
// the publish loop.
func (s *Streamer) BroadcastReport(r types.DiagnosticsReport) {
	select {
	case s.reports <- r:
	default:
		select {
		case <-s.reports:
		default:
		}
		s.reports <- r
	}
}

// BroadcastStatus queues a tracker-status update, with the same
// drop-oldest overflow behaviour as BroadcastReport.
func (s *Streamer) BroadcastStatus(st types.TrackerStatus) {
	select {
	case s.status <- st:
	default:
		select {
		case <-s.status:
		default:
		}
		s.status <- st
	}
}

// Run drains the report/status queues to every connected client until
// ctx is cancelled.
func (s *Streamer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case r := <-s.reports:
			s.fanOut(streamMessage{Kind: "diagnostics", Report: &r})
		case st := <-s.status:
			s.fanOut(streamMessage{Kind: "status", Status: &st})
		}
	}
}

func (s *Streamer) fanOut(msg streamMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
			s.messagesSent++
		default:
			// client buffer full, drop this update for them
		}
	}
}

func (s *Streamer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.conn.Close()
		close(c.send)
		delete(s.clients, c)
	}
}

// Stats reports the current client count and lifetime message counters.
func (s *Streamer) Stats() (clients int, sent, served uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients), s.messagesSent, s.clientsServed
}

func (s *Streamer) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Streamer) readPump(ctx context.Context, cancel context.CancelFunc, c *client) {
	defer func() {
		cancel()
		s.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("diagnostics websocket read error")
			}
			return
		}
		// This stream is publish-only; inbound frames are read and
		// discarded purely to service the client's close/ping frames.
	}
}
