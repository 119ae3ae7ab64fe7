package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/srcdoc/internal/preview"
	"github.com/conneroisu/srcdoc/internal/types"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	broadcastBuffer = 64
	clientBuffer    = 32
)

// Message types pushed to browsers.
const (
	MessageProgress = "progress"
	MessageErrors   = "errors"
	MessageRendered = "rendered"
	MessageEmpty    = "empty"
	MessageIdle     = "idle"
)

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type        string    `json:"type"`
	Generation  uint64    `json:"generation"`
	Preset      string    `json:"preset,omitempty"`
	Processed   int       `json:"processed,omitempty"`
	Diagnostics []string  `json:"diagnostics,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// statusMessage describes a coordinator snapshot, sent to clients as they
// connect.
func statusMessage(status preview.Status) UpdateMessage {
	msg := UpdateMessage{
		Generation: status.Generation,
		Preset:     status.Preset,
		Timestamp:  time.Now(),
	}

	switch status.State {
	case preview.StateBuilding:
		msg.Type = MessageProgress
		msg.Processed = status.Processed
	case preview.StateRendered:
		msg.Type = MessageRendered
		msg.Fingerprint = status.Fingerprint
	case preview.StateErrored:
		msg.Type = MessageErrors
		msg.Diagnostics = status.Diagnostics
	case preview.StateEmpty:
		msg.Type = MessageEmpty
	default:
		msg.Type = MessageIdle
	}

	return msg
}

// sink turns coordinator publications into broadcasts. It runs under the
// coordinator's lock, so it only enqueues.
func (s *PreviewServer) sink() preview.Sink {
	return preview.SinkFuncs{
		OnProgress: func(generation uint64, processed int) {
			s.broadcastMessage(UpdateMessage{Type: MessageProgress, Generation: generation, Processed: processed})
		},
		OnDiagnostics: func(generation uint64, diagnostics []string) {
			s.logger.Warn(context.Background(), nil, "Build failed", "generation", generation, "diagnostics", len(diagnostics))
			s.broadcastMessage(UpdateMessage{Type: MessageErrors, Generation: generation, Diagnostics: diagnostics})
		},
		OnRendered: func(generation uint64, output types.RenderedOutput) {
			s.logger.Info(context.Background(), "Document rendered", "generation", generation, "fingerprint", output.Fingerprint)
			s.broadcastMessage(UpdateMessage{Type: MessageRendered, Generation: generation, Fingerprint: output.Fingerprint})
		},
		OnEmpty: func(generation uint64) {
			s.broadcastMessage(UpdateMessage{Type: MessageEmpty, Generation: generation})
		},
	}
}

func (s *PreviewServer) broadcastMessage(msg UpdateMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(context.Background(), err, "Failed to marshal message", "type", msg.Type)
		return
	}

	select {
	case s.broadcast <- data:
		return
	default:
	}

	if msg.Type == MessageProgress {
		s.logger.Debug(context.Background(), "Broadcast queue full, dropping progress", "generation", msg.Generation)
		return
	}

	// The final message of a build evicts the oldest queued one, so clients
	// always learn how a build ended.
	select {
	case <-s.broadcast:
	default:
	}
	select {
	case s.broadcast <- data:
	default:
		// Clients resynchronise from the status snapshot on reconnect.
		s.logger.Warn(context.Background(), nil, "Broadcast queue full, dropping message", "type", msg.Type)
	}
}

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, clientBuffer),
		server: s,
	}

	go client.writePump()
	go client.readPump()

	select {
	case s.register <- client:
	case <-s.done:
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// checkOrigin accepts same-origin requests, the configured listen address and
// the configured allowed origins.
func (s *PreviewServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	if originURL.Host == r.Host {
		return true
	}

	allowedHosts := []string{
		fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		fmt.Sprintf("localhost:%d", s.config.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", s.config.Server.Port),
	}
	for _, allowed := range allowedHosts {
		if originURL.Host == allowed {
			return true
		}
	}

	return s.isAllowedOrigin(origin)
}

// originPatterns lists the hosts checkOrigin accepts beyond same-origin, for
// websocket.Accept's own origin check.
func (s *PreviewServer) originPatterns() []string {
	patterns := []string{
		fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		fmt.Sprintf("localhost:%d", s.config.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", s.config.Server.Port),
	}
	for _, origin := range s.config.Server.AllowedOrigins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}

	return patterns
}

func (s *PreviewServer) runWebSocketHub() {
	for {
		select {
		case <-s.done:
			return

		case client := <-s.register:
			if client == nil || client.conn == nil {
				continue
			}
			s.addClient(client)

		case conn := <-s.unregister:
			if conn == nil {
				continue
			}
			s.clientsMutex.Lock()
			if client, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(client.send)
			}
			count := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(context.Background(), "Client disconnected", "clients", count)

		case message := <-s.broadcast:
			s.clientsMutex.Lock()
			for conn, client := range s.clients {
				select {
				case client.send <- message:
				default:
					// Slow client: writePump closes the connection once
					// the channel drains.
					delete(s.clients, conn)
					close(client.send)
				}
			}
			s.clientsMutex.Unlock()
		}
	}
}

// addClient sends the status snapshot to client and starts broadcasting to
// it. A client arriving after Shutdown has its send channel closed instead,
// which stops its writePump.
func (s *PreviewServer) addClient(client *Client) bool {
	snapshot, err := json.Marshal(statusMessage(s.coordinator.Status()))

	s.clientsMutex.Lock()
	select {
	case <-s.done:
		s.clientsMutex.Unlock()
		close(client.send)
		return false
	default:
	}

	if err == nil {
		client.send <- snapshot
	}
	s.clients[client.conn] = client
	count := len(s.clients)
	s.clientsMutex.Unlock()

	s.logger.Debug(context.Background(), "Client connected", "clients", count)

	return true
}

// ClientCount returns the number of connected browsers.
func (s *PreviewServer) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()

	return len(s.clients)
}

// readPump discards client messages and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c.conn:
		case <-c.server.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		// Read fails once the peer leaves or writePump closes the connection.
		_, _, err := c.conn.Read(context.Background())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && status != -1 {
				c.server.logger.Debug(context.Background(), "WebSocket read ended", "status", status.String())
			}
			return
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
