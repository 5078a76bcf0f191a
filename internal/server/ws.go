package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/ws-transcribe-service/internal/config"
	"github.com/skypro1111/ws-transcribe-service/internal/metrics"
	"github.com/skypro1111/ws-transcribe-service/internal/pipeline"
	"github.com/skypro1111/ws-transcribe-service/internal/transcript"
	"github.com/skypro1111/ws-transcribe-service/internal/vad"
)

// WSServer accepts WebSocket connections carrying raw PCM frames and
// pushes transcript updates back to every connected client
type WSServer struct {
	config     *config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	gate       *vad.Gate
	assembler  *pipeline.Assembler
	upgrader   websocket.Upgrader
	httpServer *http.Server

	clients     map[*wsClient]struct{}
	streamStart time.Time

	// Statistics
	connectionsAccepted uint64
	framesReceived      uint64
	speechFrames        uint64
	invalidFrames       uint64

	running bool
	mu      sync.RWMutex
}

// WSStats represents WebSocket server statistics
type WSStats struct {
	ActiveClients       int    `json:"active_clients"`
	ConnectionsAccepted uint64 `json:"connections_accepted"`
	FramesReceived      uint64 `json:"frames_received"`
	SpeechFrames        uint64 `json:"speech_frames"`
	InvalidFrames       uint64 `json:"invalid_frames"`
}

// wsClient is one connected WebSocket peer with a buffered send queue
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *WSServer
}

// transcriptMessage is the JSON payload pushed to clients on every
// transcript change
type transcriptMessage struct {
	Type  string           `json:"type"`
	Lines []transcriptLine `json:"lines"`
}

type transcriptLine struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// NewWSServer creates a new WebSocket ingestion server
func NewWSServer(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics,
	gate *vad.Gate, assembler *pipeline.Assembler) *WSServer {

	s := &WSServer{
		config:    cfg,
		logger:    logger,
		metrics:   m,
		gate:      gate,
		assembler: assembler,
		clients:   make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Local capture clients connect without an Origin header
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port),
		Handler: mux,
	}

	return s
}

// Start begins accepting WebSocket connections
func (s *WSServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.streamStart = time.Now()
	s.mu.Unlock()

	s.logger.Info("Starting WebSocket server",
		slog.String("address", s.httpServer.Addr))

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("WebSocket server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully shuts down the server and disconnects all clients
func (s *WSServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false

	for client := range s.clients {
		close(client.send)
	}
	s.clients = make(map[*wsClient]struct{})
	s.mu.Unlock()

	s.logger.Info("Stopping WebSocket server...")

	return s.httpServer.Shutdown(ctx)
}

// handleWebSocket upgrades the connection and runs the client pumps
func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, 64),
		server: s,
	}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.connectionsAccepted++
	clientCount := len(s.clients)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetActiveClients(clientCount)
	}

	s.logger.Info("Client connected",
		slog.String("remote", conn.RemoteAddr().String()),
		slog.Int("active_clients", clientCount))

	go client.writePump()
	client.readPump()
}

// removeClient unregisters a client after its read pump exits
func (s *WSServer) removeClient(client *wsClient) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
	clientCount := len(s.clients)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetActiveClients(clientCount)
	}

	s.logger.Info("Client disconnected",
		slog.String("remote", client.conn.RemoteAddr().String()),
		slog.Int("active_clients", clientCount))
}

// BroadcastTranscript pushes the given transcript snapshot to all
// connected clients. Used as the pipeline's update callback.
func (s *WSServer) BroadcastTranscript(lines []transcript.Line) {
	msg := transcriptMessage{
		Type:  "transcript",
		Lines: make([]transcriptLine, 0, len(lines)),
	}

	for _, line := range lines {
		msg.Lines = append(msg.Lines, transcriptLine{
			Start: transcript.FormatTimestamp(line.Start),
			End:   transcript.FormatTimestamp(line.End),
			Text:  line.Text,
			Final: line.Final,
		})
	}

	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Failed to marshal transcript message",
			slog.String("error", err.Error()))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer, skip this update rather than block the pipeline
		}
	}
}

// readPump reads audio frames from the client until the connection closes
func (c *wsClient) readPump() {
	s := c.server

	defer func() {
		s.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(s.config.Server.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(s.config.Server.GetPongTimeout()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(s.config.Server.GetPongTimeout()))
		return nil
	})

	sampleRate := s.config.Audio.SampleRate

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Unexpected connection close",
					slog.String("remote", c.conn.RemoteAddr().String()),
					slog.String("error", err.Error()))
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			s.logger.Debug("Ignoring non-binary message",
				slog.Int("type", messageType),
				slog.Int("size", len(data)))
			continue
		}

		c.processFrame(data, sampleRate)
	}
}

// processFrame classifies a received frame and forwards speech into
// the pipeline, stamped with its stream offset
func (c *wsClient) processFrame(data []byte, sampleRate int) {
	s := c.server

	offset := time.Since(s.streamStart)

	s.mu.Lock()
	s.framesReceived++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordFrameReceived(len(data))
	}

	isSpeech, err := s.gate.Classify(data, sampleRate)
	if err != nil {
		if errors.Is(err, vad.ErrInvalidFrameDuration) {
			s.mu.Lock()
			s.invalidFrames++
			s.mu.Unlock()

			if s.metrics != nil {
				s.metrics.RecordFrameInvalid()
			}

			s.logger.Debug("Dropping frame with invalid duration",
				slog.Int("size", len(data)))
			return
		}

		s.logger.Warn("Frame classification failed",
			slog.String("error", err.Error()))
		return
	}

	if s.metrics != nil {
		s.metrics.RecordVADFrame(isSpeech)
	}

	if !isSpeech {
		return
	}

	s.mu.Lock()
	s.speechFrames++
	s.mu.Unlock()

	// The reader reuses its buffer, the pipeline needs its own copy
	payload := make([]byte, len(data))
	copy(payload, data)

	if err := s.assembler.Ingest(pipeline.Frame{Offset: offset, Payload: payload}); err != nil {
		s.logger.Warn("Frame ingestion failed",
			slog.String("error", err.Error()))
	}
}

// writePump forwards transcript updates to the client and keeps the
// connection alive with periodic pings
func (c *wsClient) writePump() {
	s := c.server

	pingInterval := s.config.Server.GetPongTimeout() * 9 / 10
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.config.Server.GetWriteTimeout()))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutdown"))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.config.Server.GetWriteTimeout()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetStats returns current WebSocket server statistics
func (s *WSServer) GetStats() WSStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return WSStats{
		ActiveClients:       len(s.clients),
		ConnectionsAccepted: s.connectionsAccepted,
		FramesReceived:      s.framesReceived,
		SpeechFrames:        s.speechFrames,
		InvalidFrames:       s.invalidFrames,
	}
}
