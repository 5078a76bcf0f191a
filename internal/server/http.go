package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/ws-transcribe-service/internal/config"
	"github.com/skypro1111/ws-transcribe-service/internal/metrics"
	"github.com/skypro1111/ws-transcribe-service/internal/pipeline"
	"github.com/skypro1111/ws-transcribe-service/internal/recognition"
	"github.com/skypro1111/ws-transcribe-service/internal/transcript"
	"github.com/skypro1111/ws-transcribe-service/internal/vad"
)

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	wsServer  *WSServer
	assembler *pipeline.Assembler
	store     *transcript.Store
	gate      *vad.Gate
	engine    *recognition.Client
	metrics   *metrics.Metrics

	// Server state
	startTime time.Time
	mu        sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger, wsServer *WSServer,
	assembler *pipeline.Assembler, store *transcript.Store, gate *vad.Gate,
	engine *recognition.Client, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		wsServer:  wsServer,
		assembler: assembler,
		store:     store,
		gate:      gate,
		engine:    engine,
		metrics:   m,
		startTime: time.Now(),
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Transcript endpoints
	mux.HandleFunc("/transcript", h.withMetrics("/transcript", h.handleTranscript))
	mux.HandleFunc("/transcript/text", h.withMetrics("/transcript/text", h.handleTranscriptText))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the original handler
		handler(ww, r)

		// Record metrics
		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		// Record error if status code indicates an error
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	wsStats := h.wsServer.GetStats()
	assemblerStats := h.assembler.GetStats()
	engineStats := h.engine.GetStats()

	status := "healthy"
	if h.assembler.Err() != nil {
		status = "degraded"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "ws-transcribe-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"websocket_server": map[string]interface{}{
				"status":          "running",
				"active_clients":  wsStats.ActiveClients,
				"frames_received": wsStats.FramesReceived,
				"speech_frames":   wsStats.SpeechFrames,
				"invalid_frames":  wsStats.InvalidFrames,
			},
			"pipeline": map[string]interface{}{
				"running":              assemblerStats.Running,
				"phrases_finalized":    assemblerStats.PhrasesFinalized,
				"queue_depth":          assemblerStats.QueueDepth,
				"consecutive_failures": assemblerStats.ConsecutiveFailures,
			},
			"recognition": map[string]interface{}{
				"total_requests":  engineStats.TotalRequests,
				"success_rate":    engineStats.SuccessRate,
				"active_requests": engineStats.ActiveRequests,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleTranscript implements the /transcript endpoint
func (h *HTTPServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lines := h.store.Snapshot()
	entries := make([]map[string]interface{}, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, map[string]interface{}{
			"start": transcript.FormatTimestamp(line.Start),
			"end":   transcript.FormatTimestamp(line.End),
			"text":  line.Text,
			"final": line.Final,
		})
	}

	response := map[string]interface{}{
		"total_lines": len(entries),
		"timestamp":   time.Now().UTC(),
		"lines":       entries,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleTranscriptText implements the /transcript/text endpoint
func (h *HTTPServer) handleTranscriptText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, h.store.Render())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":             h.config.Server.Port,
			"bind_address":     h.config.Server.BindAddress,
			"max_message_size": h.config.Server.MaxMessageSize,
		},
		"audio": map[string]interface{}{
			"sample_rate": h.config.Audio.SampleRate,
			"channels":    h.config.Audio.Channels,
			"bit_depth":   h.config.Audio.BitDepth,
		},
		"vad": map[string]interface{}{
			"mode": h.config.VAD.Mode,
		},
		"pipeline": map[string]interface{}{
			"tick_interval":  h.config.Pipeline.TickInterval,
			"phrase_timeout": h.config.Pipeline.PhraseTimeout,
			"queue_capacity": h.config.Pipeline.QueueCapacity,
		},
		"recognition": map[string]interface{}{
			"endpoint":       h.config.Recognition.Endpoint,
			"window_seconds": h.config.Recognition.WindowSeconds,
			"sample_rate":    h.config.Recognition.SampleRate,
			"language":       h.config.Recognition.Language,
			"timeout":        h.config.Recognition.Timeout,
			"max_retries":    h.config.Recognition.MaxRetries,
			"max_concurrent": h.config.Recognition.MaxConcurrent,
			// Note: API key is intentionally omitted for security
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":      uptime.String(),
		"timestamp":   time.Now().UTC(),
		"websocket":   h.wsServer.GetStats(),
		"vad":         h.gate.GetStats(),
		"pipeline":    h.assembler.GetStats(),
		"recognition": h.engine.GetStats(),
		"transcript":  h.store.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "WebSocket Transcription Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                "API documentation",
			"GET /health":          "Service health check",
			"GET /transcript":      "Current transcript as JSON",
			"GET /transcript/text": "Current transcript as plain text",
			"GET /config":          "Get service configuration",
			"GET /stats":           "Get service statistics",
			"GET /metrics":         "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
