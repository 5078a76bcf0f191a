package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skypro1111/ws-transcribe-service/internal/config"
	"github.com/skypro1111/ws-transcribe-service/internal/pipeline"
	"github.com/skypro1111/ws-transcribe-service/internal/recognition"
	"github.com/skypro1111/ws-transcribe-service/internal/transcript"
	"github.com/skypro1111/ws-transcribe-service/internal/vad"
)

func newTestHTTPServer(t *testing.T) (*HTTPServer, *transcript.Store) {
	t.Helper()

	cfg := config.Default()
	cfg.Recognition.APIKey = "secret-key"
	logger := discardLogger()

	gate := vad.NewGate(&stubDetector{speech: true}, logger)
	store := transcript.NewStore(logger)
	queue := pipeline.NewQueue(64, logger)

	assembler, err := pipeline.NewAssembler(pipeline.AssemblerConfig{
		TickInterval:           50 * time.Millisecond,
		PhraseTimeout:          300 * time.Millisecond,
		WindowSeconds:          1,
		SourceSampleRate:       16000,
		TargetSampleRate:       16000,
		MaxConsecutiveFailures: 10,
	}, queue, &noopEngine{}, store, nil, logger)
	if err != nil {
		t.Fatalf("Failed to create assembler: %v", err)
	}

	engine, err := recognition.NewClient(recognition.ClientConfig{
		Endpoint:   cfg.Recognition.Endpoint,
		APIKey:     cfg.Recognition.APIKey,
		SampleRate: cfg.Recognition.SampleRate,
	}, recognition.Options{
		Language:                      "en",
		NoSpeechThreshold:             2.0,
		LogProbThreshold:              -1.0,
		CompressionRatioThreshold:     1.0,
		HallucinationSilenceThreshold: 1.0,
	})
	if err != nil {
		t.Fatalf("Failed to create recognition client: %v", err)
	}

	wsServer := NewWSServer(cfg, logger, nil, gate, assembler)

	httpServer := NewHTTPServer(cfg, logger, wsServer, assembler, store, gate, engine, testMetrics)

	return httpServer, store
}

func doRequest(t *testing.T, h *HTTPServer, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHTTPHealthEndpoint(t *testing.T) {
	h, _ := newTestHTTPServer(t)

	rec := doRequest(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}

	if health["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", health["status"])
	}

	components, ok := health["components"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing components in health response")
	}

	for _, name := range []string{"websocket_server", "pipeline", "recognition"} {
		if _, exists := components[name]; !exists {
			t.Errorf("Missing component %s in health response", name)
		}
	}
}

func TestHTTPTranscriptEndpoint(t *testing.T) {
	h, store := newTestHTTPServer(t)

	store.Merge(time.Second, []recognition.Segment{
		{Start: 0.0, End: 1.5, Text: "hello world"},
	}, true)

	rec := doRequest(t, h, http.MethodGet, "/transcript")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var response struct {
		TotalLines int `json:"total_lines"`
		Lines      []struct {
			Start string `json:"start"`
			End   string `json:"end"`
			Text  string `json:"text"`
			Final bool   `json:"final"`
		} `json:"lines"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse transcript response: %v", err)
	}

	if response.TotalLines != 1 {
		t.Fatalf("Expected 1 line, got %d", response.TotalLines)
	}
	if response.Lines[0].Start != "00:00:01.000" {
		t.Errorf("Expected start 00:00:01.000, got %s", response.Lines[0].Start)
	}
	if response.Lines[0].Text != "hello world" {
		t.Errorf("Expected 'hello world', got '%s'", response.Lines[0].Text)
	}
	if !response.Lines[0].Final {
		t.Error("Expected finalized line")
	}
}

func TestHTTPTranscriptTextEndpoint(t *testing.T) {
	h, store := newTestHTTPServer(t)

	store.Merge(0, []recognition.Segment{
		{Start: 0.0, End: 2.0, Text: "plain text line"},
	}, true)

	rec := doRequest(t, h, http.MethodGet, "/transcript/text")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "[00:00:00.000 - 00:00:02.000] plain text line") {
		t.Errorf("Unexpected transcript text: %s", body)
	}
}

func TestHTTPConfigEndpointOmitsAPIKey(t *testing.T) {
	h, _ := newTestHTTPServer(t)

	rec := doRequest(t, h, http.MethodGet, "/config")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if strings.Contains(body, "secret-key") {
		t.Error("Config endpoint leaked the API key")
	}
	if !strings.Contains(body, "phrase_timeout") {
		t.Error("Config endpoint missing pipeline settings")
	}
}

func TestHTTPStatsEndpoint(t *testing.T) {
	h, _ := newTestHTTPServer(t)

	rec := doRequest(t, h, http.MethodGet, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var stats map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to parse stats response: %v", err)
	}

	for _, section := range []string{"websocket", "vad", "pipeline", "recognition", "transcript"} {
		if _, exists := stats[section]; !exists {
			t.Errorf("Missing stats section %s", section)
		}
	}
}

func TestHTTPMethodNotAllowed(t *testing.T) {
	h, _ := newTestHTTPServer(t)

	for _, path := range []string{"/health", "/transcript", "/config", "/stats"} {
		rec := doRequest(t, h, http.MethodPost, path)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: expected 405, got %d", path, rec.Code)
		}
	}
}

func TestHTTPRootDocumentation(t *testing.T) {
	h, _ := newTestHTTPServer(t)

	rec := doRequest(t, h, http.MethodGet, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to parse root response: %v", err)
	}

	if doc["service"] != "WebSocket Transcription Service" {
		t.Errorf("Unexpected service name: %v", doc["service"])
	}
}

func TestHTTPUnknownPathNotFound(t *testing.T) {
	h, _ := newTestHTTPServer(t)

	rec := doRequest(t, h, http.MethodGet, "/does-not-exist")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}
