package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skypro1111/ws-transcribe-service/internal/config"
	"github.com/skypro1111/ws-transcribe-service/internal/metrics"
	"github.com/skypro1111/ws-transcribe-service/internal/pipeline"
	"github.com/skypro1111/ws-transcribe-service/internal/recognition"
	"github.com/skypro1111/ws-transcribe-service/internal/server"
	"github.com/skypro1111/ws-transcribe-service/internal/transcript"
	"github.com/skypro1111/ws-transcribe-service/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "ws-transcribe-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	printTranscript := flag.Bool("print", true, "Print transcript updates to stdout")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("vad_mode", cfg.VAD.Mode),
		slog.Float64("tick_interval", cfg.Pipeline.TickInterval),
		slog.Float64("phrase_timeout", cfg.Pipeline.PhraseTimeout),
		slog.String("recognition_endpoint", cfg.Recognition.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize VAD gate
	detector, err := vad.NewWebRTCDetector(cfg.VAD.Mode)
	if err != nil {
		logger.Error("Failed to create VAD detector", slog.String("error", err.Error()))
		os.Exit(1)
	}
	gate := vad.NewGate(detector, logger)
	logger.Info("VAD gate initialized", slog.Int("mode", cfg.VAD.Mode))

	// Initialize recognition client
	engine, err := recognition.NewClient(recognition.ClientConfig{
		Endpoint:      cfg.Recognition.Endpoint,
		APIKey:        cfg.Recognition.APIKey,
		SampleRate:    cfg.Recognition.SampleRate,
		Timeout:       cfg.Recognition.GetTimeoutDuration(),
		MaxRetries:    cfg.Recognition.MaxRetries,
		MaxConcurrent: cfg.Recognition.MaxConcurrent,
	}, recognition.Options{
		Language:                      cfg.Recognition.Language,
		NoSpeechThreshold:             cfg.Recognition.NoSpeechThreshold,
		LogProbThreshold:              cfg.Recognition.LogProbThreshold,
		CompressionRatioThreshold:     cfg.Recognition.CompressionRatioThreshold,
		HallucinationSilenceThreshold: cfg.Recognition.HallucinationSilenceThreshold,
	})
	if err != nil {
		logger.Error("Failed to create recognition client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Recognition client initialized",
		slog.String("endpoint", cfg.Recognition.Endpoint),
		slog.Int("window_seconds", cfg.Recognition.WindowSeconds),
	)

	// Initialize transcript store and pipeline
	store := transcript.NewStore(logger)
	queue := pipeline.NewQueue(cfg.Pipeline.QueueCapacity, logger)

	assembler, err := pipeline.NewAssembler(pipeline.AssemblerConfig{
		TickInterval:           cfg.Pipeline.GetTickInterval(),
		PhraseTimeout:          cfg.Pipeline.GetPhraseTimeout(),
		WindowSeconds:          cfg.Recognition.WindowSeconds,
		SourceSampleRate:       cfg.Audio.SampleRate,
		TargetSampleRate:       cfg.Recognition.SampleRate,
		MaxConsecutiveFailures: cfg.Pipeline.MaxConsecutiveFailures,
	}, queue, engine, store, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create phrase assembler", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Phrase assembler initialized")

	// Initialize WebSocket server
	wsServer := server.NewWSServer(cfg, logger, appMetrics, gate, assembler)
	logger.Info("WebSocket server initialized")

	// Transcript updates go to connected clients, and to stdout when enabled
	assembler.SetUpdateFunc(func(lines []transcript.Line) {
		wsServer.BroadcastTranscript(lines)
		if *printTranscript {
			printLines(lines)
		}
	})

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg, logger, wsServer, assembler, store, gate, engine, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start pipeline
	if err := assembler.Start(ctx); err != nil {
		logger.Error("Failed to start phrase assembler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start WebSocket server
	if err := wsServer.Start(); err != nil {
		logger.Error("Failed to start WebSocket server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("ws_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	// Wait for shutdown signal or a fatal pipeline error
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	exitCode := 0
waitLoop:
	for {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			break waitLoop
		case <-ticker.C:
			if err := assembler.Err(); err != nil {
				logger.Error("Pipeline failed", slog.String("error", err.Error()))
				exitCode = 1
				break waitLoop
			}
		case <-ctx.Done():
			logger.Info("Context cancelled, shutting down")
			break waitLoop
		}
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop WebSocket server (stop accepting new audio)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := wsServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping WebSocket server", slog.String("error", err.Error()))
	}

	// Stop pipeline last so buffered audio gets flushed and finalized
	if err := assembler.Stop(); err != nil {
		logger.Error("Error stopping phrase assembler", slog.String("error", err.Error()))
	}

	if err := engine.Close(); err != nil {
		logger.Error("Error closing recognition client", slog.String("error", err.Error()))
	}

	// Get final statistics
	wsStats := wsServer.GetStats()
	assemblerStats := assembler.GetStats()
	logger.Info("Final server statistics",
		slog.Uint64("frames_received", wsStats.FramesReceived),
		slog.Uint64("speech_frames", wsStats.SpeechFrames),
		slog.Uint64("frames_dropped", assemblerStats.FramesDropped),
		slog.Uint64("phrases_finalized", assemblerStats.PhrasesFinalized),
	)

	// The full transcript survives shutdown on stdout
	if *printTranscript {
		if rendered := store.Render(); rendered != "" {
			fmt.Println(rendered)
		}
	}

	logger.Info("Service stopped")
	os.Exit(exitCode)
}

// printLines rewrites the transcript on stdout as it evolves
func printLines(lines []transcript.Line) {
	for _, line := range lines {
		marker := " "
		if !line.Final {
			marker = "~"
		}
		fmt.Printf("%s %s\n", marker, line.String())
	}
	fmt.Println("---")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
