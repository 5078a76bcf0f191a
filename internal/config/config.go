package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	HTTP        HTTPConfig        `yaml:"http"`
	Audio       AudioConfig       `yaml:"audio"`
	VAD         VADConfig         `yaml:"vad"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains WebSocket server configuration
type ServerConfig struct {
	Port           int    `yaml:"port"`
	BindAddress    string `yaml:"bind_address"`
	MaxMessageSize int64  `yaml:"max_message_size"` // bytes
	WriteTimeout   int    `yaml:"write_timeout"`    // seconds
	PongTimeout    int    `yaml:"pong_timeout"`     // seconds
}

// HTTPConfig contains HTTP monitoring API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains the PCM format expected on the wire
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
}

// VADConfig contains Voice Activity Detection configuration
type VADConfig struct {
	Mode int `yaml:"mode"` // WebRTC VAD aggressiveness, 0-3
}

// PipelineConfig contains phrase assembler configuration.
//
// Note on PhraseTimeout: the silence check runs once per tick, after the
// queue drain and the recognition call, so the silence window a client
// actually observes is phrase_timeout plus that tick's processing latency.
type PipelineConfig struct {
	TickInterval           float64 `yaml:"tick_interval"`  // seconds
	PhraseTimeout          float64 `yaml:"phrase_timeout"` // seconds
	QueueCapacity          int     `yaml:"queue_capacity"` // frames; drop-oldest on overflow
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`
}

// RecognitionConfig contains recognition engine client configuration
type RecognitionConfig struct {
	Endpoint                      string  `yaml:"endpoint"`
	APIKey                        string  `yaml:"api_key"`
	WindowSeconds                 int     `yaml:"window_seconds"`
	SampleRate                    int     `yaml:"sample_rate"`
	Language                      string  `yaml:"language"`
	NoSpeechThreshold             float64 `yaml:"no_speech_threshold"`
	LogProbThreshold              float64 `yaml:"log_prob_threshold"`
	CompressionRatioThreshold     float64 `yaml:"compression_ratio_threshold"`
	HallucinationSilenceThreshold float64 `yaml:"hallucination_silence_threshold"`
	Timeout                       int     `yaml:"timeout"` // seconds
	MaxRetries                    int     `yaml:"max_retries"`
	MaxConcurrent                 int     `yaml:"max_concurrent"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Default returns the configuration with all defaults applied.
// Values present in the loaded file override these.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8765,
			BindAddress:    "localhost",
			MaxMessageSize: 512 * 1024,
			WriteTimeout:   10,
			PongTimeout:    60,
		},
		HTTP: HTTPConfig{
			Port:    8766,
			Address: "localhost",
			Enabled: true,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			BitDepth:   16,
		},
		VAD: VADConfig{
			Mode: 2,
		},
		Pipeline: PipelineConfig{
			TickInterval:           0.1,
			PhraseTimeout:          0.3,
			QueueCapacity:          4096,
			MaxConsecutiveFailures: 10,
		},
		Recognition: RecognitionConfig{
			Endpoint:                      "http://localhost:9000/transcribe",
			WindowSeconds:                 30,
			SampleRate:                    16000,
			Language:                      "en",
			NoSpeechThreshold:             2.0,
			LogProbThreshold:              -1.0,
			CompressionRatioThreshold:     1.0,
			HallucinationSilenceThreshold: 1.0,
			Timeout:                       30,
			MaxRetries:                    2,
			MaxConcurrent:                 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.Recognition.Validate(); err != nil {
		return fmt.Errorf("recognition config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.MaxMessageSize < 1024 {
		return fmt.Errorf("max_message_size must be at least 1024 bytes, got %d", s.MaxMessageSize)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	if s.PongTimeout < 1 {
		return fmt.Errorf("pong_timeout must be at least 1 second, got %d", s.PongTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	switch a.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("sample_rate must be 8000, 16000, 32000 or 48000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Mode < 0 || v.Mode > 3 {
		return fmt.Errorf("mode must be between 0 and 3, got %d", v.Mode)
	}

	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if p.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %f", p.TickInterval)
	}

	if p.PhraseTimeout <= 0 {
		return fmt.Errorf("phrase_timeout must be positive, got %f", p.PhraseTimeout)
	}

	if p.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", p.QueueCapacity)
	}

	if p.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("max_consecutive_failures must be at least 1, got %d", p.MaxConsecutiveFailures)
	}

	return nil
}

// Validate validates recognition configuration
func (r *RecognitionConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if r.WindowSeconds < 1 {
		return fmt.Errorf("window_seconds must be at least 1, got %d", r.WindowSeconds)
	}

	if r.SampleRate < 1 {
		return fmt.Errorf("sample_rate must be positive, got %d", r.SampleRate)
	}

	if r.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", r.MaxRetries)
	}

	if r.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", r.MaxConcurrent)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetWriteTimeout returns the write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetPongTimeout returns the pong timeout as a time.Duration
func (s *ServerConfig) GetPongTimeout() time.Duration {
	return time.Duration(s.PongTimeout) * time.Second
}

// GetTickInterval returns the assembler tick interval as a time.Duration
func (p *PipelineConfig) GetTickInterval() time.Duration {
	return time.Duration(p.TickInterval * float64(time.Second))
}

// GetPhraseTimeout returns the phrase silence timeout as a time.Duration
func (p *PipelineConfig) GetPhraseTimeout() time.Duration {
	return time.Duration(p.PhraseTimeout * float64(time.Second))
}

// GetTimeoutDuration returns the recognition request timeout as a time.Duration
func (r *RecognitionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}
