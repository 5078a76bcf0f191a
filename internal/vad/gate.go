package vad

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrInvalidFrameDuration is reported when a frame's byte length does not
// correspond to exactly 10, 20 or 30 ms of audio at the sample rate.
var ErrInvalidFrameDuration = errors.New("invalid frame duration")

// Gate screens incoming PCM frames through a Detector before they reach
// the ingestion queue. Detector errors never propagate to the caller:
// the frame is treated as silence so a flaky classifier drops audio
// instead of mis-accumulating it.
type Gate struct {
	detector Detector
	logger   *slog.Logger

	// Statistics
	framesSeen     uint64
	speechFrames   uint64
	invalidFrames  uint64
	detectorErrors uint64

	mu sync.RWMutex
}

// GateStats represents frame gate statistics
type GateStats struct {
	FramesSeen     uint64  `json:"frames_seen"`
	SpeechFrames   uint64  `json:"speech_frames"`
	InvalidFrames  uint64  `json:"invalid_frames"`
	DetectorErrors uint64  `json:"detector_errors"`
	SpeechRate     float64 `json:"speech_rate"`
}

// NewGate creates a frame gate around the given detector
func NewGate(detector Detector, logger *slog.Logger) *Gate {
	return &Gate{
		detector: detector,
		logger:   logger,
	}
}

// Classify reports whether the frame contains speech.
//
// It returns ErrInvalidFrameDuration (wrapped with the offending duration)
// when the frame length is not exactly 10, 20 or 30 ms at sampleRate; such
// frames must be excluded from accumulation. Any detector failure is
// logged and reported as "not speech" with a nil error.
func (g *Gate) Classify(frame []byte, sampleRate int) (bool, error) {
	g.mu.Lock()
	g.framesSeen++
	g.mu.Unlock()

	if err := ValidateFrameDuration(frame, sampleRate); err != nil {
		g.mu.Lock()
		g.invalidFrames++
		g.mu.Unlock()

		g.logger.Warn("Rejecting malformed audio frame",
			slog.Int("frame_bytes", len(frame)),
			slog.Int("sample_rate", sampleRate),
			slog.String("error", err.Error()),
		)
		return false, err
	}

	speech, err := g.detector.IsSpeech(frame, sampleRate)
	if err != nil {
		g.mu.Lock()
		g.detectorErrors++
		g.mu.Unlock()

		// Fail safe: drop rather than mis-accumulate.
		g.logger.Warn("VAD classification failed, treating frame as silence",
			slog.Int("frame_bytes", len(frame)),
			slog.String("error", err.Error()),
		)
		return false, nil
	}

	if speech {
		g.mu.Lock()
		g.speechFrames++
		g.mu.Unlock()
	}

	return speech, nil
}

// ValidateFrameDuration checks that the frame is exactly 10, 20 or 30 ms
// of 16-bit mono PCM at the given sample rate
func ValidateFrameDuration(frame []byte, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidFrameDuration, sampleRate)
	}

	// Duration in milliseconds of a 16-bit mono frame. Integer division
	// is fine: valid frames divide evenly, anything else fails the
	// membership check below anyway.
	bytesPerMs := sampleRate / 1000 * 2
	if bytesPerMs == 0 || len(frame)%bytesPerMs != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of milliseconds at %d Hz",
			ErrInvalidFrameDuration, len(frame), sampleRate)
	}

	durationMs := len(frame) / bytesPerMs
	switch durationMs {
	case 10, 20, 30:
		return nil
	default:
		return fmt.Errorf("%w: got %dms, expected 10ms, 20ms or 30ms", ErrInvalidFrameDuration, durationMs)
	}
}

// GetStats returns current gate statistics
func (g *Gate) GetStats() GateStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	speechRate := float64(0)
	if g.framesSeen > 0 {
		speechRate = float64(g.speechFrames) / float64(g.framesSeen) * 100
	}

	return GateStats{
		FramesSeen:     g.framesSeen,
		SpeechFrames:   g.speechFrames,
		InvalidFrames:  g.invalidFrames,
		DetectorErrors: g.detectorErrors,
		SpeechRate:     speechRate,
	}
}
