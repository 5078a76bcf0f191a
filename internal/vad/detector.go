package vad

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// Detector classifies a single PCM frame as speech or silence
type Detector interface {
	// IsSpeech reports whether the 16-bit mono PCM frame contains speech.
	// The frame must be exactly 10, 20 or 30 ms at sampleRate.
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}

// WebRTCDetector implements Detector using the WebRTC VAD
type WebRTCDetector struct {
	vad  *webrtcvad.VAD
	mode int
}

// NewWebRTCDetector creates a WebRTC VAD detector with the given
// aggressiveness mode (0-3, higher filters more aggressively)
func NewWebRTCDetector(mode int) (*WebRTCDetector, error) {
	if mode < 0 || mode > 3 {
		return nil, fmt.Errorf("mode must be between 0 and 3, got %d", mode)
	}

	vad, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC VAD: %w", err)
	}

	if err := vad.SetMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set VAD mode: %w", err)
	}

	return &WebRTCDetector{
		vad:  vad,
		mode: mode,
	}, nil
}

// IsSpeech reports whether the frame contains speech
func (d *WebRTCDetector) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return false, fmt.Errorf("invalid sample rate %d, must be 8000, 16000, 32000 or 48000", sampleRate)
	}

	active, err := d.vad.Process(sampleRate, frame)
	if err != nil {
		return false, fmt.Errorf("VAD processing failed: %w", err)
	}

	return active, nil
}

// Mode returns the configured aggressiveness mode
func (d *WebRTCDetector) Mode() int {
	return d.mode
}
