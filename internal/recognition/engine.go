package recognition

import (
	"context"
	"errors"
	"fmt"
)

// ErrEngineUnavailable marks transport-level engine failure after all
// retries were exhausted. The pipeline treats a run of these as fatal
// rather than silently stalling.
var ErrEngineUnavailable = errors.New("recognition engine unavailable")

// Segment is one timestamped piece of recognized text. Start and End are
// seconds relative to the submitted window, not absolute time.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result holds the engine output for one window
type Result struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
}

// Engine transcribes a fixed-length normalized audio window.
// Implementations may take hundreds of milliseconds to seconds per call;
// callers must not invoke Transcribe on the frame ingestion path.
type Engine interface {
	Transcribe(ctx context.Context, window []float32) (*Result, error)
}

// Options enumerates the recognition parameters passed through to the
// engine. Every field is explicit: there is no free-form payload.
type Options struct {
	// Language hint, e.g. "en"
	Language string

	// NoSpeechThreshold suppresses output for windows the engine
	// considers non-speech
	NoSpeechThreshold float64

	// LogProbThreshold drops low-confidence decodings
	LogProbThreshold float64

	// CompressionRatioThreshold rejects degenerate repetitive output
	CompressionRatioThreshold float64

	// HallucinationSilenceThreshold skips hallucinated text over long
	// silences, in seconds
	HallucinationSilenceThreshold float64
}

// Validate checks the options at construction time
func (o *Options) Validate() error {
	if o.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if o.HallucinationSilenceThreshold < 0 {
		return fmt.Errorf("hallucination_silence_threshold cannot be negative, got %f",
			o.HallucinationSilenceThreshold)
	}

	return nil
}
