// Package vad provides Voice Activity Detection for incoming PCM frames.
// It wraps the WebRTC VAD behind a Detector interface and layers a frame
// gate on top that validates frame durations and fails safe to "not speech"
// on any detector error.
package vad
