// Package audio handles PCM format conversion for the recognition engine.
// It converts accumulated 16-bit PCM bytes into fixed-length float32
// windows (scale, resample, pad-or-truncate) and encodes windows as WAV
// for transport.
package audio
