// Package metrics provides Prometheus instrumentation for the
// transcription service: ingestion, VAD, pipeline, recognition and
// HTTP API metrics with typed Record helpers.
package metrics
