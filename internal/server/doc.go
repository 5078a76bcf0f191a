// Package server implements the service's network surfaces: the
// WebSocket endpoint that ingests PCM audio and pushes transcript
// updates back to clients, and the HTTP API for monitoring.
package server
