// Package recognition defines the speech-to-text engine boundary and an
// HTTP client implementation. The client uploads fixed-length audio
// windows as WAV multipart requests, retries with exponential backoff,
// and limits concurrent in-flight requests.
package recognition
