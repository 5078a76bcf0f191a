// Command fakeengine is a stand-in recognition engine for local
// development. It accepts the multipart upload the service sends and
// answers with canned segments sized to the uploaded audio.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

type segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type response struct {
	Segments []segment `json:"segments"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
}

var phrases = []string{
	"the quick brown fox jumps over the lazy dog",
	"testing one two three",
	"streaming transcription looks healthy",
	"another phrase arrives on schedule",
}

var (
	requestCount int
	latency      = flag.Duration("latency", 150*time.Millisecond, "Simulated recognition latency")
	port         = flag.Int("port", 9000, "Port to listen on")
)

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse multipart form
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	language := r.FormValue("language")
	sampleRate := r.FormValue("sample_rate")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("RECOGNITION REQUEST:")
	log.Printf("  Filename:    %s", header.Filename)
	log.Printf("  Audio size:  %d bytes", len(audioData))
	log.Printf("  Language:    %s", language)
	log.Printf("  Sample rate: %s", sampleRate)
	log.Printf("  Thresholds:  no_speech=%s logprob=%s compression=%s hallucination=%s",
		r.FormValue("no_speech_threshold"),
		r.FormValue("logprob_threshold"),
		r.FormValue("compression_ratio_threshold"),
		r.FormValue("hallucination_silence_threshold"))

	// Simulate processing time
	time.Sleep(*latency)

	requestCount++
	text := phrases[requestCount%len(phrases)]
	words := strings.Fields(text)

	// Spread the words over a plausible phrase duration
	phraseSeconds := 0.4 * float64(len(words))
	resp := response{
		Segments: []segment{
			{Start: 0.0, End: phraseSeconds, Text: text},
		},
		Language: "en",
		Duration: phraseSeconds,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)

	log.Printf("RECOGNITION RESPONSE: '%s'", text)
	log.Println("---")
}

func main() {
	flag.Parse()

	http.HandleFunc("/transcribe", transcribeHandler)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Fake recognition engine starting on %s", addr)
	log.Printf("Endpoint: http://localhost%s/transcribe", addr)
	log.Println("Point recognition.endpoint at it to run the service without a real engine")

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
