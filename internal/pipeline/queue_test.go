package pipeline

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueuePushAndDrain(t *testing.T) {
	queue := NewQueue(8, discardLogger())

	for i := 0; i < 3; i++ {
		dropped := queue.Push(Frame{
			Offset:  time.Duration(i) * 20 * time.Millisecond,
			Payload: []byte{byte(i)},
		})
		if dropped != 0 {
			t.Errorf("Unexpected drop on push %d", i)
		}
	}

	if queue.Depth() != 3 {
		t.Errorf("Expected depth 3, got %d", queue.Depth())
	}

	frames := queue.Drain()
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(frames))
	}

	for i, frame := range frames {
		if frame.Payload[0] != byte(i) {
			t.Errorf("Frame %d out of order", i)
		}
	}

	if queue.Depth() != 0 {
		t.Errorf("Expected empty queue after drain, got depth %d", queue.Depth())
	}
}

func TestQueueDropOldest(t *testing.T) {
	queue := NewQueue(3, discardLogger())

	totalDropped := 0
	for i := 0; i < 5; i++ {
		totalDropped += queue.Push(Frame{
			Offset:  time.Duration(i) * 20 * time.Millisecond,
			Payload: []byte{byte(i)},
		})
	}

	if totalDropped != 2 {
		t.Errorf("Expected 2 drops, got %d", totalDropped)
	}

	frames := queue.Drain()
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames after overflow, got %d", len(frames))
	}

	// Oldest two were dropped, newest three survive in order
	for i, frame := range frames {
		if frame.Payload[0] != byte(i+2) {
			t.Errorf("Expected frame %d, got %d", i+2, frame.Payload[0])
		}
	}

	stats := queue.GetStats()
	if stats.Enqueued != 5 {
		t.Errorf("Expected 5 enqueued, got %d", stats.Enqueued)
	}
	if stats.Dropped != 2 {
		t.Errorf("Expected 2 dropped, got %d", stats.Dropped)
	}
}

func TestQueueDrainEmpty(t *testing.T) {
	queue := NewQueue(4, discardLogger())

	frames := queue.Drain()
	if len(frames) != 0 {
		t.Errorf("Expected no frames, got %d", len(frames))
	}
}
