package pipeline

import (
	"log/slog"
	"sync"
	"time"
)

// Frame is one speech-classified audio frame with its stream offset
type Frame struct {
	Offset  time.Duration
	Payload []byte
}

// Queue is a bounded frame queue decoupling the WebSocket reader from
// the assembler. When full, the oldest frame is dropped to make room,
// so a stalled recognition engine degrades transcript completeness
// instead of stalling ingestion.
type Queue struct {
	frames chan Frame
	logger *slog.Logger

	// Statistics
	enqueued uint64
	dropped  uint64

	mu sync.RWMutex
}

// QueueStats represents queue statistics
type QueueStats struct {
	Enqueued uint64 `json:"enqueued"`
	Dropped  uint64 `json:"dropped"`
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
}

// NewQueue creates a bounded frame queue with the given capacity
func NewQueue(capacity int, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 4096
	}

	return &Queue{
		frames: make(chan Frame, capacity),
		logger: logger,
	}
}

// Push enqueues a frame, dropping the oldest queued frame if the queue
// is full. Returns the number of frames dropped to make room (0 or 1).
func (q *Queue) Push(frame Frame) int {
	dropped := 0

	for {
		select {
		case q.frames <- frame:
			q.mu.Lock()
			q.enqueued++
			q.dropped += uint64(dropped)
			q.mu.Unlock()
			return dropped
		default:
		}

		select {
		case old := <-q.frames:
			dropped++
			q.logger.Warn("Ingestion queue full, dropping oldest frame",
				slog.String("dropped_offset", old.Offset.String()),
				slog.Int("capacity", cap(q.frames)))
		default:
			// Consumer drained the queue between our two selects,
			// retry the send
		}
	}
}

// Drain removes and returns all frames currently queued without blocking
func (q *Queue) Drain() []Frame {
	var frames []Frame

	for {
		select {
		case frame := <-q.frames:
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

// Depth returns the current number of queued frames
func (q *Queue) Depth() int {
	return len(q.frames)
}

// GetStats returns current queue statistics
func (q *Queue) GetStats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return QueueStats{
		Enqueued: q.enqueued,
		Dropped:  q.dropped,
		Depth:    len(q.frames),
		Capacity: cap(q.frames),
	}
}
