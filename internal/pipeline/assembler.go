package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/ws-transcribe-service/internal/audio"
	"github.com/skypro1111/ws-transcribe-service/internal/metrics"
	"github.com/skypro1111/ws-transcribe-service/internal/recognition"
	"github.com/skypro1111/ws-transcribe-service/internal/transcript"
)

// ErrPipelineStopped is returned when ingesting into a stopped assembler
var ErrPipelineStopped = errors.New("pipeline stopped")

// AssemblerConfig contains phrase assembler configuration
type AssemblerConfig struct {
	TickInterval           time.Duration
	PhraseTimeout          time.Duration
	WindowSeconds          int
	SourceSampleRate       int
	TargetSampleRate       int
	MaxConsecutiveFailures int
}

// UpdateFunc is invoked with a fresh transcript snapshot whenever the
// visible transcript changes
type UpdateFunc func(lines []transcript.Line)

// Assembler accumulates speech frames into a phrase buffer and runs
// recognition over the whole buffer on every tick. A silence gap longer
// than the phrase timeout closes the phrase: its last recognition
// result is finalized and the buffer resets for the next phrase.
type Assembler struct {
	config  AssemblerConfig
	queue   *Queue
	engine  recognition.Engine
	store   *transcript.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	onUpdate UpdateFunc

	// Phrase state, owned by the run goroutine
	buffer      []byte
	startOffset time.Duration
	lastSpeech  time.Time

	consecutiveFailures int
	fatalErr            error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Statistics
	ticksProcessed   uint64
	phrasesFinalized uint64
	framesIngested   uint64
	framesDropped    uint64
	bufferBytes      int

	running bool
	mu      sync.RWMutex
}

// AssemblerStats represents assembler statistics
type AssemblerStats struct {
	TicksProcessed      uint64 `json:"ticks_processed"`
	PhrasesFinalized    uint64 `json:"phrases_finalized"`
	FramesIngested      uint64 `json:"frames_ingested"`
	FramesDropped       uint64 `json:"frames_dropped"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	BufferBytes         int    `json:"buffer_bytes"`
	QueueDepth          int    `json:"queue_depth"`
	Running             bool   `json:"running"`
}

// NewAssembler creates a new phrase assembler
func NewAssembler(config AssemblerConfig, queue *Queue, engine recognition.Engine,
	store *transcript.Store, m *metrics.Metrics, logger *slog.Logger) (*Assembler, error) {

	if config.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %v", config.TickInterval)
	}
	if config.PhraseTimeout <= 0 {
		return nil, fmt.Errorf("phrase timeout must be positive, got %v", config.PhraseTimeout)
	}
	if config.WindowSeconds <= 0 {
		return nil, fmt.Errorf("window seconds must be positive, got %d", config.WindowSeconds)
	}
	if config.SourceSampleRate <= 0 || config.TargetSampleRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got %d/%d",
			config.SourceSampleRate, config.TargetSampleRate)
	}
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = 10
	}
	if queue == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	return &Assembler{
		config:  config,
		queue:   queue,
		engine:  engine,
		store:   store,
		metrics: m,
		logger:  logger,
	}, nil
}

// SetUpdateFunc sets the transcript change callback. Must be called
// before Start.
func (a *Assembler) SetUpdateFunc(fn UpdateFunc) {
	a.onUpdate = fn
}

// Start begins the tick loop
func (a *Assembler) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("assembler already running")
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.running = true

	a.wg.Add(1)
	go a.run()

	a.logger.Info("Phrase assembler started",
		slog.String("tick_interval", a.config.TickInterval.String()),
		slog.String("phrase_timeout", a.config.PhraseTimeout.String()),
		slog.Int("window_seconds", a.config.WindowSeconds))

	return nil
}

// Stop halts the tick loop, then runs one final recognition pass over
// any buffered audio and finalizes it
func (a *Assembler) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()

	a.mu.RLock()
	fatal := a.fatalErr
	a.mu.RUnlock()

	// Flush under a fresh context, the run context is already canceled.
	// A fatal engine outage skips the flush: retrying a dead engine
	// would only stall shutdown.
	if fatal == nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.processTick(flushCtx, true)
	}

	a.logger.Info("Phrase assembler stopped",
		slog.Uint64("ticks_processed", a.ticksProcessed),
		slog.Uint64("phrases_finalized", a.phrasesFinalized))

	return nil
}

// Err returns the fatal error that stopped the assembler, if any
func (a *Assembler) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fatalErr
}

// Ingest pushes a speech frame into the ingestion queue. Never blocks:
// a full queue drops its oldest frame instead.
func (a *Assembler) Ingest(frame Frame) error {
	a.mu.RLock()
	running := a.running
	a.mu.RUnlock()

	if !running {
		return ErrPipelineStopped
	}

	dropped := a.queue.Push(frame)

	a.mu.Lock()
	a.framesIngested++
	a.framesDropped += uint64(dropped)
	a.mu.Unlock()

	if a.metrics != nil {
		for i := 0; i < dropped; i++ {
			a.metrics.RecordFrameDropped()
		}
		a.metrics.SetQueueDepth(a.queue.Depth())
	}

	return nil
}

// run is the assembler tick loop
func (a *Assembler) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.processTick(a.ctx, false)
		}
	}
}

// processTick drains the queue into the phrase buffer and, if the
// buffer holds audio, re-transcribes it. final forces the phrase
// closed regardless of the silence gap.
func (a *Assembler) processTick(ctx context.Context, final bool) {
	a.mu.Lock()
	a.ticksProcessed++
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.RecordTick()
	}

	frames := a.queue.Drain()
	for _, frame := range frames {
		if len(a.buffer) == 0 {
			a.startOffset = frame.Offset
		}
		a.buffer = append(a.buffer, frame.Payload...)
		a.lastSpeech = time.Now()
	}

	a.mu.Lock()
	a.bufferBytes = len(a.buffer)
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.SetQueueDepth(a.queue.Depth())
		a.metrics.SetBufferSamples(len(a.buffer) / 2)
	}

	if len(a.buffer) == 0 {
		return
	}

	// Recomputed every tick from the buffer state, never carried over
	phraseDone := final || time.Since(a.lastSpeech) > a.config.PhraseTimeout

	window := audio.Normalize(a.buffer, a.config.SourceSampleRate,
		a.config.TargetSampleRate, a.config.WindowSeconds)

	if a.metrics != nil {
		a.metrics.RecordRecognitionRequest()
	}

	start := time.Now()
	result, err := a.engine.Transcribe(ctx, window)
	elapsed := time.Since(start)

	if err != nil {
		a.handleRecognitionError(err, elapsed)
		return
	}

	if a.metrics != nil {
		a.metrics.RecordRecognitionSuccess(elapsed.Seconds())
	}

	a.mu.Lock()
	a.consecutiveFailures = 0
	a.mu.Unlock()

	changed := a.store.Merge(a.startOffset, result.Segments, phraseDone)
	if changed {
		if a.metrics != nil && !phraseDone {
			a.metrics.RecordPendingUpdate()
		}
		if a.onUpdate != nil {
			a.onUpdate(a.store.Snapshot())
		}
	}

	if phraseDone {
		phraseSeconds := float64(len(a.buffer)/2) / float64(a.config.SourceSampleRate)

		a.mu.Lock()
		a.phrasesFinalized++
		a.bufferBytes = 0
		a.mu.Unlock()

		if a.metrics != nil {
			a.metrics.RecordPhraseFinalized(phraseSeconds)
			a.metrics.SetBufferSamples(0)
		}

		a.logger.Debug("Phrase finalized",
			slog.String("start", transcript.FormatTimestamp(a.startOffset)),
			slog.Float64("duration_seconds", phraseSeconds),
			slog.Int("segments", len(result.Segments)))

		a.buffer = nil
		a.startOffset = 0
	}
}

// handleRecognitionError keeps the buffer intact so the next tick
// retries the same phrase, escalating to a fatal stop after too many
// consecutive engine outages
func (a *Assembler) handleRecognitionError(err error, elapsed time.Duration) {
	if errors.Is(err, context.Canceled) {
		return
	}

	if a.metrics != nil {
		a.metrics.RecordRecognitionFailure(elapsed.Seconds())
	}

	if !errors.Is(err, recognition.ErrEngineUnavailable) {
		a.logger.Warn("Recognition failed, keeping phrase buffer",
			slog.String("error", err.Error()))
		return
	}

	a.mu.Lock()
	a.consecutiveFailures++
	failures := a.consecutiveFailures
	a.mu.Unlock()

	a.logger.Warn("Recognition engine unavailable",
		slog.Int("consecutive_failures", failures),
		slog.Int("max_failures", a.config.MaxConsecutiveFailures),
		slog.String("error", err.Error()))

	if failures >= a.config.MaxConsecutiveFailures {
		a.mu.Lock()
		a.fatalErr = fmt.Errorf("recognition engine unreachable after %d consecutive attempts: %w",
			failures, err)
		a.mu.Unlock()

		a.logger.Error("Stopping pipeline, recognition engine unreachable",
			slog.Int("consecutive_failures", failures))

		a.cancel()
	}
}

// GetStats returns current assembler statistics
func (a *Assembler) GetStats() AssemblerStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return AssemblerStats{
		TicksProcessed:      a.ticksProcessed,
		PhrasesFinalized:    a.phrasesFinalized,
		FramesIngested:      a.framesIngested,
		FramesDropped:       a.framesDropped,
		ConsecutiveFailures: a.consecutiveFailures,
		BufferBytes:         a.bufferBytes,
		QueueDepth:          a.queue.Depth(),
		Running:             a.running,
	}
}
