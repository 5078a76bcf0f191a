package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skypro1111/ws-transcribe-service/internal/recognition"
	"github.com/skypro1111/ws-transcribe-service/internal/transcript"
)

// fakeEngine returns one segment covering the non-silent part of the
// window, with an optional error script consumed before any successes
type fakeEngine struct {
	errs  []error
	calls int32
	mu    sync.Mutex
}

func (e *fakeEngine) Transcribe(ctx context.Context, window []float32) (*recognition.Result, error) {
	atomic.AddInt32(&e.calls, 1)

	e.mu.Lock()
	if len(e.errs) > 0 {
		err := e.errs[0]
		e.errs = e.errs[1:]
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()

	speechSamples := 0
	for _, s := range window {
		if s != 0 {
			speechSamples++
		}
	}

	if speechSamples == 0 {
		return &recognition.Result{Language: "en"}, nil
	}

	end := float64(speechSamples) / 16000.0
	return &recognition.Result{
		Segments: []recognition.Segment{
			{Start: 0, End: end, Text: fmt.Sprintf("heard %d samples", speechSamples)},
		},
		Language: "en",
	}, nil
}

func testConfig() AssemblerConfig {
	return AssemblerConfig{
		TickInterval:           5 * time.Millisecond,
		PhraseTimeout:          30 * time.Millisecond,
		WindowSeconds:          1,
		SourceSampleRate:       16000,
		TargetSampleRate:       16000,
		MaxConsecutiveFailures: 3,
	}
}

func speechFrame(offset time.Duration) Frame {
	// 20ms at 16kHz mono int16
	payload := make([]byte, 640)
	for i := range payload {
		payload[i] = 0x10
	}
	return Frame{Offset: offset, Payload: payload}
}

func newTestAssembler(t *testing.T, config AssemblerConfig, engine recognition.Engine) (*Assembler, *transcript.Store) {
	t.Helper()

	store := transcript.NewStore(discardLogger())
	queue := NewQueue(64, discardLogger())

	assembler, err := NewAssembler(config, queue, engine, store, nil, discardLogger())
	if err != nil {
		t.Fatalf("Failed to create assembler: %v", err)
	}

	return assembler, store
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestNewAssemblerValidation(t *testing.T) {
	store := transcript.NewStore(discardLogger())
	queue := NewQueue(64, discardLogger())
	engine := &fakeEngine{}

	tests := []struct {
		name   string
		modify func(*AssemblerConfig)
	}{
		{"zero tick interval", func(c *AssemblerConfig) { c.TickInterval = 0 }},
		{"zero phrase timeout", func(c *AssemblerConfig) { c.PhraseTimeout = 0 }},
		{"zero window", func(c *AssemblerConfig) { c.WindowSeconds = 0 }},
		{"zero sample rate", func(c *AssemblerConfig) { c.SourceSampleRate = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			tt.modify(&config)

			if _, err := NewAssembler(config, queue, engine, store, nil, discardLogger()); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestAssemblerFinalizesPhraseAfterSilence(t *testing.T) {
	engine := &fakeEngine{}
	assembler, store := newTestAssembler(t, testConfig(), engine)

	if err := assembler.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start assembler: %v", err)
	}
	defer assembler.Stop()

	phraseStart := 2 * time.Second
	for i := 0; i < 3; i++ {
		frame := speechFrame(phraseStart + time.Duration(i)*20*time.Millisecond)
		if err := assembler.Ingest(frame); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	// Silence longer than the phrase timeout closes the phrase
	ok := waitFor(t, time.Second, func() bool {
		lines := store.Snapshot()
		return len(lines) == 1 && lines[0].Final
	})
	if !ok {
		t.Fatalf("Phrase never finalized, snapshot: %v", store.Snapshot())
	}

	lines := store.Snapshot()
	if lines[0].Start != phraseStart {
		t.Errorf("Expected line start %v, got %v", phraseStart, lines[0].Start)
	}

	stats := assembler.GetStats()
	if stats.PhrasesFinalized != 1 {
		t.Errorf("Expected 1 finalized phrase, got %d", stats.PhrasesFinalized)
	}
	if stats.BufferBytes != 0 {
		t.Errorf("Expected empty buffer after finalize, got %d bytes", stats.BufferBytes)
	}
}

func TestAssemblerPendingWhilePhraseOpen(t *testing.T) {
	engine := &fakeEngine{}

	config := testConfig()
	config.PhraseTimeout = 500 * time.Millisecond

	assembler, store := newTestAssembler(t, config, engine)

	if err := assembler.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start assembler: %v", err)
	}

	assembler.Ingest(speechFrame(0))

	ok := waitFor(t, time.Second, func() bool {
		lines := store.Snapshot()
		return len(lines) == 1 && !lines[0].Final
	})
	if !ok {
		t.Fatalf("Expected a single pending line, snapshot: %v", store.Snapshot())
	}

	// More speech within the timeout extends the same phrase
	assembler.Ingest(speechFrame(20 * time.Millisecond))

	ok = waitFor(t, time.Second, func() bool {
		lines := store.Snapshot()
		return len(lines) == 1 && !lines[0].Final && lines[0].Text == "heard 640 samples"
	})
	if !ok {
		t.Fatalf("Pending line not rewritten, snapshot: %v", store.Snapshot())
	}

	assembler.Stop()
}

func TestAssemblerUpdateCallback(t *testing.T) {
	engine := &fakeEngine{}
	assembler, _ := newTestAssembler(t, testConfig(), engine)

	var updates int32
	assembler.SetUpdateFunc(func(lines []transcript.Line) {
		atomic.AddInt32(&updates, 1)
	})

	if err := assembler.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start assembler: %v", err)
	}
	defer assembler.Stop()

	assembler.Ingest(speechFrame(0))

	ok := waitFor(t, time.Second, func() bool {
		return atomic.LoadInt32(&updates) > 0
	})
	if !ok {
		t.Error("Update callback never invoked")
	}
}

func TestAssemblerRetriesAfterTransientFailure(t *testing.T) {
	engine := &fakeEngine{
		errs: []error{
			errors.New("transient failure"),
			errors.New("transient failure"),
		},
	}
	assembler, store := newTestAssembler(t, testConfig(), engine)

	if err := assembler.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start assembler: %v", err)
	}
	defer assembler.Stop()

	assembler.Ingest(speechFrame(0))

	// Buffer survives the failed ticks, the phrase still finalizes
	ok := waitFor(t, time.Second, func() bool {
		lines := store.Snapshot()
		return len(lines) == 1 && lines[0].Final
	})
	if !ok {
		t.Fatalf("Phrase lost after transient failures, snapshot: %v", store.Snapshot())
	}

	if assembler.Err() != nil {
		t.Errorf("Transient failures should not be fatal: %v", assembler.Err())
	}
}

func TestAssemblerFatalAfterEngineOutage(t *testing.T) {
	unavailable := fmt.Errorf("%w: connection refused", recognition.ErrEngineUnavailable)
	engine := &fakeEngine{
		errs: []error{unavailable, unavailable, unavailable, unavailable},
	}
	assembler, _ := newTestAssembler(t, testConfig(), engine)

	if err := assembler.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start assembler: %v", err)
	}

	assembler.Ingest(speechFrame(0))

	ok := waitFor(t, 2*time.Second, func() bool {
		return assembler.Err() != nil
	})
	if !ok {
		t.Fatal("Expected fatal error after consecutive engine outages")
	}

	if !errors.Is(assembler.Err(), recognition.ErrEngineUnavailable) {
		t.Errorf("Expected ErrEngineUnavailable, got %v", assembler.Err())
	}
}

func TestAssemblerStopSkipsFlushAfterFatal(t *testing.T) {
	unavailable := fmt.Errorf("%w: connection refused", recognition.ErrEngineUnavailable)
	engine := &fakeEngine{
		errs: []error{unavailable, unavailable, unavailable, unavailable},
	}
	assembler, store := newTestAssembler(t, testConfig(), engine)

	if err := assembler.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start assembler: %v", err)
	}

	assembler.Ingest(speechFrame(0))

	ok := waitFor(t, 2*time.Second, func() bool {
		return assembler.Err() != nil
	})
	if !ok {
		t.Fatal("Expected fatal error after consecutive engine outages")
	}

	callsBeforeStop := atomic.LoadInt32(&engine.calls)

	start := time.Now()
	if err := assembler.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	elapsed := time.Since(start)

	// No flush recognition against a known-dead engine, and no shutdown stall
	if got := atomic.LoadInt32(&engine.calls); got != callsBeforeStop {
		t.Errorf("Stop contacted the engine after fatal error: %d calls before, %d after",
			callsBeforeStop, got)
	}
	if elapsed > time.Second {
		t.Errorf("Stop took too long after fatal error: %v", elapsed)
	}
	if len(store.Snapshot()) != 0 {
		t.Errorf("No recognition ever succeeded, transcript should be empty: %v", store.Snapshot())
	}
}

func TestAssemblerFlushOnStop(t *testing.T) {
	engine := &fakeEngine{}

	config := testConfig()
	config.PhraseTimeout = 10 * time.Second // Never closes on its own

	assembler, store := newTestAssembler(t, config, engine)

	if err := assembler.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start assembler: %v", err)
	}

	assembler.Ingest(speechFrame(time.Second))

	// Let at least one tick pick up the frame
	waitFor(t, time.Second, func() bool {
		return len(store.Snapshot()) == 1
	})

	if err := assembler.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	lines := store.Snapshot()
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line after flush, got %d", len(lines))
	}
	if !lines[0].Final {
		t.Error("Expected flushed line to be finalized")
	}
	if lines[0].Start != time.Second {
		t.Errorf("Expected line start 1s, got %v", lines[0].Start)
	}
}

func TestAssemblerIngestAfterStop(t *testing.T) {
	engine := &fakeEngine{}
	assembler, _ := newTestAssembler(t, testConfig(), engine)

	if err := assembler.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start assembler: %v", err)
	}
	assembler.Stop()

	if err := assembler.Ingest(speechFrame(0)); !errors.Is(err, ErrPipelineStopped) {
		t.Errorf("Expected ErrPipelineStopped, got %v", err)
	}
}

func TestAssemblerDoubleStart(t *testing.T) {
	engine := &fakeEngine{}
	assembler, _ := newTestAssembler(t, testConfig(), engine)

	if err := assembler.Start(context.Background()); err != nil {
		t.Fatalf("First start failed: %v", err)
	}
	defer assembler.Stop()

	if err := assembler.Start(context.Background()); err == nil {
		t.Error("Expected error on double start")
	}
}
