package transcript

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/ws-transcribe-service/internal/recognition"
)

// Line is a single transcript line with stream-relative timing
type Line struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
	Final bool          `json:"final"`
}

// FormatTimestamp renders a stream offset as HH:MM:SS.mmm. Hours are
// not wrapped, a stream running past 24h keeps counting up.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int64(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int64(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	seconds := int64(d / time.Second)
	d -= time.Duration(seconds) * time.Second
	millis := int64(d / time.Millisecond)

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

// String renders the line as "[start - end] text"
func (l Line) String() string {
	return fmt.Sprintf("[%s - %s] %s", FormatTimestamp(l.Start), FormatTimestamp(l.End), l.Text)
}

// Store holds the accumulated transcript: finalized lines in arrival
// order, plus at most one pending line for the phrase still in progress
type Store struct {
	finalized []Line
	pending   *Line
	logger    *slog.Logger

	// Statistics
	totalMerges    uint64
	linesFinalized uint64
	pendingUpdates uint64

	mu sync.RWMutex
}

// StoreStats represents transcript store statistics
type StoreStats struct {
	FinalizedLines uint64 `json:"finalized_lines"`
	TotalMerges    uint64 `json:"total_merges"`
	PendingUpdates uint64 `json:"pending_updates"`
	HasPending     bool   `json:"has_pending"`
}

// NewStore creates a new transcript store
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		finalized: make([]Line, 0),
		logger:    logger,
	}
}

// Merge folds a recognition result for the phrase that started at
// phraseStart into the transcript. Segment offsets are window-relative,
// so the merged line lands at phraseStart plus the segment offsets.
// The segments concatenate into one line; when final is true it joins
// the finalized list and the pending slot clears, otherwise it rewrites
// the single pending line.
// Returns true if the visible transcript changed.
func (s *Store) Merge(phraseStart time.Duration, segments []recognition.Segment, final bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalMerges++

	if len(segments) == 0 {
		if final && s.pending != nil {
			// Phrase ended but the last recognition pass heard nothing,
			// promote whatever text we already showed
			line := *s.pending
			line.Final = true
			s.finalized = append(s.finalized, line)
			s.pending = nil
			s.linesFinalized++

			s.logger.Debug("Finalized pending line without new segments",
				slog.String("text", line.Text))
			return true
		}
		return false
	}

	// A phrase always yields a single line: segments concatenated in
	// engine order, spanning first segment start to last segment end
	text := joinSegments(segments)

	if final {
		if text == "" {
			if s.pending != nil {
				line := *s.pending
				line.Final = true
				s.finalized = append(s.finalized, line)
				s.pending = nil
				s.linesFinalized++
				return true
			}
			return false
		}

		line := Line{
			Start: phraseStart + secondsToDuration(segments[0].Start),
			End:   phraseStart + secondsToDuration(segments[len(segments)-1].End),
			Text:  text,
			Final: true,
		}
		s.finalized = append(s.finalized, line)
		s.linesFinalized++
		s.pending = nil

		s.logger.Debug("Finalized transcript line",
			slog.String("start", FormatTimestamp(line.Start)),
			slog.String("end", FormatTimestamp(line.End)),
			slog.String("text", line.Text))

		return true
	}

	if text == "" {
		return false
	}

	line := Line{
		Start: phraseStart + secondsToDuration(segments[0].Start),
		End:   phraseStart + secondsToDuration(segments[len(segments)-1].End),
		Text:  text,
		Final: false,
	}

	if s.pending != nil && *s.pending == line {
		return false
	}

	s.pending = &line
	s.pendingUpdates++

	return true
}

// Snapshot returns the finalized lines followed by the pending line if
// one exists. The returned slice is a copy.
func (s *Store) Snapshot() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]Line, 0, len(s.finalized)+1)
	lines = append(lines, s.finalized...)
	if s.pending != nil {
		lines = append(lines, *s.pending)
	}

	return lines
}

// Render returns the full transcript as text, one line per entry
func (s *Store) Render() string {
	lines := s.Snapshot()

	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line.String())
	}

	return sb.String()
}

// GetStats returns current store statistics
func (s *Store) GetStats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreStats{
		FinalizedLines: s.linesFinalized,
		TotalMerges:    s.totalMerges,
		PendingUpdates: s.pendingUpdates,
		HasPending:     s.pending != nil,
	}
}

func joinSegments(segments []recognition.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
