// Package stream guarantees well-formed delta streams toward the event sink:
// a start, zero or more deltas, and exactly one done per turn, on every exit
// path.
package stream

import (
	"strings"
	"sync"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

// Streamer relays one turn's output to the sink. Safe for concurrent deltas.
type Streamer struct {
	sink   types.EventSink
	turnID string

	mu      sync.Mutex
	started bool
	deltas  int
	done    sync.Once
}

// New creates a streamer for one turn.
func New(sink types.EventSink, turnID string) *Streamer {
	return &Streamer{sink: sink, turnID: turnID}
}

// Delta forwards one chunk, opening the stream on first use.
func (s *Streamer) Delta(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.sink.StreamStart(s.turnID)
	}
	s.deltas++
	s.mu.Unlock()
	s.sink.StreamDelta(s.turnID, text)
}

// DeltaCount reports how many chunks were forwarded so far.
func (s *Streamer) DeltaCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deltas
}

// Finish closes the stream. When no incremental delta ever arrived (plain
// completion, special-handler reply), the normalized final text goes out as
// a single delta first so subscribers never see an empty stream. A reply the
// normalizer marks as skip emits nothing, but done still fires.
func (s *Streamer) Finish(finalText string) {
	s.done.Do(func() {
		text, skip := Normalize(finalText)
		s.mu.Lock()
		needsDelta := s.deltas == 0 && !skip && text != ""
		if needsDelta && !s.started {
			s.started = true
			s.sink.StreamStart(s.turnID)
		}
		s.mu.Unlock()
		if needsDelta {
			s.sink.StreamDelta(s.turnID, text)
		}
		if skip {
			logging.Stream("turn %s reply marked skip, stream closed empty", s.turnID)
		}
		s.sink.StreamDone(s.turnID)
	})
}

// Fail terminates the stream with the error text as the final delta. Safe to
// call after Finish; the second close is a no-op.
func (s *Streamer) Fail(message string) {
	s.done.Do(func() {
		s.mu.Lock()
		if !s.started {
			s.started = true
			s.sink.StreamStart(s.turnID)
		}
		s.mu.Unlock()
		if message != "" {
			s.sink.StreamDelta(s.turnID, message)
		}
		s.sink.StreamDone(s.turnID)
	})
}

// skipMarkers are reply values that mean "nothing worth showing".
var skipMarkers = map[string]bool{
	"[skip]":        true,
	"[no response]": true,
	"no_response":   true,
}

// Normalize trims the final reply and reports whether it should be skipped
// entirely.
func Normalize(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", true
	}
	if skipMarkers[strings.ToLower(trimmed)] {
		return "", true
	}
	return trimmed, false
}
