// Package playback schedules streamed response audio for gapless output and
// supports immediate flush on barge-in.
package playback

import (
	"sync"
	"time"

	"github.com/chadiek/voicebridge/internal/pcm"
)

// Clock supplies the playback timeline in seconds. The production clock is
// monotonic wall time since the sink opened; tests drive a manual clock.
type Clock interface {
	Now() float64
}

// WallClock measures seconds since Start.
type WallClock struct {
	start time.Time
}

// NewWallClock starts a timeline at zero.
func NewWallClock() *WallClock { return &WallClock{start: time.Now()} }

func (c *WallClock) Now() float64 { return time.Since(c.start).Seconds() }

// Sink consumes scheduled audio. Play receives chunks in schedule order;
// Reset drops anything queued but not yet played.
type Sink interface {
	Play(samples []float32)
	Reset()
	Close()
}

type unit struct {
	start    float64
	duration float64
}

// Scheduler lines up audio chunks back-to-back on a monotonic cursor. Chunk
// k+1 always starts where chunk k ends, and never before "now", so streamed
// audio plays with no gap and no overlap.
type Scheduler struct {
	clock      Clock
	sink       Sink
	sampleRate int

	mu        sync.Mutex
	nextStart float64
	units     []unit
	analysis  func(level float64)
	closed    bool
}

// NewScheduler builds a scheduler over the given clock and sink for audio at
// sampleRate.
func NewScheduler(clock Clock, sink Sink, sampleRate int) *Scheduler {
	return &Scheduler{clock: clock, sink: sink, sampleRate: sampleRate}
}

// SetAnalysis installs a tap invoked with the RMS level of every scheduled
// chunk, feeding visualization.
func (s *Scheduler) SetAnalysis(fn func(level float64)) {
	s.mu.Lock()
	s.analysis = fn
	s.mu.Unlock()
}

// Schedule queues one chunk of float samples and reports its start time and
// duration on the playback timeline.
func (s *Scheduler) Schedule(samples []float32) (start, duration float64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, 0
	}
	now := s.clock.Now()
	start = s.nextStart
	if start < now {
		start = now
	}
	duration = pcm.SampleDuration(len(samples), s.sampleRate).Seconds()
	s.nextStart = start + duration
	s.pruneLocked(now)
	s.units = append(s.units, unit{start: start, duration: duration})
	tap := s.analysis
	sink := s.sink
	s.mu.Unlock()

	if tap != nil {
		tap(pcm.RMS(samples))
	}
	if sink != nil {
		sink.Play(samples)
	}
	return start, duration
}

// Active reports how many scheduled chunks have not yet finished playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.clock.Now())
	return len(s.units)
}

// NextStart exposes the cursor; chunks scheduled after Flush start from the
// current time again.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Flush stops every scheduled chunk immediately and pulls the cursor back to
// now. Used for barge-in; must feel instant.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	s.units = s.units[:0]
	s.nextStart = s.clock.Now()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.Reset()
	}
}

// Close flushes and releases the sink.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.units = nil
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.Reset()
		sink.Close()
	}
}

func (s *Scheduler) pruneLocked(now float64) {
	kept := s.units[:0]
	for _, u := range s.units {
		if u.start+u.duration > now {
			kept = append(kept, u)
		}
	}
	s.units = kept
}
