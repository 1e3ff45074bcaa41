package playback

import (
	"math"
	"testing"
)

type manualClock struct {
	t float64
}

func (c *manualClock) Now() float64 { return c.t }

type recordSink struct {
	played [][]float32
	resets int
	closed bool
}

func (s *recordSink) Play(samples []float32) {
	s.played = append(s.played, samples)
}
func (s *recordSink) Reset() { s.resets++ }
func (s *recordSink) Close() { s.closed = true }

func chunk(n int) []float32 { return make([]float32, n) }

func TestScheduleBackToBack(t *testing.T) {
	clock := &manualClock{}
	sink := &recordSink{}
	sched := NewScheduler(clock, sink, 24000)

	// 24000 samples = 1s, 12000 = 0.5s.
	s1, d1 := sched.Schedule(chunk(24000))
	s2, d2 := sched.Schedule(chunk(12000))
	s3, _ := sched.Schedule(chunk(24000))

	if s1 != 0 || math.Abs(d1-1.0) > 1e-9 {
		t.Fatalf("first chunk: start=%v dur=%v", s1, d1)
	}
	if math.Abs(s2-1.0) > 1e-9 || math.Abs(d2-0.5) > 1e-9 {
		t.Fatalf("second chunk: start=%v dur=%v", s2, d2)
	}
	if math.Abs(s3-1.5) > 1e-9 {
		t.Fatalf("third chunk should start at 1.5, got %v", s3)
	}
	if len(sink.played) != 3 {
		t.Fatalf("expected 3 chunks at sink, got %d", len(sink.played))
	}
}

func TestScheduleNeverBeforeNow(t *testing.T) {
	clock := &manualClock{}
	sched := NewScheduler(clock, &recordSink{}, 24000)

	sched.Schedule(chunk(2400)) // 0.1s, cursor at 0.1
	clock.t = 5.0               // playback fell idle long ago

	start, _ := sched.Schedule(chunk(2400))
	if start < 5.0 {
		t.Fatalf("chunk scheduled in the past: start=%v now=%v", start, clock.t)
	}
}

func TestActiveTracksUnits(t *testing.T) {
	clock := &manualClock{}
	sched := NewScheduler(clock, &recordSink{}, 24000)

	sched.Schedule(chunk(24000)) // plays 0..1
	sched.Schedule(chunk(24000)) // plays 1..2
	if got := sched.Active(); got != 2 {
		t.Fatalf("expected 2 active units, got %d", got)
	}
	clock.t = 1.5
	if got := sched.Active(); got != 1 {
		t.Fatalf("expected 1 active unit at t=1.5, got %d", got)
	}
	clock.t = 2.5
	if got := sched.Active(); got != 0 {
		t.Fatalf("expected 0 active units at t=2.5, got %d", got)
	}
}

func TestFlushStopsEverything(t *testing.T) {
	clock := &manualClock{}
	sink := &recordSink{}
	sched := NewScheduler(clock, sink, 24000)

	sched.Schedule(chunk(24000))
	sched.Schedule(chunk(24000))
	clock.t = 0.3
	sched.Flush()

	if got := sched.Active(); got != 0 {
		t.Fatalf("flush left %d active units", got)
	}
	if sink.resets != 1 {
		t.Fatalf("flush should reset the sink once, got %d", sink.resets)
	}
	if math.Abs(sched.NextStart()-0.3) > 1e-9 {
		t.Fatalf("flush should move cursor to now, got %v", sched.NextStart())
	}

	// The next chunk starts fresh from now, not from the old cursor.
	start, _ := sched.Schedule(chunk(2400))
	if math.Abs(start-0.3) > 1e-9 {
		t.Fatalf("post-flush chunk should start at 0.3, got %v", start)
	}
}

func TestAnalysisTap(t *testing.T) {
	sched := NewScheduler(&manualClock{}, &recordSink{}, 24000)
	var levels []float64
	sched.SetAnalysis(func(level float64) { levels = append(levels, level) })

	loud := make([]float32, 2400)
	for i := range loud {
		loud[i] = 0.5
	}
	sched.Schedule(loud)
	sched.Schedule(chunk(2400))

	if len(levels) != 2 {
		t.Fatalf("expected 2 level samples, got %d", len(levels))
	}
	if math.Abs(levels[0]-0.5) > 1e-6 {
		t.Fatalf("constant 0.5 signal should have RMS 0.5, got %v", levels[0])
	}
	if levels[1] != 0 {
		t.Fatalf("silence should have RMS 0, got %v", levels[1])
	}
}

func TestCloseReleasesSink(t *testing.T) {
	sink := &recordSink{}
	sched := NewScheduler(&manualClock{}, sink, 24000)
	sched.Close()
	sched.Close()
	if !sink.closed {
		t.Fatal("close should close the sink")
	}
	if start, dur := sched.Schedule(chunk(2400)); start != 0 || dur != 0 {
		t.Fatal("schedule after close should be a no-op")
	}
}
