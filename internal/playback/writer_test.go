package playback

import (
	"sync"
	"testing"
	"time"
)

type fakeOutput struct {
	mu     sync.Mutex
	frames [][]float32
	closed bool
}

func (f *fakeOutput) WriteFrame(samples []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeOutput) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func waitFrames(t *testing.T, out *fakeOutput, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if out.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", want, out.count())
}

func TestWriterSlicesChunksIntoFrames(t *testing.T) {
	out := &fakeOutput{}
	w := NewPacedWriter(out, 24000)
	defer w.Close()

	// 24000 Hz / 50 = 480 samples per frame; 1200 samples = 2.5 frames.
	w.Play(make([]float32, 1200))
	waitFrames(t, out, 2)

	out.mu.Lock()
	for i, fr := range out.frames[:2] {
		if len(fr) != 480 {
			t.Fatalf("frame %d has %d samples, want 480", i, len(fr))
		}
	}
	out.mu.Unlock()
}

func TestWriterFlushTailPadsPartial(t *testing.T) {
	out := &fakeOutput{}
	w := NewPacedWriter(out, 24000)
	defer w.Close()

	w.Play(make([]float32, 100)) // under one frame, held
	time.Sleep(60 * time.Millisecond)
	if out.count() != 0 {
		t.Fatalf("partial frame should be held, got %d frames", out.count())
	}

	w.FlushTail()
	waitFrames(t, out, 1)
	out.mu.Lock()
	if len(out.frames[0]) != 480 {
		t.Fatalf("flushed tail should be padded to 480, got %d", len(out.frames[0]))
	}
	out.mu.Unlock()
}

func TestWriterResetDropsQueue(t *testing.T) {
	out := &fakeOutput{}
	w := NewPacedWriter(out, 24000)
	defer w.Close()

	w.Play(make([]float32, 480*10))
	w.Reset()
	before := out.count()

	// After the reset nothing further should drain beyond frames already
	// in flight when Reset ran.
	time.Sleep(100 * time.Millisecond)
	after := out.count()
	if after > before+1 {
		t.Fatalf("reset should stop playback: %d frames before, %d after", before, after)
	}
}

func TestWriterBurstNeverBlocksCaller(t *testing.T) {
	out := &fakeOutput{}
	w := NewPacedWriter(out, 24000)
	defer w.Close()

	// 12 seconds of audio in one chunk, far past the queue capacity. The
	// call must come straight back so an interrupt right behind it is not
	// delayed.
	start := time.Now()
	w.Play(make([]float32, 480*600))
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Play blocked for %s on a burst", elapsed)
	}

	start = time.Now()
	w.Reset()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Reset blocked for %s after a burst", elapsed)
	}
}

func TestWriterCloseIsIdempotent(t *testing.T) {
	out := &fakeOutput{}
	w := NewPacedWriter(out, 24000)
	w.Close()
	w.Close()
	if !out.closed {
		t.Fatal("close should close the output device")
	}
}
