package playback

import (
	"log"
	"sync"
	"time"
)

const frameDuration = 20 * time.Millisecond

// OutputDevice consumes fixed-size float frames at the output sample rate.
type OutputDevice interface {
	WriteFrame(samples []float32) error
	Close() error
}

// PacedWriter feeds an output device one frame every 20ms regardless of how
// bursty the upstream chunks arrive. Model audio lands in large chunks; the
// pacer smooths them into real-time delivery and lets Reset cut playback
// mid-chunk.
type PacedWriter struct {
	out        OutputDevice
	sampleRate int
	frameSize  int

	mu      sync.Mutex
	buf     []float32
	frames  chan []float32
	dropped int

	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// NewPacedWriter starts the pacer goroutine for audio at sampleRate.
func NewPacedWriter(out OutputDevice, sampleRate int) *PacedWriter {
	w := &PacedWriter{
		out:        out,
		sampleRate: sampleRate,
		frameSize:  sampleRate / 50,
		frames:     make(chan []float32, 512),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go w.pace()
	return w
}

// Play slices a chunk into 20ms frames and queues them. A trailing partial
// frame is held until the next chunk completes it.
func (w *PacedWriter) Play(samples []float32) {
	w.mu.Lock()
	w.buf = append(w.buf, samples...)
	for len(w.buf) >= w.frameSize {
		frame := make([]float32, w.frameSize)
		copy(frame, w.buf[:w.frameSize])
		w.buf = w.buf[w.frameSize:]
		w.pushFrame(frame)
	}
	w.mu.Unlock()
}

// pushFrame queues one frame without ever blocking the caller. The queue
// already holds over ten seconds of audio when full; a frame past that point
// is dropped, because stalling here would also stall interrupt handling on
// the same goroutine. Called with w.mu held.
func (w *PacedWriter) pushFrame(frame []float32) {
	select {
	case w.frames <- frame:
	case <-w.stopCh:
	default:
		w.dropped++
		if w.dropped == 1 || w.dropped%256 == 0 {
			log.Printf("playback: frame queue full, dropped %d frames", w.dropped)
		}
	}
}

// Reset drops every queued frame and the partial buffer. Playback goes
// silent within one frame interval.
func (w *PacedWriter) Reset() {
	w.mu.Lock()
	w.buf = w.buf[:0]
	w.dropped = 0
	w.mu.Unlock()
	for {
		select {
		case <-w.frames:
		default:
			return
		}
	}
}

// FlushTail pads the partial buffer to a full frame with silence and queues
// it, so the last few milliseconds of a response are not swallowed.
func (w *PacedWriter) FlushTail() {
	w.mu.Lock()
	if len(w.buf) > 0 {
		frame := make([]float32, w.frameSize)
		copy(frame, w.buf)
		w.buf = w.buf[:0]
		w.pushFrame(frame)
	}
	w.mu.Unlock()
}

// Close stops the pacer and closes the output device.
func (w *PacedWriter) Close() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.doneCh
	w.closeOnce.Do(func() {
		if err := w.out.Close(); err != nil {
			log.Printf("playback: close output: %v", err)
		}
	})
}

func (w *PacedWriter) pace() {
	defer close(w.doneCh)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				if err := w.out.WriteFrame(frame); err != nil {
					log.Printf("playback: write frame: %v", err)
				}
			default:
				// Nothing queued this tick; output underruns to silence.
			}
		}
	}
}
