package session

import (
	"context"

	"github.com/chadiek/voicebridge/internal/capture"
)

// CacheSource adapts the process-wide capture cache to MicSource. Each
// acquisition is a borrow: the device keeps running across sessions.
type CacheSource struct {
	Cache       *capture.Cache
	Constraints capture.Constraints
	MaxAttempts int
}

func (c *CacheSource) Acquire(ctx context.Context) (Mic, error) {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	cons := c.Constraints
	if cons.SampleRate == 0 {
		cons = capture.DefaultConstraints()
	}
	h, err := c.Cache.AcquireStreamWithRetry(ctx, attempts, cons)
	if err != nil {
		return nil, err
	}
	h.Borrow()
	return borrowedMic{h: h}, nil
}

type borrowedMic struct {
	h *capture.Handle
}

func (m borrowedMic) Frames() <-chan []float32 { return m.h.Frames() }
func (m borrowedMic) SampleRate() int          { return m.h.SampleRate() }
func (m borrowedMic) Release()                 { m.h.Release() }
