package playback

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoSpeaker plays float frames through the default output device. The
// miniaudio callback drains an internal sample queue; underruns render
// silence.
type MalgoSpeaker struct {
	ctx *malgo.AllocatedContext
	dev *malgo.Device

	mu     sync.Mutex
	queue  []float32
	closed bool
}

// NewMalgoSpeaker opens the default playback device at sampleRate, mono.
func NewMalgoSpeaker(ctx *malgo.AllocatedContext, sampleRate int) (*MalgoSpeaker, error) {
	s := &MalgoSpeaker{ctx: ctx}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	onFrames := func(output, _ []byte, frameCount uint32) {
		s.fill(output, int(frameCount))
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: onFrames})
	if err != nil {
		return nil, fmt.Errorf("playback: init output device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("playback: start output device: %w", err)
	}
	s.dev = dev
	return s, nil
}

// WriteFrame queues one frame for the device callback.
func (s *MalgoSpeaker) WriteFrame(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("playback: speaker closed")
	}
	s.queue = append(s.queue, samples...)
	return nil
}

// Close stops the device. The shared audio context stays open; the owner
// closes it at shutdown.
func (s *MalgoSpeaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.dev.Uninit()
	return nil
}

func (s *MalgoSpeaker) fill(output []byte, frameCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < frameCount && (i+1)*4 <= len(output); i++ {
		var v float32
		if len(s.queue) > 0 {
			v = s.queue[0]
			s.queue = s.queue[1:]
		}
		binary.LittleEndian.PutUint32(output[i*4:], math.Float32bits(v))
	}
}
