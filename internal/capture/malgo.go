package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoOpener acquires microphone devices through miniaudio. One shared
// context serves every device the process opens.
type MalgoOpener struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgoOpener initializes the audio backend context.
func NewMalgoOpener() (*MalgoOpener, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, &DeviceError{Kind: classifyMalgo(err), Err: fmt.Errorf("init audio context: %w", err)}
	}
	return &MalgoOpener{ctx: ctx}, nil
}

// Open acquires a capture device with the given constraints. The echo
// cancellation / noise suppression flags are accepted for interface parity;
// miniaudio leaves that processing to the OS capture pipeline.
func (o *MalgoOpener) Open(_ context.Context, c Constraints) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil {
		return nil, &DeviceError{Kind: KindOther, Err: fmt.Errorf("audio context closed")}
	}
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return nil, &DeviceError{Kind: KindConstraints, Err: fmt.Errorf("invalid constraints: rate=%d channels=%d", c.SampleRate, c.Channels)}
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(c.Channels)
	cfg.SampleRate = uint32(c.SampleRate)
	cfg.Alsa.NoMMap = 1

	d := &malgoDevice{
		frames:     make(chan []float32, 64),
		sampleRate: c.SampleRate,
		channels:   c.Channels,
	}

	onFrames := func(_, samples []byte, frameCount uint32) {
		if frameCount == 0 {
			return
		}
		n := int(frameCount) * c.Channels
		out := make([]float32, n)
		for i := 0; i < n && i*4+4 <= len(samples); i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(samples[i*4:]))
		}
		select {
		case d.frames <- out:
		default:
			// Drop when the consumer lags; capture must never block.
		}
	}

	dev, err := malgo.InitDevice(o.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onFrames})
	if err != nil {
		return nil, &DeviceError{Kind: classifyMalgo(err), Err: fmt.Errorf("init capture device: %w", err)}
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, &DeviceError{Kind: classifyMalgo(err), Err: fmt.Errorf("start capture device: %w", err)}
	}
	d.dev = dev
	d.track = &malgoTrack{dev: d}
	return d, nil
}

// Context exposes the shared backend context so playback can open output
// devices on it.
func (o *MalgoOpener) Context() *malgo.AllocatedContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ctx
}

// Close releases the backend context. Devices must be stopped first.
func (o *MalgoOpener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil {
		return nil
	}
	err := o.ctx.Uninit()
	o.ctx.Free()
	o.ctx = nil
	return err
}

// classifyMalgo maps miniaudio failures onto the permission error taxonomy.
func classifyMalgo(err error) Kind {
	if err == nil {
		return KindOther
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied") || strings.Contains(msg, "permission"):
		return KindDenied
	case strings.Contains(msg, "no device") || strings.Contains(msg, "device not found") || strings.Contains(msg, "no backend"):
		return KindNotFound
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		return KindBusy
	case strings.Contains(msg, "format not supported") || strings.Contains(msg, "invalid args"):
		return KindConstraints
	default:
		return KindOther
	}
}

type malgoDevice struct {
	dev        *malgo.Device
	track      *malgoTrack
	frames     chan []float32
	sampleRate int
	channels   int

	mu      sync.Mutex
	stopped bool
}

func (d *malgoDevice) Tracks() []Track          { return []Track{d.track} }
func (d *malgoDevice) Frames() <-chan []float32 { return d.frames }
func (d *malgoDevice) SampleRate() int          { return d.sampleRate }
func (d *malgoDevice) Channels() int            { return d.channels }

func (d *malgoDevice) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()
	if d.dev != nil {
		d.dev.Uninit()
	}
	close(d.frames)
}

func (d *malgoDevice) live() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.stopped
}

type malgoTrack struct {
	dev *malgoDevice
}

func (t *malgoTrack) Live() bool    { return t.dev.live() }
func (t *malgoTrack) Enabled() bool { return t.dev.live() }
func (t *malgoTrack) Stop()         { t.dev.Stop() }
