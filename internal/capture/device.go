// Package capture owns the process-wide microphone device cache. At most one
// OS-level capture request is outstanding at a time; a live handle is reused
// across sessions so the user is prompted for permission at most once.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Constraints mirror the acquisition constraints of the host capture API.
type Constraints struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints are the fixed input constraints used by audio sessions:
// mono 16 kHz with all processing enabled.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       16000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Kind classifies acquisition failures so callers can show a precise message.
type Kind int

const (
	KindOther Kind = iota
	KindDenied
	KindNotFound
	KindBusy
	KindConstraints
)

func (k Kind) String() string {
	switch k {
	case KindDenied:
		return "denied"
	case KindNotFound:
		return "not-found"
	case KindBusy:
		return "busy"
	case KindConstraints:
		return "constraints"
	default:
		return "other"
	}
}

// DeviceError wraps an acquisition failure with its classification.
type DeviceError struct {
	Kind Kind
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture: %s: %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// KindOf extracts the classification from an error chain; unclassified errors
// report KindOther.
func KindOf(err error) Kind {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindOther
}

// Track is one live capture track of a device.
type Track interface {
	Live() bool
	Enabled() bool
	Stop()
}

// Device is a stoppable capture stream: the boundary to the OS capture API.
// Opening a Device may show the OS permission prompt.
type Device interface {
	Tracks() []Track
	// Frames yields mono float32 sample frames until the device stops.
	Frames() <-chan []float32
	SampleRate() int
	Channels() int
	Stop()
}

// Opener acquires capture devices.
type Opener interface {
	Open(ctx context.Context, c Constraints) (Device, error)
}

// Handle is one cached, reusable capture device reference. Sessions borrow a
// Handle from the Cache; releasing a borrow never stops the device.
type Handle struct {
	dev Device

	mu        sync.Mutex
	live      bool
	consumers int
}

func newHandle(dev Device) *Handle {
	return &Handle{dev: dev, live: true}
}

// Live reports whether the handle still has at least one enabled track in a
// live ready-state. External code stopping the underlying tracks flips this
// to false.
func (h *Handle) Live() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.live {
		return false
	}
	for _, t := range h.dev.Tracks() {
		if t.Enabled() && t.Live() {
			return true
		}
	}
	return false
}

// Frames exposes the device's sample stream.
func (h *Handle) Frames() <-chan []float32 { return h.dev.Frames() }

// SampleRate reports the device capture rate.
func (h *Handle) SampleRate() int { return h.dev.SampleRate() }

// Channels reports the device channel count.
func (h *Handle) Channels() int { return h.dev.Channels() }

// Borrow registers a consumer reference.
func (h *Handle) Borrow() {
	h.mu.Lock()
	h.consumers++
	h.mu.Unlock()
}

// Release drops a consumer reference. The device keeps running; only
// teardown stops it.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.consumers > 0 {
		h.consumers--
	}
	h.mu.Unlock()
}

// Consumers reports the number of active borrows.
func (h *Handle) Consumers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consumers
}

// stop halts the underlying tracks and marks the handle dead.
func (h *Handle) stop() {
	h.mu.Lock()
	h.live = false
	h.mu.Unlock()
	for _, t := range h.dev.Tracks() {
		t.Stop()
	}
	h.dev.Stop()
}
