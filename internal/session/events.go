package session

import "sync"

// Speaker identifies who produced a transcript line.
type Speaker int

const (
	SpeakerUser Speaker = iota
	SpeakerModel
)

func (s Speaker) String() string {
	if s == SpeakerModel {
		return "model"
	}
	return "user"
}

// Transcript is one transcription update. Final marks the end of a turn;
// non-final lines are in-progress accumulations.
type Transcript struct {
	Speaker Speaker
	Text    string
	Final   bool
}

// EventSink receives session lifecycle and conversation events. Callbacks run
// on the session's dispatch goroutine; implementations must not block.
type EventSink interface {
	TranscriptEvent(t Transcript)
	AudioLevel(level float64)
	StateChange(s State)
	SessionError(err error)
	SessionClosed()
}

// NopSink discards everything. Embed it to implement only part of EventSink.
type NopSink struct{}

func (NopSink) TranscriptEvent(Transcript) {}
func (NopSink) AudioLevel(float64)         {}
func (NopSink) StateChange(State)          {}
func (NopSink) SessionError(error)         {}
func (NopSink) SessionClosed()             {}

// Multicast fans session events out to any number of subscribers.
type Multicast struct {
	mu    sync.RWMutex
	sinks []EventSink
}

// NewMulticast builds a sink over the given initial subscribers.
func NewMulticast(sinks ...EventSink) *Multicast {
	return &Multicast{sinks: sinks}
}

// Subscribe adds a sink. Safe to call while the session runs.
func (m *Multicast) Subscribe(s EventSink) {
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

func (m *Multicast) each(fn func(EventSink)) {
	m.mu.RLock()
	sinks := make([]EventSink, len(m.sinks))
	copy(sinks, m.sinks)
	m.mu.RUnlock()
	for _, s := range sinks {
		fn(s)
	}
}

func (m *Multicast) TranscriptEvent(t Transcript) {
	m.each(func(s EventSink) { s.TranscriptEvent(t) })
}

func (m *Multicast) AudioLevel(level float64) {
	m.each(func(s EventSink) { s.AudioLevel(level) })
}

func (m *Multicast) StateChange(st State) {
	m.each(func(s EventSink) { s.StateChange(st) })
}

func (m *Multicast) SessionError(err error) {
	m.each(func(s EventSink) { s.SessionError(err) })
}

func (m *Multicast) SessionClosed() {
	m.each(func(s EventSink) { s.SessionClosed() })
}
