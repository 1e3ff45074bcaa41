// Package session runs one live voice conversation: microphone frames go up
// the duplex channel, model audio and transcriptions come back down.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chadiek/voicebridge/internal/pcm"
	"github.com/chadiek/voicebridge/internal/wire"
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateInterrupted
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateInterrupted:
		return "interrupted"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// ErrSessionActive is returned by Connect while a session is already
// connecting or streaming. The first caller wins; there is never more than
// one live conversation.
var ErrSessionActive = fmt.Errorf("session: already active")

// Channel is the duplex connection the session talks through.
type Channel interface {
	Events() <-chan wire.Event
	SendAudio(pcm []byte, sampleRate int) error
	Close() error
	Err() error
}

// Dialer opens channels. Production wraps wire.Dialer; tests substitute a
// fake returning a scripted channel.
type Dialer interface {
	Dial(ctx context.Context, cfg wire.SetupConfig) (Channel, error)
}

// WireDialer adapts wire.Dialer to the Dialer interface.
type WireDialer struct {
	D *wire.Dialer
}

func (w WireDialer) Dial(ctx context.Context, cfg wire.SetupConfig) (Channel, error) {
	return w.D.Dial(ctx, cfg)
}

// Mic is a borrowed capture stream. Release returns the borrow without
// stopping the underlying device.
type Mic interface {
	Frames() <-chan []float32
	SampleRate() int
	Release()
}

// MicSource hands out borrowed capture streams.
type MicSource interface {
	Acquire(ctx context.Context) (Mic, error)
}

// Player schedules response audio for gapless output.
type Player interface {
	Schedule(samples []float32) (start, duration float64)
	Active() int
	Flush()
}

// Config carries the per-session parameters.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string
	VAD               *wire.VADConfig

	// InputRate is the capture rate sent upstream; OutputRate is the rate
	// of model audio coming back.
	InputRate  int
	OutputRate int

	// BlockSamples is the outbound block size in samples.
	BlockSamples int

	// HandshakeTimeout bounds the wait for setup acknowledgement.
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.InputRate == 0 {
		c.InputRate = 16000
	}
	if c.OutputRate == 0 {
		c.OutputRate = 24000
	}
	if c.BlockSamples == 0 {
		c.BlockSamples = 4096
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	return c
}

// Session is one live conversation. All public methods are safe for
// concurrent use.
type Session struct {
	cfg    Config
	source MicSource
	dialer Dialer
	player Player
	sink   EventSink

	mu        sync.Mutex
	state     State
	ch        Channel
	mic       Mic
	stopCh    chan struct{}
	stopOnce  *sync.Once
	doneCh    chan struct{}
	silenced  bool
	userBuf   string
	modelBuf  string
	resumeTok string
}

// New wires a session from its collaborators. A nil sink discards events.
func New(cfg Config, source MicSource, dialer Dialer, player Player, sink EventSink) *Session {
	if sink == nil {
		sink = NopSink{}
	}
	return &Session{
		cfg:    cfg.withDefaults(),
		source: source,
		dialer: dialer,
		player: player,
		sink:   sink,
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ResumptionHandle reports the most recent resumable handle issued by the
// remote, empty when none has arrived.
func (s *Session) ResumptionHandle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeTok
}

// Connect acquires the microphone, dials the duplex channel, and blocks until
// the remote acknowledges setup. A second Connect while a session is live
// returns ErrSessionActive.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateStreaming || s.state == StateInterrupted {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.stopCh = make(chan struct{})
	s.stopOnce = new(sync.Once)
	s.doneCh = make(chan struct{})
	s.silenced = false
	s.userBuf, s.modelBuf = "", ""
	emit := s.setStateLocked(StateConnecting)
	s.mu.Unlock()
	if emit {
		s.sink.StateChange(StateConnecting)
	}

	mic, err := s.source.Acquire(ctx)
	if err != nil {
		s.failConnect(fmt.Errorf("session: acquire microphone: %w", err))
		return err
	}

	ch, err := s.dialer.Dial(ctx, wire.SetupConfig{
		Model:               s.cfg.Model,
		Voice:               s.cfg.Voice,
		SystemInstruction:   s.cfg.SystemInstruction,
		InputTranscription:  true,
		OutputTranscription: true,
		VAD:                 s.cfg.VAD,
	})
	if err != nil {
		mic.Release()
		err = fmt.Errorf("session: connect: %w", err)
		s.failConnect(err)
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Disconnect won the race while we were dialing.
		s.mu.Unlock()
		_ = ch.Close()
		mic.Release()
		return fmt.Errorf("session: disconnected during connect")
	}
	s.mic = mic
	s.ch = ch
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	ready := make(chan struct{})
	go s.dispatch(ch, ready, stopCh, doneCh)
	go s.pump(mic, ch, stopCh)

	select {
	case <-ready:
		return nil
	case <-time.After(s.cfg.HandshakeTimeout):
		s.Disconnect()
		return fmt.Errorf("session: setup not acknowledged within %s", s.cfg.HandshakeTimeout)
	case <-ctx.Done():
		s.Disconnect()
		return ctx.Err()
	case <-doneCh:
		// Channel died before setup completed.
		err = fmt.Errorf("session: channel closed during setup")
		if cerr := ch.Err(); cerr != nil {
			err = fmt.Errorf("session: channel closed during setup: %w", cerr)
		}
		s.Disconnect()
		return err
	}
}

// Disconnect tears the conversation down: stops sending, closes the channel,
// flushes playback, and returns the microphone borrow without stopping the
// device. Safe to call repeatedly; only the first call does anything, and no
// events are delivered afterwards.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateError {
		s.mu.Unlock()
		return
	}
	ch, mic := s.ch, s.mic
	stopCh, stopOnce := s.stopCh, s.stopOnce
	s.ch, s.mic = nil, nil
	emit := s.setStateLocked(StateIdle)
	s.silenced = true
	s.mu.Unlock()

	if emit {
		s.sink.StateChange(StateIdle)
	}
	if stopCh != nil {
		stopOnce.Do(func() { close(stopCh) })
	}
	if ch != nil {
		_ = ch.Close()
	}
	if s.player != nil {
		s.player.Flush()
	}
	if mic != nil {
		mic.Release()
	}
	s.sink.SessionClosed()
}

func (s *Session) failConnect(err error) {
	s.mu.Lock()
	emit := s.setStateLocked(StateError)
	s.silenced = true
	s.mu.Unlock()
	if emit {
		s.sink.StateChange(StateError)
	}
	s.sink.SessionError(err)
}

// setStateLocked records the transition and reports whether the caller
// should emit it. Once the session is silenced the state is frozen: events
// still buffered at teardown must not pull a torn-down session out of Idle.
// Emission happens outside the lock so sinks can read session state without
// deadlocking.
func (s *Session) setStateLocked(st State) bool {
	if s.silenced || s.state == st {
		return false
	}
	s.state = st
	return true
}

// setState applies a transition requested by the dispatch goroutine of the
// connect generation identified by stopCh. A stale generation (after a
// reconnect) or a silenced session leaves the state untouched.
func (s *Session) setState(st State, stopCh chan struct{}) {
	s.mu.Lock()
	if s.stopCh != stopCh {
		s.mu.Unlock()
		return
	}
	emit := s.setStateLocked(st)
	s.mu.Unlock()
	if emit {
		s.sink.StateChange(st)
	}
}

func (s *Session) emitTranscript(t Transcript, stopCh chan struct{}) {
	s.mu.Lock()
	live := s.stopCh == stopCh && !s.silenced
	s.mu.Unlock()
	if live {
		s.sink.TranscriptEvent(t)
	}
}

func (s *Session) emitLevel(level float64, stopCh chan struct{}) {
	s.mu.Lock()
	live := s.stopCh == stopCh && !s.silenced
	s.mu.Unlock()
	if live {
		s.sink.AudioLevel(level)
	}
}

// pump assembles capture frames into fixed-size blocks and ships them up the
// channel. Frames arriving after stop are dropped without error.
func (s *Session) pump(mic Mic, ch Channel, stopCh chan struct{}) {
	block := s.cfg.BlockSamples
	buf := make([]float32, 0, block*2)
	for {
		select {
		case <-stopCh:
			return
		case frame, ok := <-mic.Frames():
			if !ok {
				return
			}
			buf = append(buf, frame...)
			for len(buf) >= block {
				data := pcm.Float32ToInt16LE(buf[:block])
				buf = buf[block:]
				if err := ch.SendAudio(data, s.cfg.InputRate); err != nil {
					if err != wire.ErrClosed {
						log.Printf("session: send audio: %v", err)
					}
					return
				}
			}
		}
	}
}

// dispatch consumes decoded channel events and drives the state machine.
func (s *Session) dispatch(ch Channel, ready chan<- struct{}, stopCh chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)
	readySignalled := false
	for {
		select {
		case <-stopCh:
			return
		case ev, ok := <-ch.Events():
			if !ok {
				s.onChannelClosed(ch, stopCh)
				return
			}
			// Teardown takes priority over anything still buffered.
			select {
			case <-stopCh:
				return
			default:
			}
			switch ev := ev.(type) {
			case wire.SetupComplete:
				s.setState(StateStreaming, stopCh)
				if !readySignalled {
					close(ready)
					readySignalled = true
				}
			case wire.InputTranscript:
				s.mu.Lock()
				if s.stopCh != stopCh {
					s.mu.Unlock()
					return
				}
				s.userBuf += ev.Text
				text := s.userBuf
				s.mu.Unlock()
				s.emitTranscript(Transcript{Speaker: SpeakerUser, Text: text}, stopCh)
			case wire.OutputTranscript:
				s.mu.Lock()
				if s.stopCh != stopCh {
					s.mu.Unlock()
					return
				}
				s.modelBuf += ev.Text
				text := s.modelBuf
				s.mu.Unlock()
				s.emitTranscript(Transcript{Speaker: SpeakerModel, Text: text}, stopCh)
			case wire.AudioChunk:
				samples := pcm.Int16LEToFloat32(ev.PCM)
				if s.player != nil {
					s.player.Schedule(samples)
				}
				s.emitLevel(pcm.RMS(samples), stopCh)
			case wire.Interrupted:
				// Barge-in: cut playback now and void the partial
				// model transcript, the user spoke over it. The
				// interruption itself is momentary; streaming resumes
				// as soon as the flush is done.
				if s.player != nil {
					s.player.Flush()
				}
				s.mu.Lock()
				if s.stopCh != stopCh {
					s.mu.Unlock()
					return
				}
				s.modelBuf = ""
				s.mu.Unlock()
				s.setState(StateInterrupted, stopCh)
				s.setState(StateStreaming, stopCh)
			case wire.TurnComplete:
				s.finishTurn(stopCh)
			case wire.GenerationComplete:
				// Audio for the turn is fully generated; playback may
				// still be draining.
			case wire.SessionResumption:
				if ev.Resumable {
					s.mu.Lock()
					if s.stopCh == stopCh {
						s.resumeTok = ev.Handle
					}
					s.mu.Unlock()
				}
			case wire.GoAway:
				log.Printf("session: server going away in %s", ev.TimeLeft)
			case wire.ToolCall:
				log.Println("session: ignoring tool call")
			case wire.Unknown:
				// Forward-compatible: skip quietly.
			}
		}
	}
}

// finishTurn finalizes both transcript buffers and resumes streaming.
func (s *Session) finishTurn(stopCh chan struct{}) {
	s.mu.Lock()
	if s.stopCh != stopCh {
		s.mu.Unlock()
		return
	}
	user, model := s.userBuf, s.modelBuf
	s.userBuf, s.modelBuf = "", ""
	s.mu.Unlock()
	if user != "" {
		s.emitTranscript(Transcript{Speaker: SpeakerUser, Text: user, Final: true}, stopCh)
	}
	if model != "" {
		s.emitTranscript(Transcript{Speaker: SpeakerModel, Text: model, Final: true}, stopCh)
	}
	s.setState(StateStreaming, stopCh)
}

// onChannelClosed handles the remote ending the connection while the session
// is live.
func (s *Session) onChannelClosed(ch Channel, stopCh chan struct{}) {
	select {
	case <-stopCh:
		// Local disconnect already ran; nothing to report.
		return
	default:
	}

	err := ch.Err()
	s.mu.Lock()
	mic := s.mic
	stopOnce := s.stopOnce
	s.ch, s.mic = nil, nil
	emit := s.setStateLocked(StateError)
	silenced := s.silenced
	s.silenced = true
	s.mu.Unlock()

	// Stop the outbound pump as well.
	stopOnce.Do(func() { close(stopCh) })

	if emit {
		s.sink.StateChange(StateError)
	}
	if s.player != nil {
		s.player.Flush()
	}
	if mic != nil {
		mic.Release()
	}
	if !silenced {
		if err == nil {
			err = fmt.Errorf("session: connection closed by remote")
		} else {
			err = fmt.Errorf("session: connection lost: %w", err)
		}
		s.sink.SessionError(err)
	}

	// Cleanup is done; the session is idle and may be connected again. A
	// Connect that already started a new generation owns the state now.
	s.mu.Lock()
	if s.stopCh == stopCh {
		s.state = StateIdle
	}
	s.mu.Unlock()
	if !silenced {
		s.sink.StateChange(StateIdle)
		s.sink.SessionClosed()
	}
}
