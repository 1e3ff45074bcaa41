package wire

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultEndpoint is the live speech-model websocket endpoint.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

const handshakeTimeout = 10 * time.Second

// ErrClosed is returned by SendAudio after the channel has been closed.
var ErrClosed = fmt.Errorf("wire: channel closed")

// Dialer opens duplex channels. The zero value dials the production endpoint.
type Dialer struct {
	Endpoint string
	APIKey   string
	// Header is merged into the websocket handshake request.
	Header http.Header
}

// Channel is one persistent full-duplex connection to the speech model.
// Inbound messages are decoded once into typed events; malformed messages are
// logged and dropped without disturbing the stream.
type Channel struct {
	conn *websocket.Conn

	events   chan Event
	outbound chan []byte
	done     chan struct{}
	stopCh   chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Dial connects, sends the setup payload, and starts the send/receive pumps.
// The SetupComplete event arrives on Events once the remote handshake is done.
func (d *Dialer) Dial(ctx context.Context, cfg SetupConfig) (*Channel, error) {
	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if d.APIKey != "" {
		endpoint = endpoint + "?key=" + d.APIKey
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wire: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("wire: dial: %w", err)
	}

	ch := &Channel{
		conn:     conn,
		events:   make(chan Event, 256),
		outbound: make(chan []byte, 64),
		done:     make(chan struct{}),
		stopCh:   make(chan struct{}),
	}

	if err := conn.WriteJSON(cfg.setupMessage()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wire: send setup: %w", err)
	}

	go ch.readLoop()
	go ch.writeLoop()
	return ch, nil
}

// Events yields decoded inbound events. The channel is closed when the
// connection ends for any reason; Err reports the terminal fault, if any.
func (c *Channel) Events() <-chan Event { return c.events }

// SendAudio queues one realtime-media frame of 16-bit PCM at the given sample
// rate. Frames queued after Close are rejected with ErrClosed; a full queue
// drops the frame rather than stalling the capture path.
func (c *Channel) SendAudio(pcm []byte, sampleRate int) error {
	if c.closed.Load() {
		return ErrClosed
	}
	frame := realtimeInputMessage{
		RealtimeInput: realtimeInputPayload{
			Media: &inlineDataPayload{
				MimeType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
				Data:     base64.StdEncoding.EncodeToString(pcm),
			},
		},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("wire: marshal audio frame: %w", err)
	}
	select {
	case c.outbound <- data:
		return nil
	case <-c.stopCh:
		return ErrClosed
	default:
		log.Println("wire: outbound buffer full, dropping frame")
		return nil
	}
}

// Close shuts the connection down. Best effort: close errors are logged, not
// propagated. Safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		deadline := time.Now().Add(2 * time.Second)
		if err := c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline); err != nil {
			log.Printf("wire: write close frame: %v", err)
		}
		if err := c.conn.Close(); err != nil {
			log.Printf("wire: close connection: %v", err)
		}
	})
	<-c.done
	return nil
}

// Err reports the terminal connection error after Events has closed. A clean
// remote close yields nil.
func (c *Channel) Err() error {
	<-c.done
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Channel) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Channel) readLoop() {
	defer close(c.done)
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.setErr(err)
			return
		}
		events, err := Decode(data)
		if err != nil {
			// A single malformed message must never take down the session.
			log.Printf("wire: dropping malformed message: %v", err)
			continue
		}
		for _, ev := range events {
			select {
			case c.events <- ev:
			case <-c.stopCh:
				return
			}
		}
	}
}

func (c *Channel) writeLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		case data := <-c.outbound:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !c.closed.Load() {
					log.Printf("wire: send frame: %v", err)
					c.setErr(err)
				}
				return
			}
		}
	}
}
