package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Event is the closed set of inbound channel events. Decoding happens once at
// the channel boundary; consumers switch on the concrete type.
type Event interface {
	eventType() string
}

// SetupComplete confirms the remote handshake; streaming may begin.
type SetupComplete struct{}

func (SetupComplete) eventType() string { return "setupComplete" }

// InputTranscript is a partial transcript of the user's speech.
type InputTranscript struct {
	Text string
}

func (InputTranscript) eventType() string { return "inputTranscription" }

// OutputTranscript is a partial transcript of the model's speech.
type OutputTranscript struct {
	Text string
}

func (OutputTranscript) eventType() string { return "outputTranscription" }

// AudioChunk carries decoded 16-bit PCM from a model turn part.
type AudioChunk struct {
	PCM      []byte
	MimeType string
}

func (AudioChunk) eventType() string { return "audio" }

// TurnComplete marks the end of a model turn.
type TurnComplete struct{}

func (TurnComplete) eventType() string { return "turnComplete" }

// Interrupted signals the remote detected user speech over the model's
// response; all pending playback must be flushed.
type Interrupted struct{}

func (Interrupted) eventType() string { return "interrupted" }

// GenerationComplete marks the end of model generation for the turn.
type GenerationComplete struct{}

func (GenerationComplete) eventType() string { return "generationComplete" }

// ToolCall carries an undecoded tool invocation request.
type ToolCall struct {
	Raw json.RawMessage
}

func (ToolCall) eventType() string { return "toolCall" }

// SessionResumption carries a handle for resuming the session after a
// reconnect.
type SessionResumption struct {
	Handle    string
	Resumable bool
}

func (SessionResumption) eventType() string { return "sessionResumptionUpdate" }

// GoAway warns that the remote will close the connection soon.
type GoAway struct {
	TimeLeft string
}

func (GoAway) eventType() string { return "goAway" }

// Unknown holds a message whose shape was not recognized. It is logged and
// dropped by consumers.
type Unknown struct {
	Raw json.RawMessage
}

func (Unknown) eventType() string { return "unknown" }

// Decode parses one inbound channel message into its logical events, in the
// order consumers must observe them: transcriptions, audio,
// generationComplete, interrupted, then turnComplete. A malformed payload
// returns an error and the whole message is dropped by the caller.
func Decode(data []byte) ([]Event, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode channel message: %w", err)
	}

	switch {
	case msg.SetupComplete != nil:
		return []Event{SetupComplete{}}, nil
	case msg.ToolCall != nil:
		return []Event{ToolCall{Raw: msg.ToolCall}}, nil
	case msg.SessionResumptionUpdate != nil:
		u := msg.SessionResumptionUpdate
		return []Event{SessionResumption{Handle: u.NewHandle, Resumable: u.Resumable}}, nil
	case msg.GoAway != nil:
		return []Event{GoAway{TimeLeft: msg.GoAway.TimeLeft}}, nil
	case msg.ServerContent != nil:
		return decodeServerContent(msg.ServerContent)
	}
	return []Event{Unknown{Raw: append(json.RawMessage(nil), data...)}}, nil
}

func decodeServerContent(sc *serverContentPayload) ([]Event, error) {
	var events []Event
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, InputTranscript{Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, OutputTranscript{Text: sc.OutputTranscription.Text})
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			if !strings.HasPrefix(p.InlineData.MimeType, "audio/pcm") {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode audio part: %w", err)
			}
			events = append(events, AudioChunk{PCM: pcm, MimeType: p.InlineData.MimeType})
		}
	}
	if sc.GenerationComplete {
		events = append(events, GenerationComplete{})
	}
	if sc.Interrupted {
		events = append(events, Interrupted{})
	}
	if sc.TurnComplete {
		events = append(events, TurnComplete{})
	}
	return events, nil
}
