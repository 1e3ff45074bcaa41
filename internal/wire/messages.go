package wire

import "encoding/json"

// SetupConfig describes one duplex conversation channel.
type SetupConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
	// Transcription toggles for user speech and model speech.
	InputTranscription  bool
	OutputTranscription bool
	// Optional remote voice-activity-detection tuning.
	VAD *VADConfig
}

// VADConfig tunes the remote speech-boundary detector.
type VADConfig struct {
	StartSensitivity  string
	EndSensitivity    string
	PrefixPaddingMS   int
	SilenceDurationMS int
}

// Wire shapes for the BidiGenerateContent websocket protocol. Field names
// follow the remote API exactly; keep omitempty so absent sections are not
// serialized.

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model                    string               `json:"model"`
	GenerationConfig         *generationConfig    `json:"generationConfig,omitempty"`
	SystemInstruction        *contentPayload      `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}            `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}            `json:"outputAudioTranscription,omitempty"`
	RealtimeInputConfig      *realtimeInputConfig `json:"realtimeInputConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig *voiceConfig `json:"voiceConfig,omitempty"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig *prebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type contentPayload struct {
	Parts []partPayload `json:"parts"`
}

type partPayload struct {
	Text       string             `json:"text,omitempty"`
	InlineData *inlineDataPayload `json:"inlineData,omitempty"`
}

type inlineDataPayload struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputConfig struct {
	AutomaticActivityDetection *activityDetection `json:"automaticActivityDetection,omitempty"`
}

type activityDetection struct {
	StartOfSpeechSensitivity string `json:"startOfSpeechSensitivity,omitempty"`
	EndOfSpeechSensitivity   string `json:"endOfSpeechSensitivity,omitempty"`
	PrefixPaddingMS          int    `json:"prefixPaddingMs,omitempty"`
	SilenceDurationMS        int    `json:"silenceDurationMs,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInputPayload `json:"realtimeInput"`
}

type realtimeInputPayload struct {
	Media *inlineDataPayload `json:"media,omitempty"`
}

// Inbound message envelope. Exactly one of the top-level sections is set per
// message; serverContent may carry several logical events at once.
type serverMessage struct {
	SetupComplete           *struct{}                `json:"setupComplete,omitempty"`
	ServerContent           *serverContentPayload    `json:"serverContent,omitempty"`
	ToolCall                json.RawMessage          `json:"toolCall,omitempty"`
	SessionResumptionUpdate *sessionResumptionUpdate `json:"sessionResumptionUpdate,omitempty"`
	GoAway                  *goAwayPayload           `json:"goAway,omitempty"`
}

type serverContentPayload struct {
	InputTranscription  *transcriptionPayload `json:"inputTranscription,omitempty"`
	OutputTranscription *transcriptionPayload `json:"outputTranscription,omitempty"`
	ModelTurn           *contentPayload       `json:"modelTurn,omitempty"`
	TurnComplete        bool                  `json:"turnComplete,omitempty"`
	Interrupted         bool                  `json:"interrupted,omitempty"`
	GenerationComplete  bool                  `json:"generationComplete,omitempty"`
}

type transcriptionPayload struct {
	Text string `json:"text"`
}

type sessionResumptionUpdate struct {
	NewHandle string `json:"newHandle"`
	Resumable bool   `json:"resumable"`
}

type goAwayPayload struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

func (c SetupConfig) setupMessage() setupMessage {
	p := setupPayload{
		Model: c.Model,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if c.Voice != "" {
		p.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: &voiceConfig{
				PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: c.Voice},
			},
		}
	}
	if c.SystemInstruction != "" {
		p.SystemInstruction = &contentPayload{Parts: []partPayload{{Text: c.SystemInstruction}}}
	}
	if c.InputTranscription {
		p.InputAudioTranscription = &struct{}{}
	}
	if c.OutputTranscription {
		p.OutputAudioTranscription = &struct{}{}
	}
	if c.VAD != nil {
		p.RealtimeInputConfig = &realtimeInputConfig{
			AutomaticActivityDetection: &activityDetection{
				StartOfSpeechSensitivity: c.VAD.StartSensitivity,
				EndOfSpeechSensitivity:   c.VAD.EndSensitivity,
				PrefixPaddingMS:          c.VAD.PrefixPaddingMS,
				SilenceDurationMS:        c.VAD.SilenceDurationMS,
			},
		}
	}
	return setupMessage{Setup: p}
}
