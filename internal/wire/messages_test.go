package wire

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSetupMessageShape(t *testing.T) {
	cfg := SetupConfig{
		Model:               "models/test",
		Voice:               "Aoede",
		SystemInstruction:   "Be brief.",
		InputTranscription:  true,
		OutputTranscription: true,
		VAD: &VADConfig{
			StartSensitivity:  "START_SENSITIVITY_LOW",
			EndSensitivity:    "END_SENSITIVITY_HIGH",
			PrefixPaddingMS:   20,
			SilenceDurationMS: 100,
		},
	}

	data, err := json.Marshal(cfg.setupMessage())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)

	for _, want := range []string{
		`"model":"models/test"`,
		`"responseModalities":["AUDIO"]`,
		`"voiceName":"Aoede"`,
		`"inputAudioTranscription":{}`,
		`"outputAudioTranscription":{}`,
		`"startOfSpeechSensitivity":"START_SENSITIVITY_LOW"`,
		`"silenceDurationMs":100`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("setup payload missing %s:\n%s", want, got)
		}
	}
}

func TestSetupMessageOmitsAbsentSections(t *testing.T) {
	data, err := json.Marshal(SetupConfig{Model: "models/test"}.setupMessage())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)
	for _, absent := range []string{"speechConfig", "systemInstruction", "realtimeInputConfig", "inputAudioTranscription"} {
		if strings.Contains(got, absent) {
			t.Errorf("payload should omit %s:\n%s", absent, got)
		}
	}
}
