package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SPEECH_API_KEY", "k")

	cfg := Load()
	if cfg.SpeechAPIKey != "k" {
		t.Fatalf("api key = %q", cfg.SpeechAPIKey)
	}
	if cfg.Model == "" || cfg.Voice == "" {
		t.Fatalf("missing defaults: model=%q voice=%q", cfg.Model, cfg.Voice)
	}
	if cfg.HandshakeTimeout != 10*time.Second {
		t.Fatalf("handshake timeout = %s", cfg.HandshakeTimeout)
	}
	if cfg.VAD != nil {
		t.Fatal("VAD should be nil when unset")
	}
}

func TestLoadVADOverrides(t *testing.T) {
	t.Setenv("SPEECH_API_KEY", "k")
	t.Setenv("VAD_START_SENSITIVITY", "START_SENSITIVITY_LOW")
	t.Setenv("VAD_SILENCE_DURATION_MS", "250")

	cfg := Load()
	if cfg.VAD == nil {
		t.Fatal("VAD should be configured")
	}
	if cfg.VAD.StartSensitivity != "START_SENSITIVITY_LOW" {
		t.Fatalf("start sensitivity = %q", cfg.VAD.StartSensitivity)
	}
	if cfg.VAD.SilenceDurationMS != 250 {
		t.Fatalf("silence duration = %d", cfg.VAD.SilenceDurationMS)
	}
	if cfg.VAD.EndSensitivity != "END_SENSITIVITY_HIGH" {
		t.Fatalf("end sensitivity default = %q", cfg.VAD.EndSensitivity)
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SPEECH_API_KEY", "k")
	t.Setenv("HANDSHAKE_TIMEOUT", "not-a-duration")

	cfg := Load()
	if cfg.HandshakeTimeout != 10*time.Second {
		t.Fatalf("handshake timeout = %s, want fallback", cfg.HandshakeTimeout)
	}
}
