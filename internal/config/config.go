// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/chadiek/voicebridge/internal/wire"
)

// Config holds application configuration.
type Config struct {
	// Live channel.
	SpeechAPIKey      string
	SpeechEndpoint    string
	Model             string
	Voice             string
	SystemInstruction string
	VAD               *wire.VADConfig
	HandshakeTimeout  time.Duration

	// Batch fallback.
	BackendURL         string
	TranscribeEndpoint string
	TranscribeModel    string
	TranscribeKey      string

	// Permission persistence.
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
	DataDir        string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	apiKey := os.Getenv("SPEECH_API_KEY")
	if apiKey == "" {
		log.Println("Warning: SPEECH_API_KEY not set - live sessions will not work")
	}

	model := os.Getenv("SPEECH_MODEL")
	if model == "" {
		model = "models/gemini-2.0-flash-live-001"
	}

	voice := os.Getenv("SPEECH_VOICE")
	if voice == "" {
		voice = "Aoede"
	}

	instruction := os.Getenv("SYSTEM_INSTRUCTION")
	if instruction == "" {
		instruction = "You are a helpful voice assistant. Keep answers short and conversational."
	}

	backendURL := os.Getenv("BACKEND_URL")
	if backendURL == "" {
		log.Println("Warning: BACKEND_URL not set - batch fallback will not answer")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: supabase not configured - permission state stays local only")
	}

	cfg := Config{
		SpeechAPIKey:      apiKey,
		SpeechEndpoint:    os.Getenv("SPEECH_ENDPOINT"),
		Model:             model,
		Voice:             voice,
		SystemInstruction: instruction,
		HandshakeTimeout:  getDuration("HANDSHAKE_TIMEOUT", 10*time.Second),

		BackendURL:         backendURL,
		TranscribeEndpoint: getEnv("TRANSCRIBE_ENDPOINT", "https://api.openai.com/v1/audio/transcriptions"),
		TranscribeModel:    getEnv("TRANSCRIBE_MODEL", "whisper-1"),
		TranscribeKey:      os.Getenv("TRANSCRIBE_API_KEY"),

		SupabaseURL:    supabaseURL,
		SupabaseKey:    supabaseKey,
		SupabaseBucket: getEnv("SUPABASE_BUCKET", "assistant-state"),
		DataDir:        getEnv("DATA_DIR", "data"),
	}

	if start := os.Getenv("VAD_START_SENSITIVITY"); start != "" {
		cfg.VAD = &wire.VADConfig{
			StartSensitivity:  start,
			EndSensitivity:    getEnv("VAD_END_SENSITIVITY", "END_SENSITIVITY_HIGH"),
			PrefixPaddingMS:   getInt("VAD_PREFIX_PADDING_MS", 20),
			SilenceDurationMS: getInt("VAD_SILENCE_DURATION_MS", 100),
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
